package events

import "time"

// Type имя события, которое видит потребитель SDK
type Type string

// Имена событий являются частью наблюдаемого контракта SDK
const (
	PendingSession        Type = "pendingSession"
	SessionStarted        Type = "sessionStarted"
	SessionEnded          Type = "sessionEnded"
	CancelPendingSession  Type = "cancelPendingSession"
	HandledPendingSession Type = "handledPendingSession"
	Error                 Type = "error"
	Trace                 Type = "trace"
	Connected             Type = "connected"
	Disconnected          Type = "disconnected"
)

// Event событие жизненного цикла сессии или соединения.
//
// Заполняются только поля, относящиеся к конкретному типу события:
//   - pendingSession: SessionID, ConversationID, Address, AutoAnswer, SessionKind
//   - sessionStarted: SessionID, ConversationID, SessionKind, AwaitingAccept
//     (true, если сессия инициализирована без автоподключения и ждет Accept)
//   - sessionEnded: SessionID, ConversationID, SessionKind, Reason
//   - error: Err и, если известно, SessionID
//   - trace: Level, Message, Data
//   - connected: Reconnect
type Event struct {
	EventType      Type
	SessionID      string
	ConversationID string
	Address        string
	AutoAnswer     bool
	SessionKind    string
	Reason         string
	Reconnect      bool
	AwaitingAccept bool
	Level          string
	Message        string
	Err            error
	Data           any
	OccurredAt     time.Time
}

// New создает событие с текущим временем
func New(t Type) Event {
	return Event{EventType: t, OccurredAt: time.Now().UTC()}
}

// Type возвращает имя события
func (e Event) Type() string {
	return string(e.EventType)
}

// Timestamp возвращает время возникновения события
func (e Event) Timestamp() time.Time {
	return e.OccurredAt
}
