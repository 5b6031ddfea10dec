package session

import (
	"context"

	"github.com/arzzra/rtc_sdk/pkg/conversation"
	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/pion/sdp/v3"
)

// TransportHandlers обработчики входящих событий транспорта.
// Передаются в Transport.Subscribe одним вызовом.
type TransportHandlers struct {
	OnPropose     func(Proposal)
	OnSessionInit func(TransportSession)
	OnTerminated  func(id, reason string)
	OnCancelled   func(id string)
	OnHandled     func(id string)
	OnError       func(id string, err error)
	OnTrace       func(level, message string, details any)
}

// InitiateParams параметры исходящего запроса сессии
type InitiateParams struct {
	JID                   string
	ConversationID        string
	SourceCommunicationID string
	Kind                  Kind
	Stream                *media.Stream
}

// Transport сигнальный транспорт сессий
type Transport interface {
	// Subscribe регистрирует обработчики событий, возвращает отписку
	Subscribe(handlers TransportHandlers) (unsubscribe func())

	// Accept принимает предложение сессии
	Accept(ctx context.Context, id string) error

	// Reject отклоняет предложение сессии
	Reject(ctx context.Context, id string) error

	// Initiate запрашивает исходящую сессию
	Initiate(ctx context.Context, params InitiateParams) error
}

// TransportSession сессия на уровне транспорта
type TransportSession interface {
	ID() string
	ConversationID() string
	FromAddress() string

	// RemoteDescription удаленное SDP предложение (nil, если его нет)
	RemoteDescription() *sdp.SessionDescription

	// AddStream добавляет локальный поток в сессию
	AddStream(stream *media.Stream) error

	// OnRemoteStream вызывается при появлении удаленного потока.
	// Если поток уже получен, fn вызывается сразу.
	OnRemoteStream(fn func(*media.Stream))

	// Accept подтверждает сессию
	Accept(ctx context.Context) error

	// End завершает сессию с причиной
	End(ctx context.Context, reason string) error
}

// ConversationService данные разговоров, нужные для завершения сессии
type ConversationService interface {
	GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error)
	DisconnectParticipant(ctx context.Context, conversationID, participantID string) error
}

// Причины завершения сессии
const (
	ReasonLocalEnd     = "success"
	ReasonTracksEnded  = "tracks-ended"
	ReasonFailed       = "failed-application"
	ReasonUnsolicited  = "unsolicited"
	ReasonTimeout      = "timeout"
	ReasonClosed       = "closed"
	ReasonRemote       = "remote"
	ReasonDisconnected = "disconnected"
)
