package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// Kind тип сессии
type Kind string

const (
	KindSoftphone   Kind = "softphone"
	KindScreenShare Kind = "screenShare"
	KindScreenView  Kind = "screenView"
)

// Proposal входящее предложение сессии от транспорта
type Proposal struct {
	ID             string
	ConversationID string
	FromAddress    string
	AutoAnswer     bool
}

// PendingSession предложение, ожидающее инициализации транспортной сессии
type PendingSession struct {
	ID             string
	ConversationID string
	Address        Address
	Kind           Kind
	AutoAnswer     bool
	ArrivedAt      time.Time

	handler Handler
	life    *lifecycle

	// acceptIssued защищается мьютексом менеджера
	acceptIssued bool
}

// State текущее состояние предложения
func (p *PendingSession) State() State {
	return p.life.Current()
}

// PendingInfo снимок предложения для внешних потребителей
type PendingInfo struct {
	ID             string
	ConversationID string
	Address        string
	Kind           Kind
	AutoAnswer     bool
	State          State
	ArrivedAt      time.Time
}

func (p *PendingSession) info() PendingInfo {
	return PendingInfo{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Address:        p.Address.String(),
		Kind:           p.Kind,
		AutoAnswer:     p.AutoAnswer,
		State:          p.State(),
		ArrivedAt:      p.ArrivedAt,
	}
}

// Session активная сессия.
// Менеджер владеет картой сессий, обработчики меняют только сам объект Session.
type Session struct {
	id             string
	conversationID string
	kind           Kind
	address        Address
	transport      TransportSession
	handler        Handler
	life           *lifecycle
	createdAt      time.Time
	logger         *slog.Logger

	mu           sync.Mutex
	offer        Offer
	localStream  *media.Stream
	remoteStream *media.Stream
	sink         *media.Element
	accepted     bool
	initialized  bool
	startedAt    time.Time
	endTimer     *time.Timer
	released     bool
	notified     bool

	transportEndOnce sync.Once
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) ConversationID() string      { return s.conversationID }
func (s *Session) Kind() Kind                  { return s.kind }
func (s *Session) Address() Address            { return s.address }
func (s *Session) Transport() TransportSession { return s.transport }
func (s *Session) State() State                { return s.life.Current() }
func (s *Session) Logger() *slog.Logger        { return s.logger }

func (s *Session) Offer() Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offer
}

func (s *Session) SetOffer(offer Offer) {
	s.mu.Lock()
	s.offer = offer
	s.mu.Unlock()
}

// LocalStream локальный поток, которым владеет сессия
func (s *Session) LocalStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localStream
}

// SetLocalStream передает поток во владение сессии.
// Предыдущий поток, если он отличается, освобождается. После освобождения
// локального медиа сессией новый поток сразу останавливается, возвращается false.
func (s *Session) SetLocalStream(stream *media.Stream) bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return false
	}
	prev := s.localStream
	s.localStream = stream
	s.mu.Unlock()
	if prev != nil && prev != stream {
		prev.Stop()
	}
	return true
}

// RemoteStream удаленный поток. Сессия им не владеет.
func (s *Session) RemoteStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteStream
}

// Sink элемент, воспроизводящий удаленный поток
func (s *Session) Sink() *media.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

func (s *Session) setRemote(stream *media.Stream, sink *media.Element) {
	s.mu.Lock()
	s.remoteStream = stream
	s.sink = sink
	s.mu.Unlock()
}

// Accepted true после отправки подтверждения транспорту
func (s *Session) Accepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// StartedAt время перехода в active (нулевое, пока сессия не активна)
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) markAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted {
		return false
	}
	s.accepted = true
	return true
}

func (s *Session) unmarkAccepted() {
	s.mu.Lock()
	s.accepted = false
	s.mu.Unlock()
}

func (s *Session) markInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// markNotified true только при первом вызове
func (s *Session) markNotified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notified {
		return false
	}
	s.notified = true
	return true
}

func (s *Session) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// releaseLocalMedia останавливает локальный поток ровно один раз.
// Потоки, переданные сессии позже, останавливаются в SetLocalStream.
func (s *Session) releaseLocalMedia() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	stream := s.localStream
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
}

// endTransport завершает транспортную сессию ровно один раз
func (s *Session) endTransport(ctx context.Context, reason string) error {
	var err error
	s.transportEndOnce.Do(func() {
		err = s.transport.End(ctx, reason)
	})
	return err
}

func (s *Session) armEndTimer(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
	s.endTimer = time.AfterFunc(d, fn)
}

func (s *Session) stopEndTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

// Info снимок сессии
type Info struct {
	ID             string
	ConversationID string
	Kind           Kind
	Address        string
	State          State
	Accepted       bool
	StartedAt      time.Time
}

func (s *Session) info() Info {
	return Info{
		ID:             s.id,
		ConversationID: s.conversationID,
		Kind:           s.kind,
		Address:        s.address.String(),
		State:          s.State(),
		Accepted:       s.Accepted(),
		StartedAt:      s.StartedAt(),
	}
}

func (s *Session) markStarted(at time.Time) {
	s.mu.Lock()
	s.startedAt = at
	s.mu.Unlock()
}
