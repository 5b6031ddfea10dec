package session

import (
	"context"
	"log/slog"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// Handler обработчик сессий одного типа
type Handler interface {
	Kind() Kind

	// Matches чистый предикат по данным предложения
	Matches(p Proposal) bool

	// StartSession исходящая сессия
	StartSession(ctx context.Context, params StartParams) error

	// HandlePropose вызывается после сохранения предложения
	HandlePropose(ctx context.Context, pending *PendingSession) error

	// HandleSessionInit согласует медиа и подтверждает сессию
	HandleSessionInit(ctx context.Context, s *Session) error

	// HandleTermination освобождает ресурсы обработчика
	HandleTermination(ctx context.Context, s *Session)
}

// StartParams параметры исходящей сессии
type StartParams struct {
	Kind Kind
}

// GuestInfo данные гостя (неаутентифицированный поток)
type GuestInfo struct {
	JID                   string
	ConversationID        string
	SourceCommunicationID string
}

// Settings политика SDK, доступная обработчикам
type Settings struct {
	AutoConnect bool
	AllowVideo  bool
	Guest       *GuestInfo
}

// IsGuest true для гостевого потока
func (s Settings) IsGuest() bool {
	return s.Guest != nil
}

// Host возможности менеджера, доступные обработчикам
type Host interface {
	Settings() Settings
	Logger() *slog.Logger
	Transport() Transport
	Media() media.Provider
	Sinks() *media.Sinks
	AudioElement() *media.Element

	// AcceptSession подтверждает предложение или инициализируемую сессию
	AcceptSession(ctx context.Context, id string) error

	// TerminateSession завершает сессию локально
	TerminateSession(ctx context.Context, id, reason string)
}

// HandlerFactory создает обработчик, привязанный к менеджеру
type HandlerFactory func(host Host) Handler

// DefaultHandlers обработчики всех поддерживаемых типов
func DefaultHandlers() []HandlerFactory {
	return []HandlerFactory{
		NewSoftphoneHandler,
		NewScreenShareHandler,
		NewScreenViewHandler,
	}
}

// BaseHandler общее поведение обработчиков.
// Встраивается в конкретные обработчики, они переопределяют только отличающиеся шаги.
type BaseHandler struct {
	host   Host
	kind   Kind
	logger *slog.Logger
}

// NewBaseHandler создает базовое поведение для обработчика типа kind
func NewBaseHandler(host Host, kind Kind) BaseHandler {
	return BaseHandler{
		host:   host,
		kind:   kind,
		logger: host.Logger().With(slog.String("handler", string(kind))),
	}
}

func (h *BaseHandler) Kind() Kind        { return h.kind }
func (h *BaseHandler) Host() Host        { return h.host }
func (h *BaseHandler) Log() *slog.Logger { return h.logger }

func (h *BaseHandler) StartSession(ctx context.Context, params StartParams) error {
	return NewError(ErrorCodeNotSupported, "", "исходящие сессии %s не поддерживаются", h.kind)
}

// HandlePropose подтверждает предложение, если включен автоответ
func (h *BaseHandler) HandlePropose(ctx context.Context, pending *PendingSession) error {
	h.logger.Info("session proposed",
		slog.String("session_id", pending.ID),
		slog.String("conversation_id", pending.ConversationID),
		slog.Bool("auto_answer", pending.AutoAnswer))

	if !pending.AutoAnswer {
		return nil
	}
	return h.ProceedWithSession(ctx, pending)
}

// ProceedWithSession подтверждает предложение без участия пользователя
func (h *BaseHandler) ProceedWithSession(ctx context.Context, pending *PendingSession) error {
	return h.host.AcceptSession(ctx, pending.ID)
}

func (h *BaseHandler) HandleSessionInit(ctx context.Context, s *Session) error {
	h.logger.Info("session init", slog.String("session_id", s.ID()))
	return h.AcceptSession(ctx, s)
}

// HandleTermination останавливает локальные треки и отвязывает приемник
func (h *BaseHandler) HandleTermination(ctx context.Context, s *Session) {
	s.releaseLocalMedia()
	if sink := s.Sink(); sink != nil {
		h.host.Sinks().Detach(sink)
	}
}

// AddMediaToSession передает поток сессии и транспорту
func (h *BaseHandler) AddMediaToSession(s *Session, stream *media.Stream) error {
	if stream == nil {
		return nil
	}
	if !s.SetLocalStream(stream) {
		return NewError(ErrorCodeSessionNotFound, s.ID(), "сессия завершилась до передачи медиа")
	}
	if err := s.Transport().AddStream(stream); err != nil {
		return NewError(ErrorCodeNegotiationFailure, s.ID(), "не удалось добавить поток в сессию").WithCause(err)
	}
	return nil
}

// WatchTracksEnded завершает сессию, когда закончатся все треки потока
func (h *BaseHandler) WatchTracksEnded(s *Session, stream *media.Stream) {
	stream.OnAllTracksEnded(func() {
		h.logger.Debug("all outbound tracks ended", slog.String("session_id", s.ID()))
		h.host.TerminateSession(context.Background(), s.ID(), ReasonTracksEnded)
	})
}

// AttachRemoteMedia направляет удаленный поток в приемник
func (h *BaseHandler) AttachRemoteMedia(s *Session, el *media.Element) {
	s.Transport().OnRemoteStream(func(stream *media.Stream) {
		if s.State() == StateEnding || s.State() == StateEnded {
			return
		}
		sinks := h.host.Sinks()
		target := sinks.Acquire(el)
		if err := sinks.Attach(target, stream); err != nil {
			h.logger.Warn("failed to attach remote media",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()))
			return
		}
		s.setRemote(stream, target)

		// сессия могла завершиться, пока поток подключался
		if s.State() == StateEnded {
			sinks.Detach(target)
		}
	})
}

// AcceptSession подтверждает сессию, если включено автоподключение
func (h *BaseHandler) AcceptSession(ctx context.Context, s *Session) error {
	if !h.host.Settings().AutoConnect {
		h.logger.Debug("auto connect disabled, waiting for explicit accept",
			slog.String("session_id", s.ID()))
		return nil
	}
	return h.host.AcceptSession(ctx, s.ID())
}
