package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// ScreenShareHandler демонстрация экрана гостем
type ScreenShareHandler struct {
	BaseHandler

	mu        sync.Mutex
	temporary *media.Stream
}

// NewScreenShareHandler создает обработчик демонстрации экрана
func NewScreenShareHandler(host Host) Handler {
	return &ScreenShareHandler{BaseHandler: NewBaseHandler(host, KindScreenShare)}
}

func (h *ScreenShareHandler) Matches(p Proposal) bool {
	addr, err := ParseAddress(p.FromAddress)
	if err != nil {
		return false
	}
	return addr.IsAcd()
}

// StartSession захватывает экран и запрашивает сессию.
// Одновременно удерживается только один поток, новый заменяет старый.
func (h *ScreenShareHandler) StartSession(ctx context.Context, params StartParams) error {
	guest := h.host.Settings().Guest
	if guest == nil {
		return NewError(ErrorCodeNotSupported, "", "демонстрация экрана доступна только гостю")
	}

	stream, err := h.host.Media().DisplayMedia(ctx)
	if err != nil {
		return NewError(ErrorCodeMediaAcquisitionFailure, "", "не удалось захватить экран").WithCause(err)
	}

	err = h.host.Transport().Initiate(ctx, InitiateParams{
		JID:                   guest.JID,
		ConversationID:        guest.ConversationID,
		SourceCommunicationID: guest.SourceCommunicationID,
		Kind:                  KindScreenShare,
		Stream:                stream,
	})
	if err != nil {
		stream.Stop()
		return NewError(ErrorCodeTransportFailure, "", "ошибка запроса демонстрации экрана").WithCause(err)
	}

	h.hold(stream)
	return nil
}

func (h *ScreenShareHandler) hold(stream *media.Stream) {
	h.mu.Lock()
	prev := h.temporary
	h.temporary = stream
	h.mu.Unlock()

	if prev != nil && prev != stream {
		h.logger.Debug("replacing pending screen stream", slog.String("stream_id", prev.ID()))
		prev.Stop()
	}
}

func (h *ScreenShareHandler) takeTemporary() *media.Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream := h.temporary
	h.temporary = nil
	return stream
}

// HandlePropose гость всегда принимает предложение без подтверждения
func (h *ScreenShareHandler) HandlePropose(ctx context.Context, pending *PendingSession) error {
	h.logger.Info("screen share proposed", slog.String("session_id", pending.ID))
	return h.ProceedWithSession(ctx, pending)
}

func (h *ScreenShareHandler) HandleSessionInit(ctx context.Context, s *Session) error {
	settings := h.host.Settings()
	if !settings.IsGuest() {
		return NewError(ErrorCodeNotSupported, s.ID(), "демонстрация экрана не поддерживается для аутентифицированных пользователей")
	}

	if stream := h.takeTemporary(); stream != nil {
		if err := h.AddMediaToSession(s, stream); err != nil {
			return err
		}
		h.WatchTracksEnded(s, stream)
	} else {
		h.logger.Warn("no pending screen stream for guest session", slog.String("session_id", s.ID()))
	}

	if !settings.AutoConnect {
		return NewError(ErrorCodeConfigurationError, s.ID(), "для гостя автоподключение сессий должно быть включено")
	}
	return h.host.AcceptSession(ctx, s.ID())
}
