package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// SoftphoneHandler голосовые и видео звонки
type SoftphoneHandler struct {
	BaseHandler

	mu     sync.Mutex
	staged *media.Stream
}

// NewSoftphoneHandler создает обработчик звонков
func NewSoftphoneHandler(host Host) Handler {
	return &SoftphoneHandler{BaseHandler: NewBaseHandler(host, KindSoftphone)}
}

// Matches все адреса, кроме ACD и демонстрации экрана
func (h *SoftphoneHandler) Matches(p Proposal) bool {
	addr, err := ParseAddress(p.FromAddress)
	if err != nil {
		return false
	}
	return !addr.IsAcd() && !addr.IsScreenView()
}

// StageStream задает поток для следующей сессии.
// Ранее заданный и не использованный поток освобождается.
func (h *SoftphoneHandler) StageStream(stream *media.Stream) {
	h.mu.Lock()
	prev := h.staged
	h.staged = stream
	h.mu.Unlock()

	if prev != nil && prev != stream {
		h.logger.Debug("replacing staged stream", slog.String("stream_id", prev.ID()))
		prev.Stop()
	}
}

func (h *SoftphoneHandler) takeStaged() *media.Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream := h.staged
	h.staged = nil
	return stream
}

func (h *SoftphoneHandler) HandleSessionInit(ctx context.Context, s *Session) error {
	offer, err := InspectOffer(s.Transport().RemoteDescription())
	if err != nil {
		return asError(err, ErrorCodeNegotiationFailure, s.ID(), "ошибка разбора предложения")
	}
	if !offer.Audio {
		return NewError(ErrorCodeNegotiationFailure, s.ID(), "предложение звонка без аудио")
	}
	s.SetOffer(offer)

	settings := h.host.Settings()
	stream := h.takeStaged()
	if stream != nil {
		h.logger.Debug("using staged stream",
			slog.String("session_id", s.ID()),
			slog.String("stream_id", stream.ID()))
	} else {
		constraints := media.Constraints{Audio: true, Video: offer.Video && settings.AllowVideo}
		stream, err = h.host.Media().UserMedia(ctx, constraints)
		if err != nil {
			return NewError(ErrorCodeMediaAcquisitionFailure, s.ID(), "не удалось получить микрофон").WithCause(err)
		}
	}

	if err := h.AddMediaToSession(s, stream); err != nil {
		return err
	}
	h.AttachRemoteMedia(s, h.host.AudioElement())

	h.logger.Info("softphone session negotiated",
		slog.String("session_id", s.ID()),
		slog.String("offer", offer.String()))
	return h.AcceptSession(ctx, s)
}
