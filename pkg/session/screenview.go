package session

import (
	"context"
	"log/slog"
)

// ScreenViewMarker маркер приемника удаленного экрана
const ScreenViewMarker = "__rtc-screen-view"

// ScreenViewHandler просмотр чужой демонстрации экрана, только прием
type ScreenViewHandler struct {
	BaseHandler
}

// NewScreenViewHandler создает обработчик просмотра экрана
func NewScreenViewHandler(host Host) Handler {
	return &ScreenViewHandler{BaseHandler: NewBaseHandler(host, KindScreenView)}
}

func (h *ScreenViewHandler) Matches(p Proposal) bool {
	addr, err := ParseAddress(p.FromAddress)
	if err != nil {
		return false
	}
	return addr.IsScreenView()
}

func (h *ScreenViewHandler) HandleSessionInit(ctx context.Context, s *Session) error {
	offer, err := InspectOffer(s.Transport().RemoteDescription())
	if err != nil {
		return asError(err, ErrorCodeNegotiationFailure, s.ID(), "ошибка разбора предложения")
	}
	if !offer.Video || !offer.VideoDirection.Sends() {
		return NewError(ErrorCodeNotSupported, s.ID(), "просмотр экрана без входящего видео")
	}
	s.SetOffer(offer)

	h.AttachRemoteMedia(s, h.host.Sinks().AcquireMarker(ScreenViewMarker))
	h.logger.Info("screen view negotiated", slog.String("session_id", s.ID()))
	return h.AcceptSession(ctx, s)
}
