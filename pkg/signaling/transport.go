package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/arzzra/rtc_sdk/pkg/session"
)

var (
	// ErrNotConnected сигнальный канал не подключен
	ErrNotConnected = errors.New("signaling: not connected")
	// ErrRequestTimeout сервер не ответил на запрос
	ErrRequestTimeout = errors.New("signaling: request timeout")
)

// Config параметры сигнального канала
type Config struct {
	// URL адрес websocket (ws:// или wss://)
	URL string

	// AccessToken токен аутентифицированного пользователя
	AccessToken string

	// GuestJWT токен гостя, используется вместо AccessToken
	GuestJWT string

	Dialer         *websocket.Dialer
	RequestTimeout time.Duration
	WriteTimeout   time.Duration

	// MediaWriteTimeout сколько ждать места в буфере удаленного трека
	MediaWriteTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MediaWriteTimeout <= 0 {
		c.MediaWriteTimeout = 20 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transport сигнальный канал поверх websocket с JSON кадрами.
// Реализует session.Transport.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	loopDone     chan struct{}
	handlers     *session.TransportHandlers
	onDisconnect func(error)
	sessions     map[string]*wsSession
	requests     map[string]chan Frame

	writeMu sync.Mutex
}

// New создает сигнальный канал
func New(cfg Config) *Transport {
	cfg.setDefaults()
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger.With(slog.String("component", "signaling")),
		sessions: make(map[string]*wsSession),
		requests: make(map[string]chan Frame),
	}
}

// Connect подключается к серверу и запускает цикл чтения.
// Существующее соединение предварительно закрывается.
func (t *Transport) Connect(ctx context.Context) error {
	if strings.TrimSpace(t.cfg.URL) == "" {
		return errors.New("signaling: не задан URL")
	}
	if t.Connected() {
		if err := t.Disconnect(ctx); err != nil {
			return err
		}
	}

	header := http.Header{}
	token := t.cfg.AccessToken
	if t.cfg.GuestJWT != "" {
		token = t.cfg.GuestJWT
	}
	if token = strings.TrimSpace(token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial signaling websocket: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.loopDone = done
	t.mu.Unlock()

	t.logger.Info("signaling connected", slog.String("url", t.cfg.URL))
	go t.readLoop(conn, done)
	return nil
}

// Disconnect закрывает соединение. Ожидающие запросы завершаются с ErrNotConnected.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	done := t.loopDone
	t.conn = nil
	t.loopDone = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.logger.Info("signaling disconnected")
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close signaling websocket: %w", err)
	}
	return nil
}

// Connected true, пока соединение открыто
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// OnDisconnect вызывается при потере соединения, не инициированной Disconnect
func (t *Transport) OnDisconnect(fn func(error)) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}

// Subscribe задает получателя событий. Новая подписка заменяет предыдущую.
func (t *Transport) Subscribe(h session.TransportHandlers) func() {
	t.mu.Lock()
	current := &h
	t.handlers = current
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if t.handlers == current {
			t.handlers = nil
		}
		t.mu.Unlock()
	}
}

func (t *Transport) subscriber() session.TransportHandlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handlers == nil {
		return session.TransportHandlers{}
	}
	return *t.handlers
}

func (t *Transport) Accept(ctx context.Context, id string) error {
	return t.send(Frame{Type: FrameAccept, SessionID: id})
}

func (t *Transport) Reject(ctx context.Context, id string) error {
	return t.send(Frame{Type: FrameReject, SessionID: id})
}

// Initiate запрашивает исходящую сессию
func (t *Transport) Initiate(ctx context.Context, params session.InitiateParams) error {
	frame := Frame{
		Type:                  FrameInitiate,
		RequestID:             uuid.NewString(),
		JID:                   params.JID,
		ConversationID:        params.ConversationID,
		SourceCommunicationID: params.SourceCommunicationID,
		MediaPurpose:          string(params.Kind),
	}
	if params.Stream != nil {
		frame.Tracks = trackInfos(params.Stream)
	}
	return t.send(frame)
}

// RefreshIceServers запрашивает у сервера актуальные ICE серверы
func (t *Transport) RefreshIceServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	requestID := uuid.NewString()
	reply := make(chan Frame, 1)

	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	t.requests[requestID] = reply
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.requests, requestID)
		t.mu.Unlock()
	}()

	if err := t.send(Frame{Type: FrameIceServersRequest, RequestID: requestID}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(t.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case frame, ok := <-reply:
		if !ok {
			return nil, ErrNotConnected
		}
		if frame.Error != "" {
			return nil, fmt.Errorf("signaling: ice servers: %s", frame.Error)
		}
		return frame.IceServers, nil
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) send(frame Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("signaling: write %s: %w", frame.Type, err)
	}
	return nil
}

func (t *Transport) sendBinary(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	var readErr error
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		switch msgType {
		case websocket.TextMessage:
			var frame Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				t.logger.Warn("malformed signaling frame", slog.String("error", err.Error()))
				continue
			}
			t.dispatch(frame)
		case websocket.BinaryMessage:
			t.handleMedia(data)
		}
	}

	t.mu.Lock()
	unexpected := t.conn == conn
	if unexpected {
		t.conn = nil
		t.loopDone = nil
	}
	for id, reply := range t.requests {
		close(reply)
		delete(t.requests, id)
	}
	onDisconnect := t.onDisconnect
	t.mu.Unlock()

	if unexpected {
		t.logger.Warn("signaling connection lost", slog.String("error", readErr.Error()))
		_ = conn.Close()
		if onDisconnect != nil {
			onDisconnect(readErr)
		}
	}
}

func (t *Transport) dispatch(frame Frame) {
	h := t.subscriber()
	logger := t.logger.With(slog.String("frame", frame.Type), slog.String("session_id", frame.SessionID))

	switch frame.Type {
	case FramePropose:
		if h.OnPropose != nil {
			h.OnPropose(session.Proposal{
				ID:             frame.SessionID,
				ConversationID: frame.ConversationID,
				FromAddress:    frame.From,
				AutoAnswer:     frame.AutoAnswer,
			})
		}

	case FrameSessionInitiate:
		offer, err := session.ParseOffer(frame.SDP)
		if err != nil {
			logger.Warn("session initiate with invalid offer", slog.String("error", err.Error()))
			_ = t.send(Frame{Type: FrameSessionTerminate, SessionID: frame.SessionID, Reason: session.ReasonFailed})
			if h.OnError != nil {
				h.OnError(frame.SessionID, err)
			}
			return
		}
		s := newWSSession(t, frame, offer)
		t.mu.Lock()
		t.sessions[s.id] = s
		t.mu.Unlock()
		if h.OnSessionInit != nil {
			h.OnSessionInit(s)
		}

	case FrameRemoteMedia:
		s := t.lookup(frame.SessionID)
		if s == nil {
			logger.Debug("remote media for unknown session")
			return
		}
		stream := media.NewStream()
		for _, info := range frame.Tracks {
			stream.AddTrack(media.NewTrack(media.Kind(info.Kind), info.Label))
		}
		s.setRemote(stream)

	case FrameTerminated:
		if s := t.remove(frame.SessionID); s != nil {
			s.shutdown()
		}
		if h.OnTerminated != nil {
			h.OnTerminated(frame.SessionID, frame.Reason)
		}

	case FrameCancel:
		if h.OnCancelled != nil {
			h.OnCancelled(frame.SessionID)
		}

	case FrameHandled:
		if h.OnHandled != nil {
			h.OnHandled(frame.SessionID)
		}

	case FrameError:
		if h.OnError != nil {
			h.OnError(frame.SessionID, errors.New(frame.Error))
		}

	case FrameTrace:
		if h.OnTrace != nil {
			var details any
			if len(frame.Details) > 0 {
				_ = json.Unmarshal(frame.Details, &details)
			}
			h.OnTrace(frame.Level, frame.Message, details)
		}

	case FrameIceServers:
		t.mu.Lock()
		reply, ok := t.requests[frame.RequestID]
		if ok {
			delete(t.requests, frame.RequestID)
		}
		t.mu.Unlock()
		if !ok {
			logger.Debug("ice servers reply without request", slog.String("request_id", frame.RequestID))
			return
		}
		reply <- frame

	default:
		logger.Debug("unknown signaling frame")
	}
}

func (t *Transport) handleMedia(data []byte) {
	sessionID, index, pkt, err := decodeMedia(data)
	if err != nil {
		t.logger.Debug("malformed media frame", slog.String("error", err.Error()))
		return
	}
	s := t.lookup(sessionID)
	if s == nil {
		return
	}
	track := s.remoteTrack(int(index))
	if track == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.MediaWriteTimeout)
	defer cancel()
	if err := track.WriteRTP(ctx, pkt); err != nil {
		t.logger.Debug("remote packet dropped",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

func (t *Transport) lookup(id string) *wsSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

func (t *Transport) remove(id string) *wsSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sessions[id]
	delete(t.sessions, id)
	return s
}

func trackInfos(stream *media.Stream) []TrackInfo {
	tracks := stream.Tracks()
	out := make([]TrackInfo, 0, len(tracks))
	for _, track := range tracks {
		out = append(out, TrackInfo{Kind: string(track.Kind()), Label: track.Label()})
	}
	return out
}
