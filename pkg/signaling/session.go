package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/rtc_sdk/pkg/media"
)

// wsSession транспортная сессия сигнального канала
type wsSession struct {
	t              *Transport
	id             string
	conversationID string
	from           string
	offer          *sdp.SessionDescription
	logger         *slog.Logger

	mu       sync.Mutex
	local    []*media.Stream
	remote   *media.Stream
	onRemote func(*media.Stream)
	accepted bool
	closed   bool
	cancel   context.CancelFunc
	pumps    sync.WaitGroup
}

func newWSSession(t *Transport, frame Frame, offer *sdp.SessionDescription) *wsSession {
	return &wsSession{
		t:              t,
		id:             frame.SessionID,
		conversationID: frame.ConversationID,
		from:           frame.From,
		offer:          offer,
		logger:         t.logger.With(slog.String("session_id", frame.SessionID)),
	}
}

func (s *wsSession) ID() string                                 { return s.id }
func (s *wsSession) ConversationID() string                     { return s.conversationID }
func (s *wsSession) FromAddress() string                        { return s.from }
func (s *wsSession) RemoteDescription() *sdp.SessionDescription { return s.offer }

// AddStream добавляет локальный поток, он попадет в ответ при Accept
func (s *wsSession) AddStream(stream *media.Stream) error {
	if stream == nil {
		return errors.New("signaling: поток не задан")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("signaling: сессия завершена")
	}
	if countTracks(s.local)+len(stream.Tracks()) > maxMediaTracks {
		return errTooManyTracks
	}
	s.local = append(s.local, stream)
	return nil
}

func countTracks(streams []*media.Stream) int {
	n := 0
	for _, stream := range streams {
		n += len(stream.Tracks())
	}
	return n
}

// OnRemoteStream задает получателя удаленного потока.
// Если поток уже известен, fn вызывается сразу.
func (s *wsSession) OnRemoteStream(fn func(*media.Stream)) {
	s.mu.Lock()
	s.onRemote = fn
	remote := s.remote
	s.mu.Unlock()
	if remote != nil && fn != nil {
		fn(remote)
	}
}

func (s *wsSession) setRemote(stream *media.Stream) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Stop()
		return
	}
	prev := s.remote
	s.remote = stream
	fn := s.onRemote
	s.mu.Unlock()

	if prev != nil && prev != stream {
		prev.Stop()
	}
	if fn != nil {
		fn(stream)
	}
}

func (s *wsSession) remoteTrack(index int) *media.Track {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()
	if remote == nil {
		return nil
	}
	tracks := remote.Tracks()
	if index < 0 || index >= len(tracks) {
		return nil
	}
	return tracks[index]
}

// Accept отправляет SDP ответ и начинает передачу локальных треков
func (s *wsSession) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("signaling: сессия завершена")
	}
	if s.accepted {
		s.mu.Unlock()
		return nil
	}
	local := append([]*media.Stream(nil), s.local...)
	s.mu.Unlock()

	// потоки могли получить треки после AddStream
	if countTracks(local) > maxMediaTracks {
		return errTooManyTracks
	}
	answer, err := BuildAnswer(s.offer, local)
	if err != nil {
		return err
	}
	if err := s.t.send(Frame{Type: FrameSessionAccept, SessionID: s.id, SDP: string(answer)}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.accepted {
		return nil
	}
	s.accepted = true
	pumpCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	index := 0
	for _, stream := range local {
		for _, track := range stream.Tracks() {
			if index >= maxMediaTracks {
				s.logger.Warn("track not sent, index out of range", slog.String("track_id", track.ID()))
				continue
			}
			s.pumps.Add(1)
			go s.pump(pumpCtx, uint8(index), track)
			index++
		}
	}
	return nil
}

// End завершает сессию на сервере и останавливает передачу
func (s *wsSession) End(ctx context.Context, reason string) error {
	if !s.shutdown() {
		return nil
	}
	s.t.remove(s.id)
	return s.t.send(Frame{Type: FrameSessionTerminate, SessionID: s.id, Reason: reason})
}

// shutdown останавливает передачу и удаленный поток, true только при первом вызове.
// Локальные потоки принадлежат вызывающему и не останавливаются.
func (s *wsSession) shutdown() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	cancel := s.cancel
	remote := s.remote
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.pumps.Wait()
	if remote != nil {
		remote.Stop()
	}
	return true
}

func (s *wsSession) pump(ctx context.Context, index uint8, track *media.Track) {
	defer s.pumps.Done()
	for {
		pkt, err := track.ReadRTP(ctx)
		if err != nil {
			return
		}
		frame, err := encodeMedia(s.id, index, pkt)
		if err != nil {
			s.logger.Debug("failed to encode media", slog.String("error", err.Error()))
			continue
		}
		if err := s.t.sendBinary(frame); err != nil {
			s.logger.Debug("failed to send media", slog.String("error", err.Error()))
			if errors.Is(err, ErrNotConnected) {
				return
			}
		}
	}
}
