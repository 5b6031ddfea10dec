package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// Kind тип медиа трека
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// TrackState состояние трека
type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateEnded
)

func (s TrackState) String() string {
	if s == TrackStateEnded {
		return "ended"
	}
	return "live"
}

const defaultTrackBufferSize = 128

// Track медиа трек, через который проходят RTP пакеты
type Track struct {
	id    string
	kind  Kind
	label string

	state atomic.Int32

	mu        sync.Mutex
	listeners []func(*Track)

	packets  chan *rtp.Packet
	done     chan struct{}
	stopOnce sync.Once
}

// NewTrack создает живой трек
func NewTrack(kind Kind, label string) *Track {
	return &Track{
		id:      uuid.NewString(),
		kind:    kind,
		label:   label,
		packets: make(chan *rtp.Packet, defaultTrackBufferSize),
		done:    make(chan struct{}),
	}
}

func (t *Track) ID() string    { return t.id }
func (t *Track) Kind() Kind    { return t.kind }
func (t *Track) Label() string { return t.label }

// State текущее состояние трека
func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

// Ended true после Stop
func (t *Track) Ended() bool {
	return t.State() == TrackStateEnded
}

// Done закрывается при завершении трека
func (t *Track) Done() <-chan struct{} {
	return t.done
}

// OnEnded регистрирует слушателя завершения.
// Для уже завершенного трека слушатель вызывается сразу.
func (t *Track) OnEnded(fn func(*Track)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if !t.Ended() {
		t.listeners = append(t.listeners, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(t)
}

// Stop завершает трек. Возвращает true, если трек был завершен этим вызовом.
func (t *Track) Stop() bool {
	stopped := false
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.state.Store(int32(TrackStateEnded))
		listeners := t.listeners
		t.listeners = nil
		t.mu.Unlock()

		close(t.done)
		stopped = true

		for _, fn := range listeners {
			fn(t)
		}
	})
	return stopped
}

// WriteRTP кладет пакет в трек. Блокируется, пока буфер полон.
func (t *Track) WriteRTP(ctx context.Context, pkt *rtp.Packet) error {
	if t.Ended() {
		return newTrackEndedError(t.id)
	}
	select {
	case t.packets <- pkt:
		return nil
	case <-t.done:
		return newTrackEndedError(t.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadRTP возвращает следующий пакет трека.
// После завершения трека оставшиеся в буфере пакеты не выдаются.
func (t *Track) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case <-t.done:
		return nil, newTrackEndedError(t.id)
	default:
	}
	select {
	case pkt := <-t.packets:
		return pkt, nil
	case <-t.done:
		return nil, newTrackEndedError(t.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
