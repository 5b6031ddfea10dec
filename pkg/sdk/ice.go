package sdk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// iceRefresher периодически обновляет список ICE серверов.
// Серверы из конфигурации имеют приоритет над полученными от сервера.
type iceRefresher struct {
	fetch    func(ctx context.Context) ([]webrtc.ICEServer, error)
	interval time.Duration
	custom   []webrtc.ICEServer
	onError  func(error)
	logger   *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	refreshed []webrtc.ICEServer
}

func newICERefresher(fetch func(ctx context.Context) ([]webrtc.ICEServer, error), interval time.Duration,
	custom []webrtc.ICEServer, onError func(error), logger *slog.Logger) *iceRefresher {
	return &iceRefresher{
		fetch:    fetch,
		interval: interval,
		custom:   custom,
		onError:  onError,
		logger:   logger.With(slog.String("component", "ice_refresher")),
	}
}

// Start обновляет список сразу и затем каждые interval.
// Работающий цикл предварительно останавливается.
func (r *iceRefresher) Start() {
	r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.loop(ctx, done)
}

// Stop останавливает цикл. Повторный вызов ничего не делает.
func (r *iceRefresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running true, пока цикл запущен
func (r *iceRefresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *iceRefresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *iceRefresher) refresh(ctx context.Context) {
	servers, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("failed to refresh ice servers", slog.String("error", err.Error()))
		if r.onError != nil {
			r.onError(err)
		}
		return
	}

	r.mu.Lock()
	r.refreshed = servers
	r.mu.Unlock()
	r.logger.Debug("ice servers refreshed", slog.Int("count", len(servers)))
}

// Servers актуальный список ICE серверов
func (r *iceRefresher) Servers() []webrtc.ICEServer {
	if len(r.custom) > 0 {
		return append([]webrtc.ICEServer(nil), r.custom...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webrtc.ICEServer(nil), r.refreshed...)
}
