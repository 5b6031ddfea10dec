package sdk

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestICERefresherRefreshesImmediatelyAndPeriodically(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) ([]webrtc.ICEServer, error) {
		calls.Add(1)
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com"}}}, nil
	}
	r := newICERefresher(fetch, 10*time.Millisecond, nil, nil, slog.Default())

	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stun:stun.example.com"}, r.Servers()[0].URLs)
}

func TestICERefresherCustomServersWin(t *testing.T) {
	fetch := func(context.Context) ([]webrtc.ICEServer, error) {
		return []webrtc.ICEServer{{URLs: []string{"stun:refreshed"}}}, nil
	}
	custom := []webrtc.ICEServer{{URLs: []string{"turn:custom"}}}
	r := newICERefresher(fetch, time.Hour, custom, nil, slog.Default())

	r.Start()
	defer r.Stop()
	time.Sleep(10 * time.Millisecond)

	servers := r.Servers()
	assert.Len(t, servers, 1)
	assert.Equal(t, []string{"turn:custom"}, servers[0].URLs)
}

func TestICERefresherReportsErrors(t *testing.T) {
	errs := make(chan error, 4)
	fetch := func(context.Context) ([]webrtc.ICEServer, error) {
		return nil, errors.New("forbidden")
	}
	r := newICERefresher(fetch, time.Hour, nil, func(err error) { errs <- err }, slog.Default())

	r.Start()
	defer r.Stop()

	select {
	case err := <-errs:
		assert.EqualError(t, err, "forbidden")
	case <-time.After(time.Second):
		t.Fatal("ошибка не передана")
	}
	assert.Empty(t, r.Servers())
}

func TestICERefresherStartStop(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) ([]webrtc.ICEServer, error) {
		calls.Add(1)
		return nil, nil
	}
	r := newICERefresher(fetch, time.Hour, nil, nil, slog.Default())

	r.Stop()
	assert.False(t, r.Running())

	r.Start()
	r.Start()
	assert.True(t, r.Running())
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond,
		"каждый Start обновляет список сразу")

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "после Stop обновлений нет")
}
