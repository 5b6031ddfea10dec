package sdk

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/arzzra/rtc_sdk/pkg/session"
	"github.com/arzzra/rtc_sdk/pkg/signaling"
)

// Connection сигнальное соединение SDK
type Connection interface {
	session.Transport

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool

	// OnDisconnect вызывается при потере соединения
	OnDisconnect(fn func(error))

	RefreshIceServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

var _ Connection = (*signaling.Transport)(nil)
