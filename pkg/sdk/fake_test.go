package sdk

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/arzzra/rtc_sdk/pkg/conversation"
	"github.com/arzzra/rtc_sdk/pkg/session"
)

// fakeConnection сигнальное соединение в памяти
type fakeConnection struct {
	mu           sync.Mutex
	connected    bool
	connects     int
	disconnects  int
	handlers     *session.TransportHandlers
	onDisconnect func(error)
	accepts      []string
	initiates    []session.InitiateParams

	iceServers []webrtc.ICEServer
	iceErr     error
	iceCalls   int
}

func (f *fakeConnection) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeConnection) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.disconnects++
	}
	f.connected = false
	return nil
}

func (f *fakeConnection) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConnection) OnDisconnect(fn func(error)) {
	f.mu.Lock()
	f.onDisconnect = fn
	f.mu.Unlock()
}

// drop имитирует обрыв соединения сервером
func (f *fakeConnection) drop(err error) {
	f.mu.Lock()
	f.connected = false
	fn := f.onDisconnect
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeConnection) RefreshIceServers(context.Context) ([]webrtc.ICEServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iceCalls++
	if f.iceErr != nil {
		return nil, f.iceErr
	}
	return f.iceServers, nil
}

func (f *fakeConnection) Subscribe(h session.TransportHandlers) func() {
	f.mu.Lock()
	f.handlers = &h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handlers = nil
		f.mu.Unlock()
	}
}

func (f *fakeConnection) subscribed() *session.TransportHandlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

func (f *fakeConnection) Accept(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.accepts = append(f.accepts, id)
	return nil
}

func (f *fakeConnection) Reject(context.Context, string) error { return nil }

func (f *fakeConnection) Initiate(_ context.Context, params session.InitiateParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiates = append(f.initiates, params)
	return nil
}

func (f *fakeConnection) calls() (connects, disconnects, ice int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.iceCalls
}

// fakeConversations API разговоров с текущим пользователем
type fakeConversations struct {
	mu     sync.Mutex
	me     string
	meErr  error
	meHits int
}

func (f *fakeConversations) GetMe(context.Context) (*conversation.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meHits++
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &conversation.User{ID: f.me}, nil
}

func (f *fakeConversations) GetConversation(context.Context, string) (*conversation.Conversation, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConversations) DisconnectParticipant(context.Context, string, string) error {
	return nil
}
