package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arzzra/rtc_sdk/pkg/conversation"
	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/pion/sdp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// mockTransport записывает команды менеджера
type mockTransport struct {
	mu        sync.Mutex
	accepts   []string
	rejects   []string
	initiates []InitiateParams
	handlers  *TransportHandlers

	acceptErr   error
	initiateErr error
}

func (t *mockTransport) Subscribe(h TransportHandlers) func() {
	t.mu.Lock()
	t.handlers = &h
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.handlers = nil
		t.mu.Unlock()
	}
}

func (t *mockTransport) Accept(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acceptErr != nil {
		return t.acceptErr
	}
	t.accepts = append(t.accepts, id)
	return nil
}

func (t *mockTransport) Reject(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejects = append(t.rejects, id)
	return nil
}

func (t *mockTransport) Initiate(_ context.Context, params InitiateParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initiateErr != nil {
		return t.initiateErr
	}
	t.initiates = append(t.initiates, params)
	return nil
}

func (t *mockTransport) acceptedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.accepts...)
}

func (t *mockTransport) subscribed() *TransportHandlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers
}

// mockTransportSession транспортная сессия с подсчетом вызовов
type mockTransportSession struct {
	id             string
	conversationID string
	from           string
	desc           *sdp.SessionDescription

	mu          sync.Mutex
	added       []*media.Stream
	remote      *media.Stream
	onRemote    func(*media.Stream)
	acceptCount int
	endReasons  []string
	endErr      error
}

func newMockSession(t *testing.T, id, conversationID, from, offer string) *mockTransportSession {
	t.Helper()
	ms := &mockTransportSession{id: id, conversationID: conversationID, from: from}
	if offer != "" {
		desc, err := ParseOffer(offer)
		require.NoError(t, err)
		ms.desc = desc
	}
	return ms
}

func (s *mockTransportSession) ID() string                                 { return s.id }
func (s *mockTransportSession) ConversationID() string                     { return s.conversationID }
func (s *mockTransportSession) FromAddress() string                        { return s.from }
func (s *mockTransportSession) RemoteDescription() *sdp.SessionDescription { return s.desc }

func (s *mockTransportSession) AddStream(stream *media.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, stream)
	return nil
}

func (s *mockTransportSession) OnRemoteStream(fn func(*media.Stream)) {
	s.mu.Lock()
	s.onRemote = fn
	remote := s.remote
	s.mu.Unlock()
	if remote != nil {
		fn(remote)
	}
}

// deliverRemote имитирует появление удаленного потока
func (s *mockTransportSession) deliverRemote(stream *media.Stream) {
	s.mu.Lock()
	s.remote = stream
	fn := s.onRemote
	s.mu.Unlock()
	if fn != nil {
		fn(stream)
	}
}

func (s *mockTransportSession) Accept(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptCount++
	return nil
}

func (s *mockTransportSession) End(_ context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endReasons = append(s.endReasons, reason)
	return s.endErr
}

func (s *mockTransportSession) accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptCount
}

func (s *mockTransportSession) ends() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.endReasons...)
}

func (s *mockTransportSession) addedStreams() []*media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*media.Stream(nil), s.added...)
}

// mockConversations API разговоров
type mockConversations struct {
	mu            sync.Mutex
	conv          *conversation.Conversation
	getErr        error
	disconnectErr error
	getCalls      int
	disconnected  []string
}

func (c *mockConversations) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.conv, nil
}

func (c *mockConversations) DisconnectParticipant(_ context.Context, conversationID, participantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnectErr != nil {
		return c.disconnectErr
	}
	c.disconnected = append(c.disconnected, conversationID+"/"+participantID)
	return nil
}

func (c *mockConversations) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

// failingProvider всегда отказывает в медиа
type failingProvider struct{}

func (failingProvider) UserMedia(context.Context, media.Constraints) (*media.Stream, error) {
	return nil, media.NewAcquireError("user media", errors.New("permission denied"))
}

func (failingProvider) DisplayMedia(context.Context) (*media.Stream, error) {
	return nil, media.NewAcquireError("display media", errors.New("permission denied"))
}

// blockingProvider отдает поток только после release
type blockingProvider struct {
	inner   *media.SyntheticProvider
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	issued *media.Stream
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		inner:   media.NewSyntheticProvider(media.SyntheticOptions{}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingProvider) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	close(p.entered)
	<-p.release
	stream, err := p.inner.UserMedia(ctx, c)
	p.mu.Lock()
	p.issued = stream
	p.mu.Unlock()
	return stream, err
}

func (p *blockingProvider) DisplayMedia(ctx context.Context) (*media.Stream, error) {
	return p.inner.DisplayMedia(ctx)
}

func (p *blockingProvider) stream() *media.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issued
}

const (
	testSessionID      = "1077"
	testConversationID = "deadbeef-guid"
	testFromAddress    = "+15558675309@gjoll.mypurecloud.com/instance-id"
	testUserID         = "user-1"
)

func audioOffer() string {
	return strings.Join([]string{
		"v=0",
		"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 0",
		"c=IN IP4 0.0.0.0",
		"a=rtpmap:0 PCMU/8000",
		"a=sendrecv",
		"",
	}, "\r\n")
}

func audioVideoOffer() string {
	return audioOffer() + strings.Join([]string{
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"a=rtpmap:96 VP8/90000",
		"a=sendrecv",
		"",
	}, "\r\n")
}

func screenOffer() string {
	return strings.Join([]string{
		"v=0",
		"o=- 1 1 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"a=rtpmap:96 VP8/90000",
		"a=sendonly",
		"",
	}, "\r\n")
}

type testEnv struct {
	manager       *Manager
	transport     *mockTransport
	conversations *mockConversations
	sinks         *media.Sinks
	provider      *media.SyntheticProvider
	registry      *prometheus.Registry
	events        <-chan events.Event
}

func newTestEnv(t *testing.T, configure func(*Config, *Dependencies)) *testEnv {
	t.Helper()

	env := &testEnv{
		transport: &mockTransport{},
		conversations: &mockConversations{conv: &conversation.Conversation{
			ID: testConversationID,
			Participants: []conversation.Participant{
				{ID: "p-external", Purpose: "external"},
				{ID: "p-agent", Purpose: "agent", User: &conversation.User{ID: testUserID}},
			},
		}},
		sinks:    media.NewSinks(media.SinksOptions{}),
		provider: media.NewSyntheticProvider(media.SyntheticOptions{}),
		registry: prometheus.NewRegistry(),
	}

	cfg := DefaultConfig()
	cfg.UserID = testUserID
	deps := Dependencies{
		Transport:     env.transport,
		Conversations: env.conversations,
		Media:         env.provider,
		Sinks:         env.sinks,
		Registerer:    env.registry,
	}
	if configure != nil {
		configure(&cfg, &deps)
	}

	m, err := NewManager(cfg, deps)
	require.NoError(t, err)
	env.manager = m

	ch, cancel := m.Subscribe()
	env.events = ch
	t.Cleanup(func() {
		cancel()
		_ = m.Close(context.Background())
	})
	return env
}

// waitEvent читает события до первого события нужного типа
func (env *testEnv) waitEvent(t *testing.T, eventType events.Type) events.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-env.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("событие %s не получено", eventType)
			return events.Event{}
		}
	}
}

// collect забирает все уже опубликованные события
func (env *testEnv) collect() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-env.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(list []events.Event, eventType events.Type) int {
	n := 0
	for _, ev := range list {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

// propose и init одной сессии звонка
func (env *testEnv) startSoftphone(t *testing.T, id, conversationID string) *mockTransportSession {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.manager.OnPropose(ctx, Proposal{
		ID:             id,
		ConversationID: conversationID,
		FromAddress:    testFromAddress,
	}))
	ts := newMockSession(t, id, conversationID, testFromAddress, audioOffer())
	require.NoError(t, env.manager.OnSessionInit(ctx, ts))
	return ts
}

// assertDisjoint проверяет, что ни один id не находится одновременно в обеих картах
func (env *testEnv) assertDisjoint(t *testing.T, step string) {
	t.Helper()
	m := env.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.pending {
		if _, ok := m.active[id]; ok {
			t.Fatalf("%s: сессия %s одновременно в pending и active", step, id)
		}
	}
}

// stubHandler обработчик с настраиваемым предикатом
type stubHandler struct {
	BaseHandler
	match func(Proposal) bool
}

func stubFactory(kind Kind, match func(Proposal) bool) HandlerFactory {
	return func(host Host) Handler {
		return &stubHandler{BaseHandler: NewBaseHandler(host, kind), match: match}
	}
}

func (h *stubHandler) Matches(p Proposal) bool { return h.match(p) }

func (h *stubHandler) String() string { return fmt.Sprintf("stub(%s)", h.kind) }
