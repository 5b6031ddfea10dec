package sdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/session"
)

const agentAddress = "+15558675309@gjoll.mypurecloud.com/instance-id"

type clientEnv struct {
	client *Client
	conn   *fakeConnection
	convs  *fakeConversations
	events <-chan events.Event
}

func newClientEnv(t *testing.T, yamlConfig string) *clientEnv {
	t.Helper()
	cfg, err := Parse([]byte(yamlConfig))
	require.NoError(t, err)

	env := &clientEnv{
		conn:  &fakeConnection{iceServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com"}}}},
		convs: &fakeConversations{me: "user-from-api"},
	}
	env.client, err = NewClient(*cfg, Options{Connection: env.conn, Conversations: env.convs})
	require.NoError(t, err)

	ch, cancel := env.client.Subscribe()
	env.events = ch
	t.Cleanup(func() {
		cancel()
		_ = env.client.Close(context.Background())
	})
	return env
}

func (env *clientEnv) waitEvent(t *testing.T, eventType events.Type) events.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-env.events:
			require.True(t, ok, "канал событий закрыт")
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("событие %s не получено", eventType)
		}
	}
}

func TestClientConnectEmitsConnected(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	ctx := context.Background()

	require.NoError(t, env.client.Connect(ctx))
	ev := env.waitEvent(t, events.Connected)
	assert.False(t, ev.Reconnect)
	assert.True(t, env.client.Connected())
	assert.NotNil(t, env.conn.subscribed(), "менеджер подписан на транспорт")

	require.NoError(t, env.client.Connect(ctx))
	ev = env.waitEvent(t, events.Connected)
	assert.True(t, ev.Reconnect)

	connects, disconnects, _ := env.conn.calls()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 1, disconnects, "повторное подключение закрывает текущее соединение")
}

func TestClientResolvesUserOnConnect(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")

	require.NoError(t, env.client.Connect(context.Background()))
	assert.Equal(t, "user-from-api", env.client.Manager().UserID())
	assert.Equal(t, 1, env.convs.meHits)
}

func TestClientKeepsConfiguredUser(t *testing.T) {
	env := newClientEnv(t, "access_token: token\nuser_id: user-1\n")

	require.NoError(t, env.client.Connect(context.Background()))
	assert.Equal(t, "user-1", env.client.Manager().UserID())
	assert.Zero(t, env.convs.meHits)
}

func TestClientUserLookupFailureIsNotFatal(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	env.convs.meErr = errors.New("401")

	require.NoError(t, env.client.Connect(context.Background()))
	assert.Empty(t, env.client.Manager().UserID())
}

func TestClientDisconnect(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	ctx := context.Background()
	require.NoError(t, env.client.Connect(ctx))

	require.NoError(t, env.client.Disconnect(ctx))
	ev := env.waitEvent(t, events.Disconnected)
	assert.NoError(t, ev.Err)
	assert.False(t, env.client.Connected())
	assert.False(t, env.client.ice.Running())
}

func TestClientConnectionLost(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	require.NoError(t, env.client.Connect(context.Background()))
	require.True(t, env.client.ice.Running())

	env.conn.drop(errors.New("connection reset"))

	ev := env.waitEvent(t, events.Disconnected)
	assert.EqualError(t, ev.Err, "connection reset")
	assert.False(t, env.client.ice.Running())
}

func TestClientConnectionLostEndsSessions(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	require.NoError(t, env.client.Connect(context.Background()))

	handlers := env.conn.subscribed()
	require.NotNil(t, handlers)
	handlers.OnPropose(session.Proposal{ID: "session-1", FromAddress: agentAddress})
	env.waitEvent(t, events.PendingSession)

	env.conn.drop(errors.New("connection reset"))

	ev := env.waitEvent(t, events.CancelPendingSession)
	assert.Equal(t, "session-1", ev.SessionID)
	assert.Equal(t, session.ReasonDisconnected, ev.Reason)
	env.client.Manager().Drain()
	assert.Empty(t, env.client.PendingSessions())
}

func TestClientIceServers(t *testing.T) {
	env := newClientEnv(t, "access_token: token\nice_transport_policy: relay\n")
	require.NoError(t, env.client.Connect(context.Background()))

	assert.Eventually(t, func() bool { return len(env.client.IceServers()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stun:stun.example.com"}, env.client.IceServers()[0].URLs)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, env.client.ICETransportPolicy())
}

func TestClientIceErrorEmitsError(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	env.conn.iceErr = errors.New("forbidden")

	require.NoError(t, env.client.Connect(context.Background()))

	ev := env.waitEvent(t, events.Error)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "forbidden")
}

func TestClientAcceptPendingSession(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	ctx := context.Background()
	require.NoError(t, env.client.Connect(ctx))

	handlers := env.conn.subscribed()
	require.NotNil(t, handlers)
	handlers.OnPropose(session.Proposal{ID: "session-1", ConversationID: "conv-1", FromAddress: agentAddress})

	ev := env.waitEvent(t, events.PendingSession)
	assert.Equal(t, "session-1", ev.SessionID)
	assert.Equal(t, "+15558675309", ev.Address)

	require.NoError(t, env.client.AcceptPendingSession(ctx, "session-1"))
	assert.Equal(t, []string{"session-1"}, env.conn.accepts)

	pending := env.client.PendingSessions()
	require.Len(t, pending, 1)
	assert.Equal(t, session.StateAccepted, pending[0].State)
	assert.Empty(t, env.client.Sessions())
}

func TestClientRejectUnknownSession(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")

	err := env.client.RejectPendingSession(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestClientStartScreenShareAsGuest(t *testing.T) {
	env := newClientEnv(t, `
guest:
  jwt: guest-jwt
  jid: acd-6f1b2c@conference.example.com
  conversation_id: conv-1
  source_communication_id: comm-1
`)
	require.NoError(t, env.client.Connect(context.Background()))
	assert.Zero(t, env.convs.meHits, "гость не запрашивает пользователя")

	require.NoError(t, env.client.StartScreenShare(context.Background()))
	require.Len(t, env.conn.initiates, 1)
	params := env.conn.initiates[0]
	assert.Equal(t, "acd-6f1b2c@conference.example.com", params.JID)
	assert.Equal(t, "conv-1", params.ConversationID)
	assert.Equal(t, "comm-1", params.SourceCommunicationID)
	assert.Equal(t, session.KindScreenShare, params.Kind)
	assert.NotNil(t, params.Stream)
}

func TestClientStartScreenShareRequiresGuest(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")

	err := env.client.StartScreenShare(context.Background())
	assert.ErrorIs(t, err, session.ErrNotSupported)
}

func TestClientClose(t *testing.T) {
	env := newClientEnv(t, "access_token: token\n")
	ctx := context.Background()
	require.NoError(t, env.client.Connect(ctx))

	require.NoError(t, env.client.Close(ctx))
	assert.False(t, env.client.Connected())
	assert.NoError(t, env.client.Close(ctx), "повторный Close ничего не делает")
	assert.ErrorIs(t, env.client.Connect(ctx), ErrClosed)
}

func TestClientMetricsRegisterer(t *testing.T) {
	cfg, err := Parse([]byte("access_token: token\nmetrics:\n  enabled: true\n  namespace: agent\n"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	client, err := NewClient(*cfg, Options{Connection: &fakeConnection{}, Conversations: &fakeConversations{}, Registerer: reg})
	require.NoError(t, err)
	defer client.Close(context.Background())

	count, err := testutil.GatherAndCount(reg, "agent_sessions_proposals_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "счетчики без меток появляются после первого предложения")

	require.NoError(t, client.Connect(context.Background()))
	client.Manager().TransportHandlers().OnPropose(session.Proposal{ID: "session-1", FromAddress: agentAddress})
	client.Manager().Drain()

	count, err = testutil.GatherAndCount(reg, "agent_sessions_proposals_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{}, Options{Connection: &fakeConnection{}})
	assert.Error(t, err)
}
