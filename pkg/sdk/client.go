package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arzzra/rtc_sdk/pkg/conversation"
	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/arzzra/rtc_sdk/pkg/session"
	"github.com/arzzra/rtc_sdk/pkg/signaling"
)

// ErrClosed клиент закрыт
var ErrClosed = errors.New("sdk: client closed")

// Options внешние зависимости клиента. Пустые поля заполняются реализациями по умолчанию.
type Options struct {
	Connection    Connection
	Conversations session.ConversationService
	Media         media.Provider
	Sinks         *media.Sinks
	Logger        *slog.Logger

	// Registerer используется при включенных метриках (по умолчанию prometheus.DefaultRegisterer)
	Registerer prometheus.Registerer

	Handlers []session.HandlerFactory
}

// Client точка входа SDK: сигнальное соединение, менеджер сессий и события
type Client struct {
	cfg     Config
	logger  *slog.Logger
	bus     *events.Bus[events.Event]
	conn    Connection
	convs   session.ConversationService
	manager *session.Manager
	ice     *iceRefresher

	mu            sync.Mutex
	everConnected bool
	closed        bool
}

// NewClient создает клиент по проверенной конфигурации
func NewClient(cfg Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sdk config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "sdk"))

	conn := opts.Connection
	if conn == nil {
		token := cfg.AccessToken
		guestJWT := ""
		if cfg.Guest != nil {
			guestJWT = cfg.Guest.JWT
		}
		conn = signaling.New(signaling.Config{
			URL:         cfg.WebsocketURL(),
			AccessToken: token,
			GuestJWT:    guestJWT,
			Logger:      logger,
		})
	}

	convs := opts.Conversations
	if convs == nil && !cfg.IsGuest() {
		apiClient, err := conversation.NewClient(conversation.Config{
			BaseURL:     cfg.APIBaseURL(),
			AccessToken: cfg.AccessToken,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("conversation client: %w", err)
		}
		convs = apiClient
	}

	bus := events.NewBus[events.Event](events.BusOptions{Name: "sdk_events", Logger: logger})

	sessionCfg := cfg.SessionConfig()
	if len(opts.Handlers) > 0 {
		sessionCfg.Handlers = opts.Handlers
	}
	deps := session.Dependencies{
		Transport:     conn,
		Conversations: convs,
		Media:         opts.Media,
		Sinks:         opts.Sinks,
		Bus:           bus,
		Logger:        logger,
	}
	if cfg.Metrics.Enabled {
		deps.Registerer = opts.Registerer
		if deps.Registerer == nil {
			deps.Registerer = prometheus.DefaultRegisterer
		}
		deps.MetricsNamespace = cfg.Metrics.Namespace
	}

	manager, err := session.NewManager(sessionCfg, deps)
	if err != nil {
		bus.Close()
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		conn:    conn,
		convs:   convs,
		manager: manager,
	}
	c.ice = newICERefresher(conn.RefreshIceServers, cfg.ICERefreshInterval, cfg.CustomICEServers(),
		c.onIceError, logger)
	conn.OnDisconnect(c.onConnectionLost)
	return c, nil
}

// Connect подключает сигнальный канал. Существующее соединение сначала закрывается.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	reconnect := c.everConnected
	c.mu.Unlock()

	if c.conn.Connected() {
		c.logger.Info("already connected, reconnecting")
		if err := c.disconnect(ctx, false); err != nil {
			return err
		}
	}
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.everConnected = true
	c.mu.Unlock()

	c.resolveUser(ctx)
	c.manager.Start()
	c.ice.Start()

	ev := events.New(events.Connected)
	ev.Reconnect = reconnect
	c.bus.Publish(ev)
	c.logger.Info("connected", slog.Bool("reconnect", reconnect))
	return nil
}

// resolveUser запрашивает id пользователя, если он не задан в конфигурации
func (c *Client) resolveUser(ctx context.Context) {
	if c.manager.UserID() != "" || c.cfg.IsGuest() {
		return
	}
	me, ok := c.convs.(interface {
		GetMe(ctx context.Context) (*conversation.User, error)
	})
	if !ok {
		return
	}
	user, err := me.GetMe(ctx)
	if err != nil {
		c.logger.Warn("failed to resolve current user", slog.String("error", err.Error()))
		return
	}
	c.manager.SetUserID(user.ID)
}

// Disconnect закрывает сигнальный канал и останавливает обновление ICE серверов
func (c *Client) Disconnect(ctx context.Context) error {
	return c.disconnect(ctx, true)
}

func (c *Client) disconnect(ctx context.Context, notify bool) error {
	c.ice.Stop()
	err := c.conn.Disconnect(ctx)
	if notify {
		c.bus.Publish(events.New(events.Disconnected))
	}
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// onConnectionLost сессии не переживают потерю сигнального канала
func (c *Client) onConnectionLost(err error) {
	c.ice.Stop()
	c.manager.TerminateAll(session.ReasonDisconnected)
	ev := events.New(events.Disconnected)
	ev.Err = err
	c.bus.Publish(ev)
}

func (c *Client) onIceError(err error) {
	ev := events.New(events.Error)
	ev.Err = fmt.Errorf("refresh ice servers: %w", err)
	c.bus.Publish(ev)
}

// AcceptPendingSession подтверждает предложение или сессию
func (c *Client) AcceptPendingSession(ctx context.Context, id string) error {
	return c.manager.Accept(ctx, id)
}

// RejectPendingSession отклоняет предложение
func (c *Client) RejectPendingSession(ctx context.Context, id string) error {
	return c.manager.Reject(ctx, id)
}

// EndSession завершает сессию по id или разговору
func (c *Client) EndSession(ctx context.Context, params session.EndParams) error {
	return c.manager.End(ctx, params)
}

// StartScreenShare запускает демонстрацию экрана (только гость)
func (c *Client) StartScreenShare(ctx context.Context) error {
	return c.manager.StartSession(ctx, session.StartParams{Kind: session.KindScreenShare})
}

// SetPendingStream задает локальный поток для следующего звонка
func (c *Client) SetPendingStream(stream *media.Stream) error {
	return c.manager.SetPendingStream(stream)
}

// SetAudioElement задает приемник удаленного аудио
func (c *Client) SetAudioElement(el *media.Element) {
	c.manager.SetAudioElement(el)
}

// Subscribe подписка на все события SDK
func (c *Client) Subscribe() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}

// SubscribeTypes подписка на события указанных типов
func (c *Client) SubscribeTypes(types ...events.Type) (<-chan events.Event, func()) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return c.bus.SubscribeTypes(names...)
}

// IceServers актуальные ICE серверы
func (c *Client) IceServers() []webrtc.ICEServer {
	return c.ice.Servers()
}

// ICETransportPolicy политика ICE из конфигурации
func (c *Client) ICETransportPolicy() webrtc.ICETransportPolicy {
	return c.cfg.ICEPolicy()
}

func (c *Client) Sessions() []session.Info               { return c.manager.Sessions() }
func (c *Client) PendingSessions() []session.PendingInfo { return c.manager.PendingSessions() }
func (c *Client) Manager() *session.Manager              { return c.manager }
func (c *Client) Connected() bool                        { return c.conn.Connected() }

// Close завершает все сессии, закрывает соединение и шину событий
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.ice.Stop()
	err := c.manager.Close(ctx)
	if discErr := c.conn.Disconnect(ctx); discErr != nil {
		err = errors.Join(err, discErr)
	}
	c.bus.Publish(events.New(events.Disconnected))
	c.bus.Close()
	return err
}
