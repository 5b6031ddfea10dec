package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/media"
)

// Manager ведет сессии от предложения до завершения.
//
// События транспорта для одного идентификатора сессии обрабатываются строго
// в порядке поступления, события разных сессий обрабатываются независимо.
// Карты предложений и активных сессий изменяет только Manager.
type Manager struct {
	cfg      Config
	deps     Dependencies
	registry *Registry
	metrics  *Metrics
	logger   *slog.Logger
	bus      *events.Bus[events.Event]
	ownsBus  bool
	queue    *keyedQueue

	mu             sync.Mutex
	pending        map[string]*PendingSession
	active         map[string]*Session
	tombstones     map[string]struct{}
	tombstoneOrder []string
	audioElement   *media.Element
	userID         string
	started        bool
	closed         bool
	unsubscribe    func()
}

// NewManager создает менеджер сессий
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	if deps.Transport == nil {
		return nil, NewError(ErrorCodeConfigurationError, "", "не задан транспорт")
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewError(ErrorCodeConfigurationError, "", "некорректная конфигурация").WithCause(err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "session_manager"))

	if deps.Media == nil {
		deps.Media = media.NewSyntheticProvider(media.SyntheticOptions{Logger: logger})
	}
	if deps.Sinks == nil {
		deps.Sinks = media.NewSinks(media.SinksOptions{Logger: logger})
	}

	bus := deps.Bus
	ownsBus := false
	if bus == nil {
		bus = events.NewBus[events.Event](events.BusOptions{Name: "session_events", Logger: logger})
		ownsBus = true
	}

	m := &Manager{
		cfg:          cfg,
		deps:         deps,
		registry:     NewRegistry(),
		metrics:      NewMetrics(deps.Registerer, deps.MetricsNamespace),
		logger:       logger,
		bus:          bus,
		ownsBus:      ownsBus,
		pending:      make(map[string]*PendingSession),
		active:       make(map[string]*Session),
		tombstones:   make(map[string]struct{}),
		audioElement: cfg.AudioElement,
		userID:       cfg.UserID,
	}
	m.queue = newKeyedQueue(func(key string, recovered interface{}) {
		m.logger.Error("panic while handling session event",
			slog.String("session_id", key),
			slog.Any("panic", recovered))
	})

	for _, factory := range cfg.Handlers {
		m.registry.Register(factory(m))
	}
	return m, nil
}

// Start подписывает менеджер на события транспорта
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	unsubscribe := m.deps.Transport.Subscribe(m.TransportHandlers())

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// TransportHandlers обработчики событий транспорта, выполняемые через очередь сессии
func (m *Manager) TransportHandlers() TransportHandlers {
	return TransportHandlers{
		OnPropose: func(p Proposal) {
			m.dispatch(p.ID, func(ctx context.Context) { _ = m.OnPropose(ctx, p) })
		},
		OnSessionInit: func(ts TransportSession) {
			m.dispatch(ts.ID(), func(ctx context.Context) { _ = m.OnSessionInit(ctx, ts) })
		},
		OnTerminated: func(id, reason string) {
			m.dispatch(id, func(ctx context.Context) { m.OnTerminated(ctx, id, reason) })
		},
		OnCancelled: func(id string) {
			m.dispatch(id, func(ctx context.Context) { m.OnCancelled(ctx, id) })
		},
		OnHandled: func(id string) {
			m.dispatch(id, func(ctx context.Context) { m.OnHandled(ctx, id) })
		},
		OnError: func(id string, err error) {
			m.dispatch(id, func(ctx context.Context) { m.OnTransportError(ctx, id, err) })
		},
		OnTrace: m.OnTrace,
	}
}

func (m *Manager) dispatch(id string, fn func(ctx context.Context)) {
	if !m.queue.Enqueue(id, func() { fn(context.Background()) }) {
		m.logger.Debug("session event dropped, manager closed", slog.String("session_id", id))
	}
}

// Drain ждет обработки всех поставленных в очередь событий
func (m *Manager) Drain() {
	m.queue.Drain()
}

// Registry реестр обработчиков
func (m *Manager) Registry() *Registry { return m.registry }

// Events шина событий менеджера
func (m *Manager) Events() *events.Bus[events.Event] { return m.bus }

// Subscribe подписка на события менеджера
func (m *Manager) Subscribe() (<-chan events.Event, func()) {
	return m.bus.Subscribe()
}

// Host

func (m *Manager) Settings() Settings    { return m.cfg.Settings }
func (m *Manager) Logger() *slog.Logger  { return m.logger }
func (m *Manager) Transport() Transport  { return m.deps.Transport }
func (m *Manager) Media() media.Provider { return m.deps.Media }
func (m *Manager) Sinks() *media.Sinks   { return m.deps.Sinks }

// AcceptSession то же, что Accept
func (m *Manager) AcceptSession(ctx context.Context, id string) error {
	return m.Accept(ctx, id)
}

// AudioElement явный приемник удаленного аудио (nil означает общий элемент)
func (m *Manager) AudioElement() *media.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioElement
}

// SetAudioElement задает приемник удаленного аудио для следующих сессий
func (m *Manager) SetAudioElement(el *media.Element) {
	m.mu.Lock()
	m.audioElement = el
	m.mu.Unlock()
}

// SetUserID задает пользователя, чей участник отключается при End
func (m *Manager) SetUserID(id string) {
	m.mu.Lock()
	m.userID = id
	m.mu.Unlock()
}

// UserID текущий пользователь
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// TerminateSession завершает сессию через ее очередь событий
func (m *Manager) TerminateSession(_ context.Context, id, reason string) {
	m.dispatch(id, func(ctx context.Context) {
		if s := m.lookupActive(id); s != nil {
			_ = m.terminate(ctx, s, reason)
		}
	})
}

// TerminateAll завершает все сессии и предложения с причиной reason,
// не дожидаясь подтверждения транспорта. Используется при потере соединения.
func (m *Manager) TerminateAll(reason string) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active)+len(m.pending))
	for id := range m.active {
		ids = append(ids, id)
	}
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.dispatch(id, func(ctx context.Context) {
			if s := m.lookupActive(id); s != nil {
				s.life.BeginEnding(ctx)
				_ = m.closeAndFinish(ctx, s, reason)
				return
			}
			m.removePending(ctx, id, events.CancelPendingSession, reason)
		})
	}
}

// OnPropose обрабатывает предложение сессии
func (m *Manager) OnPropose(ctx context.Context, p Proposal) error {
	logger := m.logger.With(slog.String("session_id", p.ID), slog.String("conversation_id", p.ConversationID))

	if p.ID == "" {
		err := NewError(ErrorCodeInvalidArgument, "", "предложение без идентификатора")
		m.emitError(err, "")
		return err
	}
	addr, err := ParseAddress(p.FromAddress)
	if err != nil {
		sessErr := asError(err, ErrorCodeInvalidArgument, p.ID, "некорректный адрес")
		m.emitError(sessErr, p.ID)
		return sessErr
	}
	handler, err := m.registry.Resolve(p)
	if err != nil {
		logger.Error("no handler for proposal", slog.String("from", p.FromAddress), slog.String("error", err.Error()))
		m.emitError(err, p.ID)
		return err
	}

	pending := &PendingSession{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Address:        addr,
		Kind:           handler.Kind(),
		AutoAnswer:     p.AutoAnswer,
		ArrivedAt:      time.Now(),
		handler:        handler,
		life:           newLifecycle(StateProposed, m.observeTransitions(p.ID)),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	_, isPending := m.pending[p.ID]
	_, isActive := m.active[p.ID]
	if isPending || isActive || m.isTombstoned(p.ID) {
		m.mu.Unlock()
		logger.Warn("duplicate proposal ignored")
		return nil
	}
	m.pending[p.ID] = pending
	m.mu.Unlock()

	m.metrics.ProposalReceived(pending.Kind)
	logger.Info("pending session",
		slog.String("kind", string(pending.Kind)),
		slog.String("address", addr.String()),
		slog.Bool("auto_answer", p.AutoAnswer))

	ev := events.New(events.PendingSession)
	ev.SessionID = p.ID
	ev.ConversationID = p.ConversationID
	ev.Address = addr.String()
	ev.AutoAnswer = p.AutoAnswer
	ev.SessionKind = string(pending.Kind)
	m.bus.Publish(ev)

	if err := handler.HandlePropose(ctx, pending); err != nil {
		m.dropPending(ctx, p.ID)
		sessErr := asError(err, ErrorCodeTransportFailure, p.ID, "ошибка обработки предложения")
		logger.Error("propose hook failed", slog.String("error", sessErr.Error()))
		m.emitError(sessErr, p.ID)
		return sessErr
	}
	return nil
}

// OnSessionInit обрабатывает появление транспортной сессии
func (m *Manager) OnSessionInit(ctx context.Context, ts TransportSession) error {
	if ts == nil {
		return NewError(ErrorCodeInvalidArgument, "", "не задана транспортная сессия")
	}
	id := ts.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ts.End(ctx, ReasonClosed)
		return nil
	}
	pending, ok := m.pending[id]
	if !ok {
		_, duplicate := m.active[id]
		m.mu.Unlock()
		if duplicate {
			m.logger.Warn("duplicate session init ignored", slog.String("session_id", id))
			return nil
		}
		return m.handleOrphan(ctx, ts)
	}

	conversationID := pending.ConversationID
	if conversationID == "" {
		conversationID = ts.ConversationID()
	}
	s := m.newSession(id, conversationID, pending.Address, pending.handler, pending.life, ts)

	// переход из pending в active выполняется под одной блокировкой
	delete(m.pending, id)
	m.active[id] = s
	m.mu.Unlock()

	return m.initialize(ctx, s)
}

func (m *Manager) handleOrphan(ctx context.Context, ts TransportSession) error {
	id := ts.ID()
	logger := m.logger.With(slog.String("session_id", id))
	orphanErr := NewError(ErrorCodeOrphanSession, id, "инициализация сессии без предложения")

	if m.cfg.OrphanPolicy == OrphanAccept {
		p := Proposal{ID: id, ConversationID: ts.ConversationID(), FromAddress: ts.FromAddress()}
		addr, err := ParseAddress(p.FromAddress)
		if err == nil {
			var handler Handler
			handler, err = m.registry.Resolve(p)
			if err == nil {
				s := m.newSession(id, p.ConversationID, addr, handler,
					newLifecycle(StateProposed, m.observeTransitions(id)), ts)

				m.mu.Lock()
				if _, exists := m.active[id]; exists || m.closed {
					m.mu.Unlock()
					return nil
				}
				m.active[id] = s
				m.mu.Unlock()

				logger.Warn("accepting orphan session", slog.String("kind", string(handler.Kind())))
				return m.initialize(ctx, s)
			}
		}
		orphanErr.WithCause(err)
	}

	logger.Warn("rejecting orphan session")
	if err := ts.End(ctx, ReasonUnsolicited); err != nil {
		logger.Warn("failed to end orphan session", slog.String("error", err.Error()))
	}
	m.emitError(orphanErr, id)
	return orphanErr
}

func (m *Manager) newSession(id, conversationID string, addr Address, handler Handler, life *lifecycle, ts TransportSession) *Session {
	return &Session{
		id:             id,
		conversationID: conversationID,
		kind:           handler.Kind(),
		address:        addr,
		transport:      ts,
		handler:        handler,
		life:           life,
		createdAt:      time.Now(),
		logger: m.logger.With(
			slog.String("session_id", id),
			slog.String("conversation_id", conversationID),
			slog.String("kind", string(handler.Kind()))),
	}
}

// initialize выполняет хук инициализации обработчика
func (m *Manager) initialize(ctx context.Context, s *Session) error {
	m.metrics.SessionTracked()
	s.life.Init(ctx)

	hookCtx, cancel := context.WithTimeout(ctx, m.cfg.NegotiationTimeout)
	defer cancel()

	if err := s.handler.HandleSessionInit(hookCtx, s); err != nil {
		sessErr := asError(err, ErrorCodeNegotiationFailure, s.ID(), "ошибка инициализации сессии")
		s.logger.Error("session init failed", slog.String("error", sessErr.Error()))

		// локальная очистка выполняется до публикации ошибки
		_ = m.terminate(ctx, s, ReasonFailed)
		m.emitError(sessErr, s.ID())
		return sessErr
	}

	s.markInitialized()
	if s.Accepted() {
		m.activate(s)
		return nil
	}
	s.logger.Info("session initialized, waiting for accept")
	m.notifyStarted(s, true)
	return nil
}

func (m *Manager) activate(s *Session) {
	if !s.life.Activate(context.Background()) {
		return
	}
	s.markStarted(time.Now())
	m.metrics.SessionStarted(s.Kind())
	s.logger.Info("session started")
	m.notifyStarted(s, false)
}

// notifyStarted публикует sessionStarted один раз за сессию.
// awaitingAccept: сессия инициализирована, но ждет явного Accept.
func (m *Manager) notifyStarted(s *Session, awaitingAccept bool) {
	if !s.markNotified() {
		return
	}
	ev := events.New(events.SessionStarted)
	ev.SessionID = s.ID()
	ev.ConversationID = s.ConversationID()
	ev.SessionKind = string(s.Kind())
	ev.AwaitingAccept = awaitingAccept
	m.bus.Publish(ev)
}

// Accept подтверждает предложение или инициализируемую сессию.
// Повторный вызов не отправляет транспорту второе подтверждение.
func (m *Manager) Accept(ctx context.Context, id string) error {
	m.mu.Lock()
	if pending, ok := m.pending[id]; ok {
		if pending.acceptIssued {
			m.mu.Unlock()
			return nil
		}
		pending.acceptIssued = true
		m.mu.Unlock()

		if err := m.deps.Transport.Accept(ctx, id); err != nil {
			m.mu.Lock()
			pending.acceptIssued = false
			m.mu.Unlock()
			return m.commandError(NewError(ErrorCodeTransportFailure, id, "ошибка подтверждения предложения").WithCause(err))
		}
		pending.life.Accept(ctx)
		return nil
	}
	s, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return m.commandError(NewError(ErrorCodeSessionNotFound, id, "сессия не найдена"))
	}
	return m.acceptSession(ctx, s)
}

func (m *Manager) acceptSession(ctx context.Context, s *Session) error {
	switch s.State() {
	case StateEnding, StateEnded:
		return m.commandError(NewError(ErrorCodeSessionNotFound, s.ID(), "сессия завершается"))
	}
	if !s.markAccepted() {
		return nil
	}
	if err := s.Transport().Accept(ctx); err != nil {
		s.unmarkAccepted()
		return m.commandError(NewError(ErrorCodeTransportFailure, s.ID(), "ошибка подтверждения сессии").WithCause(err))
	}
	s.logger.Debug("session accepted")
	if s.isInitialized() {
		m.activate(s)
	}
	return nil
}

// Reject отклоняет предложение
func (m *Manager) Reject(ctx context.Context, id string) error {
	m.mu.Lock()
	pending, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return m.commandError(NewError(ErrorCodeSessionNotFound, id, "предложение не найдено"))
	}
	pending.life.Finish(ctx)
	if err := m.deps.Transport.Reject(ctx, id); err != nil {
		return m.commandError(NewError(ErrorCodeTransportFailure, id, "ошибка отклонения предложения").WithCause(err))
	}
	return nil
}

// EndParams выбор сессии для завершения: ровно одно из полей
type EndParams struct {
	ID             string
	ConversationID string
}

// End завершает сессию по идентификатору или разговору.
//
// Сессия без разговора завершается сразу. Для сессии с разговором участник
// пользователя отключается через API разговоров, завершение подтверждает
// транспорт. При ошибке API сессия завершается локально, ошибка возвращается.
func (m *Manager) End(ctx context.Context, params EndParams) error {
	if params.ID == "" && params.ConversationID == "" {
		return m.commandError(NewError(ErrorCodeInvalidArgument, "", "не задан ни id, ни conversationId"))
	}
	if params.ID != "" && params.ConversationID != "" {
		return m.commandError(NewError(ErrorCodeInvalidArgument, params.ID, "нужно задать только один из id и conversationId"))
	}

	m.mu.Lock()
	var s *Session
	if params.ID != "" {
		s = m.active[params.ID]
		if s == nil && m.isTombstoned(params.ID) {
			m.mu.Unlock()
			return nil
		}
	} else {
		for _, candidate := range m.active {
			if candidate.ConversationID() == params.ConversationID {
				s = candidate
				break
			}
		}
	}
	m.mu.Unlock()

	if s == nil {
		return m.commandError(NewError(ErrorCodeSessionNotFound, params.ID, "сессия не найдена").
			WithField("conversation_id", params.ConversationID))
	}

	if s.ConversationID() == "" || m.deps.Conversations == nil {
		return m.terminate(ctx, s, ReasonLocalEnd)
	}

	if !s.life.BeginEnding(ctx) {
		return nil
	}
	if err := m.disconnectParticipant(ctx, s); err != nil {
		_ = m.closeAndFinish(ctx, s, ReasonLocalEnd)
		return m.commandError(asError(err, ErrorCodeTransportFailure, s.ID(), "ошибка отключения участника"))
	}

	s.armEndTimer(m.cfg.EndTimeout, func() {
		m.dispatch(s.ID(), func(ctx context.Context) {
			if s.State() == StateEnded {
				return
			}
			s.logger.Warn("transport did not confirm termination, ending locally")
			_ = m.closeAndFinish(ctx, s, ReasonTimeout)
		})
	})
	return nil
}

func (m *Manager) disconnectParticipant(ctx context.Context, s *Session) error {
	conversationID := s.ConversationID()
	conv, err := m.deps.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return NewError(ErrorCodeTransportFailure, s.ID(), "не удалось получить разговор %s", conversationID).WithCause(err)
	}
	userID := m.UserID()
	participant, ok := conv.ParticipantForUser(userID)
	if !ok {
		return NewError(ErrorCodeTransportFailure, s.ID(), "участник пользователя %q не найден в разговоре %s",
			userID, conversationID)
	}
	if err := m.deps.Conversations.DisconnectParticipant(ctx, conversationID, participant.ID); err != nil {
		return NewError(ErrorCodeTransportFailure, s.ID(), "не удалось отключить участника %s", participant.ID).WithCause(err)
	}
	s.logger.Info("participant disconnected", slog.String("participant_id", participant.ID))
	return nil
}

// terminate локальное завершение: транспорт, затем очистка
func (m *Manager) terminate(ctx context.Context, s *Session, reason string) error {
	if !s.life.BeginEnding(ctx) {
		return nil
	}
	return m.closeAndFinish(ctx, s, reason)
}

func (m *Manager) closeAndFinish(ctx context.Context, s *Session, reason string) error {
	err := s.endTransport(ctx, reason)
	if err != nil {
		s.logger.Warn("failed to end transport session", slog.String("error", err.Error()))
		err = NewError(ErrorCodeTransportFailure, s.ID(), "ошибка завершения транспортной сессии").WithCause(err)
	}
	m.finish(ctx, s, reason)
	return err
}

// finish переводит сессию в ended. Повторные вызовы ничего не делают.
func (m *Manager) finish(ctx context.Context, s *Session, reason string) {
	if !s.life.Finish(ctx) {
		return
	}
	s.stopEndTimer()

	s.handler.HandleTermination(ctx, s)
	s.releaseLocalMedia()
	if sink := s.Sink(); sink != nil {
		m.deps.Sinks.Detach(sink)
	}

	m.mu.Lock()
	if current, ok := m.active[s.ID()]; ok && current == s {
		delete(m.active, s.ID())
	}
	m.rememberEnded(s.ID())
	m.mu.Unlock()

	m.metrics.SessionEnded(s.Kind(), reason, s.StartedAt())
	s.logger.Info("session ended", slog.String("reason", reason))

	ev := events.New(events.SessionEnded)
	ev.SessionID = s.ID()
	ev.ConversationID = s.ConversationID()
	ev.SessionKind = string(s.Kind())
	ev.Reason = reason
	m.bus.Publish(ev)
}

// OnTerminated транспорт сообщил о завершении сессии
func (m *Manager) OnTerminated(ctx context.Context, id, reason string) {
	if reason == "" {
		reason = ReasonRemote
	}

	m.mu.Lock()
	s, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		if !m.removePending(ctx, id, events.CancelPendingSession, reason) {
			m.logger.Debug("termination for unknown session ignored", slog.String("session_id", id))
		}
		return
	}
	m.mu.Unlock()

	s.life.BeginEnding(ctx)
	m.finish(ctx, s, reason)
}

// OnCancelled предложение отозвано до подтверждения.
// Для уже активной сессии ничего не делает.
func (m *Manager) OnCancelled(ctx context.Context, id string) {
	if !m.removePending(ctx, id, events.CancelPendingSession, "") {
		m.logger.Debug("cancel ignored, session is not pending", slog.String("session_id", id))
	}
}

// OnHandled предложение принято другим клиентом пользователя
func (m *Manager) OnHandled(ctx context.Context, id string) {
	if !m.removePending(ctx, id, events.HandledPendingSession, "") {
		m.logger.Debug("handled ignored, session is not pending", slog.String("session_id", id))
	}
}

func (m *Manager) removePending(ctx context.Context, id string, eventType events.Type, reason string) bool {
	m.mu.Lock()
	pending, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	pending.life.Finish(ctx)
	ev := events.New(eventType)
	ev.SessionID = id
	ev.ConversationID = pending.ConversationID
	ev.SessionKind = string(pending.Kind)
	ev.Reason = reason
	m.bus.Publish(ev)
	return true
}

func (m *Manager) dropPending(ctx context.Context, id string) {
	m.mu.Lock()
	pending, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if ok {
		pending.life.Finish(ctx)
	}
}

// OnTransportError ошибка транспорта, относящаяся к сессии или соединению
func (m *Manager) OnTransportError(ctx context.Context, id string, err error) {
	sessErr := NewError(ErrorCodeTransportFailure, id, "ошибка транспорта").WithCause(err)
	m.logger.Error("transport error", slog.String("session_id", id), slog.String("error", sessErr.Error()))
	m.emitError(sessErr, id)
}

// OnTrace диагностика транспорта
func (m *Manager) OnTrace(level, message string, details any) {
	ev := events.New(events.Trace)
	ev.Level = level
	ev.Message = message
	ev.Data = details
	m.bus.Publish(ev)
}

// StartSession исходящая сессия указанного типа
func (m *Manager) StartSession(ctx context.Context, params StartParams) error {
	handler, ok := m.registry.ByKind(params.Kind)
	if !ok {
		return m.commandError(NewError(ErrorCodeNotSupported, "", "нет обработчика сессий %q", params.Kind))
	}
	if err := handler.StartSession(ctx, params); err != nil {
		return m.commandError(asError(err, ErrorCodeTransportFailure, "", "ошибка запуска сессии"))
	}
	return nil
}

// SetPendingStream задает локальный поток для следующего звонка
func (m *Manager) SetPendingStream(stream *media.Stream) error {
	handler, ok := m.registry.ByKind(KindSoftphone)
	if !ok {
		return NewError(ErrorCodeNotSupported, "", "обработчик звонков не зарегистрирован")
	}
	stager, ok := handler.(interface{ StageStream(*media.Stream) })
	if !ok {
		return NewError(ErrorCodeNotSupported, "", "обработчик звонков не принимает поток заранее")
	}
	stager.StageStream(stream)
	return nil
}

// Sessions снимок активных сессий
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingSessions снимок ожидающих предложений
func (m *Manager) PendingSessions() []PendingInfo {
	m.mu.Lock()
	list := make([]*PendingSession, 0, len(m.pending))
	for _, p := range m.pending {
		list = append(list, p)
	}
	m.mu.Unlock()

	out := make([]PendingInfo, 0, len(list))
	for _, p := range list {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Session снимок одной активной сессии
func (m *Manager) Session(id string) (Info, bool) {
	s := m.lookupActive(id)
	if s == nil {
		return Info{}, false
	}
	return s.info(), true
}

func (m *Manager) lookupActive(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// Close завершает все сессии и отписывается от транспорта
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	pendings := make([]*PendingSession, 0, len(m.pending))
	for _, p := range m.pending {
		pendings = append(pendings, p)
	}
	m.pending = make(map[string]*PendingSession)
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.queue.Close()

	for _, p := range pendings {
		p.life.Finish(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			// сессии в ending не ждут подтверждения транспорта
			s.life.BeginEnding(gctx)
			return m.closeAndFinish(gctx, s, ReasonClosed)
		})
	}
	err := g.Wait()

	if m.ownsBus {
		m.bus.Close()
	}
	return err
}

func (m *Manager) emitError(err error, sessionID string) {
	m.metrics.Error(CodeOf(err))
	ev := events.New(events.Error)
	ev.SessionID = sessionID
	ev.Err = err
	m.bus.Publish(ev)
}

// commandError учитывает ошибку явной команды, она возвращается вызывающему
func (m *Manager) commandError(err *Error) error {
	m.metrics.Error(err.Code)
	return err
}

func (m *Manager) observeTransitions(id string) func(from, to State) {
	return func(from, to State) {
		m.metrics.Transition(from, to)
		m.logger.Debug("session state changed",
			slog.String("session_id", id),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
	}
}

// isTombstoned вызывается под m.mu
func (m *Manager) isTombstoned(id string) bool {
	_, ok := m.tombstones[id]
	return ok
}

// rememberEnded вызывается под m.mu
func (m *Manager) rememberEnded(id string) {
	if _, ok := m.tombstones[id]; ok {
		return
	}
	m.tombstones[id] = struct{}{}
	m.tombstoneOrder = append(m.tombstoneOrder, id)
	for len(m.tombstoneOrder) > m.cfg.TombstoneLimit {
		oldest := m.tombstoneOrder[0]
		m.tombstoneOrder = m.tombstoneOrder[1:]
		delete(m.tombstones, oldest)
	}
}
