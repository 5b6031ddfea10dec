// Package events содержит шину событий SDK.
//
// Шина доставляет события подписчикам через буферизованные каналы и никогда
// не блокирует публикующую сторону: если буфер подписчика заполнен, событие
// отбрасывается и учитывается в счетчике Dropped. Публикация выполняется из
// менеджера сессий и фасада SDK, поэтому медленный потребитель не может
// остановить обработку сигнальных событий.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultSubscriberBufferSize = 64

// BusOptions параметры шины событий
type BusOptions struct {
	// Name имя шины для логов
	Name string

	// SubscriberBufferSize размер буфера канала каждого подписчика
	SubscriberBufferSize int

	// Logger для диагностики (по умолчанию slog.Default)
	Logger *slog.Logger
}

type typedEvent interface {
	Type() string
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

// Bus шина событий с неблокирующей публикацией
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextSubID   uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	logger      *slog.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus создает новую шину событий
func NewBus[T any](opts BusOptions) *Bus[T] {
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     opts,
		logger:      logger.With(slog.String("component", opts.Name)),
	}
}

// Subscribe подписывает на все события. Возвращает канал и функцию отписки.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered подписывает на события, для которых filter возвращает true
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	ch := make(chan T, b.options.SubscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	b.mu.Unlock()

	return ch, func() { b.removeSubscriber(id) }
}

// SubscribeTypes подписывает только на события указанных типов
func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	typeSet := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType != "" {
			typeSet[eventType] = struct{}{}
		}
	}
	if len(typeSet) == 0 {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	return b.SubscribeFiltered(func(event T) bool {
		typed, ok := any(event).(typedEvent)
		if !ok {
			return false
		}
		_, matched := typeSet[typed.Type()]
		return matched
	})
}

// Publish рассылает событие подписчикам без блокировки
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subscribers := make([]subscription[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.Unlock()

	b.published.Add(1)

	for _, sub := range subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		if !b.send(sub, event) {
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber buffer is full",
				slog.String("event", eventName(event)),
				slog.Uint64("subscriber", sub.id))
		}
	}
}

// send пытается доставить событие; канал мог быть закрыт отпиской
func (b *Bus[T]) send(sub subscription[T], event T) (delivered bool) {
	defer func() {
		if recover() != nil {
			delivered = false
		}
	}()
	select {
	case sub.ch <- event:
		return true
	default:
		return false
	}
}

// Close закрывает шину и каналы всех подписчиков
func (b *Bus[T]) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]subscription[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
	})
}

// SubscriberCount возвращает количество активных подписчиков
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Published количество опубликованных событий
func (b *Bus[T]) Published() int64 {
	return b.published.Load()
}

// Dropped количество недоставленных событий
func (b *Bus[T]) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

func eventName(event any) string {
	if typed, ok := event.(typedEvent); ok && typed.Type() != "" {
		return typed.Type()
	}
	return "unknown"
}
