package session

import (
	"strings"
	"sync"
)

// Registry упорядоченный список обработчиков.
// Каждое предложение должно подходить ровно одному обработчику.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry создает реестр
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register добавляет обработчик в конец списка
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Resolve возвращает единственный подходящий обработчик
func (r *Registry) Resolve(p Proposal) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Handler
	for _, h := range r.handlers {
		if h.Matches(p) {
			matched = append(matched, h)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return nil, NewError(ErrorCodeNoMatchingHandler, p.ID, "нет обработчика для %q", p.FromAddress)
	default:
		kinds := make([]string, 0, len(matched))
		for _, h := range matched {
			kinds = append(kinds, string(h.Kind()))
		}
		return nil, NewError(ErrorCodeNoMatchingHandler, p.ID,
			"предложению %q подходят несколько обработчиков: %s", p.FromAddress, strings.Join(kinds, ", ")).
			WithField("kinds", kinds)
	}
}

// ByKind обработчик по типу сессии
func (r *Registry) ByKind(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Kind() == kind {
			return h, true
		}
	}
	return nil, false
}

// Handlers копия списка обработчиков
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}
