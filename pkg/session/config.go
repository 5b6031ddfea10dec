package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/prometheus/client_golang/prometheus"
)

// OrphanPolicy действие при инициализации сессии без предложения
type OrphanPolicy string

const (
	// OrphanReject завершить транспортную сессию и сообщить об ошибке
	OrphanReject OrphanPolicy = "reject"
	// OrphanAccept обработать как обычное предложение
	OrphanAccept OrphanPolicy = "accept"
)

// ParseOrphanPolicy разбирает политику из строки конфигурации
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch OrphanPolicy(s) {
	case "", OrphanReject:
		return OrphanReject, nil
	case OrphanAccept:
		return OrphanAccept, nil
	default:
		return "", fmt.Errorf("неизвестная политика orphan сессий: %q", s)
	}
}

// Config настройки менеджера сессий
type Config struct {
	Settings Settings

	// UserID идентификатор пользователя для поиска участника в разговоре
	UserID string

	OrphanPolicy OrphanPolicy

	// NegotiationTimeout ограничение на обработку инициализации сессии
	NegotiationTimeout time.Duration

	// EndTimeout сколько ждать подтверждения завершения от транспорта
	EndTimeout time.Duration

	// TombstoneLimit сколько завершенных идентификаторов помнить
	TombstoneLimit int

	// AudioElement явный приемник удаленного аудио
	AudioElement *media.Element

	Handlers []HandlerFactory
}

// DefaultConfig конфигурация по умолчанию
func DefaultConfig() Config {
	return Config{
		Settings: Settings{
			AutoConnect: true,
			AllowVideo:  true,
		},
		OrphanPolicy:       OrphanReject,
		NegotiationTimeout: 15 * time.Second,
		EndTimeout:         10 * time.Second,
		TombstoneLimit:     1024,
		Handlers:           DefaultHandlers(),
	}
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	policy, err := ParseOrphanPolicy(string(c.OrphanPolicy))
	if err != nil {
		return err
	}
	c.OrphanPolicy = policy

	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = 15 * time.Second
	}
	if c.EndTimeout <= 0 {
		c.EndTimeout = 10 * time.Second
	}
	if c.TombstoneLimit <= 0 {
		c.TombstoneLimit = 1024
	}
	if len(c.Handlers) == 0 {
		c.Handlers = DefaultHandlers()
	}
	return nil
}

// Dependencies внешние компоненты менеджера
type Dependencies struct {
	// Transport обязателен
	Transport Transport

	// Conversations используется при завершении сессий с разговором
	Conversations ConversationService

	Media  media.Provider
	Sinks  *media.Sinks
	Bus    *events.Bus[events.Event]
	Logger *slog.Logger

	Registerer       prometheus.Registerer
	MetricsNamespace string
}
