package sdk

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"

	"github.com/arzzra/rtc_sdk/pkg/session"
)

const (
	defaultEnvironment        = "mypurecloud.com"
	defaultICERefreshInterval = 6 * time.Hour
	defaultNegotiationTimeout = 15 * time.Second
	defaultEndTimeout         = 10 * time.Second
)

// Config конфигурация SDK
type Config struct {
	Environment string `yaml:"environment"`
	WSHost      string `yaml:"ws_host"`
	APIHost     string `yaml:"api_host"`
	AccessToken string `yaml:"access_token"`
	UserID      string `yaml:"user_id"`

	// Guest гостевой поток без токена пользователя
	Guest *GuestConfig `yaml:"guest"`

	AutoConnectSessions *bool `yaml:"auto_connect_sessions"`
	AllowVideo          *bool `yaml:"allow_video"`

	ICETransportPolicy string            `yaml:"ice_transport_policy"`
	ICEServers         []ICEServerConfig `yaml:"ice_servers"`
	ICERefreshInterval time.Duration     `yaml:"ice_refresh_interval"`

	OrphanPolicy       string        `yaml:"orphan_policy"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	EndTimeout         time.Duration `yaml:"end_timeout"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GuestConfig данные гостя
type GuestConfig struct {
	JWT                   string `yaml:"jwt"`
	JID                   string `yaml:"jid"`
	ConversationID        string `yaml:"conversation_id"`
	SourceCommunicationID string `yaml:"source_communication_id"`
}

// ICEServerConfig ICE сервер, заданный вручную
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// LoggingConfig параметры логирования
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig параметры метрик
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load читает и проверяет файл конфигурации
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse разбирает YAML и проверяет результат
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
	if c.WSHost == "" {
		c.WSHost = "streaming." + c.Environment
	}
	if c.APIHost == "" {
		c.APIHost = "api." + c.Environment
	}

	if c.Guest != nil {
		if c.Guest.JWT == "" {
			return fmt.Errorf("guest.jwt is required for guest configuration")
		}
		if c.Guest.JID == "" {
			return fmt.Errorf("guest.jid is required for guest configuration")
		}
	} else if c.AccessToken == "" {
		return fmt.Errorf("access_token is required unless guest is configured")
	}

	if c.AutoConnectSessions == nil {
		c.AutoConnectSessions = boolPtr(true)
	}
	if c.AllowVideo == nil {
		c.AllowVideo = boolPtr(true)
	}

	switch c.ICETransportPolicy {
	case "":
		c.ICETransportPolicy = webrtc.ICETransportPolicyAll.String()
	case webrtc.ICETransportPolicyAll.String(), webrtc.ICETransportPolicyRelay.String():
	default:
		return fmt.Errorf("ice_transport_policy must be all or relay, got %q", c.ICETransportPolicy)
	}
	for i, server := range c.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: urls cannot be empty", i)
		}
	}
	if c.ICERefreshInterval <= 0 {
		c.ICERefreshInterval = defaultICERefreshInterval
	}

	if _, err := session.ParseOrphanPolicy(c.OrphanPolicy); err != nil {
		return fmt.Errorf("orphan_policy: %w", err)
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = defaultNegotiationTimeout
	}
	if c.EndTimeout <= 0 {
		c.EndTimeout = defaultEndTimeout
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "rtc"
	}
	return nil
}

// Validate проверяет уровень и формат логов
func (l *LoggingConfig) Validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if _, err := parseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case "":
		l.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// IsGuest true для гостевой конфигурации
func (c *Config) IsGuest() bool {
	return c.Guest != nil
}

// ICEPolicy политика ICE транспорта
func (c *Config) ICEPolicy() webrtc.ICETransportPolicy {
	return webrtc.NewICETransportPolicy(c.ICETransportPolicy)
}

// CustomICEServers ICE серверы из конфигурации
func (c *Config) CustomICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, server := range c.ICEServers {
		ice := webrtc.ICEServer{URLs: append([]string(nil), server.URLs...), Username: server.Username}
		if server.Credential != "" {
			ice.Credential = server.Credential
			ice.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, ice)
	}
	return out
}

// WebsocketURL адрес сигнального канала
func (c *Config) WebsocketURL() string {
	if strings.Contains(c.WSHost, "://") {
		return c.WSHost
	}
	return "wss://" + c.WSHost + "/v1"
}

// APIBaseURL адрес REST API
func (c *Config) APIBaseURL() string {
	if strings.Contains(c.APIHost, "://") {
		return c.APIHost
	}
	return "https://" + c.APIHost
}

// SessionConfig настройки менеджера сессий
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Settings.AutoConnect = c.AutoConnectSessions == nil || *c.AutoConnectSessions
	cfg.Settings.AllowVideo = c.AllowVideo == nil || *c.AllowVideo
	if c.Guest != nil {
		cfg.Settings.Guest = &session.GuestInfo{
			JID:                   c.Guest.JID,
			ConversationID:        c.Guest.ConversationID,
			SourceCommunicationID: c.Guest.SourceCommunicationID,
		}
	}
	cfg.UserID = c.UserID
	cfg.OrphanPolicy, _ = session.ParseOrphanPolicy(c.OrphanPolicy)
	cfg.NegotiationTimeout = c.NegotiationTimeout
	cfg.EndTimeout = c.EndTimeout
	return cfg
}

func boolPtr(v bool) *bool { return &v }
