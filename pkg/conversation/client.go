// Package conversation клиент REST API разговоров.
//
// Используется менеджером сессий при завершении сессии, привязанной к
// разговору: сначала читается разговор и ищется участник текущего
// пользователя, затем участник переводится в состояние disconnected.
package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StateDisconnected состояние участника после отключения
const StateDisconnected = "disconnected"

// Config параметры клиента
type Config struct {
	// BaseURL адрес API, например https://api.mypurecloud.com
	BaseURL string

	// AccessToken токен для заголовка Authorization (для гостя пустой)
	AccessToken string

	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// User краткие данные пользователя
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Participant участник разговора
type Participant struct {
	ID      string `json:"id"`
	Purpose string `json:"purpose,omitempty"`
	State   string `json:"state,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// UserID идентификатор пользователя участника (пустой для внешних участников)
func (p Participant) UserID() string {
	if p.User == nil {
		return ""
	}
	return p.User.ID
}

// Conversation разговор с участниками
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
}

// ParticipantForUser ищет участника с указанным пользователем
func (c *Conversation) ParticipantForUser(userID string) (Participant, bool) {
	if c == nil || userID == "" {
		return Participant{}, false
	}
	for _, p := range c.Participants {
		if p.UserID() == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// APIError ответ API с неуспешным статусом
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: статус %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// StatusCode возвращает HTTP статус из цепочки ошибок (0, если это не APIError)
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client клиент API разговоров
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создает клиент
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("не задан адрес API")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес API %q: %w", config.BaseURL, err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "conversation_api")),
	}, nil
}

// GetMe возвращает текущего пользователя
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/v2/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetConversation возвращает разговор звонка
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("не задан идентификатор разговора")
	}
	var conv Conversation
	path := "/api/v2/conversations/calls/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DisconnectParticipant переводит участника в состояние disconnected
func (c *Client) DisconnectParticipant(ctx context.Context, conversationID, participantID string) error {
	if conversationID == "" || participantID == "" {
		return fmt.Errorf("не заданы разговор или участник")
	}
	path := fmt.Sprintf("/api/v2/conversations/calls/%s/participants/%s",
		url.PathEscape(conversationID), url.PathEscape(participantID))
	body := map[string]string{"state": StateDisconnected}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации запроса: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s %s: %w", method, path, err)
	}
	return nil
}
