// Package push реализует клиент Expo Push API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
)

// MaxBatch: максимум сообщений в одном запросе к Expo.
const MaxBatch = 100

// Message: push-сообщение Expo.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// Ticket: результат отправки одного сообщения.
type Ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

// OK сообщает, что Expo принял сообщение.
func (t Ticket) OK() bool {
	return t.Status == "ok"
}

type response struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client отправляет сообщения в Expo.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

// NewClient создаёт клиента по настройкам push.
func NewClient(cfg config.Push) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// IsExpoToken проверяет формат токена устройства.
func IsExpoToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// Send отправляет до MaxBatch сообщений одним запросом и возвращает
// тикеты в порядке сообщений.
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	const op = "push.Send"
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxBatch {
		return nil, fmt.Errorf("%s: batch of %d exceeds %d", op, len(messages), MaxBatch)
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: expo returned status %d", op, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("%s: expo error %s: %s", op, parsed.Errors[0].Code, parsed.Errors[0].Message)
	}
	if len(parsed.Data) != len(messages) {
		return nil, fmt.Errorf("%s: expected %d tickets, got %d", op, len(messages), len(parsed.Data))
	}
	return parsed.Data, nil
}
