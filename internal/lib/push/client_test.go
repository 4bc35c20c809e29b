package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Push{Endpoint: srv.URL, AccessToken: "tok", Timeout: time.Second})
}

func TestClient_Send(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		messages  []Message
		wantErr   bool
		wantOK    []bool
		wantError string
	}{
		{
			name: "all accepted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				var got []Message
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Len(t, got, 2)
				_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"a"},{"status":"ok","id":"b"}]}`))
			},
			messages: []Message{{To: "ExponentPushToken[a]", Body: "x"}, {To: "ExponentPushToken[b]", Body: "y"}},
			wantOK:   []bool{true, true},
		},
		{
			name: "per-message error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":[{"status":"ok"},{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`))
			},
			messages:  []Message{{To: "ExponentPushToken[a]"}, {To: "ExponentPushToken[b]"}},
			wantOK:    []bool{true, false},
			wantError: "DeviceNotRegistered",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			messages: []Message{{To: "ExponentPushToken[a]"}},
			wantErr:  true,
		},
		{
			name: "request level error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"errors":[{"code":"PUSH_TOO_MANY_EXPERIENCE_IDS","message":"nope"}]}`))
			},
			messages: []Message{{To: "ExponentPushToken[a]"}},
			wantErr:  true,
		},
		{
			name: "ticket count mismatch",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":[]}`))
			},
			messages: []Message{{To: "ExponentPushToken[a]"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			tickets, err := c.Send(context.Background(), tt.messages)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, tickets, len(tt.wantOK))
			for i, ok := range tt.wantOK {
				assert.Equal(t, ok, tickets[i].OK())
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, tickets[1].Details.Error)
			}
		})
	}
}

func TestClient_SendLimits(t *testing.T) {
	c := NewClient(config.Push{Endpoint: "http://127.0.0.1:1"})

	tickets, err := c.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tickets)

	_, err = c.Send(context.Background(), make([]Message, MaxBatch+1))
	assert.Error(t, err)
}

func TestIsExpoToken(t *testing.T) {
	assert.True(t, IsExpoToken("ExponentPushToken[xxxx]"))
	assert.True(t, IsExpoToken("ExpoPushToken[xxxx]"))
	assert.False(t, IsExpoToken("fcm:abcdef"))
	assert.False(t, IsExpoToken("ExponentPushToken[xxxx"))
}
