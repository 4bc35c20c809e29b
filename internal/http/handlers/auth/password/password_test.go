package password

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/account"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) RequestPasswordReset(ctx context.Context, email string, now time.Time) error {
	return m.Called(ctx, email, now).Error(0)
}

func (m *ServiceMock) ResetPassword(ctx context.Context, secret, newPassword string, now time.Time) error {
	return m.Called(ctx, secret, newPassword, now).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestForgotHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(m *ServiceMock)
		wantStatusCode int
		wantError      string
	}{
		{
			name: "known or unknown email answers the same",
			body: `{"email":"mario@example.com"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("RequestPasswordReset", mock.Anything, "mario@example.com", mock.AnythingOfType("time.Time")).Return(nil).Once()
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid email",
			body:           `{"email":"mario"}`,
			setupMocks:     func(_ *ServiceMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Email must be a valid email",
		},
		{
			name: "mailer down",
			body: `{"email":"mario@example.com"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("RequestPasswordReset", mock.Anything, "mario@example.com", mock.AnythingOfType("time.Time")).Return(errors.New("smtp down")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
			wantError:      "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)

			rec := httptest.NewRecorder()
			NewForgot(newNoopLogger(), svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/password/forgot", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec).Error)
			svc.AssertExpectations(t)
		})
	}
}

func TestResetHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(m *ServiceMock)
		wantStatusCode int
		wantError      string
	}{
		{
			name: "password changed",
			body: `{"token":"abc","password":"nuovapassword"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("ResetPassword", mock.Anything, "abc", "nuovapassword", mock.AnythingOfType("time.Time")).Return(nil).Once()
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "short password",
			body:           `{"token":"abc","password":"corta"}`,
			setupMocks:     func(_ *ServiceMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Password must be at least 8",
		},
		{
			name: "expired token",
			body: `{"token":"old","password":"nuovapassword"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("ResetPassword", mock.Anything, "old", "nuovapassword", mock.AnythingOfType("time.Time")).Return(account.ErrInvalidResetToken).Once()
			},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid or expired token",
		},
		{
			name:           "malformed json",
			body:           `{`,
			setupMocks:     func(_ *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)

			rec := httptest.NewRecorder()
			NewReset(newNoopLogger(), svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/password/reset", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec).Error)
			svc.AssertExpectations(t)
		})
	}
}
