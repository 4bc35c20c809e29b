package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

type MockActivator struct {
	mock.Mock
}

func (m *MockActivator) Activate(ctx context.Context, id int64, plan string, now time.Time) (*models.Client, error) {
	args := m.Called(ctx, id, plan, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

const secret = "whsec_test"

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func checkoutEvent(id, clientID, plan string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid","metadata":{"client_id":%q,"plan":%q}}}}`, id, clientID, plan))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name    string
		header  string
		at      time.Time
		wantErr error
	}{
		{name: "valid", header: Sign(secret, payload, now), at: now},
		{name: "valid within tolerance", header: Sign(secret, payload, now.Add(-4*time.Minute)), at: now},
		{name: "second v1 matches", header: Sign(secret, payload, now) + ",v1=deadbeef", at: now},
		{name: "missing", header: "", at: now, wantErr: ErrMissingSignature},
		{name: "stale", header: Sign(secret, payload, now.Add(-10*time.Minute)), at: now, wantErr: ErrStaleSignature},
		{name: "from the future", header: Sign(secret, payload, now.Add(10*time.Minute)), at: now, wantErr: ErrStaleSignature},
		{name: "wrong secret", header: Sign("other", payload, now), at: now, wantErr: ErrInvalidSignature},
		{name: "no timestamp", header: "v1=abc", at: now, wantErr: ErrInvalidSignature},
		{name: "garbage timestamp", header: "t=abc,v1=abc", at: now, wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, payload, tt.header, tt.at, 5*time.Minute)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_HandleWebhook(t *testing.T) {
	tests := []struct {
		name        string
		payload     []byte
		signature   func(payload []byte) string
		setupMocks  func(a *MockActivator, l *MockLedger)
		wantOutcome Outcome
		wantErr     error
	}{
		{
			name:      "checkout activates subscription",
			payload:   checkoutEvent("evt_1", "42", "6m"),
			signature: func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(a *MockActivator, l *MockLedger) {
				l.On("Claim", mock.Anything, "stripe:evt_1", 72*time.Hour).Return(true, nil)
				a.On("Activate", mock.Anything, int64(42), "6m", now).Return(&models.Client{ID: 42}, nil)
			},
			wantOutcome: OutcomeActivated,
		},
		{
			name:      "duplicate event is dropped",
			payload:   checkoutEvent("evt_1", "42", "6m"),
			signature: func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(_ *MockActivator, l *MockLedger) {
				l.On("Claim", mock.Anything, "stripe:evt_1", 72*time.Hour).Return(false, nil)
			},
			wantOutcome: OutcomeDuplicate,
		},
		{
			name:      "activation failure releases claim",
			payload:   checkoutEvent("evt_2", "42", "annual"),
			signature: func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(a *MockActivator, l *MockLedger) {
				l.On("Claim", mock.Anything, "stripe:evt_2", 72*time.Hour).Return(true, nil)
				l.On("Release", mock.Anything, "stripe:evt_2").Return(nil)
				a.On("Activate", mock.Anything, int64(42), "annual", now).Return(nil, errors.New("db down"))
			},
			wantErr: errors.New("db down"),
		},
		{
			name:       "bad signature never reaches ledger",
			payload:    checkoutEvent("evt_3", "42", "annual"),
			signature:  func(p []byte) string { return Sign("wrong", p, now) },
			setupMocks: func(_ *MockActivator, _ *MockLedger) {},
			wantErr:    ErrInvalidSignature,
		},
		{
			name:        "other event types are ignored",
			payload:     []byte(`{"id":"evt_4","type":"invoice.paid","data":{"object":{}}}`),
			signature:   func(p []byte) string { return Sign(secret, p, now) },
			setupMocks:  func(_ *MockActivator, _ *MockLedger) {},
			wantOutcome: OutcomeIgnored,
		},
		{
			name:       "missing client id",
			payload:    checkoutEvent("evt_5", "", "annual"),
			signature:  func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(_ *MockActivator, _ *MockLedger) {},
			wantErr:    ErrInvalidEvent,
		},
		{
			name:       "malformed json",
			payload:    []byte(`{"id":`),
			signature:  func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(_ *MockActivator, _ *MockLedger) {},
			wantErr:    ErrInvalidEvent,
		},
		{
			name:      "ledger failure",
			payload:   checkoutEvent("evt_6", "42", "annual"),
			signature: func(p []byte) string { return Sign(secret, p, now) },
			setupMocks: func(_ *MockActivator, l *MockLedger) {
				l.On("Claim", mock.Anything, "stripe:evt_6", 72*time.Hour).Return(false, errors.New("redis down"))
			},
			wantErr: errors.New("redis down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activator := new(MockActivator)
			ledger := new(MockLedger)
			tt.setupMocks(activator, ledger)

			svc := New(activator, ledger, newNoopLogger(), Options{Secret: secret, Tolerance: 5 * time.Minute})
			outcome, err := svc.HandleWebhook(context.Background(), tt.payload, tt.signature(tt.payload), now)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, ErrInvalidSignature) || errors.Is(tt.wantErr, ErrInvalidEvent) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.ErrorContains(t, err, tt.wantErr.Error())
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutcome, outcome)
			}
			activator.AssertExpectations(t)
			ledger.AssertExpectations(t)
		})
	}
}

func TestService_HandleWebhook_EmptySecret(t *testing.T) {
	activator := new(MockActivator)
	ledger := new(MockLedger)
	payload := checkoutEvent("evt_forged", "42", "6m")

	svc := New(activator, ledger, newNoopLogger(), Options{Tolerance: 5 * time.Minute})
	outcome, err := svc.HandleWebhook(context.Background(), payload, Sign("", payload, now), now)

	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, outcome)
	activator.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
}
