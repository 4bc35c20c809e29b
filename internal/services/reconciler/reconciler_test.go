package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lifecycle"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/sender"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage/memory"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendEmail(ctx context.Context, to string, tpl models.TemplateKey, params map[string]string) error {
	return m.Called(ctx, to, tpl, params).Error(0)
}

func (m *MockGateway) SendPush(ctx context.Context, token string, msg sender.PushMessage) (sender.PushReport, error) {
	args := m.Called(ctx, token, msg)
	return args.Get(0).(sender.PushReport), args.Error(1)
}

func (m *MockGateway) BroadcastPush(ctx context.Context, tokens []string, msg sender.PushMessage) (sender.PushReport, error) {
	args := m.Called(ctx, tokens, msg)
	return args.Get(0).(sender.PushReport), args.Error(1)
}

// mapLedger: журнал в памяти.
type mapLedger struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMapLedger() *mapLedger {
	return &mapLedger{keys: make(map[string]bool)}
}

func (l *mapLedger) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.keys[key] {
		return false, nil
	}
	l.keys[key] = true
	return true, nil
}

func (l *mapLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}

// failingStore подменяет отдельные методы хранилища.
type failingStore struct {
	*memory.Storage
	findErr   error
	updateErr error
	sweepErr  error
}

func (f *failingStore) FindClients(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Storage.FindClients(ctx, filter)
}

func (f *failingStore) UpdateClient(ctx context.Context, id int64, p models.ClientPatch, g models.ClientFilter) (*models.Client, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.Storage.UpdateClient(ctx, id, p, g)
}

func (f *failingStore) DeleteStaleResetTokens(ctx context.Context, now time.Time) (int64, error) {
	if f.sweepErr != nil {
		return 0, f.sweepErr
	}
	return f.Storage.DeleteStaleResetTokens(ctx, now)
}

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(store ClientStore, gw Gateway, ledger Ledger, dedup bool) *Service {
	return New(store, gw, ledger, lifecycle.NewMachine(time.UTC), nil, newNoopLogger(), Options{
		Concurrency: 4,
		Dedup:       dedup,
	})
}

func seed(t *testing.T, st *memory.Storage, c *models.Client) int64 {
	t.Helper()
	id, err := st.CreateClient(context.Background(), c)
	require.NoError(t, err)
	return id
}

func activeClient(email string) *models.Client {
	return &models.Client{
		Email:          email,
		Active:         true,
		Plan:           "annual",
		Expiry:         ptr(now.AddDate(0, 3, 0)),
		Status:         models.StatusActive,
		PauseDaysTotal: 30,
	}
}

func expiredPause(email string, withPush bool) *models.Client {
	c := activeClient(email)
	c.PauseActive = true
	c.PauseStart = ptr(now.AddDate(0, 0, -10))
	c.PauseEnd = ptr(now.Add(-time.Hour))
	c.PauseDaysUsed = 10
	if withPush {
		c.PushToken = ptr("ExponentPushToken[" + email + "]")
		c.PushEnabled = true
	}
	return c
}

func TestReconcileExpiredPauses(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := seed(t, st, expiredPause("anna@example.com", false))
	b := seed(t, st, expiredPause("bruno@example.com", true))
	soon := activeClient("carla@example.com")
	soon.PauseActive = true
	soon.PauseStart = ptr(now.AddDate(0, 0, -6))
	soon.PauseEnd = ptr(now.Add(5 * time.Hour))
	soon.PauseDaysUsed = 7
	soon.PushToken = ptr("ExponentPushToken[carla]")
	soon.PushEnabled = true
	c := seed(t, st, soon)
	running := activeClient("dario@example.com")
	running.PauseActive = true
	running.PauseStart = ptr(now.AddDate(0, 0, -1))
	running.PauseEnd = ptr(now.AddDate(0, 0, 6))
	running.PauseDaysUsed = 7
	d := seed(t, st, running)

	gw := new(MockGateway)
	gw.On("SendEmail", mock.Anything, "anna@example.com", models.TemplatePauseEnded, mock.Anything).Return(nil).Once()
	gw.On("SendEmail", mock.Anything, "bruno@example.com", models.TemplatePauseEnded, mock.Anything).Return(nil).Once()
	gw.On("SendPush", mock.Anything, "ExponentPushToken[bruno@example.com]", mock.MatchedBy(func(m sender.PushMessage) bool {
		return m.Title == "Pausa terminata"
	})).Return(sender.PushReport{Delivered: 1}, nil).Once()
	gw.On("SendPush", mock.Anything, "ExponentPushToken[carla]", mock.MatchedBy(func(m sender.PushMessage) bool {
		return m.Title == "La pausa sta per finire"
	})).Return(sender.PushReport{Delivered: 1}, nil).Once()

	s := newService(st, gw, newMapLedger(), false)
	res, err := s.ReconcileExpiredPauses(ctx, now)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.PausesEnded)
	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 2, res.PushSent)
	assert.Zero(t, res.Errors)
	assert.Zero(t, res.Skipped)

	for _, id := range []int64{a, b} {
		got, err := st.GetClient(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.PauseActive)
		assert.Nil(t, got.PauseStart)
		assert.Nil(t, got.PauseEnd)
		assert.LessOrEqual(t, got.PauseDaysUsed, got.PauseDaysTotal)
	}
	for _, id := range []int64{c, d} {
		got, err := st.GetClient(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.PauseActive)
	}
	gw.AssertExpectations(t)
}

func TestReconcileExpiredPauses_SecondRunIsNoop(t *testing.T) {
	st := memory.New()
	seed(t, st, expiredPause("anna@example.com", false))

	gw := new(MockGateway)
	gw.On("SendEmail", mock.Anything, "anna@example.com", models.TemplatePauseEnded, mock.Anything).Return(nil).Once()

	s := newService(st, gw, newMapLedger(), false)
	first, err := s.ReconcileExpiredPauses(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PausesEnded)

	second, err := s.ReconcileExpiredPauses(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, PauseResult{RunID: second.RunID}, second)
	assert.NotEqual(t, first.RunID, second.RunID)
	gw.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestReconcileExpiredPauses_DeliveryFailureKeepsTransition(t *testing.T) {
	st := memory.New()
	id := seed(t, st, expiredPause("anna@example.com", true))

	gw := new(MockGateway)
	gw.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&sender.DeliveryError{Channel: models.ChannelEmail, Recipient: "anna@example.com", Err: errors.New("smtp down")}).Once()
	gw.On("SendPush", mock.Anything, mock.Anything, mock.Anything).Return(sender.PushReport{Delivered: 1}, nil).Once()

	res, err := newService(st, gw, newMapLedger(), false).ReconcileExpiredPauses(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PausesEnded)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 1, res.PushSent)
	assert.Equal(t, 1, res.Errors)

	got, err := st.GetClient(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, got.PauseActive)
}

func TestReconcileExpiredPauses_StoreErrors(t *testing.T) {
	tests := []struct {
		name        string
		store       func(*memory.Storage) *failingStore
		wantErr     bool
		wantErrors  int
		wantSkipped int
	}{
		{
			name:    "store unreachable aborts job",
			store:   func(m *memory.Storage) *failingStore { return &failingStore{Storage: m, findErr: errors.New("connection refused")} },
			wantErr: true,
		},
		{
			name:       "vanished record counts as error",
			store:      func(m *memory.Storage) *failingStore { return &failingStore{Storage: m, updateErr: storage.ErrNotFound} },
			wantErrors: 1,
		},
		{
			name:        "concurrent update counts as skipped",
			store:       func(m *memory.Storage) *failingStore { return &failingStore{Storage: m, updateErr: storage.ErrConflict} },
			wantSkipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New()
			seed(t, mem, expiredPause("anna@example.com", false))
			gw := new(MockGateway)

			res, err := newService(tt.store(mem), gw, newMapLedger(), false).ReconcileExpiredPauses(context.Background(), now)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "reconciler.ReconcileExpiredPauses")
				return
			}
			require.NoError(t, err)
			assert.Zero(t, res.PausesEnded)
			assert.Equal(t, tt.wantErrors, res.Errors)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
			gw.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReconcileExpiredPauses_PauseEndingDedup(t *testing.T) {
	st := memory.New()
	c := activeClient("carla@example.com")
	c.PauseActive = true
	c.PauseStart = ptr(now.AddDate(0, 0, -6))
	c.PauseEnd = ptr(now.Add(5 * time.Hour))
	c.PushToken = ptr("ExponentPushToken[carla]")
	c.PushEnabled = true
	seed(t, st, c)

	gw := new(MockGateway)
	gw.On("SendPush", mock.Anything, "ExponentPushToken[carla]", mock.Anything).Return(sender.PushReport{Delivered: 1}, nil)

	t.Run("dedup suppresses the second reminder of the day", func(t *testing.T) {
		s := newService(st, gw, newMapLedger(), true)
		first, err := s.ReconcileExpiredPauses(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, first.PushSent)

		second, err := s.ReconcileExpiredPauses(context.Background(), now.Add(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 0, second.PushSent)
		assert.Equal(t, 1, second.Skipped)
	})

	t.Run("without dedup the reminder re-fires", func(t *testing.T) {
		s := newService(st, gw, nil, false)
		res, err := s.ReconcileExpiredPauses(context.Background(), now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, res.PushSent)
	})

	t.Run("ledger failure skips delivery", func(t *testing.T) {
		ledger := newMapLedger()
		ledger.err = errors.New("redis down")
		s := newService(st, gw, ledger, true)
		res, err := s.ReconcileExpiredPauses(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, res.PushSent)
		assert.Equal(t, 1, res.Errors)
	})

	gw.AssertNumberOfCalls(t, "SendPush", 2)
}

func TestReconcileExpiringSubscriptionsPush(t *testing.T) {
	st := memory.New()
	withPush := func(email string, days int) *models.Client {
		c := activeClient(email)
		c.Expiry = ptr(now.AddDate(0, 0, days))
		c.PushToken = ptr("ExponentPushToken[" + email + "]")
		c.PushEnabled = true
		return c
	}
	seed(t, st, withPush("tre@example.com", 3))
	noPush := activeClient("nopush@example.com")
	noPush.Expiry = ptr(now.AddDate(0, 0, 3))
	seed(t, st, noPush)
	paused := withPush("paused@example.com", 7)
	paused.PauseActive = true
	paused.PauseStart = ptr(now.AddDate(0, 0, -1))
	paused.PauseEnd = ptr(now.AddDate(0, 0, 2))
	seed(t, st, paused)
	seed(t, st, withPush("cinque@example.com", 5))

	gw := new(MockGateway)
	gw.On("SendPush", mock.Anything, "ExponentPushToken[tre@example.com]", mock.MatchedBy(func(m sender.PushMessage) bool {
		return m.Body == "Il tuo abbonamento scade tra 3 giorni (13/03/2025)."
	})).Return(sender.PushReport{Delivered: 1}, nil).Once()

	res, err := newService(st, gw, newMapLedger(), true).ReconcileExpiringSubscriptionsPush(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sent3Days)
	assert.Equal(t, 0, res.Sent7Days)
	assert.Equal(t, 0, res.Sent1Day)
	assert.Zero(t, res.Errors)
	gw.AssertExpectations(t)
	gw.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileExpiringSubscriptionsEmail(t *testing.T) {
	st := memory.New()
	for _, tc := range []struct {
		email string
		days  int
	}{
		{"sette@example.com", 7},
		{"tre@example.com", 3},
		{"uno@example.com", 1},
		{"zero@example.com", 0},
	} {
		c := activeClient(tc.email)
		c.Expiry = ptr(now.AddDate(0, 0, tc.days).Add(3 * time.Hour))
		seed(t, st, c)
	}
	banned := activeClient("bannato@example.com")
	banned.Expiry = ptr(now.AddDate(0, 0, 1))
	banned.Status = models.StatusBanned
	seed(t, st, banned)

	gw := new(MockGateway)
	gw.On("SendEmail", mock.Anything, "sette@example.com", models.TemplateSubscriptionExpiring, mock.Anything).Return(nil).Once()
	gw.On("SendEmail", mock.Anything, "tre@example.com", models.TemplateSubscriptionExpiring, mock.Anything).Return(nil).Once()
	gw.On("SendEmail", mock.Anything, "uno@example.com", models.TemplateSubscriptionExpiring,
		map[string]string{"days": "1", "expiry": "11/03/2025", "plan": "annual"}).
		Return(&sender.DeliveryError{Channel: models.ChannelEmail, Recipient: "uno@example.com", Err: errors.New("mailbox full")}).Once()

	s := newService(st, gw, newMapLedger(), true)
	res, err := s.ReconcileExpiringSubscriptionsEmail(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent7Days)
	assert.Equal(t, 1, res.Sent3Days)
	assert.Equal(t, 0, res.Sent1Day)
	assert.Equal(t, 1, res.Errors)
	gw.AssertExpectations(t)

	gw.On("SendEmail", mock.Anything, "uno@example.com", models.TemplateSubscriptionExpiring, mock.Anything).Return(nil).Once()

	again, err := s.ReconcileExpiringSubscriptionsEmail(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, again.Sent7Days+again.Sent3Days)
	assert.Equal(t, 1, again.Sent1Day)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Errors)
	gw.AssertExpectations(t)
}

func TestReconcileExpiringSubscriptionsPush_RetryAfterFailure(t *testing.T) {
	st := memory.New()
	c := activeClient("tre@example.com")
	c.Expiry = ptr(now.AddDate(0, 0, 3))
	c.PushToken = ptr("ExponentPushToken[tre]")
	c.PushEnabled = true
	seed(t, st, c)

	gw := new(MockGateway)
	gw.On("SendPush", mock.Anything, "ExponentPushToken[tre]", mock.Anything).
		Return(sender.PushReport{}, errors.New("expo unavailable")).Once()
	gw.On("SendPush", mock.Anything, "ExponentPushToken[tre]", mock.Anything).
		Return(sender.PushReport{Delivered: 1}, nil).Once()

	s := newService(st, gw, newMapLedger(), true)

	first, err := s.ReconcileExpiringSubscriptionsPush(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Sent3Days)
	assert.Equal(t, 1, first.Errors)

	second, err := s.ReconcileExpiringSubscriptionsPush(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Sent3Days)
	assert.Zero(t, second.Skipped)

	third, err := s.ReconcileExpiringSubscriptionsPush(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, third.Sent3Days)
	assert.Equal(t, 1, third.Skipped)

	gw.AssertNumberOfCalls(t, "SendPush", 2)
}

func TestReconcileExpiringSubscriptions_StoreDown(t *testing.T) {
	st := &failingStore{Storage: memory.New(), findErr: errors.New("timeout")}
	_, err := newService(st, new(MockGateway), newMapLedger(), false).ReconcileExpiringSubscriptionsPush(context.Background(), now)
	require.Error(t, err)
}

func TestSweepResetTokens(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	expired := activeClient("scaduto@example.com")
	expired.Expiry = ptr(now.Add(-time.Hour))
	expiredID := seed(t, st, expired)

	paused := activeClient("inpausa@example.com")
	paused.Expiry = ptr(now.AddDate(0, 0, -1))
	paused.PauseActive = true
	paused.PauseStart = ptr(now.AddDate(0, 0, -3))
	paused.PauseEnd = ptr(now.AddDate(0, 0, 4))
	pausedID := seed(t, st, paused)

	fine := seed(t, st, activeClient("ok@example.com"))

	_, err := st.CreateResetToken(ctx, fine, "old", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = st.CreateResetToken(ctx, fine, "fresh", now.Add(time.Hour))
	require.NoError(t, err)

	res, err := newService(st, new(MockGateway), nil, false).SweepResetTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TokensDeleted)
	assert.Equal(t, 1, res.SubscriptionsExpired)
	assert.Zero(t, res.Errors)

	got, err := st.GetClient(ctx, expiredID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = st.GetClient(ctx, pausedID)
	require.NoError(t, err)
	assert.True(t, got.Active, "pause suspends auto-expiry")

	tokens := st.ResetTokens(fine)
	require.Len(t, tokens, 1)
	assert.Equal(t, "fresh", tokens[0].TokenHash)
}

func TestSweepResetTokens_StoreDown(t *testing.T) {
	st := &failingStore{Storage: memory.New(), sweepErr: errors.New("db down")}
	_, err := newService(st, new(MockGateway), nil, false).SweepResetTokens(context.Background(), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconciler.SweepResetTokens")
}

func TestReconcileClient(t *testing.T) {
	ctx := context.Background()

	t.Run("lifts expired ban", func(t *testing.T) {
		st := memory.New()
		c := activeClient("bannato@example.com")
		c.Status = models.StatusBanned
		c.BanStart = ptr(now.AddDate(0, 0, -7))
		c.BanEnd = ptr(now.Add(-time.Second))
		c.BanReason = ptr("ritardi")
		id := seed(t, st, c)

		res, err := newService(st, new(MockGateway), nil, false).ReconcileClient(ctx, id, now)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, "ban_expiry", res.Rule)
		assert.Equal(t, "lift_ban", res.Transition)

		got, err := st.GetClient(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Nil(t, got.BanReason)
	})

	t.Run("sends reminder on both channels", func(t *testing.T) {
		st := memory.New()
		c := activeClient("uno@example.com")
		c.Expiry = ptr(now.AddDate(0, 0, 1))
		c.PushToken = ptr("ExponentPushToken[uno]")
		c.PushEnabled = true
		id := seed(t, st, c)

		gw := new(MockGateway)
		gw.On("SendEmail", mock.Anything, "uno@example.com", models.TemplateSubscriptionExpiring, mock.Anything).Return(nil).Once()
		gw.On("SendPush", mock.Anything, "ExponentPushToken[uno]", mock.Anything).Return(sender.PushReport{Delivered: 1}, nil).Once()

		res, err := newService(st, gw, newMapLedger(), true).ReconcileClient(ctx, id, now)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, 2, res.Sent)
		gw.AssertExpectations(t)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := newService(memory.New(), new(MockGateway), nil, false).ReconcileClient(ctx, 999, now)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDispatch_RespectsConcurrencyLimit(t *testing.T) {
	st := memory.New()
	for i := range 20 {
		seed(t, st, expiredPause("user"+string(rune('a'+i))+"@example.com", false))
	}

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	gw := new(MockGateway)
	gw.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		mu.Lock()
		current++
		peak = max(peak, current)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
	}).Return(nil)

	s := New(st, gw, nil, lifecycle.NewMachine(time.UTC), nil, newNoopLogger(), Options{Concurrency: 3})
	res, err := s.ReconcileExpiredPauses(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 20, res.PausesEnded)
	assert.Equal(t, 20, res.EmailsSent)
	assert.LessOrEqual(t, peak, 3)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	withToken := func(email, token string, enabled bool) *models.Client {
		c := activeClient(email)
		c.PushToken = ptr(token)
		c.PushEnabled = enabled
		return c
	}
	seed(t, st, withToken("a@example.com", "ExponentPushToken[a]", true))
	seed(t, st, withToken("b@example.com", "ExponentPushToken[b]", true))
	seed(t, st, withToken("c@example.com", "ExponentPushToken[c]", false))
	banned := withToken("d@example.com", "ExponentPushToken[d]", true)
	banned.Status = models.StatusBanned
	seed(t, st, banned)

	want := sender.PushMessage{
		Title: "Chiusura straordinaria",
		Body:  "Domani la palestra resta chiusa.",
		Data:  map[string]string{"template": "broadcast"},
	}
	gw := new(MockGateway)
	gw.On("BroadcastPush", mock.Anything, []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, want).
		Return(sender.PushReport{Delivered: 1, Failed: 1}, errors.New("one ticket rejected")).Once()

	res, err := newService(st, gw, nil, false).Broadcast(ctx, want.Title, want.Body, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.NotEmpty(t, res.RunID)
	gw.AssertExpectations(t)

	_, err = newService(&failingStore{Storage: st, findErr: errors.New("db down")}, gw, nil, false).Broadcast(ctx, "x", "y", now)
	assert.ErrorContains(t, err, "db down")
}
