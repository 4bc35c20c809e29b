package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/app/deps"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_Schedules(t *testing.T) {
	noop := func(context.Context, time.Time) (any, error) { return nil, nil }

	tests := []struct {
		name        string
		jobs        []deps.Job
		wantErr     bool
		wantEntries int
	}{
		{
			name: "all jobs scheduled",
			jobs: []deps.Job{
				{Name: "pauses", Schedule: "*/15 * * * *", Run: noop},
				{Name: "sweep", Schedule: "0 3 * * *", Run: noop},
			},
			wantEntries: 2,
		},
		{
			name: "empty schedule disables job",
			jobs: []deps.Job{
				{Name: "pauses", Schedule: "*/15 * * * *", Run: noop},
				{Name: "sweep", Schedule: "", Run: noop},
			},
			wantEntries: 1,
		},
		{
			name: "invalid schedule",
			jobs: []deps.Job{
				{Name: "pauses", Schedule: "every quarter hour", Run: noop},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := newApp(nil, tt.jobs, time.UTC, newNoopLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, a.cron.Entries(), tt.wantEntries)
		})
	}
}

func TestApp_TriggerPassesClockAndContext(t *testing.T) {
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	type ctxKey struct{}

	var (
		gotNow time.Time
		gotCtx context.Context
	)
	job := deps.Job{
		Name:     "reminders_email",
		Schedule: "0 8 * * *",
		Run: func(ctx context.Context, now time.Time) (any, error) {
			gotNow, gotCtx = now, ctx
			return nil, errors.New("store down")
		},
	}

	a, err := newApp(nil, []deps.Job{job}, time.UTC, newNoopLogger())
	require.NoError(t, err)
	a.clock = func() time.Time { return at }
	a.baseCtx = context.WithValue(context.Background(), ctxKey{}, "run")

	a.trigger(job)()

	assert.Equal(t, at, gotNow)
	require.NotNil(t, gotCtx)
	assert.Equal(t, "run", gotCtx.Value(ctxKey{}))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := newApp(nil, nil, time.UTC, newNoopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
