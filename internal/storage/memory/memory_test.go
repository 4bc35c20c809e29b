package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func TestStorage_CreateClient(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.CreateClient(ctx, &models.Client{Email: "Anna@Example.com"})
	require.NoError(t, err)

	c, err := s.GetClientByEmail(ctx, "anna@example.COM")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, "anna@example.com", c.Email)
	assert.Equal(t, models.StatusActive, c.Status)

	_, err = s.CreateClient(ctx, &models.Client{Email: "ANNA@example.com"})
	require.ErrorIs(t, err, storage.ErrEmailTaken)

	c.Email = "changed@example.com"
	stored, err := s.GetClient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", stored.Email, "returned clients are copies")
}

func TestStorage_UpdateClient(t *testing.T) {
	ctx := context.Background()
	guard := models.ClientFilter{PauseActive: ptr(true), PauseEndBefore: ptr(now)}

	tests := []struct {
		name    string
		id      func(s *Storage) int64
		patch   models.ClientPatch
		wantErr error
	}{
		{
			name: "guard holds",
			id: func(s *Storage) int64 {
				id, _ := s.CreateClient(ctx, &models.Client{
					Email: "a@example.com", PauseActive: true,
					PauseStart: ptr(now.AddDate(0, 0, -3)), PauseEnd: ptr(now.Add(-time.Hour)),
				})
				return id
			},
			patch: models.ClientPatch{ClearPause: true},
		},
		{
			name: "guard no longer holds",
			id: func(s *Storage) int64 {
				id, _ := s.CreateClient(ctx, &models.Client{Email: "b@example.com"})
				return id
			},
			patch:   models.ClientPatch{ClearPause: true},
			wantErr: storage.ErrConflict,
		},
		{
			name:    "missing client",
			id:      func(*Storage) int64 { return 42 },
			patch:   models.ClientPatch{ClearPause: true},
			wantErr: storage.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			got, err := s.UpdateClient(ctx, tt.id(s), tt.patch, guard)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, got.PauseActive)
			assert.Nil(t, got.PauseEnd)
		})
	}
}

func TestStorage_UpdateClient_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.CreateClient(ctx, &models.Client{
		Email: "race@example.com", Status: models.StatusBanned,
		BanStart: ptr(now.AddDate(0, 0, -7)), BanEnd: ptr(now.Add(-time.Minute)),
	})
	require.NoError(t, err)

	active, banned := models.StatusActive, models.StatusBanned
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateClient(ctx, id,
				models.ClientPatch{ClearBan: true, Status: &active},
				models.ClientFilter{Status: &banned, BanEndBefore: ptr(now)})
			switch {
			case err == nil:
				winners.Add(1)
			case assert.ErrorIs(t, err, storage.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(15), conflicts.Load())
}

func TestStorage_ResetTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.CreateClient(ctx, &models.Client{Email: "reset@example.com"})
	require.NoError(t, err)

	_, err = s.CreateResetToken(ctx, id, "h1", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.CreateResetToken(ctx, id, "h2", now.Add(time.Hour))
	require.NoError(t, err)

	_, err = s.ConsumeResetToken(ctx, "h1", "pw", now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	owner, err := s.ConsumeResetToken(ctx, "h2", "pw", now)
	require.NoError(t, err)
	assert.Equal(t, id, owner)

	c, err := s.GetClient(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c.PasswordHash)
	assert.Equal(t, "pw", *c.PasswordHash)

	_, err = s.CreateResetToken(ctx, 999, "h3", now.Add(time.Hour))
	require.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.DeleteStaleResetTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, s.ResetTokens(id))
}

func TestStorage_AuditNotes(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.CreateClient(ctx, &models.Client{Email: "notes@example.com"})
	require.NoError(t, err)

	_, err = s.AddAuditNote(ctx, models.AuditNote{ClientID: id, Author: "op", Text: "first", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.AddAuditNote(ctx, models.AuditNote{ClientID: id, Author: "op", Text: "second", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.AddAuditNote(ctx, models.AuditNote{ClientID: 999, Text: "orphan"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	notes, err := s.ListAuditNotes(ctx, id)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "second", notes[0].Text)
}
