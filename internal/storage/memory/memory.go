// Package memory реализует хранилище клиентов в памяти процесса.
// Используется в локальном окружении (storage.driver: memory) и в тестах сервисов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// Storage: потокобезопасное хранилище клиентов, токенов и заметок.
type Storage struct {
	mu      sync.Mutex
	clients map[int64]*models.Client
	tokens  map[int64]*models.ResetToken
	notes   []models.AuditNote
	nextID  int64
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		clients: make(map[int64]*models.Client),
		tokens:  make(map[int64]*models.ResetToken),
	}
}

func (s *Storage) id() int64 {
	s.nextID++
	return s.nextID
}

// CreateClient сохраняет копию клиента и возвращает присвоенный ID.
func (s *Storage) CreateClient(_ context.Context, c *models.Client) (int64, error) {
	const op = "memory.CreateClient"
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clients {
		if strings.EqualFold(existing.Email, c.Email) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrEmailTaken)
		}
	}
	cp := cloneClient(c)
	cp.ID = s.id()
	cp.Email = strings.ToLower(cp.Email)
	if cp.Status == "" {
		cp.Status = models.StatusActive
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.clients[cp.ID] = cp
	return cp.ID, nil
}

// GetClient возвращает копию клиента по ID.
func (s *Storage) GetClient(_ context.Context, id int64) (*models.Client, error) {
	const op = "memory.GetClient"
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return cloneClient(c), nil
}

// GetClientByEmail возвращает копию клиента по email без учёта регистра.
func (s *Storage) GetClientByEmail(_ context.Context, email string) (*models.Client, error) {
	const op = "memory.GetClientByEmail"
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if strings.EqualFold(c.Email, email) {
			return cloneClient(c), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// FindClients возвращает копии клиентов, удовлетворяющих фильтру, в порядке ID.
func (s *Storage) FindClients(ctx context.Context, f models.ClientFilter) ([]*models.Client, error) {
	const op = "memory.FindClients"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Client
	for _, c := range s.clients {
		if f.Matches(c) {
			result = append(result, cloneClient(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateClient применяет патч, если клиент всё ещё удовлетворяет guard.
func (s *Storage) UpdateClient(_ context.Context, id int64, patch models.ClientPatch, guard models.ClientFilter) (*models.Client, error) {
	const op = "memory.UpdateClient"
	if patch.Empty() {
		return nil, fmt.Errorf("%s: empty patch", op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if !guard.Matches(c) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	patch.ApplyTo(c)
	return cloneClient(c), nil
}

// DeleteClient удаляет клиента вместе с его токенами.
func (s *Storage) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, id)
	for tid, t := range s.tokens {
		if t.ClientID == id {
			delete(s.tokens, tid)
		}
	}
	return nil
}

// CreateResetToken инвалидирует прежние токены клиента и сохраняет новый.
func (s *Storage) CreateResetToken(_ context.Context, clientID int64, tokenHash string, expiresAt time.Time) (*models.ResetToken, error) {
	const op = "memory.CreateResetToken"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	for _, t := range s.tokens {
		if t.ClientID == clientID && !t.Used {
			t.Used = true
		}
	}
	t := &models.ResetToken{
		ID:        s.id(),
		ClientID:  clientID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	s.tokens[t.ID] = t
	cp := *t
	return &cp, nil
}

// ConsumeResetToken атомарно гасит токен и записывает новый хеш пароля.
func (s *Storage) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	const op = "memory.ConsumeResetToken"
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TokenHash != tokenHash || !t.Valid(now) {
			continue
		}
		c, ok := s.clients[t.ClientID]
		if !ok {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		t.Used = true
		hash := passwordHash
		c.PasswordHash = &hash
		return c.ID, nil
	}
	return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// DeleteStaleResetTokens удаляет истёкшие и использованные токены.
func (s *Storage) DeleteStaleResetTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.Stale(now) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// ResetTokens возвращает копии всех токенов клиента.
func (s *Storage) ResetTokens(clientID int64) []models.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ResetToken
	for _, t := range s.tokens {
		if t.ClientID == clientID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddAuditNote сохраняет заметку.
func (s *Storage) AddAuditNote(_ context.Context, note models.AuditNote) (int64, error) {
	const op = "memory.AddAuditNote"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[note.ClientID]; !ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	note.ID = s.id()
	s.notes = append(s.notes, note)
	return note.ID, nil
}

// ListAuditNotes возвращает заметки клиента, новые первыми.
func (s *Storage) ListAuditNotes(_ context.Context, clientID int64) ([]models.AuditNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.AuditNote
	for i := len(s.notes) - 1; i >= 0; i-- {
		if s.notes[i].ClientID == clientID {
			out = append(out, s.notes[i])
		}
	}
	return out, nil
}

func cloneClient(c *models.Client) *models.Client {
	cp := *c
	cp.PasswordHash = cloneString(c.PasswordHash)
	cp.BanReason = cloneString(c.BanReason)
	cp.PushToken = cloneString(c.PushToken)
	cp.Expiry = cloneTime(c.Expiry)
	cp.PauseStart = cloneTime(c.PauseStart)
	cp.PauseEnd = cloneTime(c.PauseEnd)
	cp.BanStart = cloneTime(c.BanStart)
	cp.BanEnd = cloneTime(c.BanEnd)
	cp.LastAccess = cloneTime(c.LastAccess)
	return &cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
