package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		c                                  models.Client
		passwordHash, banReason, pushToken sql.NullString
		expiry, pauseStart, pauseEnd       sql.NullTime
		banStart, banEnd, lastAccess       sql.NullTime
		status                             string
	)
	if err := row.Scan(&c.ID, &c.Email, &passwordHash, &c.Active, &c.Plan, &expiry,
		&c.PauseActive, &pauseStart, &pauseEnd, &c.PauseDaysTotal, &c.PauseDaysUsed,
		&status, &banStart, &banEnd, &banReason, &pushToken, &c.PushEnabled,
		&c.CreatedAt, &lastAccess); err != nil {
		return nil, err
	}
	st, err := models.ParseAccountStatus(status)
	if err != nil {
		return nil, err
	}
	c.Status = st
	c.PasswordHash = nullString(passwordHash)
	c.BanReason = nullString(banReason)
	c.PushToken = nullString(pushToken)
	c.Expiry = nullTime(expiry)
	c.PauseStart = nullTime(pauseStart)
	c.PauseEnd = nullTime(pauseEnd)
	c.BanStart = nullTime(banStart)
	c.BanEnd = nullTime(banEnd)
	c.LastAccess = nullTime(lastAccess)
	return &c, nil
}

// CreateClient сохраняет нового клиента и возвращает его ID.
func (s *Storage) CreateClient(ctx context.Context, c *models.Client) (int64, error) {
	const op = "storage.CreateClient"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	status := c.Status
	if status == "" {
		status = models.StatusActive
	}
	query := `INSERT INTO clients (email, password_hash, active, plan, expiry,
			      pause_days_total, pause_days_used, status, push_token, push_enabled)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		strings.ToLower(c.Email), c.PasswordHash, c.Active, c.Plan, c.Expiry,
		c.PauseDaysTotal, c.PauseDaysUsed, string(status), c.PushToken, c.PushEnabled).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrEmailTaken)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetClient возвращает клиента по ID.
func (s *Storage) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	const op = "storage.GetClient"

	row := s.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// GetClientByEmail возвращает клиента по email без учёта регистра.
func (s *Storage) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	const op = "storage.GetClientByEmail"

	row := s.DB.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE lower(email) = lower($1)`, email)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// FindClients возвращает клиентов, удовлетворяющих фильтру, в порядке ID.
func (s *Storage) FindClients(ctx context.Context, f models.ClientFilter) ([]*models.Client, error) {
	const op = "storage.FindClients"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + clientColumns + ` FROM clients`
	where, args := whereClause(f, 1)
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateClient применяет патч к клиенту, только если запись всё ещё удовлетворяет guard.
// Возвращает storage.ErrNotFound, если клиента нет, и storage.ErrConflict,
// если условие уже не выполняется.
func (s *Storage) UpdateClient(ctx context.Context, id int64, patch models.ClientPatch, guard models.ClientFilter) (*models.Client, error) {
	const op = "storage.UpdateClient"
	if patch.Empty() {
		return nil, fmt.Errorf("%s: empty patch", op)
	}

	set, args := setClause(patch, 1)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, set, len(args))
	where, whereArgs := whereClause(guard, len(args)+1)
	if where != "" {
		query += ` AND ` + where
		args = append(args, whereArgs...)
	}
	query += ` RETURNING ` + clientColumns

	c, err := scanClient(s.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	if err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrConflict)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
