package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// CreateResetToken помечает использованными все прежние неиспользованные токены
// клиента и сохраняет новый. Обе операции выполняются в одной транзакции.
func (s *Storage) CreateResetToken(ctx context.Context, clientID int64, tokenHash string, expiresAt time.Time) (*models.ResetToken, error) {
	const op = "storage.CreateResetToken"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = true WHERE client_id = $1 AND used = false`,
		clientID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t := models.ResetToken{ClientID: clientID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO password_reset_tokens (client_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		clientID, tokenHash, expiresAt).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

// ConsumeResetToken атомарно помечает действующий токен использованным и
// записывает новый хеш пароля его владельцу. Возвращает ID клиента.
func (s *Storage) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	const op = "storage.ConsumeResetToken"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var clientID int64
	err = tx.QueryRowContext(ctx,
		`UPDATE password_reset_tokens
		    SET used = true
		  WHERE token_hash = $1
		    AND used = false
		    AND expires_at > $2
		  RETURNING client_id`,
		tokenHash, now).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE clients SET password_hash = $1 WHERE id = $2`, passwordHash, clientID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return clientID, nil
}

// DeleteStaleResetTokens удаляет истёкшие и использованные токены.
func (s *Storage) DeleteStaleResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.DeleteStaleResetTokens"

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < $1 OR used = true`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
