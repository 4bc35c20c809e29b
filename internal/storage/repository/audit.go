package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// AddAuditNote сохраняет заметку администратора о клиенте.
func (s *Storage) AddAuditNote(ctx context.Context, note models.AuditNote) (int64, error) {
	const op = "storage.AddAuditNote"

	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO client_notes (client_id, author, text, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		note.ClientID, note.Author, note.Text, note.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListAuditNotes возвращает заметки клиента, новые первыми.
func (s *Storage) ListAuditNotes(ctx context.Context, clientID int64) ([]models.AuditNote, error) {
	const op = "storage.ListAuditNotes"

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, client_id, author, text, created_at
		   FROM client_notes
		  WHERE client_id = $1
		  ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.AuditNote
	for rows.Next() {
		var n models.AuditNote
		if err := rows.Scan(&n.ID, &n.ClientID, &n.Author, &n.Text, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
