package models

import "time"

// ResetToken: одноразовый токен сброса пароля.
// Хранится только хеш секрета, сам секрет уходит клиенту письмом.
type ResetToken struct {
	ID        int64
	ClientID  int64
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Valid сообщает, может ли токен быть использован в момент now.
func (t *ResetToken) Valid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// Stale сообщает, подлежит ли токен удалению при очистке.
func (t *ResetToken) Stale(now time.Time) bool {
	return t.Used || t.ExpiresAt.Before(now)
}
