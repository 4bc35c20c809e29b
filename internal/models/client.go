// Package models содержит доменные структуры движка жизненного цикла клиента:
// клиента спортзала, токен сброса пароля, директивы уведомлений и аудит-заметки.
package models

import (
	"fmt"
	"strings"
	"time"
)

// AccountStatus: статус учётной записи клиента.
type AccountStatus string

const (
	// StatusActive: учётная запись активна.
	StatusActive AccountStatus = "active"
	// StatusSuspended: учётная запись приостановлена администратором.
	StatusSuspended AccountStatus = "suspended"
	// StatusBanned: клиент заблокирован (временно или навсегда).
	StatusBanned AccountStatus = "banned"
)

// Valid сообщает, является ли статус одним из известных значений.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusBanned:
		return true
	default:
		return false
	}
}

// ParseAccountStatus преобразует строку из хранилища в AccountStatus.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	s := AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown account status %q", raw)
	}
	return s, nil
}

// Client представляет клиента спортзала вместе с состоянием подписки,
// паузы, блокировки и каналов уведомлений.
type Client struct {
	ID           int64
	Email        string
	PasswordHash *string // nil, пока клиент не задал пароль при первом входе

	Active bool       // подписка активна
	Plan   string     // метка тарифа, например "annual"
	Expiry *time.Time // nil, пока подписка не активирована

	PauseActive    bool
	PauseStart     *time.Time
	PauseEnd       *time.Time
	PauseDaysTotal int
	PauseDaysUsed  int

	Status    AccountStatus
	BanStart  *time.Time
	BanEnd    *time.Time // nil при Status == banned означает бессрочную блокировку
	BanReason *string

	PushToken   *string
	PushEnabled bool

	CreatedAt  time.Time
	LastAccess *time.Time
}

// PushDeliverable сообщает, можно ли отправить клиенту push-уведомление.
func (c *Client) PushDeliverable() bool {
	return c.PushEnabled && c.PushToken != nil && *c.PushToken != ""
}

// PauseDaysLeft возвращает количество неиспользованных дней паузы.
func (c *Client) PauseDaysLeft() int {
	left := c.PauseDaysTotal - c.PauseDaysUsed
	if left < 0 {
		return 0
	}
	return left
}

// AuditNote: заметка администратора о действии над клиентом.
type AuditNote struct {
	ID        int64
	ClientID  int64
	Author    string
	Text      string
	CreatedAt time.Time
}
