package models

import (
	"strings"
	"time"
)

// ClientFilter описывает условие выборки клиентов.
// Нулевые поля не участвуют в фильтрации; все заданные условия объединяются через AND.
// Тот же фильтр используется как guard условной записи в хранилище.
type ClientFilter struct {
	Email              string // сравнение без учёта регистра
	Status             *AccountStatus
	SubscriptionActive *bool
	PauseActive        *bool
	PushDeliverable    bool

	ExpiryBefore   *time.Time // Expiry < ExpiryBefore
	ExpiryFrom     *time.Time // Expiry >= ExpiryFrom
	ExpiryTo       *time.Time // Expiry < ExpiryTo
	PauseEndBefore *time.Time // PauseEnd < PauseEndBefore
	BanEndBefore   *time.Time // BanEnd < BanEndBefore
}

// Matches проверяет, удовлетворяет ли клиент фильтру.
func (f ClientFilter) Matches(c *Client) bool {
	if c == nil {
		return false
	}
	if f.Email != "" && !strings.EqualFold(f.Email, c.Email) {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.SubscriptionActive != nil && c.Active != *f.SubscriptionActive {
		return false
	}
	if f.PauseActive != nil && c.PauseActive != *f.PauseActive {
		return false
	}
	if f.PushDeliverable && !c.PushDeliverable() {
		return false
	}
	if f.ExpiryBefore != nil && (c.Expiry == nil || !c.Expiry.Before(*f.ExpiryBefore)) {
		return false
	}
	if f.ExpiryFrom != nil && (c.Expiry == nil || c.Expiry.Before(*f.ExpiryFrom)) {
		return false
	}
	if f.ExpiryTo != nil && (c.Expiry == nil || !c.Expiry.Before(*f.ExpiryTo)) {
		return false
	}
	if f.PauseEndBefore != nil && (c.PauseEnd == nil || !c.PauseEnd.Before(*f.PauseEndBefore)) {
		return false
	}
	if f.BanEndBefore != nil && (c.BanEnd == nil || !c.BanEnd.Before(*f.BanEndBefore)) {
		return false
	}
	return true
}

// ClientPatch описывает частичное обновление клиента.
// Флаги ClearPause и ClearBan обнуляют соответствующие поля и применяются
// раньше остальных полей патча.
type ClientPatch struct {
	ClearPause bool
	ClearBan   bool

	Status         *AccountStatus
	BanStart       *time.Time
	BanEnd         *time.Time
	BanReason      *string
	Active         *bool
	Plan           *string
	Expiry         *time.Time
	PauseActive    *bool
	PauseStart     *time.Time
	PauseEnd       *time.Time
	PauseDaysTotal *int
	PauseDaysUsed  *int
	PasswordHash   *string
	LastAccess     *time.Time
}

// Empty сообщает, что патч ничего не меняет.
func (p ClientPatch) Empty() bool {
	return p == ClientPatch{}
}

// ApplyTo применяет патч к клиенту на месте.
func (p ClientPatch) ApplyTo(c *Client) {
	if p.ClearPause {
		c.PauseActive = false
		c.PauseStart = nil
		c.PauseEnd = nil
	}
	if p.ClearBan {
		c.BanStart = nil
		c.BanEnd = nil
		c.BanReason = nil
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.BanStart != nil {
		c.BanStart = timePtr(*p.BanStart)
	}
	if p.BanEnd != nil {
		c.BanEnd = timePtr(*p.BanEnd)
	}
	if p.BanReason != nil {
		reason := *p.BanReason
		c.BanReason = &reason
	}
	if p.Active != nil {
		c.Active = *p.Active
	}
	if p.Plan != nil {
		c.Plan = *p.Plan
	}
	if p.Expiry != nil {
		c.Expiry = timePtr(*p.Expiry)
	}
	if p.PauseActive != nil {
		c.PauseActive = *p.PauseActive
	}
	if p.PauseStart != nil {
		c.PauseStart = timePtr(*p.PauseStart)
	}
	if p.PauseEnd != nil {
		c.PauseEnd = timePtr(*p.PauseEnd)
	}
	if p.PauseDaysTotal != nil {
		c.PauseDaysTotal = *p.PauseDaysTotal
	}
	if p.PauseDaysUsed != nil {
		c.PauseDaysUsed = *p.PauseDaysUsed
	}
	if p.PasswordHash != nil {
		hash := *p.PasswordHash
		c.PasswordHash = &hash
	}
	if p.LastAccess != nil {
		c.LastAccess = timePtr(*p.LastAccess)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
