package repository

import (
	"fmt"
	"strings"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// clientColumns: порядок колонок, который ожидает scanClient.
const clientColumns = `id, email, password_hash, active, plan, expiry,
	pause_active, pause_start, pause_end, pause_days_total, pause_days_used,
	status, ban_start, ban_end, ban_reason, push_token, push_enabled,
	created_at, last_access`

// queryBuilder собирает фрагменты SQL с позиционными параметрами $n.
type queryBuilder struct {
	parts []string
	args  []any
	next  int
}

func newQueryBuilder(firstArg int) *queryBuilder {
	return &queryBuilder{next: firstArg}
}

func (b *queryBuilder) add(format string, value any) {
	b.parts = append(b.parts, fmt.Sprintf(format, b.next))
	b.args = append(b.args, value)
	b.next++
}

func (b *queryBuilder) raw(fragment string) {
	b.parts = append(b.parts, fragment)
}

// whereClause переводит фильтр в условия, объединённые через AND.
// Возвращает пустую строку, если фильтр пуст.
func whereClause(f models.ClientFilter, firstArg int) (string, []any) {
	b := newQueryBuilder(firstArg)
	if f.Email != "" {
		b.add("lower(email) = lower($%d)", f.Email)
	}
	if f.Status != nil {
		b.add("status = $%d", string(*f.Status))
	}
	if f.SubscriptionActive != nil {
		b.add("active = $%d", *f.SubscriptionActive)
	}
	if f.PauseActive != nil {
		b.add("pause_active = $%d", *f.PauseActive)
	}
	if f.PushDeliverable {
		b.raw("push_enabled AND push_token IS NOT NULL AND push_token <> ''")
	}
	if f.ExpiryBefore != nil {
		b.add("expiry < $%d", *f.ExpiryBefore)
	}
	if f.ExpiryFrom != nil {
		b.add("expiry >= $%d", *f.ExpiryFrom)
	}
	if f.ExpiryTo != nil {
		b.add("expiry < $%d", *f.ExpiryTo)
	}
	if f.PauseEndBefore != nil {
		b.add("pause_end < $%d", *f.PauseEndBefore)
	}
	if f.BanEndBefore != nil {
		b.add("ban_end < $%d", *f.BanEndBefore)
	}
	return strings.Join(b.parts, " AND "), b.args
}

// setClause переводит патч в список присваиваний для UPDATE.
func setClause(p models.ClientPatch, firstArg int) (string, []any) {
	b := newQueryBuilder(firstArg)
	// сброс не должен повторно присваивать колонку, заданную патчем явно
	if p.ClearPause {
		clearUnset(b, "pause_active = false", p.PauseActive != nil)
		clearUnset(b, "pause_start = NULL", p.PauseStart != nil)
		clearUnset(b, "pause_end = NULL", p.PauseEnd != nil)
	}
	if p.ClearBan {
		clearUnset(b, "ban_start = NULL", p.BanStart != nil)
		clearUnset(b, "ban_end = NULL", p.BanEnd != nil)
		clearUnset(b, "ban_reason = NULL", p.BanReason != nil)
	}
	if p.Status != nil {
		b.add("status = $%d", string(*p.Status))
	}
	if p.BanStart != nil {
		b.add("ban_start = $%d", *p.BanStart)
	}
	if p.BanEnd != nil {
		b.add("ban_end = $%d", *p.BanEnd)
	}
	if p.BanReason != nil {
		b.add("ban_reason = $%d", *p.BanReason)
	}
	if p.Active != nil {
		b.add("active = $%d", *p.Active)
	}
	if p.Plan != nil {
		b.add("plan = $%d", *p.Plan)
	}
	if p.Expiry != nil {
		b.add("expiry = $%d", *p.Expiry)
	}
	if p.PauseActive != nil {
		b.add("pause_active = $%d", *p.PauseActive)
	}
	if p.PauseStart != nil {
		b.add("pause_start = $%d", *p.PauseStart)
	}
	if p.PauseEnd != nil {
		b.add("pause_end = $%d", *p.PauseEnd)
	}
	if p.PauseDaysTotal != nil {
		b.add("pause_days_total = $%d", *p.PauseDaysTotal)
	}
	if p.PauseDaysUsed != nil {
		b.add("pause_days_used = $%d", *p.PauseDaysUsed)
	}
	if p.PasswordHash != nil {
		b.add("password_hash = $%d", *p.PasswordHash)
	}
	if p.LastAccess != nil {
		b.add("last_access = $%d", *p.LastAccess)
	}
	return strings.Join(b.parts, ", "), b.args
}

func clearUnset(b *queryBuilder, fragment string, set bool) {
	if !set {
		b.raw(fragment)
	}
}
