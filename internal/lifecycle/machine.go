// Package lifecycle реализует машину состояний клиента: по записи клиента и
// текущему моменту решает, какой переход применить и какие уведомления отправить.
// Пакет не выполняет ввод-вывод.
package lifecycle

import (
	"strconv"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// Rule: правило машины состояний. Правила проверяются в порядке приоритета.
type Rule uint8

const (
	RulePauseExpiry Rule = 1 << iota
	RulePauseEndingSoon
	RuleBanExpiry
	RuleSubscriptionReminder
	RuleSubscriptionExpiry

	RuleNone Rule = 0
	AllRules      = RulePauseExpiry | RulePauseEndingSoon | RuleBanExpiry |
		RuleSubscriptionReminder | RuleSubscriptionExpiry
)

var priority = []Rule{
	RulePauseExpiry,
	RulePauseEndingSoon,
	RuleBanExpiry,
	RuleSubscriptionReminder,
	RuleSubscriptionExpiry,
}

func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "none"
	case RulePauseExpiry:
		return "pause_expiry"
	case RulePauseEndingSoon:
		return "pause_ending_soon"
	case RuleBanExpiry:
		return "ban_expiry"
	case RuleSubscriptionReminder:
		return "subscription_reminder"
	case RuleSubscriptionExpiry:
		return "subscription_expiry"
	default:
		return "rule_set"
	}
}

// ReminderHorizons: за сколько календарных дней до окончания подписки шлются напоминания.
var ReminderHorizons = []int{7, 3, 1}

// PauseReminderWindow: окно, в котором шлётся напоминание о скором окончании паузы.
const PauseReminderWindow = 24 * time.Hour

// Decision: результат оценки клиента.
type Decision struct {
	Rule       Rule
	Transition Transition
	Directives []models.Directive
	Horizon    int // для напоминаний о подписке: 7, 3 или 1
}

// Empty сообщает, что ни одно правило не сработало.
func (d Decision) Empty() bool {
	return d.Rule == RuleNone
}

// Machine: машина состояний клиента.
type Machine struct {
	loc *time.Location
}

// NewMachine создаёт машину, считающую календарные дни в поясе loc.
func NewMachine(loc *time.Location) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{loc: loc}
}

// Location возвращает часовой пояс машины.
func (m *Machine) Location() *time.Location {
	return m.loc
}

// Evaluate проверяет все правила и возвращает решение по первому сработавшему.
func (m *Machine) Evaluate(c *models.Client, now time.Time) Decision {
	return m.EvaluateRules(c, now, AllRules)
}

// EvaluateRules проверяет только правила из набора rules, сохраняя порядок приоритета.
// Срабатывает не более одного правила: остальные будут проверены при следующем проходе.
func (m *Machine) EvaluateRules(c *models.Client, now time.Time, rules Rule) Decision {
	if c == nil {
		return Decision{}
	}
	for _, rule := range priority {
		if rules&rule == 0 {
			continue
		}
		var (
			d  Decision
			ok bool
		)
		switch rule {
		case RulePauseExpiry:
			d, ok = m.pauseExpiry(c, now)
		case RulePauseEndingSoon:
			d, ok = m.pauseEndingSoon(c, now)
		case RuleBanExpiry:
			d, ok = m.banExpiry(c, now)
		case RuleSubscriptionReminder:
			d, ok = m.subscriptionReminder(c, now)
		case RuleSubscriptionExpiry:
			d, ok = m.subscriptionExpiry(c, now)
		}
		if ok {
			d.Rule = rule
			return d
		}
	}
	return Decision{}
}

func (m *Machine) pauseExpiry(c *models.Client, now time.Time) (Decision, bool) {
	if !c.PauseActive || c.PauseEnd == nil || !c.PauseEnd.Before(now) {
		return Decision{}, false
	}
	params := map[string]string{"pause_end": m.formatDate(*c.PauseEnd)}
	return Decision{
		Transition: Transition{Kind: TransitionEndPause, ClientID: c.ID},
		Directives: m.bothChannels(c, models.TemplatePauseEnded, params),
	}, true
}

func (m *Machine) pauseEndingSoon(c *models.Client, now time.Time) (Decision, bool) {
	if !c.PauseActive || c.PauseEnd == nil {
		return Decision{}, false
	}
	if c.PauseEnd.Before(now) || !c.PauseEnd.Before(now.Add(PauseReminderWindow)) {
		return Decision{}, false
	}
	// Без push-токена напоминать нечем, правило не срабатывает.
	if !c.PushDeliverable() {
		return Decision{}, false
	}
	return Decision{Directives: []models.Directive{{
		ClientID:  c.ID,
		Recipient: *c.PushToken,
		Channel:   models.ChannelPush,
		Template:  models.TemplatePauseEnding,
		Params:    map[string]string{"pause_end": m.formatDate(*c.PauseEnd)},
	}}}, true
}

func (m *Machine) banExpiry(c *models.Client, now time.Time) (Decision, bool) {
	switch c.Status {
	case models.StatusBanned:
		if c.BanEnd == nil || !c.BanEnd.Before(now) {
			return Decision{}, false
		}
		return Decision{Transition: Transition{Kind: TransitionLiftBan, ClientID: c.ID}}, true
	case models.StatusActive, models.StatusSuspended:
		return Decision{}, false
	default:
		return Decision{}, false
	}
}

func (m *Machine) subscriptionReminder(c *models.Client, now time.Time) (Decision, bool) {
	if !m.reminderEligible(c) {
		return Decision{}, false
	}
	days := DaysUntil(now, *c.Expiry, m.loc)
	for _, h := range ReminderHorizons {
		if days != h {
			continue
		}
		params := map[string]string{
			"days":   strconv.Itoa(h),
			"expiry": m.formatDate(*c.Expiry),
			"plan":   c.Plan,
		}
		return Decision{
			Directives: m.bothChannels(c, models.TemplateSubscriptionExpiring, params),
			Horizon:    h,
		}, true
	}
	return Decision{}, false
}

func (m *Machine) reminderEligible(c *models.Client) bool {
	switch c.Status {
	case models.StatusActive:
		return c.Active && !c.PauseActive && c.Expiry != nil
	case models.StatusSuspended, models.StatusBanned:
		return false
	default:
		return false
	}
}

func (m *Machine) subscriptionExpiry(c *models.Client, now time.Time) (Decision, bool) {
	if !c.Active || c.PauseActive || c.Expiry == nil || !c.Expiry.Before(now) {
		return Decision{}, false
	}
	return Decision{Transition: Transition{Kind: TransitionExpireSubscription, ClientID: c.ID}}, true
}

// bothChannels строит email-директиву и, если клиент принимает push, push-директиву.
func (m *Machine) bothChannels(c *models.Client, tpl models.TemplateKey, params map[string]string) []models.Directive {
	var out []models.Directive
	if c.Email != "" {
		out = append(out, models.Directive{
			ClientID:  c.ID,
			Recipient: c.Email,
			Channel:   models.ChannelEmail,
			Template:  tpl,
			Params:    params,
		})
	}
	if c.PushDeliverable() {
		out = append(out, models.Directive{
			ClientID:  c.ID,
			Recipient: *c.PushToken,
			Channel:   models.ChannelPush,
			Template:  tpl,
			Params:    params,
		})
	}
	return out
}

func (m *Machine) formatDate(t time.Time) string {
	return t.In(m.loc).Format("02/01/2006")
}
