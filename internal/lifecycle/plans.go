package lifecycle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownPlan возвращается для нераспознанной метки тарифа.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan: тариф абонемента.
type Plan struct {
	Label  string
	Months int
}

var namedPlans = map[string]int{
	"monthly":    1,
	"quarterly":  3,
	"semiannual": 6,
	"annual":     12,
}

// ParsePlan распознаёт метку тарифа: именованную ("annual") или вида "6m".
func ParsePlan(label string) (Plan, error) {
	const op = "lifecycle.ParsePlan"
	l := strings.ToLower(strings.TrimSpace(label))
	if months, ok := namedPlans[l]; ok {
		return Plan{Label: l, Months: months}, nil
	}
	if n, ok := strings.CutSuffix(l, "m"); ok {
		months, err := strconv.Atoi(n)
		if err == nil && months > 0 && months <= 36 {
			return Plan{Label: l, Months: months}, nil
		}
	}
	return Plan{}, fmt.Errorf("%s: %w: %q", op, ErrUnknownPlan, label)
}

// PauseDaysForPlan возвращает количество дней паузы, положенных тарифу.
func PauseDaysForPlan(months int) int {
	switch {
	case months >= 12:
		return 30
	case months >= 6:
		return 14
	case months >= 3:
		return 7
	default:
		return 0
	}
}

// PauseDays возвращает количество дней паузы для тарифа.
func (p Plan) PauseDays() int {
	return PauseDaysForPlan(p.Months)
}
