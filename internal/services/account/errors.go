package account

import (
	"errors"
	"fmt"
	"time"
)

// Коды отказа входа. Стабильны: на них опираются клиенты API.
const (
	CodeBannedPermanent       = "banned_permanent"
	CodeBannedUntil           = "banned_until"
	CodeInactiveAccount       = "inactive_account"
	CodePasswordSetupRequired = "password_setup_required"
)

// GateError: отказ во входе с причиной.
type GateError struct {
	Code   string
	Reason string
	Until  *time.Time
}

func (e *GateError) Error() string {
	if e.Until != nil {
		return fmt.Sprintf("login rejected: %s until %s", e.Code, e.Until.Format(time.RFC3339))
	}
	return "login rejected: " + e.Code
}

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidBan           = errors.New("ban duration must be positive")
	ErrNotBanned            = errors.New("client is not banned")
	ErrSubscriptionInactive = errors.New("subscription is not active")
	ErrAlreadyPaused        = errors.New("pause already active")
	ErrPauseNotAllowed      = errors.New("pause not allowed for this account")
	ErrPauseDaysExceeded    = errors.New("not enough pause days left")
	ErrWeakPassword         = errors.New("password must be at least 8 characters")
	ErrInvalidResetToken    = errors.New("reset token is invalid or expired")
)
