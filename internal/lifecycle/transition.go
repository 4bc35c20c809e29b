package lifecycle

import (
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// TransitionKind: вид перехода состояния клиента.
type TransitionKind int

const (
	// TransitionNone: переход не требуется.
	TransitionNone TransitionKind = iota
	// TransitionEndPause: завершение истёкшей паузы.
	TransitionEndPause
	// TransitionLiftBan: снятие истёкшей временной блокировки.
	TransitionLiftBan
	// TransitionExpireSubscription: деактивация истёкшей подписки.
	TransitionExpireSubscription
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionNone:
		return "none"
	case TransitionEndPause:
		return "end_pause"
	case TransitionLiftBan:
		return "lift_ban"
	case TransitionExpireSubscription:
		return "expire_subscription"
	default:
		return "unknown"
	}
}

// Transition: решение машины состояний изменить запись клиента.
type Transition struct {
	Kind     TransitionKind
	ClientID int64
}

// None сообщает, что переход пустой.
func (t Transition) None() bool {
	return t.Kind == TransitionNone
}

// Guard возвращает условие, которое хранилище перепроверяет в момент записи.
// Если условие уже не выполняется, запись считается применённой ранее.
func (t Transition) Guard(now time.Time) models.ClientFilter {
	yes, no := true, false
	switch t.Kind {
	case TransitionEndPause:
		return models.ClientFilter{PauseActive: &yes, PauseEndBefore: &now}
	case TransitionLiftBan:
		banned := models.StatusBanned
		return models.ClientFilter{Status: &banned, BanEndBefore: &now}
	case TransitionExpireSubscription:
		return models.ClientFilter{SubscriptionActive: &yes, PauseActive: &no, ExpiryBefore: &now}
	case TransitionNone:
		return models.ClientFilter{}
	default:
		return models.ClientFilter{}
	}
}

// Patch возвращает изменения, которые переход вносит в запись клиента.
func (t Transition) Patch() models.ClientPatch {
	switch t.Kind {
	case TransitionEndPause:
		return models.ClientPatch{ClearPause: true}
	case TransitionLiftBan:
		active := models.StatusActive
		return models.ClientPatch{Status: &active, ClearBan: true}
	case TransitionExpireSubscription:
		inactive := false
		return models.ClientPatch{Active: &inactive}
	case TransitionNone:
		return models.ClientPatch{}
	default:
		return models.ClientPatch{}
	}
}
