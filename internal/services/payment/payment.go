// Package payment обрабатывает вебхуки платёжного провайдера и активирует
// подписку после успешной оплаты.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// EventCheckoutCompleted: событие успешной оплаты.
const EventCheckoutCompleted = "checkout.session.completed"

var ErrInvalidEvent = errors.New("invalid webhook event")

// Activator активирует подписку клиента.
type Activator interface {
	Activate(ctx context.Context, id int64, plan string, now time.Time) (*models.Client, error)
}

// Ledger отмечает обработанные события.
type Ledger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Event: конверт события провайдера.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// CheckoutSession: объект события checkout.session.completed.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// Outcome: итог обработки вебхука.
type Outcome string

const (
	OutcomeActivated Outcome = "activated"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Options: настройки проверки вебхуков.
type Options struct {
	Secret    string
	Tolerance time.Duration
	EventTTL  time.Duration
}

// Service обрабатывает вебхуки.
type Service struct {
	activator Activator
	ledger    Ledger
	log       *slog.Logger
	opts      Options
}

// New создаёт Service.
func New(activator Activator, ledger Ledger, log *slog.Logger, opts Options) *Service {
	if opts.EventTTL <= 0 {
		opts.EventTTL = 72 * time.Hour
	}
	return &Service{
		activator: activator,
		ledger:    ledger,
		log:       log,
		opts:      opts,
	}
}

// HandleWebhook проверяет подпись и обрабатывает событие. Повторные события
// с тем же ID отбрасываются. Если активация не удалась, отметка снимается,
// чтобы провайдер мог повторить доставку.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string, now time.Time) (Outcome, error) {
	const op = "payment.HandleWebhook"
	log := s.log.With(slog.String("op", op))

	if err := VerifySignature(s.opts.Secret, payload, signature, now, s.opts.Tolerance); err != nil {
		return "", err
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrInvalidEvent, err)
	}
	if ev.ID == "" {
		return "", fmt.Errorf("%s: %w: missing id", op, ErrInvalidEvent)
	}
	log = log.With(slog.String("event_id", ev.ID), slog.String("type", ev.Type))

	if ev.Type != EventCheckoutCompleted {
		log.Debug("event ignored")
		return OutcomeIgnored, nil
	}

	session := ev.Data.Object
	id, err := strconv.ParseInt(session.Metadata["client_id"], 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("%s: %w: bad client_id", op, ErrInvalidEvent)
	}
	plan := session.Metadata["plan"]
	if plan == "" {
		return "", fmt.Errorf("%s: %w: missing plan", op, ErrInvalidEvent)
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		log.Info("checkout not paid", slog.String("payment_status", session.PaymentStatus))
		return OutcomeIgnored, nil
	}

	key := "stripe:" + ev.ID
	claimed, err := s.ledger.Claim(ctx, key, s.opts.EventTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !claimed {
		log.Info("duplicate event dropped")
		return OutcomeDuplicate, nil
	}

	if _, err := s.activator.Activate(ctx, id, plan, now); err != nil {
		if relErr := s.ledger.Release(ctx, key); relErr != nil {
			log.Error("failed to release event claim", sl.Err(relErr))
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription activated from checkout", sl.ClientID(id), slog.String("plan", plan))
	return OutcomeActivated, nil
}
