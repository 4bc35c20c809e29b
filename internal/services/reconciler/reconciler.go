// Package reconciler выполняет задачи сверки состояния клиентов: завершает
// паузы, снимает истёкшие блокировки, деактивирует просроченные подписки,
// рассылает напоминания и чистит токены сброса пароля.
//
// Каждая задача принимает только текущий момент now, безопасна при
// повторном и параллельном запуске и не откатывает переход из-за ошибки доставки.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lifecycle"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/metrics"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/sender"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// ClientStore: хранилище клиентов, нужное задачам.
type ClientStore interface {
	FindClients(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	UpdateClient(ctx context.Context, id int64, patch models.ClientPatch, guard models.ClientFilter) (*models.Client, error)
	DeleteStaleResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Gateway: шлюз уведомлений.
type Gateway interface {
	SendEmail(ctx context.Context, to string, tpl models.TemplateKey, params map[string]string) error
	SendPush(ctx context.Context, token string, msg sender.PushMessage) (sender.PushReport, error)
	BroadcastPush(ctx context.Context, tokens []string, msg sender.PushMessage) (sender.PushReport, error)
}

// Ledger отмечает уже отправленные напоминания.
type Ledger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Options: настройки задач.
type Options struct {
	// Concurrency: сколько записей рассылается параллельно.
	Concurrency int
	// Dedup включает подавление повторных напоминаний в пределах дня.
	Dedup    bool
	DedupTTL time.Duration
}

// Имена задач для логов и метрик.
const (
	JobPauses         = "pauses"
	JobRemindersPush  = "reminders_push"
	JobRemindersEmail = "reminders_email"
	JobSweep          = "sweep"
	JobClient         = "client"
	JobBroadcast      = "broadcast"
)

// Service: исполнитель задач сверки.
type Service struct {
	store    ClientStore
	gateway  Gateway
	ledger   Ledger
	machine  *lifecycle.Machine
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options
	handlers map[models.Channel]func(context.Context, models.Directive) error
}

// New создаёт Service. ledger используется только при opts.Dedup.
func New(store ClientStore, gateway Gateway, ledger Ledger, machine *lifecycle.Machine, m *metrics.Metrics, log *slog.Logger, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 48 * time.Hour
	}
	s := &Service{
		store:   store,
		gateway: gateway,
		ledger:  ledger,
		machine: machine,
		metrics: m,
		log:     log,
		opts:    opts,
	}
	s.handlers = map[models.Channel]func(context.Context, models.Directive) error{
		models.ChannelEmail: s.sendEmail,
		models.ChannelPush:  s.sendPush,
	}
	return s
}

func (s *Service) sendEmail(ctx context.Context, d models.Directive) error {
	return s.gateway.SendEmail(ctx, d.Recipient, d.Template, d.Params)
}

func (s *Service) sendPush(ctx context.Context, d models.Directive) error {
	msg, err := sender.PushFor(d.Template, d.Params)
	if err != nil {
		return err
	}
	_, err = s.gateway.SendPush(ctx, d.Recipient, msg)
	return err
}

type applyOutcome int

const (
	applied applyOutcome = iota
	conflicted
	failed
)

// apply записывает переход условной записью.
// Несовпадение guard означает, что переход уже применён другим запуском.
func (s *Service) apply(ctx context.Context, log *slog.Logger, tr lifecycle.Transition, now time.Time) applyOutcome {
	_, err := s.store.UpdateClient(ctx, tr.ClientID, tr.Patch(), tr.Guard(now))
	switch {
	case err == nil:
		s.metrics.Transition(tr.Kind.String())
		log.Info("transition applied", sl.ClientID(tr.ClientID), slog.String("transition", tr.Kind.String()))
		return applied
	case errors.Is(err, storage.ErrConflict):
		log.Debug("transition skipped, state changed", sl.ClientID(tr.ClientID), slog.String("transition", tr.Kind.String()))
		return conflicted
	default:
		log.Error("failed to apply transition", sl.ClientID(tr.ClientID), slog.String("transition", tr.Kind.String()), sl.Err(err))
		return failed
	}
}

func (s *Service) begin(job string, now time.Time) (string, *slog.Logger, time.Time) {
	runID := uuid.NewString()
	log := s.log.With(
		slog.String("job", job),
		slog.String("run_id", runID),
		slog.Time("now", now),
	)
	log.Info("job started")
	return runID, log, time.Now()
}

func (s *Service) finish(job string, log *slog.Logger, started time.Time, err error, attrs ...any) {
	s.metrics.JobFinished(job, time.Since(started).Seconds(), err)
	if err != nil {
		log.Error("job failed", sl.Err(err))
		return
	}
	log.Info("job finished", attrs...)
}
