// Package deps собирает зависимости приложений: хранилище клиентов, журнал
// отметок, шлюз уведомлений и сервисы поверх них.
package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/gym-lifecycle/internal/cache"
	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/push"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/smtp"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lifecycle"
	"github.com/magabrotheeeer/gym-lifecycle/internal/metrics"
	"github.com/magabrotheeeer/gym-lifecycle/internal/migrations"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/account"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/payment"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/reconciler"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/sender"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage/memory"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage/repository"
)

// Драйверы хранилища и режимы доставки уведомлений.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ModeDirect = "direct"
	ModeQueue  = "queue"
)

// Store: хранилище, которое нужно всем сервисам.
type Store interface {
	reconciler.ClientStore
	account.ClientStore
}

// Ledger: журнал отметок для напоминаний и вебхуков.
type Ledger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Checker проверяет доступность внешней зависимости.
type Checker func(ctx context.Context) error

// Deps: собранные зависимости одного процесса.
type Deps struct {
	Store    Store
	Ledger   Ledger
	Gateway  reconciler.Gateway
	Metrics  *metrics.Metrics
	Machine  *lifecycle.Machine
	JWTMaker *jwt.MakerImpl

	Reconciler *reconciler.Service
	Accounts   *account.Service
	Payments   *payment.Service

	// Checks: проверки для /health по имени зависимости.
	Checks map[string]Checker

	log     *slog.Logger
	closers []func() error
}

// Build открывает хранилище, журнал и шлюз по конфигурации и создаёт сервисы.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*Deps, error) {
	const op = "deps.Build"

	loc, err := cfg.JobsLocation()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d := &Deps{
		Metrics:  metrics.New(reg),
		Machine:  lifecycle.NewMachine(loc),
		JWTMaker: jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Checks:   make(map[string]Checker),
		log:      log,
	}

	if err := d.openStore(ctx, cfg); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := d.openLedger(ctx, cfg); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := d.openGateway(ctx, cfg); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d.Reconciler = reconciler.New(d.Store, d.Gateway, d.Ledger, d.Machine, d.Metrics, log, reconciler.Options{
		Concurrency: cfg.Jobs.Concurrency,
		Dedup:       cfg.Reminders.Dedup,
		DedupTTL:    cfg.Reminders.DedupTTL,
	})
	d.Accounts = account.New(d.Store, d.Machine, d.JWTMaker, d.Gateway, log, account.Options{
		ResetTTL: cfg.PasswordReset.ResetTTL,
		LinkBase: cfg.PasswordReset.LinkBase,
	})
	d.Payments = payment.New(d.Accounts, d.Ledger, log, payment.Options{
		Secret:    cfg.Payments.WebhookSecret,
		Tolerance: cfg.Payments.Tolerance,
		EventTTL:  cfg.Payments.EventTTL,
	})
	return d, nil
}

func (d *Deps) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case DriverPostgres:
		st, err := repository.New(cfg.StorageConnectionString)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, st.Close)
		if cfg.MigrationsPath != "" {
			if err := migrations.Run(st.DB, cfg.MigrationsPath); err != nil {
				return err
			}
		}
		if err := repository.WaitReady(ctx, st, 10, 3*time.Second); err != nil {
			return err
		}
		d.Store = st
		d.Checks["postgres"] = st.DB.PingContext
	case DriverMemory:
		d.log.Warn("using in-memory client store, data is lost on restart")
		d.Store = memory.New()
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

func (d *Deps) openLedger(ctx context.Context, cfg *config.Config) error {
	if cfg.AddressRedis == "" {
		if cfg.Reminders.Dedup {
			d.log.Warn("reminder de-duplication requested without redis, reminders will repeat")
		}
		d.Ledger = cache.NoopLedger{}
		return nil
	}
	c, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, c.Close)
	d.Ledger = c
	d.Checks["redis"] = func(ctx context.Context) error {
		return c.Db.Ping(ctx).Err()
	}
	return nil
}

func (d *Deps) openGateway(ctx context.Context, cfg *config.Config) error {
	switch cfg.Notifications.Mode {
	case ModeDirect, "":
		d.Gateway = NewSender(cfg, d.log)
	case ModeQueue:
		conn, ch, err := OpenQueue(ctx, cfg)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, conn.Close, ch.Close)
		d.Gateway = sender.NewPublisher(ch, d.log)
	default:
		return fmt.Errorf("unknown notifications mode %q", cfg.Notifications.Mode)
	}
	return nil
}

// NewSender создаёт сервис прямой доставки через SMTP и Expo.
func NewSender(cfg *config.Config, log *slog.Logger) *sender.Service {
	return sender.NewService(smtp.NewTransport(cfg.SMTP, log), push.NewClient(cfg.Push), log)
}

// OpenQueue подключается к RabbitMQ и объявляет очереди уведомлений.
func OpenQueue(ctx context.Context, cfg *config.Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Prefetch, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Close освобождает ресурсы в порядке, обратном открытию.
func (d *Deps) Close() {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		d.log.Error("failed to close resources", sl.Err(err))
	}
}

// Job: задача сверки с расписанием.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context, now time.Time) (any, error)
}

// Jobs возвращает четыре задачи сверки с расписаниями из конфигурации.
func (d *Deps) Jobs(s config.Schedules) []Job {
	return []Job{
		{
			Name:     reconciler.JobPauses,
			Schedule: s.Pauses,
			Run: func(ctx context.Context, now time.Time) (any, error) {
				return d.Reconciler.ReconcileExpiredPauses(ctx, now)
			},
		},
		{
			Name:     reconciler.JobRemindersPush,
			Schedule: s.RemindersPush,
			Run: func(ctx context.Context, now time.Time) (any, error) {
				return d.Reconciler.ReconcileExpiringSubscriptionsPush(ctx, now)
			},
		},
		{
			Name:     reconciler.JobRemindersEmail,
			Schedule: s.RemindersEmail,
			Run: func(ctx context.Context, now time.Time) (any, error) {
				return d.Reconciler.ReconcileExpiringSubscriptionsEmail(ctx, now)
			},
		},
		{
			Name:     reconciler.JobSweep,
			Schedule: s.Sweep,
			Run: func(ctx context.Context, now time.Time) (any, error) {
				return d.Reconciler.SweepResetTokens(ctx, now)
			},
		},
	}
}
