// Package scheduler запускает задачи сверки по cron-расписанию внутри процесса.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/gym-lifecycle/internal/app/deps"
	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
)

// App представляет приложение планировщика.
type App struct {
	cron    *cron.Cron
	deps    *deps.Deps
	logger  *slog.Logger
	baseCtx context.Context
	clock   func() time.Time
}

// New собирает зависимости и регистрирует задачи.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	d, err := deps.Build(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.JobsLocation()
	if err != nil {
		d.Close()
		return nil, err
	}
	a, err := newApp(d, d.Jobs(cfg.Jobs.Schedules), loc, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	return a, nil
}

func newApp(d *deps.Deps, jobs []deps.Job, loc *time.Location, logger *slog.Logger) (*App, error) {
	const op = "scheduler.New"

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	a := &App{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		deps:    d,
		logger:  logger,
		baseCtx: context.Background(),
		clock:   time.Now,
	}

	for _, job := range jobs {
		if job.Schedule == "" {
			logger.Info("job disabled", slog.String("job", job.Name))
			continue
		}
		if _, err := a.cron.AddFunc(job.Schedule, a.trigger(job)); err != nil {
			return nil, fmt.Errorf("%s: job %s: %w", op, job.Name, err)
		}
		logger.Info("scheduled job", slog.String("job", job.Name), slog.String("schedule", job.Schedule))
	}
	return a, nil
}

// trigger возвращает функцию запуска задачи для cron.
// Итоги и ошибки задачи логирует сам сервис сверки.
func (a *App) trigger(job deps.Job) func() {
	return func() {
		if _, err := job.Run(a.baseCtx, a.clock()); err != nil {
			a.logger.Error("scheduled job failed", slog.String("job", job.Name), sl.Err(err))
		}
	}
}

// Run запускает планировщик и ждёт отмены ctx.
// При остановке дожидается завершения уже идущих задач.
func (a *App) Run(ctx context.Context) error {
	a.baseCtx = ctx
	a.cron.Start()

	<-ctx.Done()
	a.logger.Info("shutting down scheduler")

	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(time.Minute):
		a.logger.Warn("scheduled jobs still running after shutdown timeout")
	}

	if a.deps != nil {
		a.deps.Close()
	}
	return nil
}
