// Package sender запускает потребителя очередей уведомлений: сообщения,
// опубликованные задачами сверки в режиме queue, доставляются через SMTP и Expo.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/gym-lifecycle/internal/app/deps"
	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	senderservice "github.com/magabrotheeeer/gym-lifecycle/internal/services/sender"
)

// App представляет приложение отправителя.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	workers       int
	logger        *slog.Logger
}

// New подключается к RabbitMQ и создаёт сервис доставки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, ch, err := deps.OpenQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.RabbitMQ.Prefetch
	if workers < 1 {
		workers = 1
	}

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: deps.NewSender(cfg, logger),
		workers:       workers,
		logger:        logger,
	}, nil
}

// Run обрабатывает очереди email и push до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range rabbitmq.NotificationQueues() {
		g.Go(func() error {
			a.logger.Info("consuming queue", slog.String("queue", q.QueueName))
			return rabbitmq.ConsumeMessages(gctx, a.ch, q.QueueName, a.workers, a.logger, a.senderService.HandleQueued)
		})
	}

	err := g.Wait()
	if err != nil {
		a.logger.Error("consumer stopped with error", sl.Err(err))
	}
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return err
}
