package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
)

// Handler обрабатывает тело сообщения. Ошибка с Requeue()==true возвращает
// сообщение в очередь, любая другая отбрасывает его.
type Handler func(ctx context.Context, body []byte) error

// RequeueError помечает ошибку как временную.
type RequeueError struct {
	Err error
}

func (e *RequeueError) Error() string { return e.Err.Error() }
func (e *RequeueError) Unwrap() error { return e.Err }

// ConsumeMessages читает очередь queueName и обрабатывает не более workers
// сообщений одновременно. Возвращает управление, когда ctx отменён или
// канал доставки закрыт, дождавшись незавершённых обработчиков.
func ConsumeMessages(ctx context.Context, ch *amqp.Channel, queueName string, workers int, log *slog.Logger, handler Handler) error {
	const op = "rabbitmq.ConsumeMessages"
	log = log.With(slog.String("op", op), slog.String("queue", queueName))

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				settle(log, d, handler(ctx, d.Body))
			}(d)
		}
	}
}

func settle(log *slog.Logger, d amqp.Delivery, err error) {
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
		return
	}
	var rq *RequeueError
	requeue := errors.As(err, &rq)
	log.Warn("message handling failed", sl.Err(err), slog.Bool("requeue", requeue))
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error("failed to nack message", sl.Err(nackErr))
	}
}
