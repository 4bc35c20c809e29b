package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/push"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// QueuedMessage: сообщение очереди notifications.
type QueuedMessage struct {
	Channel    models.Channel     `json:"channel"`
	Recipients []string           `json:"recipients"`
	Template   models.TemplateKey `json:"template,omitempty"`
	Params     map[string]string  `json:"params,omitempty"`
	Push       *PushMessage       `json:"push,omitempty"`
}

// Publisher ставит уведомления в очередь вместо прямой доставки.
// Delivered в PushReport означает «принято брокером».
type Publisher struct {
	mu  sync.Mutex
	ch  rabbitmq.Channel
	log *slog.Logger
}

// NewPublisher создаёт Publisher поверх настроенного канала.
func NewPublisher(ch rabbitmq.Channel, log *slog.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

func (p *Publisher) publish(msg QueuedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, string(msg.Channel), msg)
}

// SendEmail публикует email-директиву.
func (p *Publisher) SendEmail(_ context.Context, to string, tpl models.TemplateKey, params map[string]string) error {
	err := p.publish(QueuedMessage{
		Channel:    models.ChannelEmail,
		Recipients: []string{to},
		Template:   tpl,
		Params:     params,
	})
	if err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Recipient: to, Err: err}
	}
	return nil
}

// SendPush публикует push для одного токена.
func (p *Publisher) SendPush(_ context.Context, token string, msg PushMessage) (PushReport, error) {
	err := p.publish(QueuedMessage{
		Channel:    models.ChannelPush,
		Recipients: []string{token},
		Push:       &msg,
	})
	if err != nil {
		return PushReport{Failed: 1}, &DeliveryError{Channel: models.ChannelPush, Recipient: token, Err: err}
	}
	return PushReport{Delivered: 1}, nil
}

// BroadcastPush публикует рассылку пачками по push.MaxBatch получателей.
func (p *Publisher) BroadcastPush(_ context.Context, tokens []string, msg PushMessage) (PushReport, error) {
	const op = "sender.Publisher.BroadcastPush"
	var (
		report  PushReport
		lastErr error
	)
	for start := 0; start < len(tokens); start += push.MaxBatch {
		end := min(start+push.MaxBatch, len(tokens))
		err := p.publish(QueuedMessage{
			Channel:    models.ChannelPush,
			Recipients: tokens[start:end],
			Push:       &msg,
		})
		if err != nil {
			p.log.Warn("failed to enqueue push batch", slog.String("op", op), slog.Int("batch_start", start), sl.Err(err))
			report.Failed += end - start
			lastErr = err
			continue
		}
		report.Delivered += end - start
	}
	if lastErr != nil {
		return report, fmt.Errorf("%s: %w", op, lastErr)
	}
	return report, nil
}

// HandleQueued доставляет сообщение из очереди через Service.
// Ошибки доставки только логируются: сообщение подтверждается и не повторяется.
// Нераспознанное сообщение возвращает ошибку и отбрасывается потребителем.
func (s *Service) HandleQueued(ctx context.Context, body []byte) error {
	const op = "sender.HandleQueued"
	log := s.log.With(slog.String("op", op))

	var msg QueuedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("%s: message without recipients", op)
	}

	switch msg.Channel {
	case models.ChannelEmail:
		for _, to := range msg.Recipients {
			if err := s.SendEmail(ctx, to, msg.Template, msg.Params); err != nil {
				log.Warn("email delivery failed", slog.String("template", string(msg.Template)), sl.Err(err))
			}
		}
	case models.ChannelPush:
		pm := PushMessage{}
		switch {
		case msg.Push != nil:
			pm = *msg.Push
		case msg.Template != "":
			var err error
			if pm, err = PushFor(msg.Template, msg.Params); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		default:
			return fmt.Errorf("%s: push message without content", op)
		}
		report, err := s.BroadcastPush(ctx, msg.Recipients, pm)
		if err != nil {
			log.Warn("push delivery failed", slog.Int("failed", report.Failed), sl.Err(err))
		}
	default:
		return fmt.Errorf("%s: unknown channel %q", op, msg.Channel)
	}
	return nil
}
