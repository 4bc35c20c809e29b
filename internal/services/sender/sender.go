// Package sender реализует шлюз уведомлений: email через SMTP и push через Expo.
// Service доставляет сразу, Publisher ставит сообщения в очередь RabbitMQ,
// откуда их забирает notification-sender.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/push"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/smtp"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// PushMessage: содержимое push-уведомления.
type PushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushReport: итог отправки push по числу получателей.
type PushReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Add суммирует отчёты.
func (r PushReport) Add(o PushReport) PushReport {
	return PushReport{Delivered: r.Delivered + o.Delivered, Failed: r.Failed + o.Failed}
}

// PushClient отправляет пачку сообщений в Expo.
type PushClient interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

// Service доставляет уведомления напрямую.
type Service struct {
	transport smtp.TransportInterface
	push      PushClient
	log       *slog.Logger
}

// NewService создаёт Service.
func NewService(transport smtp.TransportInterface, pushClient PushClient, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		push:      pushClient,
		log:       log,
	}
}

// SendEmail рендерит шаблон и отправляет письмо.
func (s *Service) SendEmail(ctx context.Context, to string, tpl models.TemplateKey, params map[string]string) error {
	const op = "sender.SendEmail"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rendered, err := Render(tpl, params)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.sendEmail(to, rendered.Subject, rendered.EmailBody); err != nil {
		return &DeliveryError{Channel: models.ChannelEmail, Recipient: to, Err: err}
	}
	s.log.Debug("email sent", slog.String("op", op), slog.String("template", string(tpl)))
	return nil
}

func (s *Service) sendEmail(to, subject, bodyText string) error {
	from := s.transport.From()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.log.Debug("smtp close", sl.Err(err))
		}
	}()

	if err := client.Mail(envelopeAddress(from)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}

// envelopeAddress извлекает адрес из "Имя <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

// SendPush отправляет одно push-уведомление.
func (s *Service) SendPush(ctx context.Context, token string, msg PushMessage) (PushReport, error) {
	const op = "sender.SendPush"
	report, failures, err := s.sendBatch(ctx, []string{token}, msg)
	if err != nil {
		return report, &DeliveryError{Channel: models.ChannelPush, Recipient: token, Err: err}
	}
	if len(failures) > 0 {
		return report, failures[0]
	}
	s.log.Debug("push sent", slog.String("op", op))
	return report, nil
}

// BroadcastPush отправляет сообщение всем токенам пачками по push.MaxBatch.
// Ошибка пачки не прерывает рассылку: её получатели учитываются как Failed.
func (s *Service) BroadcastPush(ctx context.Context, tokens []string, msg PushMessage) (PushReport, error) {
	const op = "sender.BroadcastPush"
	log := s.log.With(slog.String("op", op))

	var (
		total PushReport
		errs  []error
	)
	for start := 0; start < len(tokens); start += push.MaxBatch {
		if err := ctx.Err(); err != nil {
			total.Failed += len(tokens) - start
			errs = append(errs, err)
			break
		}
		end := min(start+push.MaxBatch, len(tokens))
		report, failures, err := s.sendBatch(ctx, tokens[start:end], msg)
		total = total.Add(report)
		if err != nil {
			log.Warn("push batch failed", slog.Int("batch_start", start), sl.Err(err))
			errs = append(errs, err)
		}
		for _, f := range failures {
			errs = append(errs, f)
		}
		log.Info("push batch sent",
			slog.Int("batch_start", start),
			slog.Int("delivered", report.Delivered),
			slog.Int("failed", report.Failed),
		)
	}
	if len(errs) > 0 {
		return total, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return total, nil
}

// sendBatch отправляет одну пачку. Ошибка запроса помечает всю пачку как Failed.
func (s *Service) sendBatch(ctx context.Context, tokens []string, msg PushMessage) (PushReport, []*DeliveryError, error) {
	messages := make([]push.Message, 0, len(tokens))
	var (
		report   PushReport
		failures []*DeliveryError
		sendTo   []string
	)
	for _, token := range tokens {
		if !push.IsExpoToken(token) {
			report.Failed++
			failures = append(failures, &DeliveryError{
				Channel:   models.ChannelPush,
				Recipient: token,
				Err:       errors.New("malformed push token"),
			})
			continue
		}
		sendTo = append(sendTo, token)
		messages = append(messages, push.Message{
			To:    token,
			Title: msg.Title,
			Body:  msg.Body,
			Data:  msg.Data,
			Sound: "default",
		})
	}
	if len(messages) == 0 {
		return report, failures, nil
	}

	tickets, err := s.push.Send(ctx, messages)
	if err != nil {
		report.Failed += len(messages)
		return report, failures, err
	}
	for i, ticket := range tickets {
		if ticket.OK() {
			report.Delivered++
			continue
		}
		report.Failed++
		reason := ticket.Details.Error
		if reason == "" {
			reason = ticket.Message
		}
		failures = append(failures, &DeliveryError{
			Channel:   models.ChannelPush,
			Recipient: sendTo[i],
			Err:       errors.New(reason),
		})
	}
	return report, failures, nil
}
