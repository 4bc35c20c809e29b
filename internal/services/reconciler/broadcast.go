package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/sender"
)

// BroadcastResult: итог Broadcast.
type BroadcastResult struct {
	RunID      string `json:"run_id"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}

// Broadcast рассылает push-сообщение всем активным клиентам с включёнными push.
// Доставка идёт пачками шлюза; неудачные пачки учитываются в Failed.
func (s *Service) Broadcast(ctx context.Context, title, body string, now time.Time) (BroadcastResult, error) {
	const op = "reconciler.Broadcast"
	runID, log, started := s.begin(JobBroadcast, now)
	res := BroadcastResult{RunID: runID}

	msg, err := sender.PushFor(models.TemplateBroadcast, map[string]string{"title": title, "body": body})
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobBroadcast, log, started, err)
		return res, err
	}

	active := models.StatusActive
	clients, err := s.store.FindClients(ctx, models.ClientFilter{Status: &active, PushDeliverable: true})
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobBroadcast, log, started, err)
		return res, err
	}

	tokens := make([]string, 0, len(clients))
	for _, c := range clients {
		tokens = append(tokens, *c.PushToken)
	}
	res.Recipients = len(tokens)

	report, err := s.gateway.BroadcastPush(ctx, tokens, msg)
	res.Delivered, res.Failed = report.Delivered, report.Failed
	s.metrics.Delivery(string(models.ChannelPush), string(models.TemplateBroadcast), report.Failed == 0 && err == nil)
	if err != nil {
		log.Warn("broadcast partially failed", sl.Err(err))
	}

	s.finish(JobBroadcast, log, started, nil,
		slog.Int("recipients", res.Recipients),
		slog.Int("delivered", res.Delivered),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}
