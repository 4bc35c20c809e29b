package reconciler

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// delivery: уведомления одной записи. Отправляются последовательно.
type delivery struct {
	directives []models.Directive
	// reminder: повтор подавляется журналом в пределах day, если включена дедупликация.
	reminder bool
	day      string
	horizon  int
}

type outcome struct {
	sent       map[models.Channel]int
	failed     int
	duplicates int
}

// dispatch рассылает уведомления с ограниченным параллелизмом между записями.
// Ошибки доставки считаются и логируются, но не прерывают рассылку.
func (s *Service) dispatch(ctx context.Context, log *slog.Logger, items []delivery) []outcome {
	results := make([]outcome, len(items))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	for i, item := range items {
		g.Go(func() error {
			results[i] = s.deliver(ctx, log, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) deliver(ctx context.Context, log *slog.Logger, item delivery) outcome {
	out := outcome{sent: make(map[models.Channel]int)}
	for _, d := range item.directives {
		log := log.With(sl.ClientID(d.ClientID), slog.String("channel", string(d.Channel)), slog.String("template", string(d.Template)))

		claimed := item.reminder && s.opts.Dedup
		if claimed {
			first, err := s.ledger.Claim(ctx, d.DedupKey(item.day), s.opts.DedupTTL)
			if err != nil {
				log.Error("failed to claim reminder", sl.Err(err))
				out.failed++
				continue
			}
			if !first {
				log.Debug("reminder already sent today")
				out.duplicates++
				continue
			}
		}

		handler, ok := s.handlers[d.Channel]
		if !ok {
			log.Error("no handler for channel")
			s.release(ctx, log, claimed, d.DedupKey(item.day))
			out.failed++
			continue
		}
		if err := handler(ctx, d); err != nil {
			log.Warn("notification delivery failed", sl.Err(err))
			s.metrics.Delivery(string(d.Channel), string(d.Template), false)
			s.release(ctx, log, claimed, d.DedupKey(item.day))
			out.failed++
			continue
		}
		s.metrics.Delivery(string(d.Channel), string(d.Template), true)
		out.sent[d.Channel]++
	}
	return out
}

// release снимает отметку неудавшегося напоминания, чтобы следующий проход
// в тот же день повторил отправку.
func (s *Service) release(ctx context.Context, log *slog.Logger, claimed bool, key string) {
	if !claimed {
		return
	}
	if err := s.ledger.Release(ctx, key); err != nil {
		log.Error("failed to release reminder claim", sl.Err(err))
	}
}
