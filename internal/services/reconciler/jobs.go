package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lifecycle"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
)

// PauseResult: итог ReconcileExpiredPauses.
type PauseResult struct {
	RunID       string `json:"run_id"`
	PausesEnded int    `json:"pauses_ended"`
	EmailsSent  int    `json:"emails_sent"`
	PushSent    int    `json:"push_sent"`
	Errors      int    `json:"errors"`
	Skipped     int    `json:"skipped"`
}

// ReminderResult: итог рассылки напоминаний об окончании подписки.
type ReminderResult struct {
	RunID     string `json:"run_id"`
	Sent7Days int    `json:"sent_7_days"`
	Sent3Days int    `json:"sent_3_days"`
	Sent1Day  int    `json:"sent_1_day"`
	Errors    int    `json:"errors"`
	Skipped   int    `json:"skipped"`
}

// SweepResult: итог SweepResetTokens.
type SweepResult struct {
	RunID                string `json:"run_id"`
	TokensDeleted        int64  `json:"tokens_deleted"`
	SubscriptionsExpired int    `json:"subscriptions_expired"`
	Errors               int    `json:"errors"`
	Skipped              int    `json:"skipped"`
}

// ClientResult: итог ReconcileClient.
type ClientResult struct {
	RunID      string `json:"run_id"`
	ClientID   int64  `json:"client_id"`
	Rule       string `json:"rule"`
	Transition string `json:"transition"`
	Applied    bool   `json:"applied"`
	Sent       int    `json:"sent"`
	Errors     int    `json:"errors"`
	Skipped    int    `json:"skipped"`
}

func boolPtr(v bool) *bool { return &v }

// ReconcileExpiredPauses завершает истёкшие паузы и напоминает о паузах,
// заканчивающихся в ближайшие сутки.
func (s *Service) ReconcileExpiredPauses(ctx context.Context, now time.Time) (PauseResult, error) {
	const op = "reconciler.ReconcileExpiredPauses"
	runID, log, started := s.begin(JobPauses, now)
	res := PauseResult{RunID: runID}

	clients, err := s.store.FindClients(ctx, models.ClientFilter{PauseActive: boolPtr(true)})
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobPauses, log, started, err)
		return res, err
	}
	log.Info("candidates loaded", slog.Int("count", len(clients)))

	var items []delivery
	for _, c := range clients {
		d := s.machine.EvaluateRules(c, now, lifecycle.RulePauseExpiry|lifecycle.RulePauseEndingSoon)
		switch d.Rule {
		case lifecycle.RulePauseExpiry:
			switch s.apply(ctx, log, d.Transition, now) {
			case applied:
				res.PausesEnded++
				items = append(items, delivery{directives: d.Directives})
			case conflicted:
				res.Skipped++
				s.metrics.Skipped(JobPauses, "conflict")
			case failed:
				res.Errors++
			}
		case lifecycle.RulePauseEndingSoon:
			if len(d.Directives) > 0 {
				items = append(items, delivery{
					directives: d.Directives,
					reminder:   true,
					day:        lifecycle.DayKey(now, s.machine.Location()),
				})
			}
		}
	}

	for _, o := range s.dispatch(ctx, log, items) {
		res.EmailsSent += o.sent[models.ChannelEmail]
		res.PushSent += o.sent[models.ChannelPush]
		res.Errors += o.failed
		res.Skipped += o.duplicates
	}

	s.finish(JobPauses, log, started, nil,
		slog.Int("pauses_ended", res.PausesEnded),
		slog.Int("emails_sent", res.EmailsSent),
		slog.Int("push_sent", res.PushSent),
		slog.Int("errors", res.Errors),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

// ReconcileExpiringSubscriptionsPush рассылает push-напоминания за 7, 3 и 1 день до окончания подписки.
func (s *Service) ReconcileExpiringSubscriptionsPush(ctx context.Context, now time.Time) (ReminderResult, error) {
	return s.reconcileReminders(ctx, now, JobRemindersPush, models.ChannelPush)
}

// ReconcileExpiringSubscriptionsEmail рассылает email-напоминания за 7, 3 и 1 день до окончания подписки.
func (s *Service) ReconcileExpiringSubscriptionsEmail(ctx context.Context, now time.Time) (ReminderResult, error) {
	return s.reconcileReminders(ctx, now, JobRemindersEmail, models.ChannelEmail)
}

func (s *Service) reconcileReminders(ctx context.Context, now time.Time, job string, channel models.Channel) (ReminderResult, error) {
	const op = "reconciler.reconcileReminders"
	runID, log, started := s.begin(job, now)
	res := ReminderResult{RunID: runID}
	loc := s.machine.Location()
	day := lifecycle.DayKey(now, loc)

	var items []delivery
	for _, h := range lifecycle.ReminderHorizons {
		from, to := lifecycle.DayBucket(now, h, loc)
		active := models.StatusActive
		filter := models.ClientFilter{
			Status:             &active,
			SubscriptionActive: boolPtr(true),
			PauseActive:        boolPtr(false),
			PushDeliverable:    channel == models.ChannelPush,
			ExpiryFrom:         &from,
			ExpiryTo:           &to,
		}
		clients, err := s.store.FindClients(ctx, filter)
		if err != nil {
			err = fmt.Errorf("%s: horizon %d: %w", op, h, err)
			s.finish(job, log, started, err)
			return res, err
		}
		log.Info("bucket loaded", slog.Int("horizon", h), slog.Int("count", len(clients)))

		for _, c := range clients {
			d := s.machine.EvaluateRules(c, now, lifecycle.RuleSubscriptionReminder)
			if d.Rule != lifecycle.RuleSubscriptionReminder || d.Horizon != h {
				res.Skipped++
				continue
			}
			var own []models.Directive
			for _, dir := range d.Directives {
				if dir.Channel == channel {
					own = append(own, dir)
				}
			}
			if len(own) == 0 {
				res.Skipped++
				continue
			}
			items = append(items, delivery{directives: own, reminder: true, day: day, horizon: h})
		}
	}

	for i, o := range s.dispatch(ctx, log, items) {
		res.Errors += o.failed
		res.Skipped += o.duplicates
		if o.sent[channel] == 0 {
			continue
		}
		switch items[i].horizon {
		case 7:
			res.Sent7Days++
		case 3:
			res.Sent3Days++
		case 1:
			res.Sent1Day++
		}
	}

	s.finish(job, log, started, nil,
		slog.Int("sent_7_days", res.Sent7Days),
		slog.Int("sent_3_days", res.Sent3Days),
		slog.Int("sent_1_day", res.Sent1Day),
		slog.Int("errors", res.Errors),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

// SweepResetTokens удаляет истёкшие и использованные токены сброса пароля
// и деактивирует подписки, истёкшие вне паузы.
func (s *Service) SweepResetTokens(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "reconciler.SweepResetTokens"
	runID, log, started := s.begin(JobSweep, now)
	res := SweepResult{RunID: runID}

	deleted, err := s.store.DeleteStaleResetTokens(ctx, now)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobSweep, log, started, err)
		return res, err
	}
	res.TokensDeleted = deleted

	clients, err := s.store.FindClients(ctx, models.ClientFilter{
		SubscriptionActive: boolPtr(true),
		PauseActive:        boolPtr(false),
		ExpiryBefore:       &now,
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobSweep, log, started, err)
		return res, err
	}

	for _, c := range clients {
		d := s.machine.EvaluateRules(c, now, lifecycle.RuleSubscriptionExpiry)
		if d.Empty() {
			continue
		}
		switch s.apply(ctx, log, d.Transition, now) {
		case applied:
			res.SubscriptionsExpired++
		case conflicted:
			res.Skipped++
			s.metrics.Skipped(JobSweep, "conflict")
		case failed:
			res.Errors++
		}
	}

	s.finish(JobSweep, log, started, nil,
		slog.Int64("tokens_deleted", res.TokensDeleted),
		slog.Int("subscriptions_expired", res.SubscriptionsExpired),
		slog.Int("errors", res.Errors),
	)
	return res, nil
}

// ReconcileClient прогоняет полную машину состояний для одного клиента.
func (s *Service) ReconcileClient(ctx context.Context, id int64, now time.Time) (ClientResult, error) {
	const op = "reconciler.ReconcileClient"
	runID, log, started := s.begin(JobClient, now)
	log = log.With(sl.ClientID(id))
	res := ClientResult{RunID: runID, ClientID: id}

	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.finish(JobClient, log, started, err)
		return res, err
	}

	d := s.machine.Evaluate(c, now)
	res.Rule = d.Rule.String()
	res.Transition = d.Transition.Kind.String()

	item := delivery{directives: d.Directives}
	if !d.Transition.None() {
		switch s.apply(ctx, log, d.Transition, now) {
		case applied:
			res.Applied = true
		case conflicted:
			res.Skipped++
			item.directives = nil
		case failed:
			res.Errors++
			item.directives = nil
		}
	} else if len(d.Directives) > 0 {
		item.reminder = true
		item.day = lifecycle.DayKey(now, s.machine.Location())
		item.horizon = d.Horizon
	}

	if len(item.directives) > 0 {
		o := s.dispatch(ctx, log, []delivery{item})[0]
		for _, n := range o.sent {
			res.Sent += n
		}
		res.Errors += o.failed
		res.Skipped += o.duplicates
	}

	s.finish(JobClient, log, started, nil,
		slog.String("rule", res.Rule),
		slog.Bool("applied", res.Applied),
		slog.Int("sent", res.Sent),
	)
	return res, nil
}
