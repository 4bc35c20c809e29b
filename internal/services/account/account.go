// Package account содержит переходы состояния клиента, вызываемые из
// пользовательских сценариев: вход, блокировка оператором, активация
// подписки после оплаты, пауза и сброс пароля. Все проверки сроков
// выполняются той же машиной состояний, что и плановые задачи.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/gym-lifecycle/internal/lifecycle"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// ClientStore: операции хранилища, нужные сервису.
type ClientStore interface {
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*models.Client, error)
	UpdateClient(ctx context.Context, id int64, patch models.ClientPatch, guard models.ClientFilter) (*models.Client, error)
	CreateResetToken(ctx context.Context, clientID int64, tokenHash string, expiresAt time.Time) (*models.ResetToken, error)
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error)
	AddAuditNote(ctx context.Context, note models.AuditNote) (int64, error)
	ListAuditNotes(ctx context.Context, clientID int64) ([]models.AuditNote, error)
}

// Mailer отправляет письма по шаблону.
type Mailer interface {
	SendEmail(ctx context.Context, to string, tpl models.TemplateKey, params map[string]string) error
}

// Options: настройки сброса пароля.
type Options struct {
	ResetTTL time.Duration
	LinkBase string
}

// Service реализует сценарии аккаунта.
type Service struct {
	store    ClientStore
	machine  *lifecycle.Machine
	jwtMaker jwt.Maker
	mailer   Mailer
	log      *slog.Logger
	opts     Options
}

// New создаёт Service.
func New(store ClientStore, machine *lifecycle.Machine, jwtMaker jwt.Maker, mailer Mailer, log *slog.Logger, opts Options) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{
		store:    store,
		machine:  machine,
		jwtMaker: jwtMaker,
		mailer:   mailer,
		log:      log,
		opts:     opts,
	}
}

// LoginResult: выданный токен.
type LoginResult struct {
	Token    string `json:"token"`
	ClientID int64  `json:"client_id"`
}

// Login пропускает клиента через проверку статуса, сверяет пароль и выдаёт JWT.
// Истёкшая временная блокировка снимается здесь же, без плановой задачи.
func (s *Service) Login(ctx context.Context, email, rawPassword string, now time.Time) (LoginResult, error) {
	const op = "account.Login"
	log := s.log.With(slog.String("op", op))

	c, err := s.store.GetClientByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	c, err = s.gate(ctx, log, c, now)
	if err != nil {
		return LoginResult{}, err
	}

	if c.PasswordHash == nil {
		return LoginResult{}, &GateError{Code: CodePasswordSetupRequired}
	}
	if err := password.CompareHash(*c.PasswordHash, rawPassword); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if _, err := s.store.UpdateClient(ctx, c.ID, models.ClientPatch{LastAccess: &now}, models.ClientFilter{}); err != nil {
		log.Warn("failed to record last access", sl.ClientID(c.ID), sl.Err(err))
	}

	token, err := s.jwtMaker.GenerateToken(strconv.FormatInt(c.ID, 10), jwt.RoleClient)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("client logged in", sl.ClientID(c.ID))
	return LoginResult{Token: token, ClientID: c.ID}, nil
}

// gate проверяет статус аккаунта и при необходимости снимает истёкший бан.
func (s *Service) gate(ctx context.Context, log *slog.Logger, c *models.Client, now time.Time) (*models.Client, error) {
	const op = "account.gate"

	switch c.Status {
	case models.StatusActive:
		return c, nil
	case models.StatusSuspended:
		return nil, &GateError{Code: CodeInactiveAccount}
	case models.StatusBanned:
		d := s.machine.EvaluateRules(c, now, lifecycle.RuleBanExpiry)
		if d.Empty() {
			return nil, banError(c)
		}
		updated, err := s.store.UpdateClient(ctx, c.ID, d.Transition.Patch(), d.Transition.Guard(now))
		switch {
		case err == nil:
			log.Info("expired ban lifted at login", sl.ClientID(c.ID))
			return updated, nil
		case errors.Is(err, storage.ErrConflict):
			fresh, err := s.store.GetClient(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if fresh.Status == models.StatusBanned {
				return nil, banError(fresh)
			}
			return s.gate(ctx, log, fresh, now)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	default:
		return nil, fmt.Errorf("%s: unknown status %q", op, c.Status)
	}
}

func banError(c *models.Client) *GateError {
	e := &GateError{Code: CodeBannedPermanent}
	if c.BanReason != nil {
		e.Reason = *c.BanReason
	}
	if c.BanEnd != nil {
		until := *c.BanEnd
		e.Code = CodeBannedUntil
		e.Until = &until
	}
	return e
}

// Ban блокирует клиента: навсегда, если days == nil, иначе на days дней.
func (s *Service) Ban(ctx context.Context, operator string, id int64, days *int, reason string, now time.Time) (*models.Client, error) {
	const op = "account.Ban"
	if days != nil && *days <= 0 {
		return nil, ErrInvalidBan
	}

	banned := models.StatusBanned
	patch := models.ClientPatch{
		ClearBan:  true,
		Status:    &banned,
		BanStart:  &now,
		BanReason: &reason,
	}
	note := fmt.Sprintf("Ban permanente. Motivo: %s", reason)
	if days != nil {
		end := now.AddDate(0, 0, *days)
		patch.BanEnd = &end
		note = fmt.Sprintf("Ban di %d giorni fino al %s. Motivo: %s", *days, end.In(s.machine.Location()).Format("02/01/2006"), reason)
	}

	c, err := s.store.UpdateClient(ctx, id, patch, models.ClientFilter{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.audit(ctx, operator, id, note, now)
	s.log.Info("client banned", slog.String("op", op), sl.ClientID(id), slog.String("operator", operator), slog.Bool("permanent", days == nil))
	return c, nil
}

// Unban снимает блокировку.
func (s *Service) Unban(ctx context.Context, operator string, id int64, now time.Time) (*models.Client, error) {
	const op = "account.Unban"
	active, banned := models.StatusActive, models.StatusBanned

	c, err := s.store.UpdateClient(ctx, id,
		models.ClientPatch{ClearBan: true, Status: &active},
		models.ClientFilter{Status: &banned},
	)
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrNotBanned
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.audit(ctx, operator, id, "Ban rimosso", now)
	s.log.Info("client unbanned", slog.String("op", op), sl.ClientID(id), slog.String("operator", operator))
	return c, nil
}

// audit пишет заметку. Ошибка записи не отменяет действие оператора.
func (s *Service) audit(ctx context.Context, operator string, id int64, text string, now time.Time) {
	_, err := s.store.AddAuditNote(ctx, models.AuditNote{
		ClientID:  id,
		Author:    operator,
		Text:      text,
		CreatedAt: now,
	})
	if err != nil {
		s.log.Error("failed to write audit note", sl.ClientID(id), slog.String("operator", operator), sl.Err(err))
	}
}

// Notes возвращает журнал действий операторов по клиенту.
func (s *Service) Notes(ctx context.Context, id int64) ([]models.AuditNote, error) {
	const op = "account.Notes"
	if _, err := s.store.GetClient(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	notes, err := s.store.ListAuditNotes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return notes, nil
}

// Activate активирует подписку после оплаты. Срок продлевается от
// текущей даты окончания, если она ещё не наступила, иначе от now.
// Баланс дней паузы пересчитывается по плану, использованные дни обнуляются.
// Идущая пауза завершается, неиспользованный остаток паузы вычитается из срока.
func (s *Service) Activate(ctx context.Context, id int64, planLabel string, now time.Time) (*models.Client, error) {
	const op = "account.Activate"
	plan, err := lifecycle.ParsePlan(planLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	base := now
	if c.Active && c.Expiry != nil && c.Expiry.After(now) {
		base = *c.Expiry
		if c.PauseActive && c.PauseEnd != nil && c.PauseEnd.After(now) {
			base = base.Add(-c.PauseEnd.Sub(now))
		}
	}
	expiry := base.AddDate(0, plan.Months, 0)
	active := true
	total := plan.PauseDays()
	used := 0

	updated, err := s.store.UpdateClient(ctx, id, models.ClientPatch{
		ClearPause:     true,
		Active:         &active,
		Plan:           &plan.Label,
		Expiry:         &expiry,
		PauseDaysTotal: &total,
		PauseDaysUsed:  &used,
	}, models.ClientFilter{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription activated",
		slog.String("op", op),
		sl.ClientID(id),
		slog.String("plan", plan.Label),
		slog.Time("expiry", expiry),
	)
	return updated, nil
}

// StartPause ставит подписку на паузу на days дней и сдвигает дату окончания.
func (s *Service) StartPause(ctx context.Context, id int64, days int, now time.Time) (*models.Client, error) {
	const op = "account.StartPause"
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch c.Status {
	case models.StatusActive:
	case models.StatusSuspended, models.StatusBanned:
		return nil, ErrPauseNotAllowed
	default:
		return nil, fmt.Errorf("%s: unknown status %q", op, c.Status)
	}
	if !c.Active || c.Expiry == nil || !c.Expiry.After(now) {
		return nil, ErrSubscriptionInactive
	}
	if c.PauseActive {
		return nil, ErrAlreadyPaused
	}
	if days < 1 || days > c.PauseDaysLeft() {
		return nil, ErrPauseDaysExceeded
	}

	paused := true
	end := now.AddDate(0, 0, days)
	expiry := c.Expiry.AddDate(0, 0, days)
	used := c.PauseDaysUsed + days
	notPaused, subActive := false, true

	updated, err := s.store.UpdateClient(ctx, id, models.ClientPatch{
		PauseActive:   &paused,
		PauseStart:    &now,
		PauseEnd:      &end,
		PauseDaysUsed: &used,
		Expiry:        &expiry,
	}, models.ClientFilter{PauseActive: &notPaused, SubscriptionActive: &subActive})
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrAlreadyPaused
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("pause started", slog.String("op", op), sl.ClientID(id), slog.Int("days", days))
	return updated, nil
}

// RequestPasswordReset создаёт токен сброса и отправляет ссылку на почту.
// Для неизвестного email ничего не делает и не сообщает об этом.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, now time.Time) error {
	const op = "account.RequestPasswordReset"
	c, err := s.store.GetClientByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	secret, err := password.NewResetSecret()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.store.CreateResetToken(ctx, c.ID, password.HashResetSecret(secret), now.Add(s.opts.ResetTTL)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	params := map[string]string{
		"link":       s.opts.LinkBase + "?token=" + secret,
		"expires_in": fmt.Sprintf("%d minuti", int(s.opts.ResetTTL.Minutes())),
	}
	if err := s.mailer.SendEmail(ctx, c.Email, models.TemplatePasswordReset, params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password reset requested", slog.String("op", op), sl.ClientID(c.ID))
	return nil
}

// ResetPassword гасит токен и устанавливает новый пароль в одной транзакции.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string, now time.Time) error {
	const op = "account.ResetPassword"
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	id, err := s.store.ConsumeResetToken(ctx, password.HashResetSecret(secret), hash, now)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password reset", slog.String("op", op), sl.ClientID(id))
	return nil
}
