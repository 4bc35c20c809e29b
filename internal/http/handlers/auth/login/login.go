// Package login реализует HTTP-обработчик входа клиента.
//
// Перед проверкой пароля вход проходит проверку статуса аккаунта: истёкшая
// временная блокировка снимается сразу, действующая блокировка или
// приостановленный аккаунт дают 403 с кодом причины.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/account"
)

// Request: учётные данные клиента.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GateDetails: подробности отказа во входе.
type GateDetails struct {
	Reason string     `json:"reason,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// Service описывает вход клиента.
type Service interface {
	Login(ctx context.Context, email, password string, now time.Time) (account.LoginResult, error)
}

// Handler обрабатывает вход.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход клиента
// @Description Проверяет статус аккаунта и пароль, возвращает JWT.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учётные данные"
// @Success 200 {object} response.Response "Токен выдан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учётные данные"
// @Failure 403 {object} response.Response "Вход запрещён: banned_permanent, banned_until, inactive_account, password_setup_required"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err))
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password, time.Now())
	var gate *account.GateError
	switch {
	case err == nil:
	case errors.As(err, &gate):
		log.Info("login rejected", slog.String("code", gate.Code))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ErrorWithData(gate.Code, GateDetails{Reason: gate.Reason, Until: gate.Until}))
		return
	case errors.Is(err, account.ErrInvalidCredentials):
		log.Info("invalid credentials")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid credentials"))
		return
	default:
		log.Error("login failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("login success", slog.Int64("client_id", res.ClientID))
	render.JSON(w, r, response.OKWithData(res))
}
