// Package pause позволяет клиенту поставить абонемент на паузу.
package pause

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

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/middlewarectx"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/account"
)

// Service ставит паузу.
type Service interface {
	StartPause(ctx context.Context, id int64, days int, now time.Time) (*models.Client, error)
}

// Request: длительность паузы в днях.
type Request struct {
	Days int `json:"days" validate:"required,gt=0"`
}

// Result: окно паузы и новая дата окончания абонемента.
type Result struct {
	PauseStart    time.Time `json:"pause_start"`
	PauseEnd      time.Time `json:"pause_end"`
	Expiry        time.Time `json:"expiry"`
	PauseDaysLeft int       `json:"pause_days_left"`
}

// Handler обрабатывает запрос паузы.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Пауза абонемента
// @Tags Client
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Количество дней"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Нет токена клиента"
// @Failure 409 {object} response.ErrorResponse "Пауза невозможна"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /me/pause [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.me.pause"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.ClientIDFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("client token required"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err))
		return
	}

	c, err := h.service.StartPause(r.Context(), id, req.Days, time.Now())
	switch {
	case err == nil:
		render.JSON(w, r, response.OKWithData(Result{
			PauseStart:    *c.PauseStart,
			PauseEnd:      *c.PauseEnd,
			Expiry:        *c.Expiry,
			PauseDaysLeft: c.PauseDaysLeft(),
		}))
	case errors.Is(err, account.ErrAlreadyPaused),
		errors.Is(err, account.ErrSubscriptionInactive),
		errors.Is(err, account.ErrPauseNotAllowed),
		errors.Is(err, account.ErrPauseDaysExceeded):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		log.Error("failed to start pause", sl.ClientID(id), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
