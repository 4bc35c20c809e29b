// Package ban реализует блокировку и разблокировку клиента оператором.
package ban

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/middlewarectx"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/account"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// Service описывает операции блокировки.
type Service interface {
	Ban(ctx context.Context, operator string, id int64, days *int, reason string, now time.Time) (*models.Client, error)
	Unban(ctx context.Context, operator string, id int64, now time.Time) (*models.Client, error)
}

// Request: параметры блокировки. Без Days блокировка бессрочная.
type Request struct {
	Days   *int   `json:"days,omitempty" validate:"omitempty,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// Result: состояние блокировки после операции.
type Result struct {
	ClientID int64      `json:"client_id"`
	Status   string     `json:"status"`
	BanEnd   *time.Time `json:"ban_end,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func resultOf(c *models.Client) Result {
	res := Result{ClientID: c.ID, Status: string(c.Status), BanEnd: c.BanEnd}
	if c.BanReason != nil {
		res.Reason = *c.BanReason
	}
	return res
}

func clientID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// Handler обрабатывает POST (бан) и DELETE (снятие бана).
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// Ban godoc
// @Summary Блокировка клиента
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID клиента"
// @Param request body Request true "Срок и причина"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/clients/{id}/ban [post]
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.ban"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := clientID(r)
	if !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid client id"))
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

	operator, _ := middlewarectx.SubjectFromContext(r.Context())
	c, err := h.service.Ban(r.Context(), operator, id, req.Days, req.Reason, time.Now())
	switch {
	case err == nil:
		render.JSON(w, r, response.OKWithData(resultOf(c)))
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("client not found"))
	case errors.Is(err, account.ErrInvalidBan):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		log.Error("failed to ban client", sl.ClientID(id), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}

// Unban godoc
// @Summary Снятие блокировки
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID клиента"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Failure 409 {object} response.ErrorResponse "Клиент не заблокирован"
// @Router /admin/clients/{id}/ban [delete]
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.unban"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := clientID(r)
	if !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid client id"))
		return
	}

	operator, _ := middlewarectx.SubjectFromContext(r.Context())
	c, err := h.service.Unban(r.Context(), operator, id, time.Now())
	switch {
	case err == nil:
		render.JSON(w, r, response.OKWithData(resultOf(c)))
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("client not found"))
	case errors.Is(err, account.ErrNotBanned):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		log.Error("failed to unban client", sl.ClientID(id), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
