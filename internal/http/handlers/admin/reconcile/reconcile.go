// Package reconcile запускает полную сверку одного клиента по запросу оператора.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/reconciler"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// Service выполняет сверку клиента.
type Service interface {
	ReconcileClient(ctx context.Context, id int64, now time.Time) (reconciler.ClientResult, error)
}

// Handler обрабатывает ручной запуск.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Сверка клиента
// @Description Один проход машины состояний по клиенту со всеми правилами.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID клиента"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Router /admin/clients/{id}/reconcile [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.reconcile"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid client id"))
		return
	}

	res, err := h.service.ReconcileClient(r.Context(), id, time.Now())
	switch {
	case err == nil:
		render.JSON(w, r, response.OKWithData(res))
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("client not found"))
	default:
		log.Error("failed to reconcile client", sl.ClientID(id), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
