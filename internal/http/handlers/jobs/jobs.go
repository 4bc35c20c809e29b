// Package jobs реализует HTTP-эндпоинты запуска задач сверки внешним
// планировщиком. Секрет проверяется middleware до вызова обработчика.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
)

// RunFunc запускает задачу на момент now.
type RunFunc func(ctx context.Context, now time.Time) (any, error)

// Request: необязательное тело запроса. Now позволяет прогнать задачу
// на заданный момент, например при повторе пропущенного запуска.
type Request struct {
	Now *time.Time `json:"now,omitempty"`
}

// Handler запускает одну задачу.
type Handler struct {
	log   *slog.Logger
	name  string
	run   RunFunc
	clock func() time.Time
}

// New создаёт Handler для задачи name.
func New(log *slog.Logger, name string, run RunFunc) *Handler {
	return &Handler{
		log:   log,
		name:  name,
		run:   run,
		clock: time.Now,
	}
}

// ServeHTTP godoc
// @Summary Запуск задачи сверки
// @Description Выполняет один проход задачи. Требует заголовок X-Job-Secret.
// @Tags Jobs
// @Accept  json
// @Produce  json
// @Param X-Job-Secret header string true "Секрет планировщика"
// @Param request body Request false "Момент запуска (RFC3339)"
// @Success 200 {object} response.Response "Итог задачи"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный секрет"
// @Failure 500 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /jobs/pauses [post]
// @Router /jobs/reminders/push [post]
// @Router /jobs/reminders/email [post]
// @Router /jobs/sweep [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.jobs"

	log := h.log.With(
		slog.String("op", op),
		slog.String("job", h.name),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	now := h.clock()
	if req.Now != nil {
		now = *req.Now
	}

	res, err := h.run(r.Context(), now)
	if err != nil {
		log.Error("job failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("job failed"))
		return
	}

	log.Info("job completed")
	render.JSON(w, r, response.OKWithData(res))
}
