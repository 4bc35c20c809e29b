// Package notes отдаёт журнал действий операторов по клиенту.
package notes

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
	"github.com/magabrotheeeer/gym-lifecycle/internal/models"
	"github.com/magabrotheeeer/gym-lifecycle/internal/storage"
)

// Service возвращает заметки.
type Service interface {
	Notes(ctx context.Context, id int64) ([]models.AuditNote, error)
}

// Note: заметка в ответе.
type Note struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler отдаёт заметки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Журнал оператора
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID клиента"
// @Success 200 {object} response.Response "Заметки, новые первыми"
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Router /admin/clients/{id}/notes [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.notes"

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

	list, err := h.service.Notes(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("client not found"))
		return
	default:
		log.Error("failed to list notes", sl.ClientID(id), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	out := make([]Note, 0, len(list))
	for _, n := range list {
		out = append(out, Note{ID: n.ID, Author: n.Author, Text: n.Text, CreatedAt: n.CreatedAt})
	}
	render.JSON(w, r, response.OKWithData(out))
}
