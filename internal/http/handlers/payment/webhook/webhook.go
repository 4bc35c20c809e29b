// Package webhook принимает вебхуки платёжного провайдера.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/gym-lifecycle/internal/http/response"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/payment"
)

const maxBodyBytes = 64 << 10

// Service обрабатывает подписанное событие.
type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string, now time.Time) (payment.Outcome, error)
}

// Handler принимает вебхук.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вебхук оплаты
// @Description Проверяет подпись Stripe-Signature и активирует подписку по checkout.session.completed.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или событие"
// @Failure 500 {object} response.ErrorResponse "Ошибка активации, провайдер повторит доставку"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(payment.SignatureHeader), time.Now())
	switch {
	case err == nil:
		log.Info("webhook handled", slog.String("outcome", string(outcome)))
		render.JSON(w, r, response.OKWithData(map[string]string{"outcome": string(outcome)}))
	case errors.Is(err, payment.ErrMissingSignature),
		errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, payment.ErrStaleSignature):
		log.Warn("webhook signature rejected", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
	case errors.Is(err, payment.ErrInvalidEvent):
		log.Warn("webhook event rejected", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event"))
	default:
		log.Error("webhook failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
