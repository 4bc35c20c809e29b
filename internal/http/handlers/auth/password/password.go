// Package password реализует HTTP-обработчики сброса пароля.
package password

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

// Service описывает операции сброса пароля.
type Service interface {
	RequestPasswordReset(ctx context.Context, email string, now time.Time) error
	ResetPassword(ctx context.Context, secret, newPassword string, now time.Time) error
}

// ForgotRequest: запрос ссылки для сброса.
type ForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest: установка нового пароля по токену из письма.
type ResetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ForgotHandler обрабатывает запрос ссылки.
type ForgotHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewForgot создаёт ForgotHandler.
func NewForgot(log *slog.Logger, service Service) *ForgotHandler {
	return &ForgotHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Запрос сброса пароля
// @Description Отправляет ссылку на email. Ответ одинаков для известных и неизвестных адресов.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body ForgotRequest true "Email клиента"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /password/forgot [post]
func (h *ForgotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.forgot"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ForgotRequest
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

	if err := h.service.RequestPasswordReset(r.Context(), req.Email, time.Now()); err != nil {
		log.Error("failed to request password reset", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, response.OK())
}

// ResetHandler устанавливает новый пароль.
type ResetHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewReset создаёт ResetHandler.
func NewReset(log *slog.Logger, service Service) *ResetHandler {
	return &ResetHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Установка нового пароля
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body ResetRequest true "Токен и новый пароль"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или токен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /password/reset [post]
func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.reset"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ResetRequest
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

	err := h.service.ResetPassword(r.Context(), req.Token, req.Password, time.Now())
	switch {
	case err == nil:
		log.Info("password changed")
		render.JSON(w, r, response.OK())
	case errors.Is(err, account.ErrInvalidResetToken):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid or expired token"))
	case errors.Is(err, account.ErrWeakPassword):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		log.Error("failed to reset password", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
