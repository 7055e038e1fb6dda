package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "invodesk/internal/errors"
	"invodesk/internal/services"
	"invodesk/internal/session"
)

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	service  services.SessionService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service services.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service:  service,
		logger:   logger.With(slog.String("handler", "session")),
		validate: validator.New(),
	}
}

// SignInRequest is the sign-in payload delivered by the auth frontend after
// it has verified the user's credentials.
type SignInRequest struct {
	UserID  string  `json:"user_id" validate:"required"`
	Email   string  `json:"email" validate:"required,email"`
	Role    string  `json:"role" validate:"required,oneof=owner manager clerk"`
	StoreID *string `json:"store_id,omitempty"`
}

// Bind implements render.Binder
func (s *SignInRequest) Bind(r *http.Request) error {
	return nil
}

// Routes returns the chi router for session endpoints
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signin", h.SignIn)
	r.Get("/status", h.Status)
	r.Post("/refresh", h.Refresh)
	r.Post("/signout", h.SignOut)
	return r
}

// SignIn handles POST /api/session/signin
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignInRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.SignIn(ctx, session.Data{
		UserID:  req.UserID,
		Email:   req.Email,
		Role:    req.Role,
		StoreID: req.StoreID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "sign-in failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Status handles GET /api/session/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "session status failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	render.JSON(w, r, resp)
}

// Refresh handles POST /api/session/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.Refresh(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "session refresh failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if !resp.Authenticated {
		render.Render(w, r, apierrors.ErrSessionExpired)
		return
	}
	render.JSON(w, r, resp)
}

// SignOut handles POST /api/session/signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.SignOut(ctx); err != nil {
		h.logger.ErrorContext(ctx, "sign-out failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	render.NoContent(w, r)
}
