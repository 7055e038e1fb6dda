package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "invodesk/internal/errors"
	"invodesk/internal/license"
	"invodesk/internal/services"
)

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the license activation payload
type ActivationRequest struct {
	LicenseKey string `json:"license_key"`
}

// Bind implements render.Binder. Key format stays the manager's concern so
// its typed rejection code reaches the client.
func (a *ActivationRequest) Bind(r *http.Request) error {
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	return nil
}

// Routes returns the chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/activate", h.Activate)
	r.Get("/renewal", h.Renewal)
	r.Delete("/", h.Reset)
	return r
}

// Status handles GET /api/license/status
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "license status failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	render.JSON(w, r, resp)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ActivationRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		render.Render(w, r, activationErrorResponse(err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Renewal handles GET /api/license/renewal
func (h *LicenseHandler) Renewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.Renewal(ctx)
	if err != nil {
		if errors.Is(err, license.ErrNotActivated) {
			render.Render(w, r, apierrors.ErrNotActivated)
			return
		}
		h.logger.ErrorContext(ctx, "renewal status failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	render.JSON(w, r, resp)
}

// Reset handles DELETE /api/license
func (h *LicenseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Reset(ctx); err != nil {
		h.logger.ErrorContext(ctx, "license reset failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	render.NoContent(w, r)
}

// activationErrorResponse maps activation failures to API errors
func activationErrorResponse(err error) *apierrors.APIError {
	actErr, ok := license.AsActivationError(err)
	if !ok {
		if errors.Is(err, license.ErrAuthorityUnavailable) {
			return apierrors.ErrServiceUnavailable
		}
		return apierrors.ErrInternalServer
	}
	switch actErr.Code {
	case license.CodeInvalidFormat:
		return apierrors.NewWithDetails(http.StatusBadRequest, actErr.Code, actErr.Message, nil)
	case license.CodeKeyNotFound:
		return apierrors.ErrLicenseNotFound
	case license.CodeExpired:
		return apierrors.ErrLicenseExpired
	case license.CodeRevoked:
		return apierrors.ErrLicenseRevoked
	case license.CodeDeviceMismatch:
		return apierrors.ErrDeviceMismatch
	case license.CodeRateLimited:
		return apierrors.ErrRateLimited
	default:
		return apierrors.ErrInternalServer
	}
}
