package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/powerport/user-service/domains/providers/be/identity"
	"github.com/powerport/user-service/domains/providers/be/provisioning"
	"github.com/powerport/user-service/domains/providers/be/service"
	"github.com/powerport/user-service/platform/go/events"
	"github.com/powerport/user-service/platform/go/logging"
)

const (
	problemTypeValidation = "https://powerport.io/problems/validation-error"
	problemTypeConflict   = "https://powerport.io/problems/conflict"
	problemTypeNotFound   = "https://powerport.io/problems/not-found"
	problemTypeUpstream   = "https://powerport.io/problems/upstream-dependency"
	problemTypeInternal   = "https://powerport.io/problems/internal-error"
)

// Handler exposes provider registration over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("providers service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the provider routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/providers", h.registerProvider)
	r.Get("/providers/{uniqueName}", h.getProvider)
}

type registerProviderRequest struct {
	UniqueName  string     `json:"uniqueName"`
	DisplayName string     `json:"displayName"`
	AdminEmail  string     `json:"adminEmail"`
	TenantID    *uuid.UUID `json:"tenantId,omitempty"`
}

type providerResponse struct {
	UniqueName  string    `json:"uniqueName"`
	TenantID    uuid.UUID `json:"tenantId"`
	DisplayName string    `json:"displayName"`
	AdminEmail  string    `json:"adminEmail"`
	CreatedAt   time.Time `json:"createdAt"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) registerProvider(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromRequest(r, h.logger)

	var req registerProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, problem{
			Type:   problemTypeValidation,
			Title:  "Invalid request body",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
		return
	}

	result, err := h.svc.RegisterProvider(r.Context(), service.RegisterProviderRequest{
		UniqueName:  req.UniqueName,
		DisplayName: req.DisplayName,
		AdminEmail:  req.AdminEmail,
		TenantID:    req.TenantID,
	})
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	// Derived from the request path so the header follows wherever the
	// handler is mounted.
	w.Header().Set("Location", path.Join(r.URL.Path, result.UniqueName))
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	uniqueName := chi.URLParam(r, "uniqueName")

	p, err := h.svc.Get(r.Context(), uniqueName)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeProblem(w, problem{
				Type:   problemTypeNotFound,
				Title:  "Provider not found",
				Status: http.StatusNotFound,
			})
			return
		}
		h.writeError(w, logging.FromRequest(r, h.logger), err)
		return
	}

	writeJSON(w, http.StatusOK, providerResponse{
		UniqueName:  p.UniqueName,
		TenantID:    p.TenantID,
		DisplayName: p.DisplayName,
		AdminEmail:  p.AdminEmail,
		CreatedAt:   p.CreatedAt,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		writeProblem(w, problem{
			Type:   problemTypeValidation,
			Title:  "Invalid request",
			Status: http.StatusBadRequest,
			Detail: validationErr.Error(),
		})
	case errors.As(err, &conflictErr):
		writeProblem(w, problem{
			Type:   problemTypeConflict,
			Title:  "Provider already exists",
			Status: http.StatusConflict,
			Detail: conflictErr.Error(),
		})
	case isUpstreamFailure(err):
		logger.Error("upstream dependency failure", zap.Error(err))
		writeProblem(w, problem{
			Type:   problemTypeUpstream,
			Title:  "Upstream dependency failure",
			Status: http.StatusBadGateway,
			Detail: err.Error(),
		})
	default:
		logger.Error("provider registration failed", zap.Error(err))
		writeProblem(w, problem{
			Type:   problemTypeInternal,
			Title:  "Internal error",
			Status: http.StatusInternalServerError,
		})
	}
}

// isUpstreamFailure classifies errors from the identity provider, the tenant
// database host, the secret store and the event bus.
func isUpstreamFailure(err error) bool {
	var (
		identityErr *identity.ProviderError
		authErr     *identity.AuthenticationError
		protoErr    *identity.ProtocolError
		infraErr    *provisioning.InfrastructureError
		secretErr   *provisioning.SecretStoreError
		publishErr  *events.PublishError
	)
	return errors.As(err, &identityErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &protoErr) ||
		errors.As(err, &infraErr) ||
		errors.As(err, &secretErr) ||
		errors.As(err, &publishErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
