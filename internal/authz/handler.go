package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bookline-hq/bookline/internal/platform/httpx"
)

// Handler exposes the decision API over HTTP.
type Handler struct {
	engine   *Engine
	resolver *Resolver
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(engine *Engine, resolver *Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// MountRoutes registers the decision API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/access/check", h.checkAccess)
	r.Post("/permissions/check", h.checkPermissions)
	r.Get("/permissions/{tenantID}/{userID}", h.resolvedSet)
	r.Post("/permissions/invalidate", h.invalidate)
}

type contextPayload struct {
	TenantID        string           `json:"tenant_id"`
	TargetTenantID  string           `json:"target_tenant_id"`
	TargetUserID    string           `json:"target_user_id"`
	ResourceID      string           `json:"resource_id"`
	ResourceOwnerID string           `json:"resource_owner_id"`
	IPAddress       string           `json:"ip_address"`
	AllowedIPs      []string         `json:"allowed_ips"`
	TimeRestriction *TimeRestriction `json:"time_restriction"`
	OperationType   string           `json:"operation_type"`
	ResourceType    string           `json:"resource_type"`
}

type checkAccessRequest struct {
	UserID     string         `json:"user_id" validate:"required"`
	Permission string         `json:"permission" validate:"required"`
	Context    contextPayload `json:"context"`
}

type checkAccessResponse struct {
	DecisionID string `json:"decision_id"`
	AccessResult
	CheckedAt time.Time `json:"checked_at"`
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req checkAccessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	pc := ContextFromRequest(r, PermissionContext{
		UserID:          req.UserID,
		TenantID:        req.Context.TenantID,
		TargetTenantID:  req.Context.TargetTenantID,
		TargetUserID:    req.Context.TargetUserID,
		ResourceID:      req.Context.ResourceID,
		ResourceOwnerID: req.Context.ResourceOwnerID,
		IPAddress:       req.Context.IPAddress,
		AllowedIPs:      req.Context.AllowedIPs,
		TimeRestriction: req.Context.TimeRestriction,
		OperationType:   req.Context.OperationType,
		ResourceType:    req.Context.ResourceType,
	})

	result := h.engine.CheckAccess(r.Context(), req.UserID, req.Permission, pc)
	httpx.JSON(w, http.StatusOK, checkAccessResponse{
		DecisionID:   uuid.NewString(),
		AccessResult: result,
		CheckedAt:    h.now(),
	})
}

type checkPermissionsRequest struct {
	UserID      string   `json:"user_id" validate:"required"`
	TenantID    string   `json:"tenant_id" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	// Mode selects AND ("all", default) or OR ("any") composition.
	Mode string `json:"mode" validate:"omitempty,oneof=all any"`
}

func (h *Handler) checkPermissions(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	var (
		ok  bool
		err error
	)
	if req.Mode == "any" {
		ok, err = h.resolver.HasAnyPermissions(r.Context(), req.UserID, req.TenantID, req.Permissions)
	} else {
		ok, err = h.resolver.HasAllPermissions(r.Context(), req.UserID, req.TenantID, req.Permissions)
	}
	if err != nil {
		if errors.Is(err, ErrIndeterminate) {
			httpx.RespondError(w, httpx.ErrIndeterminate)
			return
		}
		h.logger.Error("permission check failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granted": ok})
}

func (h *Handler) resolvedSet(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")
	set, err := h.resolver.ResolveSet(r.Context(), userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrIndeterminate) {
			httpx.RespondError(w, httpx.ErrIndeterminate)
			return
		}
		h.logger.Error("resolve permission set", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"tenant_id":   tenantID,
		"permissions": set.Strings(),
	})
}

type invalidateRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	UserID   string `json:"user_id"`
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	var err error
	if req.UserID == "" {
		err = h.resolver.InvalidateTenant(r.Context(), req.TenantID)
	} else {
		err = h.resolver.Invalidate(r.Context(), req.UserID, req.TenantID)
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invalidated": true})
}
