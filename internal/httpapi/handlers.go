package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/providers"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/routing"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// maxWebhookBody bounds vendor webhook payloads.
const maxWebhookBody = 1 << 20

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth   *auth.Manager
	Router *routing.Router
	Store  providers.Store

	// Redis and OutboundCallCap enable the per-tenant concurrent outbound
	// call limit. Cap is disabled when either is unset.
	Redis           *redis.Client
	OutboundCallCap int
}

// --- Auth ---

type tokenRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// IssueToken issues a JWT access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	tok, err := h.Auth.IssueAccess(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Webhooks (vendor-facing, no JWT) ---

// InboundWebhook receives vendor voice webhooks. The tenant is addressed by
// path because vendors cannot carry our auth; webhook signature validation is
// the adapter's concern.
func (h Handlers) InboundWebhook(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ctx := routing.WithClientIP(c.Request.Context(), c.ClientIP())
	call, err := h.Router.RouteInbound(ctx, tenantID, telephony.WebhookPayload{
		ContentType: c.ContentType(),
		Body:        body,
	})
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}

	// Form-posting vendors expect an XML ack; everything else gets JSON.
	switch call.Provider {
	case telephony.ProviderTwilio, telephony.ProviderExotel:
		c.Data(http.StatusOK, "application/xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><Response/>`))
	default:
		c.JSON(http.StatusOK, call)
	}
}

// --- Provider administration ---

type selectProviderRequest struct {
	Provider    string            `json:"provider"`
	Credentials map[string]string `json:"credentials"`

	BackupProvider    string            `json:"backup_provider,omitempty"`
	BackupCredentials map[string]string `json:"backup_credentials,omitempty"`

	FailoverThreshold int `json:"failover_threshold,omitempty"`
}

// SelectProvider verifies and stores a tenant's provider configuration.
// RBAC: owner or super_admin.
func (h Handlers) SelectProvider(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req selectProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Provider == "" || len(req.Credentials) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "provider and credentials required"})
		return
	}

	summary, err := h.Router.SelectProvider(h.actorCtx(c), routing.SelectProviderRequest{
		TenantID:          tenantID,
		Provider:          req.Provider,
		Credentials:       req.Credentials,
		BackupProvider:    req.BackupProvider,
		BackupCredentials: req.BackupCredentials,
		FailoverThreshold: req.FailoverThreshold,
	})
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetProviderStatus returns the tenant's config summary, a live health probe,
// and the breaker state. Never includes credentials.
func (h Handlers) GetProviderStatus(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	status, err := h.Router.GetProviderStatus(c.Request.Context(), tenantID)
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type failoverRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TriggerFailover promotes the tenant's backup on operator request.
// RBAC: owner or super_admin.
func (h Handlers) TriggerFailover(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req failoverRequest
	_ = c.ShouldBindJSON(&req)

	summary, err := h.Router.TriggerManualFailover(h.actorCtx(c), tenantID, req.Reason)
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// DeleteProviderConfig removes an inactive config. Deleting the active config
// is rejected; deactivate or replace it instead.
func (h Handlers) DeleteProviderConfig(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteConfig(c.Request.Context(), tenantID); err != nil {
		switch {
		case errors.Is(err, providers.ErrActiveConfig):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "active config cannot be deleted"})
		case errors.Is(err, providers.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no config for tenant"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Calls ---

type outboundCallRequest struct {
	ToNumber    string            `json:"to_number"`
	FromNumber  string            `json:"from_number"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitiateOutboundCall routes an outbound call through the tenant's provider.
func (h Handlers) InitiateOutboundCall(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	callReq := telephony.OutboundCallRequest{
		ToNumber:    req.ToNumber,
		FromNumber:  req.FromNumber,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
	if err := callReq.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Redis != nil && h.OutboundCallCap > 0 {
		key := "callcap:" + tenantID
		acquired, err := utils.AcquireConcurrencyCap(c.Request.Context(), h.Redis, key, h.OutboundCallCap, 2*time.Minute)
		if err != nil {
			logger.FromGin(c).Warn("call cap check failed, allowing call", "tenant_id", tenantID, "error", err)
		} else if !acquired {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached"})
			return
		} else {
			defer func() {
				if err := utils.ReleaseConcurrencyCap(c.Request.Context(), h.Redis, key); err != nil {
					logger.FromGin(c).Warn("call cap release failed", "tenant_id", tenantID, "error", err)
				}
			}()
		}
	}

	call, err := h.Router.RouteOutbound(h.actorCtx(c), tenantID, callReq)
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// GetCallDetails fetches call status from the tenant's current provider.
func (h Handlers) GetCallDetails(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	callID := c.Param("external_call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "external_call_id required"})
		return
	}
	detail, err := h.Router.GetCallDetails(c.Request.Context(), tenantID, callID)
	if err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// EndCall hangs up an in-progress call.
func (h Handlers) EndCall(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	callID := c.Param("external_call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "external_call_id required"})
		return
	}
	if err := h.Router.EndCall(c.Request.Context(), tenantID, callID); err != nil {
		h.writeRoutingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func (h Handlers) tenantID(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

// actorCtx threads the authenticated actor and client IP into the routing
// layer for audit records.
func (h Handlers) actorCtx(c *gin.Context) (ctx context.Context) {
	ctx = routing.WithClientIP(c.Request.Context(), c.ClientIP())
	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return routing.WithActor(ctx, routing.Actor{UserID: userID, Role: role})
}

// writeRoutingError maps routing/telephony errors to HTTP statuses. Error
// bodies never include credentials or vendor response bodies verbatim.
func (h Handlers) writeRoutingError(c *gin.Context, err error) {
	var (
		notConfigured *routing.NotConfiguredError
		noBackup      *routing.NoBackupAvailableError
		routeFailed   *routing.RoutingFailedError
		unknown       *telephony.UnknownProviderError
		rejection     *telephony.RejectionError
		notFound      *telephony.NotFoundError
		connErr       *telephony.ConnectionError
	)

	switch {
	case errors.As(err, &notConfigured):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active provider config for tenant"})
	case errors.As(err, &noBackup):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no backup provider configured"})
	case errors.As(err, &unknown):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	// RoutingFailedError wraps its last cause, so it must be matched before
	// the vendor error types it may contain.
	case errors.As(err, &routeFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call routing failed", "provider": routeFailed.Provider})
	case errors.As(err, &rejection):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": rejection.Reason, "provider": rejection.Provider})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found", "provider": notFound.Provider})
	case errors.As(err, &connErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider unreachable", "provider": connErr.Provider})
	default:
		logger.FromGin(c).Error("unhandled routing error", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenant(), rbac.RequireAnyRole(roles...)}
}
