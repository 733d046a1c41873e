package main

import (
	"database/sql"
	"time"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, db *sql.DB, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public). Tenancy is addressed by path; vendors
	// cannot carry our auth. Signature validation belongs to the adapters.
	r.POST("/webhooks/:tenant_id/voice", h.InboundWebhook)

	// Token issuance (skeleton; real credential validation lives elsewhere).
	r.POST("/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			tid, _ := auth.TenantID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
		})

		// PROVIDER routes. Configuration changes are owner-level; status is
		// visible to supervisors too.
		prov := v1.Group("/providers")
		prov.Use(rbac.RequireTenant())
		{
			prov.POST("/select", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin), h.SelectProvider)
			prov.GET("/status", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAnalyst, rbac.RoleSuperAdmin), h.GetProviderStatus)
			prov.POST("/failover", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin), h.TriggerFailover)
			prov.DELETE("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin), h.DeleteProviderConfig)
		}

		// CALL routes
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireTenant())
		calls.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupervisor, rbac.RoleAgent, rbac.RoleSuperAdmin))
		{
			calls.POST("/outbound", h.InitiateOutboundCall)
			calls.GET("/:external_call_id", h.GetCallDetails)
			calls.DELETE("/:external_call_id", h.EndCall)
		}
	}
}
