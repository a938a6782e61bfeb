package dashboard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"supportdesk_back/authorization"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts GET /dashboard/summary. Admins see every tenant or
// filter with ?tenantId=; clients see their own tenant.
func (h *Handler) RegisterRoutes(router gin.IRouter, guard *authorization.Guard) {
	group := router.Group("/dashboard")
	group.Use(guard.RequireAuthenticated(), guard.RequireAnyRole(authorization.RoleAdmin, authorization.RoleClient))
	group.GET("/summary", h.summary)
}

func (h *Handler) summary(c *gin.Context) {
	session, ok := authorization.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	tenantID := strings.TrimSpace(c.Query("tenantId"))
	if !session.IsAdmin() {
		if session.TenantID == "" || (tenantID != "" && tenantID != session.TenantID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		tenantID = session.TenantID
	}

	summary, err := h.service.Summary(c.Request.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("dashboard summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "summary": summary})
}
