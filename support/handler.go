package support

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"supportdesk_back/apperr"
	"supportdesk_back/authorization"
)

const maxTicketBytes = 256 << 10

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts POST /support/generate for sessions and API-key
// integrations.
func (h *Handler) RegisterRoutes(router gin.IRouter, guard *authorization.Guard) {
	group := router.Group("/support")
	group.Use(guard.RequireSessionOrAPIKey(), guard.RequireAnyRole(authorization.RoleAdmin, authorization.RoleClient, authorization.RoleService))
	group.POST("/generate", h.generate)
}

func (h *Handler) generate(c *gin.Context) {
	session, ok := authorization.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTicketBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(data) > maxTicketBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	ticket, err := ParseTicket(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !session.IsAdmin() && !session.IsService() && ticket.TenantID != session.TenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant mismatch"})
		return
	}
	if ticket.RequestID == "" {
		ticket.RequestID = uuid.NewString()
	}

	resp, err := h.service.Generate(c.Request.Context(), ticket)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if apperr.IsGenerationFailure(err) {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("tenant_id", ticket.TenantID).Msg("support generate request failed")
		}
		c.JSON(status, gin.H{"error": err.Error(), "requestId": ticket.RequestID})
		return
	}
	c.JSON(http.StatusOK, resp)
}
