package agentconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"supportdesk_back/apperr"
	"supportdesk_back/authorization"
)

const maxBodyBytes = 64 << 10

// Handler serves the tenant's agent config.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts GET and PUT /agent-config for admins and clients.
func (h *Handler) RegisterRoutes(router gin.IRouter, guard *authorization.Guard) {
	group := router.Group("/agent-config")
	group.Use(guard.RequireAuthenticated(), guard.RequireAnyRole(authorization.RoleAdmin, authorization.RoleClient))
	group.GET("", h.get)
	group.PUT("", h.put)
}

// updateRequest is the strict wire schema; unknown keys are rejected.
type updateRequest struct {
	SchemaVersion     *int     `json:"schemaVersion"`
	CompanyName       string   `json:"companyName"`
	Tone              string   `json:"tone"`
	EmpathyEnabled    *bool    `json:"empathyEnabled"`
	AllowDiscount     *bool    `json:"allowDiscount"`
	MaxDiscountAmount *float64 `json:"maxDiscountAmount"`
	Signature         *string  `json:"signature"`
	DefaultLanguage   string   `json:"defaultLanguage"`
}

func (h *Handler) get(c *gin.Context) {
	tenantID, ok := resolveTenant(c)
	if !ok {
		return
	}
	cfg, err := h.store.Get(c.Request.Context(), tenantID)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *Handler) put(c *gin.Context) {
	tenantID, ok := resolveTenant(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	var req updateRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid config: %v", err)})
		return
	}
	if req.SchemaVersion != nil && *req.SchemaVersion != SchemaVersion {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported schemaVersion %d", *req.SchemaVersion)})
		return
	}

	cfg := Defaults(tenantID)
	if existing, err := h.store.Get(c.Request.Context(), tenantID); err == nil {
		cfg = *existing
	} else if !errors.Is(err, apperr.ErrNotFound) {
		respond(c, err)
		return
	}
	req.apply(&cfg)

	if err := h.store.Put(c.Request.Context(), &cfg); err != nil {
		respond(c, err)
		return
	}
	log.Info().Str("tenant_id", tenantID).Bool("allow_discount", cfg.AllowDiscount).Msg("agent config saved")
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": cfg})
}

func (r updateRequest) apply(cfg *Config) {
	cfg.SchemaVersion = SchemaVersion
	if r.CompanyName != "" {
		cfg.CompanyName = r.CompanyName
	}
	if r.Tone != "" {
		cfg.Tone = r.Tone
	}
	if r.EmpathyEnabled != nil {
		cfg.EmpathyEnabled = *r.EmpathyEnabled
	}
	if r.AllowDiscount != nil {
		cfg.AllowDiscount = *r.AllowDiscount
	}
	if r.MaxDiscountAmount != nil {
		cfg.MaxDiscountAmount = *r.MaxDiscountAmount
	}
	if r.Signature != nil {
		cfg.Signature = *r.Signature
	}
	if r.DefaultLanguage != "" {
		cfg.DefaultLanguage = r.DefaultLanguage
	}
}

// resolveTenant picks the session tenant for clients and ?tenantId= for
// admins.
func resolveTenant(c *gin.Context) (string, bool) {
	session, ok := authorization.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	if session.IsAdmin() {
		tenantID := strings.TrimSpace(c.Query("tenantId"))
		if tenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId query parameter is required"})
			return "", false
		}
		return tenantID, true
	}
	if session.TenantID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "session has no tenant"})
		return "", false
	}
	if requested := strings.TrimSpace(c.Query("tenantId")); requested != "" && requested != session.TenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "tenant mismatch"})
		return "", false
	}
	return session.TenantID, true
}

func respond(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if errors.Is(err, apperr.ErrNotFound) {
		message = "agent config not found"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("agent config request failed")
	}
	c.JSON(status, gin.H{"error": message})
}
