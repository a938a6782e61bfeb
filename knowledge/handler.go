package knowledge

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"supportdesk_back/apperr"
	"supportdesk_back/authorization"
	"supportdesk_back/config"
	"supportdesk_back/storage"
)

// CronHeader carries the scheduler secret for the worker endpoint.
const CronHeader = "x-cron-secret"

// Handler exposes the knowledge library over HTTP.
type Handler struct {
	service    *Service
	cronSecret string
	production bool
}

// NewHandlerFromEnv reads CRON_SECRET and APP_ENV.
func NewHandlerFromEnv(service *Service) *Handler {
	return NewHandler(service, config.String("CRON_SECRET", ""), config.Production())
}

func NewHandler(service *Service, cronSecret string, production bool) *Handler {
	return &Handler{service: service, cronSecret: cronSecret, production: production}
}

// RegisterRoutes mounts the document routes behind the session guard and
// the worker routes behind the cron secret.
func (h *Handler) RegisterRoutes(router gin.IRouter, guard *authorization.Guard) {
	group := router.Group("/knowledge")
	group.GET("/worker", h.runWorker)
	group.POST("/worker", h.runWorker)

	authed := group.Group("")
	authed.Use(guard.RequireAuthenticated(), guard.RequireAnyRole(authorization.RoleAdmin, authorization.RoleClient))
	authed.POST("/upload", h.upload)
	authed.GET("/documents", h.listDocuments)
	authed.GET("/documents/:id", h.getDocument)
	authed.DELETE("/documents/:id", h.deleteDocument)
	authed.POST("/reindex", h.reindex)
}

func actorFromSession(c *gin.Context) (Actor, bool) {
	session, ok := authorization.CurrentSession(c)
	if !ok {
		return Actor{}, false
	}
	return Actor{Admin: session.IsAdmin(), TenantID: session.TenantID}, true
}

func (h *Handler) upload(c *gin.Context) {
	actor, ok := actorFromSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "No file provided."})
		return
	}
	category := strings.TrimSpace(c.PostForm("type"))
	if !ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "type must be policy | training | platform"})
		return
	}
	if fileHeader.Size > storage.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "file is too large"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "failed to read file"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, storage.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "failed to read file"})
		return
	}

	result, err := h.service.Upload(c.Request.Context(), actor, UploadInput{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Category: category,
		Title:    c.PostForm("title"),
		TenantID: c.PostForm("tenantId"),
		Data:     data,
		Sync:     strings.EqualFold(c.Query("mode"), "sync"),
	})
	if err != nil {
		respondError(c, err, result)
		return
	}

	log.Info().Str("document_id", result.DocumentID).Str("type", category).Bool("job_ok", result.JobID != "").Msg("knowledge upload accepted")
	c.JSON(http.StatusOK, gin.H{"ok": true, "documentId": result.DocumentID, "jobId": result.JobID, "status": result.Status})
}

func (h *Handler) listDocuments(c *gin.Context) {
	actor, ok := actorFromSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
		return
	}
	docs, err := h.service.List(c.Request.Context(), actor, c.Query("type"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documents": docs})
}

func (h *Handler) getDocument(c *gin.Context) {
	actor, ok := actorFromSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
		return
	}
	doc, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "document": doc})
}

func (h *Handler) deleteDocument(c *gin.Context) {
	actor, ok := actorFromSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type reindexRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Sync       bool   `json:"sync"`
}

func (h *Handler) reindex(c *gin.Context) {
	actor, ok := actorFromSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "authentication required"})
		return
	}
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "documentId is required"})
		return
	}
	result, err := h.service.Reindex(c.Request.Context(), actor, strings.TrimSpace(req.DocumentID), req.Sync)
	if err != nil {
		respondError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documentId": result.DocumentID, "jobId": result.JobID, "status": result.Status})
}

func (h *Handler) runWorker(c *gin.Context) {
	if !h.cronAuthorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Unauthorized"})
		return
	}
	result := h.service.RunWorker(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true, "processed": result.Processed, "errors": result.Errors})
}

// cronAuthorized checks the x-cron-secret header or ?secret= query. Without
// a configured secret the worker is open outside production only.
func (h *Handler) cronAuthorized(c *gin.Context) bool {
	if h.cronSecret == "" {
		return !h.production
	}
	for _, candidate := range []string{c.GetHeader(CronHeader), c.Query("secret")} {
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(h.cronSecret)) == 1 {
			return true
		}
	}
	return false
}

func respondError(c *gin.Context, err error, partial interface{}) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"ok": false, "error": err.Error()}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		body["error"] = "Document not found"
	case errors.Is(err, apperr.ErrForbidden):
		body["error"] = "Forbidden"
	}
	switch p := partial.(type) {
	case *UploadResult:
		if p != nil {
			body["documentId"] = p.DocumentID
			body["status"] = p.Status
		}
	case *ReindexResult:
		if p != nil {
			body["documentId"] = p.DocumentID
			body["status"] = p.Status
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("knowledge request failed")
	}
	c.JSON(status, body)
}
