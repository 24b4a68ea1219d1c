package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sekolahub/backend/internal/middleware"
	"github.com/sekolahub/backend/internal/models"
	"github.com/sekolahub/backend/internal/sync"
)

type IntegrationHandler struct {
	engine *sync.Engine
}

func NewIntegrationHandler(engine *sync.Engine) *IntegrationHandler {
	return &IntegrationHandler{engine: engine}
}

// Create registers an integration for the caller's tenant. It starts
// inactive.
func (h *IntegrationHandler) Create(c *gin.Context) {
	var req models.CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	integration, err := h.engine.CreateIntegration(middleware.GetTenantID(c), &req)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, integration)
}

func (h *IntegrationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	integration, err := h.engine.GetIntegration(id, middleware.GetTenantID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, integration)
}

func (h *IntegrationHandler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	integration, err := h.engine.Activate(id, middleware.GetTenantID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, integration)
}

func (h *IntegrationHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	integration, err := h.engine.Deactivate(id, middleware.GetTenantID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, integration)
}

// Sync runs a full pull sync now, outside the scheduler cadence.
func (h *IntegrationHandler) Sync(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	result, err := h.engine.SyncData(id, middleware.GetTenantID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Logs returns recent audit rows, newest first. Optional type filter and
// limit query parameters.
func (h *IntegrationHandler) Logs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			ErrorResponse(c, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	logs, err := h.engine.GetLogs(id, middleware.GetTenantID(c), c.Query("type"), limit)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Webhook ingests a provider push. Providers authenticate out of band,
// so this route sits outside the JWT middleware; the integration id in
// the path is the shared secret.
func (h *IntegrationHandler) Webhook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid integration id")
		return
	}

	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.HandleWebhook(id, &payload); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "webhook processed"})
}
