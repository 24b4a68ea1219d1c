package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sekolahub/backend/internal/middleware"
	"github.com/sekolahub/backend/internal/models"
	"github.com/sekolahub/backend/internal/service"
)

type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// Create starts a conversation; the caller becomes its admin.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	conversation, err := h.conversations.Create(middleware.GetTenantID(c), middleware.GetUserID(c), req)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// List returns the caller's active conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.conversations.FindAll(middleware.GetTenantID(c), middleware.GetUserID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Get returns one conversation with resolved member names.
func (h *ConversationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conversation, err := h.conversations.FindOne(id, middleware.GetTenantID(c), middleware.GetUserID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// AddMembers adds participants; admin only.
func (h *ConversationHandler) AddMembers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req models.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	conversation, err := h.conversations.AddMembers(id, middleware.GetTenantID(c), middleware.GetUserID(c), req.Members)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// RemoveMember drops a participant. Members may leave on their own;
// removing someone else requires the admin role.
func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	targetID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.conversations.RemoveMember(id, middleware.GetTenantID(c), middleware.GetUserID(c), targetID); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// Update changes name or description; admin only.
func (h *ConversationHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req models.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	conversation, err := h.conversations.Update(id, middleware.GetTenantID(c), middleware.GetUserID(c), req)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// Delete deactivates the conversation; admin only.
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid conversation id")
		return
	}

	if err := h.conversations.Delete(id, middleware.GetTenantID(c), middleware.GetUserID(c)); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}
