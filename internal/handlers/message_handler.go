package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sekolahub/backend/internal/middleware"
	"github.com/sekolahub/backend/internal/models"
	"github.com/sekolahub/backend/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Send creates a direct or conversation message.
func (h *MessageHandler) Send(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.messages.Send(middleware.GetTenantID(c), middleware.GetUserID(c), req)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// List returns a filtered, paginated folder view.
func (h *MessageHandler) List(c *gin.Context) {
	var filter models.MessageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.messages.FindAll(middleware.GetTenantID(c), middleware.GetUserID(c), filter)
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Get returns one message; opening it as the receiver marks it read.
func (h *MessageHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid message id")
		return
	}

	message, err := h.messages.View(id, middleware.GetTenantID(c), middleware.GetUserID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// MarkRead flags an inbox message as read. Safe to call twice.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.messages.MarkAsRead(id, middleware.GetTenantID(c), middleware.GetUserID(c)); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

// Archive moves an inbox message out of the active folder.
func (h *MessageHandler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.messages.Archive(id, middleware.GetTenantID(c), middleware.GetUserID(c)); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "archived"})
}

// Delete removes a message the caller sent or received.
func (h *MessageHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.messages.Delete(id, middleware.GetTenantID(c), middleware.GetUserID(c)); err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// UnreadCount returns the caller's unread inbox total.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count, err := h.messages.UnreadCount(middleware.GetTenantID(c), middleware.GetUserID(c))
	if err != nil {
		DomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
