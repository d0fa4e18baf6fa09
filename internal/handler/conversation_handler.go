package handler

import (
	"net/http"

	"github.com/Baaaki/parley/internal/identity"
	"github.com/Baaaki/parley/internal/middleware"
	"github.com/Baaaki/parley/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type StartDirectRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	convs, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

// POST /api/conversations/direct
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req StartDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	other, err := identity.Normalize(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	conv, created, err := h.conversations.StartDirect(c.Request.Context(), userID, other)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// POST /api/conversations/group
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Malformed ids are skipped like unknown users; an empty result is
	// rejected by the service.
	members := make([]uuid.UUID, 0, len(req.Participants))
	for _, raw := range req.Participants {
		id, err := identity.Normalize(raw)
		if err != nil {
			continue
		}
		members = append(members, id)
	}

	conv, err := h.conversations.CreateGroup(c.Request.Context(), userID, req.Name, members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}
