package handler

import (
	"net/http"
	"strconv"

	"github.com/Baaaki/parley/internal/identity"
	"github.com/Baaaki/parley/internal/middleware"
	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/realtime"
	"github.com/Baaaki/parley/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageHandler is the REST face of a conversation. Every mutation is
// announced through the same router the live sessions use, so REST callers
// and websocket members see one stream of events.
type MessageHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	router        *realtime.Router
}

func NewMessageHandler(conversations *service.ConversationService, messages *service.MessageService, router *realtime.Router) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		router:        router,
	}
}

type SendMessageRequest struct {
	Text          string `json:"text"`
	HasAttachment bool   `json:"has_attachment"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required"`
}

// GET /api/conversations/:id/messages?before=<message_id>&limit=
func (h *MessageHandler) Page(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var before *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := identity.ParseStrict(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = &id
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	page, err := h.messages.Page(c.Request.Context(), scope, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := views(page)
	resp := gin.H{"messages": out, "count": len(out)}
	if len(page) > 0 {
		resp["next_before"] = page[len(page)-1].MessageID
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/conversations/:id/messages
func (h *MessageHandler) Send(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), scope, req.Text, req.HasAttachment)
	if err != nil {
		respondError(c, err)
		return
	}
	h.router.AnnounceCreated(c.Request.Context(), scope, msg)
	c.JSON(http.StatusCreated, gin.H{"message": realtime.NewMessageView(msg)})
}

// PATCH /api/conversations/:id/messages/:message_id
func (h *MessageHandler) Edit(c *gin.Context) {
	scope, messageID, ok := h.target(c)
	if !ok {
		return
	}
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), scope, messageID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	h.router.AnnounceEdited(c.Request.Context(), scope, msg)
	c.JSON(http.StatusOK, gin.H{"message": realtime.NewMessageView(msg)})
}

// DELETE /api/conversations/:id/messages/:message_id
func (h *MessageHandler) Delete(c *gin.Context) {
	scope, messageID, ok := h.target(c)
	if !ok {
		return
	}

	msg, err := h.messages.Delete(c.Request.Context(), scope, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.router.AnnounceDeleted(c.Request.Context(), scope, msg)
	c.JSON(http.StatusOK, gin.H{"message": realtime.NewMessageView(msg)})
}

// POST /api/conversations/:id/messages/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		id, err := identity.ParseStrict(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
			return
		}
		ids = append(ids, id)
	}

	marked, err := h.messages.MarkRead(c.Request.Context(), scope, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	h.router.AnnounceRead(c.Request.Context(), scope, marked)
	c.JSON(http.StatusOK, gin.H{"message_ids": marked})
}

// POST /api/conversations/:id/messages/:message_id/pin
func (h *MessageHandler) Pin(c *gin.Context) {
	h.setPinned(c, true)
}

// DELETE /api/conversations/:id/messages/:message_id/pin
func (h *MessageHandler) Unpin(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *MessageHandler) setPinned(c *gin.Context, pinned bool) {
	scope, messageID, ok := h.target(c)
	if !ok {
		return
	}

	var (
		msg *models.Message
		err error
	)
	if pinned {
		msg, err = h.messages.Pin(c.Request.Context(), scope, messageID)
	} else {
		msg, err = h.messages.Unpin(c.Request.Context(), scope, messageID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.router.AnnouncePin(c.Request.Context(), scope, msg)
	c.JSON(http.StatusOK, gin.H{"message": realtime.NewMessageView(msg)})
}

// GET /api/conversations/:id/pinned?limit=
func (h *MessageHandler) Pinned(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	pinned, err := h.messages.Pinned(c.Request.Context(), scope, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := views(pinned)
	c.JSON(http.StatusOK, gin.H{"messages": out, "count": len(out)})
}

// scope authorizes the caller for the :id conversation.
func (h *MessageHandler) scope(c *gin.Context) (service.Scope, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return service.Scope{}, false
	}
	conversationID, err := identity.ParseStrict(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return service.Scope{}, false
	}

	scope, err := h.conversations.Authorize(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, err)
		return service.Scope{}, false
	}
	return scope, true
}

func (h *MessageHandler) target(c *gin.Context) (service.Scope, uuid.UUID, bool) {
	scope, ok := h.scope(c)
	if !ok {
		return service.Scope{}, uuid.Nil, false
	}
	messageID, err := identity.ParseStrict(c.Param("message_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return service.Scope{}, uuid.Nil, false
	}
	return scope, messageID, true
}

// queryLimit parses ?limit=. Absent or zero means the service default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}

func views(msgs []models.Message) []*realtime.MessageView {
	out := make([]*realtime.MessageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, realtime.NewMessageView(&msgs[i]))
	}
	return out
}
