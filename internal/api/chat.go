package api

import (
	"net/http"
	"strconv"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/service"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the polling path and HTTP variants of the socket
// events.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler creates a chat handler
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	To       string `json:"to" binding:"required"`
	Content  string `json:"content" binding:"required"`
	ClientID string `json:"client_id"`
}

// RegisterRoutes mounts the chat routes on an authenticated group
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.SendMessage)
	rg.GET("/conversations", h.ListConversations)
	rg.GET("/conversations/:id/messages", h.ListMessages)
	rg.POST("/conversations/:id/read", h.MarkRead)
}

// SendMessage runs the message pipeline without an originating socket
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError(errors.CodeUnauthorized, "authentication required"))
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid message request").WithDetails(err.Error()))
		return
	}

	res, err := h.chat.Submit(c.Request.Context(), nil, service.SubmitRequest{
		SenderID: userID,
		To:       req.To,
		Content:  req.Content,
		ClientID: req.ClientID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	if res.Blocked {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"status":    "blocked",
			"client_id": req.ClientID,
			"reason":    res.Reason,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":         "accepted",
		"client_id":      req.ClientID,
		"message":        res.Message,
		"delivered_live": res.DeliveredLive,
	})
}

// ListConversations returns the caller's conversations, most recent first
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	limit, offset, err := pagination(c)
	if err != nil {
		c.Error(err)
		return
	}

	summaries, err := h.chat.Conversations(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// ListMessages pages backwards through a conversation
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	convID, err := uintParam(c, "id")
	if err != nil {
		c.Error(err)
		return
	}
	limit, _, err := pagination(c)
	if err != nil {
		c.Error(err)
		return
	}
	var before uint
	if raw := c.Query("before_id"); raw != "" {
		v, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			c.Error(errors.NewValidationError("before_id must be a positive integer"))
			return
		}
		before = uint(v)
	}

	msgs, err := h.chat.Messages(c.Request.Context(), userID, convID, store.MessageQuery{BeforeID: before, Limit: limit})
	if err != nil {
		c.Error(err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead acknowledges every message addressed to the caller
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	convID, err := uintParam(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.chat.MarkRead(c.Request.Context(), userID, convID)
	if err != nil {
		c.Error(err)
		return
	}

	ids := make([]uint, 0, len(res.Changed))
	for _, m := range res.Changed {
		ids = append(ids, m.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": res.Conversation.SummaryFor(userID),
		"read":         ids,
	})
}

func uintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errors.NewValidationError(name + " must be a positive integer")
	}
	return uint(v), nil
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, errors.NewValidationError("limit must be a non-negative integer")
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, errors.NewValidationError("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
