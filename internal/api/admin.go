package api

import (
	"net/http"
	"strconv"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/service"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves moderation audit records
type AdminHandler struct {
	chat *service.ChatService
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(chat *service.ChatService) *AdminHandler {
	return &AdminHandler{chat: chat}
}

// ModerationLogs lists audit records, newest first
func (h *AdminHandler) ModerationLogs(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		c.Error(err)
		return
	}

	filter := store.ModerationLogFilter{Limit: limit, Offset: offset}
	switch v := models.ModerationVerdict(c.Query("verdict")); v {
	case "":
	case models.VerdictAllowed, models.VerdictBlocked:
		filter.Verdict = v
	default:
		c.Error(errors.NewValidationError("verdict must be allowed or blocked"))
		return
	}
	if raw := c.Query("sender_id"); raw != "" {
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			c.Error(errors.NewValidationError("sender_id must be a positive integer"))
			return
		}
		filter.SenderID = uint(id)
	}

	logs, err := h.chat.ModerationLogs(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	if logs == nil {
		logs = []models.ModerationLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
