package controller

import (
	"context"
	"net/http"
	"time"

	"brunox-chat/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
)

// GetMessageController handles fetching the messages of a conversation (one controller per endpoint)
type GetMessageController struct {
	UC *usecase.GetMessageUseCase
}

func NewGetMessageController(uc *usecase.GetMessageUseCase) *GetMessageController {
	return &GetMessageController{UC: uc}
}

// Handle returns the whole ordered set; there is no paging. When user_id is
// given the caller must be a participant.
func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		in := usecase.GetMessageInput{ConversationID: conversationID, UserID: c.Query("user_id")}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, in)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		out := toPayloads(msgs)
		c.JSON(http.StatusOK, gin.H{
			"messages": out,
			"count":    len(out),
		})
	}
}
