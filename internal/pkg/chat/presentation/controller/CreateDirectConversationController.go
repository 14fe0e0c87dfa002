package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"brunox-chat/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
)

// UserNotifier pushes a payload to a user's live socket, if there is one.
type UserNotifier interface {
	NotifyUser(userID string, payload []byte) bool
}

// CreateDirectConversationController handles the conversation creation endpoint
type CreateDirectConversationController struct {
	UC       *usecase.CreateDirectConversationUseCase
	Notifier UserNotifier
}

func NewCreateDirectConversationController(uc *usecase.CreateDirectConversationUseCase, notifier UserNotifier) *CreateDirectConversationController {
	return &CreateDirectConversationController{UC: uc, Notifier: notifier}
}

type createDirectConversationRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	OtherUserID string `json:"other_user_id" binding:"required"`
}

func (h *CreateDirectConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDirectConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		conv, err := h.UC.Execute(ctx, usecase.CreateDirectConversationInput{
			UserID:      req.UserID,
			OtherUserID: req.OtherUserID,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		if h.Notifier != nil {
			if payload, err := json.Marshal(gin.H{"type": "conversation_created", "conversation": conv}); err == nil {
				for _, p := range conv.Participants {
					h.Notifier.NotifyUser(p.UserID, payload)
				}
			}
		}

		c.JSON(http.StatusCreated, conv)
	}
}
