package controller

import (
	"context"
	"net/http"
	"time"

	"brunox-chat/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
)

// ListParticipantsController returns the member IDs of a conversation.
type ListParticipantsController struct {
	UC *usecase.ListParticipantsUseCase
}

func NewListParticipantsController(uc *usecase.ListParticipantsUseCase) *ListParticipantsController {
	return &ListParticipantsController{UC: uc}
}

func (h *ListParticipantsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		ids, err := h.UC.Execute(ctx, usecase.ListParticipantsInput{
			ConversationID: c.Param("conversationId"),
			RequesterID:    c.Query("user_id"),
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": ids})
	}
}
