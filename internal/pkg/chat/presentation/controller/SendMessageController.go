package controller

import (
	"context"
	"net/http"
	"time"

	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"

	"github.com/gin-gonic/gin"
)

// SignerLookup finds the wallet a user currently has connected, if any.
type SignerLookup interface {
	Signer(userID string) chat.Signer
}

// SendMessageController handles the send-message endpoint only (one controller per endpoint)
type SendMessageController struct {
	UC      *usecase.SendMessageUseCase
	Signers SignerLookup
}

func NewSendMessageController(uc *usecase.SendMessageUseCase, signers SignerLookup) *SendMessageController {
	return &SendMessageController{UC: uc, Signers: signers}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	SenderID string  `json:"sender_id" binding:"required"`
	Content  string  `json:"content"`
	Kind     string  `json:"kind"`
	FileURL  *string `json:"file_url"`
}

// Handle sends a message. If the sender has a wallet connected on a live
// socket, the message is signed through it first.
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, err := chat.ParseMessageKind(req.Kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := usecase.SendMessageInput{
			ConversationID: conversationID,
			SenderID:       req.SenderID,
			Content:        req.Content,
			Kind:           kind,
			FileURL:        req.FileURL,
		}
		if h.Signers != nil {
			in.Signer = h.Signers.Signer(req.SenderID)
		}

		// Signing may wait on the user's wallet, so allow for it.
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.UC.SignTimeout+3*time.Second)
		defer cancel()
		msg, err := h.UC.Execute(ctx, in)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, toPayload(*msg))
	}
}
