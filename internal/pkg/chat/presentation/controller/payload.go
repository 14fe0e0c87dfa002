package controller

import (
	"errors"
	"net/http"
	"time"

	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
)

// messagePayload is the wire form of a message, tier included.
type messagePayload struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	SenderID       string           `json:"sender_id"`
	Content        string           `json:"content"`
	CreatedAt      time.Time        `json:"created_at"`
	Kind           chat.MessageKind `json:"kind"`
	FileURL        *string          `json:"file_url,omitempty"`
	ChainProof     *chat.ChainProof `json:"chain_proof,omitempty"`
	ChainVerified  bool             `json:"chain_verified"`
	Tier           string           `json:"tier"`
}

func toPayload(msg chat.Message) messagePayload {
	return messagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		Kind:           msg.Kind,
		FileURL:        msg.FileURL,
		ChainProof:     msg.ChainProof,
		ChainVerified:  msg.ChainVerified,
		Tier:           chat.Classify(msg).String(),
	}
}

func toPayloads(msgs []chat.Message) []messagePayload {
	out := make([]messagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toPayload(m))
	}
	return out
}

// statusFor maps use case errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrPersistence), errors.Is(err, usecase.ErrPartialConversation):
		return http.StatusInternalServerError
	case errors.Is(err, chat.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// errorCode is the short code carried in websocket error frames.
func errorCode(err error) string {
	switch statusFor(err) {
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "bad_request"
	}
}
