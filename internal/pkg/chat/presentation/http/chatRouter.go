package http

import (
	"brunox-chat/internal/infrastructure/realtime"
	"brunox-chat/internal/pkg/chat/application/usecase"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
	"brunox-chat/internal/pkg/chat/presentation/controller"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the chat routes are built from.
type Deps struct {
	Repo      repository.ChatRepository
	Feed      repository.MessageFeed
	Directory *usecase.DirectoryCache
	Send      *usecase.SendMessageUseCase
	Router    *realtime.Router
	Log       zerolog.Logger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	getMessageUC := usecase.NewGetMessageUseCase(d.Repo)

	createCtl := controller.NewCreateDirectConversationController(usecase.NewCreateDirectConversationUseCase(d.Repo, d.Directory), d.Router)
	listCtl := controller.NewListConversationsController(usecase.NewListConversationsUseCase(d.Repo, d.Directory))
	getMsgCtl := controller.NewGetMessageController(getMessageUC)
	sendMsgCtl := controller.NewSendMessageController(d.Send, d.Router)
	participantsCtl := controller.NewListParticipantsController(usecase.NewListParticipantsUseCase(d.Repo))

	// POST /api/v1/conversations -> open a direct conversation
	g.POST("/conversations", createCtl.Handle())

	// GET /api/v1/conversations?user_id= -> a user's conversations, newest activity first
	g.GET("/conversations", listCtl.Handle())

	// GET /api/v1/conversations/:conversationId/messages -> full ordered message set
	g.GET("/conversations/:conversationId/messages", getMsgCtl.Handle())

	// POST /api/v1/conversations/:conversationId/messages -> send a message
	g.POST("/conversations/:conversationId/messages", sendMsgCtl.Handle())

	// GET /api/v1/conversations/:conversationId/participants -> member user ids
	g.GET("/conversations/:conversationId/participants", participantsCtl.Handle())
}

// RegisterSocket mounts the realtime endpoint.
func RegisterSocket(r gin.IRoutes, d Deps) {
	socketCtl := controller.NewChatSocketController(d.Router, d.Feed, d.Send, usecase.NewGetMessageUseCase(d.Repo), d.Log)

	// GET /ws?user_id= -> websocket endpoint for realtime chat
	r.GET("/ws", socketCtl.Handle())
}
