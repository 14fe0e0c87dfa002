package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"brunox-chat/internal/infrastructure/realtime"
	"brunox-chat/internal/pkg/chat/application/pipeline"
	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatSocketController handles the websocket endpoint. Each socket gets its
// own pipeline.Session fed by the shared change feed; the browser wallet on
// the other end of the socket signs outgoing messages.
type ChatSocketController struct {
	router          *realtime.Router
	feed            repository.MessageFeed
	sendMessageUC   *usecase.SendMessageUseCase
	getMessageUC    *usecase.GetMessageUseCase
	log             zerolog.Logger
	inflightTimeout time.Duration
}

func NewChatSocketController(router *realtime.Router, feed repository.MessageFeed, send *usecase.SendMessageUseCase, load *usecase.GetMessageUseCase, log zerolog.Logger) *ChatSocketController {
	return &ChatSocketController{
		router:          router,
		feed:            feed,
		sendMessageUC:   send,
		getMessageUC:    load,
		log:             log.With().Str("component", "chat_socket").Logger(),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth is added.
		return true
	},
}

type inboundFrame struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	FileURL        *string `json:"file_url,omitempty"`

	// wallet
	Address string `json:"address,omitempty"`

	// sign_result
	RequestID string `json:"request_id,omitempty"`
	Signature string `json:"signature,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type messagesFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Messages       []messagePayload `json:"messages"`
	Live           bool             `json:"live"`
}

type outboundMessage struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Message        messagePayload `json:"message"`
}

const defaultReadTimeout = 60 * time.Second

// socketState is what a single socket's handlers share.
type socketState struct {
	conn    *realtime.Connection
	session *pipeline.Session
	wg      sync.WaitGroup
}

// Handle upgrades HTTP connections to websocket and processes frames until the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			ctl.log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		conn := realtime.NewConnection(userID, ws)
		ctl.router.Attach(conn)

		session := pipeline.NewSession(userID, pipeline.SessionDeps{
			Send:   ctl.sendMessageUC,
			Load:   ctl.getMessageUC,
			Feed:   ctl.feed,
			Signer: conn.Wallet,
		}, ctl.log)
		st := &socketState{conn: conn, session: session}

		defer func() {
			cancel()
			ctl.router.Detach(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
			st.wg.Wait()
		}()

		if err := session.Start(ctx); err != nil {
			ctl.log.Error().Err(err).Str("user_id", userID).Msg("failed to start session")
			ctl.replyError(conn, "unavailable", "live feed unavailable")
			return
		}
		st.wg.Add(1)
		go func() {
			defer st.wg.Done()
			ctl.forwardEvents(conn, session)
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		_ = conn.SendJSON(ackFrame{Type: "connected"})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				ctl.log.Debug().Err(err).Str("user_id", userID).Msg("websocket read ended")
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, "bad_request", "invalid payload")
				continue
			}

			switch frame.Type {
			case "open":
				ctl.handleOpen(ctx, st, frame)
			case "message":
				// Signing waits on a sign_result frame read by this loop.
				st.wg.Add(1)
				go func(frame inboundFrame) {
					defer st.wg.Done()
					ctl.handleMessage(ctx, st, frame)
				}(frame)
			case "wallet":
				ctl.handleWallet(conn, frame)
			case "sign_result":
				if !conn.Wallet.Resolve(frame.RequestID, frame.Signature, frame.Rejected, frame.Error) {
					ctl.log.Debug().Str("request_id", frame.RequestID).Msg("sign result for unknown request")
				}
			default:
				ctl.replyError(conn, "unsupported_type", "unknown frame type")
			}
		}
	}
}

// handleOpen only answers failures; the loaded set reaches the client as a
// session event, in order with the live frames that follow it.
func (ctl *ChatSocketController) handleOpen(ctx context.Context, st *socketState, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(st.conn, "bad_request", "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	if _, err := st.session.Open(ctx, frame.ConversationID); err != nil {
		ctl.handleUseCaseError(st.conn, err)
	}
}

func (ctl *ChatSocketController) handleMessage(ctx context.Context, st *socketState, frame inboundFrame) {
	kind, err := chat.ParseMessageKind(frame.Kind)
	if err != nil {
		ctl.handleUseCaseError(st.conn, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.sendMessageUC.SignTimeout+ctl.inflightTimeout)
	defer cancel()

	var msg *chat.Message
	if frame.ConversationID == "" && kind == chat.MessageKindText && frame.FileURL == nil {
		msg, err = st.session.Send(ctx, frame.Content)
	} else {
		msg, err = st.session.SendTo(ctx, usecase.SendMessageInput{
			ConversationID: frame.ConversationID,
			Content:        frame.Content,
			Kind:           kind,
			FileURL:        frame.FileURL,
		})
	}
	if err != nil {
		ctl.handleUseCaseError(st.conn, err)
		return
	}

	// Messages to the observed conversation reach the client as session
	// events; anything else is acknowledged directly.
	view, err := st.session.View(ctx)
	if err == nil && view.ConversationID == msg.ConversationID {
		return
	}
	_ = st.conn.SendJSON(outboundMessage{Type: "message", ConversationID: msg.ConversationID, Message: toPayload(*msg)})
}

func (ctl *ChatSocketController) handleWallet(conn *realtime.Connection, frame inboundFrame) {
	if frame.Address == "" {
		conn.Wallet.Disconnect()
	} else {
		conn.Wallet.Connect(frame.Address)
	}
	_ = conn.SendJSON(gin.H{"type": "wallet", "connected": conn.Wallet.IsConnected(), "address": conn.Wallet.Address()})
}

// forwardEvents relays session changes to the socket until the session ends.
// Every view frame goes through here so the client sees them in session order.
func (ctl *ChatSocketController) forwardEvents(conn *realtime.Connection, session *pipeline.Session) {
	for ev := range session.Events() {
		switch ev.Kind {
		case pipeline.EventLoaded:
			_ = conn.SendJSON(messagesFrame{
				Type:           "messages",
				ConversationID: ev.ConversationID,
				Messages:       toPayloads(ev.Messages),
				Live:           ev.Live,
			})
		case pipeline.EventAppended, pipeline.EventVerified:
			frameType := "message"
			if ev.Kind == pipeline.EventVerified {
				frameType = "verified"
			}
			for _, m := range ev.Messages {
				_ = conn.SendJSON(outboundMessage{Type: frameType, ConversationID: ev.ConversationID, Message: toPayload(m)})
			}
		case pipeline.EventFeedDropped:
			_ = conn.SendJSON(ackFrame{Type: "feed_dropped", ConversationID: ev.ConversationID})
		}
	}
}

func (ctl *ChatSocketController) handleUseCaseError(conn *realtime.Connection, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoActiveConversation):
		ctl.replyError(conn, "bad_request", "open a conversation first")
	case errors.Is(err, usecase.ErrPersistence):
		ctl.replyError(conn, "internal_error", "unexpected persistence error")
	case errors.Is(err, chat.ErrNotParticipant):
		ctl.replyError(conn, "forbidden", "user is not a participant in this conversation")
	default:
		ctl.replyError(conn, errorCode(err), err.Error())
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code string, message string) {
	_ = conn.SendJSON(errorFrame{
		Type:  "error",
		Code:  code,
		Error: message,
	})
}
