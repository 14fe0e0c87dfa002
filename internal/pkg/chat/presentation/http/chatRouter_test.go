package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brunox-chat/internal/infrastructure/realtime"
	"brunox-chat/internal/infrastructure/wallet"
	"brunox-chat/internal/pkg/chat/application/pipeline"
	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
	"brunox-chat/internal/pkg/chat/persistence/repository/adapter"
	httpHandler "brunox-chat/internal/pkg/chat/presentation/http"
)

type testServer struct {
	engine *gin.Engine
	repo   *adapter.MemoryChatRepository
	router *realtime.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repo := adapter.NewMemoryChatRepository()
	hub := pipeline.NewHub(repo, zerolog.Nop())
	require.NoError(t, hub.Start(ctx))

	send := usecase.NewSendMessageUseCase(repo, zerolog.Nop())
	send.SignTimeout = time.Second
	router := realtime.NewRouter()
	t.Cleanup(router.Close)

	deps := httpHandler.Deps{Repo: repo, Feed: hub, Send: send, Router: router, Log: zerolog.Nop()}
	r := gin.New()
	httpHandler.RegisterRoutes(r.Group("/api/v1"), deps)
	httpHandler.RegisterSocket(r, deps)
	return &testServer{engine: r, repo: repo, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *testServer) createConversation(t *testing.T) string {
	t.Helper()
	w, out := s.do(t, http.MethodPost, "/api/v1/conversations", map[string]string{"user_id": "alice", "other_user_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHTTP_ConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	convID := s.createConversation(t)

	w, out := s.do(t, http.MethodPost, "/api/v1/conversations/"+convID+"/messages", map[string]string{"sender_id": "alice", "content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "hello", out["content"])
	assert.Equal(t, "unverified", out["tier"], "no wallet connected")

	w, out = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages?user_id=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["count"])

	w, out = s.do(t, http.MethodGet, "/api/v1/conversations?user_id=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	convs := out["conversations"].([]any)
	require.Len(t, convs, 1)
	last := convs[0].(map[string]any)["last_message"].(map[string]any)
	assert.Equal(t, "hello", last["content"])

	w, out = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []any{"alice", "bob"}, out["participants"])
}

func TestHTTP_Errors(t *testing.T) {
	s := newTestServer(t)
	convID := s.createConversation(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"self conversation", http.MethodPost, "/api/v1/conversations", map[string]string{"user_id": "alice", "other_user_id": "alice"}, http.StatusBadRequest},
		{"missing other user", http.MethodPost, "/api/v1/conversations", map[string]string{"user_id": "alice"}, http.StatusBadRequest},
		{"list without user", http.MethodGet, "/api/v1/conversations", nil, http.StatusBadRequest},
		{"empty content", http.MethodPost, "/api/v1/conversations/" + convID + "/messages", map[string]string{"sender_id": "alice", "content": "  "}, http.StatusBadRequest},
		{"bad kind", http.MethodPost, "/api/v1/conversations/" + convID + "/messages", map[string]string{"sender_id": "alice", "content": "x", "kind": "video"}, http.StatusBadRequest},
		{"outsider sends", http.MethodPost, "/api/v1/conversations/" + convID + "/messages", map[string]string{"sender_id": "mallory", "content": "x"}, http.StatusForbidden},
		{"outsider reads", http.MethodGet, "/api/v1/conversations/" + convID + "/messages?user_id=mallory", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

// socketClient wraps the client end of /ws.
type socketClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (s *testServer) dialSocket(t *testing.T, userID string) *socketClient {
	t.Helper()
	srv := httptest.NewServer(s.engine)
	t.Cleanup(srv.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?user_id="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	c := &socketClient{t: t, ws: ws}
	assert.Equal(t, "connected", c.next()["type"])
	return c
}

func (c *socketClient) send(frame map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(frame))
}

func (c *socketClient) next() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(c.t, c.ws.ReadJSON(&out))
	return out
}

// until reads frames until one has the given type.
func (c *socketClient) until(frameType string) map[string]any {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		f := c.next()
		if f["type"] == frameType {
			return f
		}
	}
	c.t.Fatalf("no %q frame", frameType)
	return nil
}

func TestSocket_SignedMessageFlow(t *testing.T) {
	s := newTestServer(t)
	convID := s.createConversation(t)

	alice := s.dialSocket(t, "alice")
	bob := s.dialSocket(t, "bob")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	browserWallet := wallet.NewKeySignerFromKey(key)

	alice.send(map[string]any{"type": "wallet", "address": browserWallet.Address()})
	assert.Equal(t, true, alice.until("wallet")["connected"])

	alice.send(map[string]any{"type": "open", "conversation_id": convID})
	opened := alice.until("messages")
	assert.Empty(t, opened["messages"])
	bob.send(map[string]any{"type": "open", "conversation_id": convID})
	bob.until("messages")

	alice.send(map[string]any{"type": "message", "content": "hello"})

	req := alice.until("sign_request")
	payload := req["message"].(string)
	assert.True(t, strings.HasPrefix(payload, "hello:"))
	sig, err := browserWallet.Sign(context.Background(), payload)
	require.NoError(t, err)
	alice.send(map[string]any{"type": "sign_result", "request_id": req["request_id"], "signature": sig})

	mine := alice.until("message")["message"].(map[string]any)
	assert.Equal(t, "pending", mine["tier"])

	theirs := bob.until("message")["message"].(map[string]any)
	assert.Equal(t, mine["id"], theirs["id"])
	assert.Equal(t, "alice", theirs["sender_id"])
	assert.Equal(t, "pending", theirs["tier"])
}

func TestSocket_RejectedSignatureStillSends(t *testing.T) {
	s := newTestServer(t)
	convID := s.createConversation(t)
	alice := s.dialSocket(t, "alice")

	alice.send(map[string]any{"type": "wallet", "address": "0x00000000000000000000000000000000000000aa"})
	alice.until("wallet")
	alice.send(map[string]any{"type": "open", "conversation_id": convID})
	alice.until("messages")

	alice.send(map[string]any{"type": "message", "content": "hi"})
	req := alice.until("sign_request")
	alice.send(map[string]any{"type": "sign_result", "request_id": req["request_id"], "rejected": true})

	msg := alice.until("message")["message"].(map[string]any)
	assert.Equal(t, "hi", msg["content"])
	assert.Equal(t, "unverified", msg["tier"])
}

func TestSocket_Errors(t *testing.T) {
	s := newTestServer(t)
	alice := s.dialSocket(t, "alice")

	alice.send(map[string]any{"type": "message", "content": "nowhere"})
	assert.Equal(t, "bad_request", alice.until("error")["code"])

	alice.send(map[string]any{"type": "open", "conversation_id": "not-mine"})
	assert.Equal(t, "forbidden", alice.until("error")["code"])

	alice.send(map[string]any{"type": "dance"})
	assert.Equal(t, "unsupported_type", alice.until("error")["code"])
}

func TestSocket_ConversationCreatedIsPushed(t *testing.T) {
	s := newTestServer(t)
	bob := s.dialSocket(t, "bob")
	require.Eventually(t, func() bool { return s.router.Count() == 1 }, time.Second, 5*time.Millisecond)

	convID := s.createConversation(t)
	frame := bob.until("conversation_created")
	assert.Equal(t, convID, frame["conversation"].(map[string]any)["id"])
}

func TestSocket_SnapshotArrivesBeforeLaterLiveFrames(t *testing.T) {
	s := newTestServer(t)
	convID := s.createConversation(t)
	alice := s.dialSocket(t, "alice")
	require.Eventually(t, func() bool { return s.router.Count() == 1 }, time.Second, 5*time.Millisecond)

	alice.send(map[string]any{"type": "open", "conversation_id": convID})
	go func() {
		_, _ = s.repo.SaveMessage(context.Background(), chat.Message{ConversationID: convID, SenderID: "bob", Content: "racing", Kind: chat.MessageKindText})
	}()

	sawSnapshot := false
	for i := 0; i < 10; i++ {
		f := alice.next()
		switch f["type"] {
		case "messages":
			sawSnapshot = true
			for _, m := range f["messages"].([]any) {
				if m.(map[string]any)["content"] == "racing" {
					return
				}
			}
		case "message":
			require.True(t, sawSnapshot, "live frame delivered before the snapshot")
			if f["message"].(map[string]any)["content"] == "racing" {
				return
			}
		}
	}
	t.Fatal("message never reached the client")
}
