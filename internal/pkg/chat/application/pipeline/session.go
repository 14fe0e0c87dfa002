package pipeline

import (
	"context"
	"errors"

	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

var (
	// ErrNoActiveConversation is returned by Send before any Open.
	ErrNoActiveConversation = errors.New("pipeline: no conversation is being observed")
	// ErrSessionClosed is returned once the session's Run has ended.
	ErrSessionClosed = errors.New("pipeline: session closed")
)

// EventKind tells observers what changed in the session view.
type EventKind string

const (
	EventLoaded      EventKind = "loaded"
	EventAppended    EventKind = "appended"
	EventVerified    EventKind = "verified"
	EventFeedDropped EventKind = "feed_dropped"
)

// Event is one change of the observed view. Messages holds the whole set for
// EventLoaded and the affected message otherwise. Live is the feed state when
// the event was applied.
type Event struct {
	Kind           EventKind
	ConversationID string
	Messages       []chat.Message
	Live           bool
}

// View is a snapshot of the session state.
type View struct {
	ConversationID string
	Messages       []chat.Message
	Live           bool
	Err            error
}

// SessionDeps are the collaborators of a Session.
type SessionDeps struct {
	Send *usecase.SendMessageUseCase
	Load *usecase.GetMessageUseCase
	Feed repository.MessageFeed
	// Signer is the user's wallet handle; nil disables signing.
	Signer chat.Signer
}

// Session is the per-user message pipeline. A single goroutine owns the
// observed timeline: feed events, load results and sent messages are all
// applied there, so no locking is needed around the timeline. Store I/O runs
// on the caller's goroutine; its result is applied only if the conversation
// it belongs to is still the active one when it arrives.
type Session struct {
	UserID string

	deps   SessionDeps
	log    zerolog.Logger
	ops    chan sessionOp
	events chan Event
	done   chan struct{}
}

type sessionOp struct {
	fn   func(*sessionState)
	done chan struct{}
}

type sessionState struct {
	active   string
	timeline *chat.Timeline
	live     bool
	err      error
}

func NewSession(userID string, deps SessionDeps, log zerolog.Logger) *Session {
	return &Session{
		UserID: userID,
		deps:   deps,
		log:    log.With().Str("component", "session").Str("user_id", userID).Logger(),
		ops:    make(chan sessionOp),
		events: make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the live feed and launches the coordinating goroutine.
// The subscription and the goroutine end with ctx.
func (s *Session) Start(ctx context.Context) error {
	stream, err := s.deps.Feed.Subscribe(ctx)
	if err != nil {
		close(s.done)
		close(s.events)
		return err
	}
	go s.loop(ctx, stream)
	return nil
}

// Run is Start followed by waiting for ctx to end.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Events streams view changes. Events are dropped if the reader falls behind
// by more than the buffer; View stays authoritative. Closed when the session stops.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) loop(ctx context.Context, stream <-chan chat.FeedEvent) {
	defer close(s.events)
	defer close(s.done)

	st := &sessionState{live: true}
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.ops:
			op.fn(st)
			close(op.done)
		case ev, ok := <-stream:
			if !ok {
				stream = nil
				st.live = false
				s.log.Warn().Msg("live feed dropped; waiting for reload")
				s.emit(Event{Kind: EventFeedDropped, ConversationID: st.active, Live: false})
				continue
			}
			s.applyFeed(st, ev)
		}
	}
}

func (s *Session) applyFeed(st *sessionState, ev chat.FeedEvent) {
	if st.timeline == nil || ev.Message.ConversationID != st.active {
		return
	}
	switch ev.Op {
	case chat.FeedOpInserted:
		if st.timeline.Append(ev.Message) {
			s.emit(Event{Kind: EventAppended, ConversationID: st.active, Messages: []chat.Message{ev.Message}, Live: st.live})
		}
	case chat.FeedOpVerified:
		if !st.timeline.Contains(ev.Message.ID) {
			return
		}
		if st.timeline.MarkVerified(ev.Message.ID) {
			s.emit(Event{Kind: EventVerified, ConversationID: st.active, Messages: []chat.Message{ev.Message}, Live: st.live})
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("event", string(ev.Kind)).Msg("session event dropped; reader is behind")
	}
}

// do runs fn on the coordinating goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func(*sessionState)) error {
	op := sessionOp{fn: fn, done: make(chan struct{})}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-op.done:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Open makes conversationID the observed conversation and fully reloads its
// messages, replacing whatever was shown before. Live events that arrived
// while the load was in flight are kept. The merged set is also emitted as
// EventLoaded ahead of any later live event, so readers of Events see a
// snapshot followed by the changes made after it.
func (s *Session) Open(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation_id is required")
	}
	if err := s.do(ctx, func(st *sessionState) {
		st.active = conversationID
		st.timeline = chat.NewTimeline(conversationID)
		st.err = nil
	}); err != nil {
		return nil, err
	}

	msgs, loadErr := s.deps.Load.Execute(ctx, usecase.GetMessageInput{ConversationID: conversationID, UserID: s.UserID})

	var view []chat.Message
	err := s.do(ctx, func(st *sessionState) {
		if st.active != conversationID {
			return
		}
		if loadErr != nil {
			st.err = loadErr
			return
		}
		arrived := st.timeline.Messages()
		st.timeline.Replace(msgs)
		for _, m := range arrived {
			st.timeline.Append(m)
		}
		view = st.timeline.Messages()
		s.emit(Event{Kind: EventLoaded, ConversationID: conversationID, Messages: view, Live: st.live})
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		return nil, err
	}
	if view == nil {
		// Superseded by a later Open; hand back what was loaded.
		return msgs, nil
	}
	return view, nil
}

// Send posts content to the observed conversation and appends the stored
// message to the view. The later feed echo of the same ID is a no-op.
func (s *Session) Send(ctx context.Context, content string) (*chat.Message, error) {
	var active string
	if err := s.do(ctx, func(st *sessionState) { active = st.active }); err != nil {
		return nil, err
	}
	if active == "" {
		return nil, ErrNoActiveConversation
	}
	return s.SendTo(ctx, usecase.SendMessageInput{ConversationID: active, Content: content})
}

// SendTo posts to an explicit conversation; the sender and signer are the session's.
func (s *Session) SendTo(ctx context.Context, in usecase.SendMessageInput) (*chat.Message, error) {
	in.SenderID = s.UserID
	in.Signer = s.deps.Signer
	msg, err := s.deps.Send.Execute(ctx, in)
	if err != nil {
		return nil, err
	}

	_ = s.do(ctx, func(st *sessionState) {
		if st.timeline == nil || st.active != msg.ConversationID {
			return
		}
		if st.timeline.Append(*msg) {
			s.emit(Event{Kind: EventAppended, ConversationID: st.active, Messages: []chat.Message{*msg}, Live: st.live})
		}
	})
	return msg, nil
}

// View returns a snapshot of the observed conversation.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.do(ctx, func(st *sessionState) {
		v = View{ConversationID: st.active, Live: st.live, Err: st.err}
		if st.timeline != nil {
			v.Messages = st.timeline.Messages()
		}
	})
	return v, err
}
