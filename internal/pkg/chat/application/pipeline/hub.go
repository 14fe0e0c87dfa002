package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

// subscriberBuffer bounds how far a session may lag before its stream is cut.
const subscriberBuffer = 256

// ErrHubStopped is returned by Subscribe when the hub has no upstream feed.
var ErrHubStopped = errors.New("pipeline: hub is not running")

// Hub holds the single upstream store subscription and fans events out to
// session streams. A session that falls behind by more than subscriberBuffer
// events has its stream closed, which it handles like a dropped feed.
type Hub struct {
	feed repository.MessageFeed
	log  zerolog.Logger

	mu      sync.Mutex
	subs    map[*hubSub]struct{}
	running bool
	done    chan struct{}
}

type hubSub struct {
	ch     chan chat.FeedEvent
	closed bool
}

var _ repository.MessageFeed = (*Hub)(nil)

func NewHub(feed repository.MessageFeed, log zerolog.Logger) *Hub {
	return &Hub{
		feed: feed,
		log:  log.With().Str("component", "feed_hub").Logger(),
		subs: make(map[*hubSub]struct{}),
	}
}

// Start subscribes upstream and fans out in the background until ctx ends or
// the upstream stream closes. Done is closed when that happens.
func (h *Hub) Start(ctx context.Context) error {
	events, err := h.feed.Subscribe(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.running = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range events {
			metrics.FeedEvents.WithLabelValues(string(ev.Op)).Inc()
			h.broadcast(ev)
		}
		if ctx.Err() == nil {
			metrics.FeedDrops.Inc()
			h.log.Warn().Msg("upstream change feed ended")
		}
		h.stop()
	}()
	return nil
}

// Done is closed once the current upstream subscription has ended.
func (h *Hub) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

// Supervise keeps the hub subscribed, restarting after drops with a fixed
// backoff, until ctx is canceled. Sessions cut off by a drop are not
// re-attached; they resynchronise on their next load.
func (h *Hub) Supervise(ctx context.Context, backoff time.Duration) {
	for {
		if err := h.Start(ctx); err != nil {
			h.log.Error().Err(err).Msg("failed to subscribe to change feed")
		} else {
			select {
			case <-h.Done():
			case <-ctx.Done():
				<-h.Done()
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// Subscribe opens a session stream closed on ctx cancel, on hub stop, or
// when the subscriber lags too far behind.
func (h *Hub) Subscribe(ctx context.Context) (<-chan chat.FeedEvent, error) {
	sub := &hubSub{ch: make(chan chat.FeedEvent, subscriberBuffer)}

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil, ErrHubStopped
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		h.closeLocked(sub)
		h.mu.Unlock()
	}()
	return sub.ch, nil
}

// Subscribers returns the number of open session streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) broadcast(ev chat.FeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().Msg("session stream lagging; closing it")
			h.closeLocked(sub)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	for sub := range h.subs {
		h.closeLocked(sub)
	}
}

func (h *Hub) closeLocked(sub *hubSub) {
	delete(h.subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
