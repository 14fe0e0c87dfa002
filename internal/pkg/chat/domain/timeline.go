package chat

import "sort"

// FeedOp is the kind of row change carried by the live feed.
type FeedOp string

const (
	FeedOpInserted FeedOp = "inserted"
	FeedOpVerified FeedOp = "verified"
)

// FeedEvent is one change notification for the messages table.
type FeedEvent struct {
	Op      FeedOp
	Message Message
}

// Timeline is the observed, ordered message sequence of one conversation.
//
// Notes:
//   - Replace is a full reload: it orders by CreatedAt then ID and discards
//     whatever was there before.
//   - Append keeps arrival order. Live events are not re-sorted against each
//     other or against the loaded set; the next Replace reconciles.
//   - Message IDs are unique within a timeline; a repeated ID is a no-op.
//
// Not safe for concurrent use; the owning session serializes access.
type Timeline struct {
	ConversationID string

	messages []Message
	index    map[string]int // message ID -> position in messages
}

// NewTimeline constructs an empty timeline for conversationID.
func NewTimeline(conversationID string) *Timeline {
	return &Timeline{
		ConversationID: conversationID,
		index:          make(map[string]int),
	}
}

// SortMessages orders messages by CreatedAt ascending, ties broken by ID.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// Replace swaps the whole sequence with msgs. Messages of other conversations
// and repeated IDs are skipped.
func (t *Timeline) Replace(msgs []Message) {
	sorted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ConversationID == t.ConversationID {
			sorted = append(sorted, m)
		}
	}
	SortMessages(sorted)

	t.messages = make([]Message, 0, len(sorted))
	t.index = make(map[string]int, len(sorted))
	for _, m := range sorted {
		t.Append(m)
	}
}

// Append adds m at the end unless it belongs to another conversation or its
// ID is already present. It reports whether the timeline changed.
func (t *Timeline) Append(m Message) bool {
	if m.ID == "" || m.ConversationID != t.ConversationID {
		return false
	}
	if _, ok := t.index[m.ID]; ok {
		return false
	}
	t.index[m.ID] = len(t.messages)
	t.messages = append(t.messages, m)
	return true
}

// MarkVerified flips ChainVerified on a known message that carries a proof.
// It reports whether the timeline changed.
func (t *Timeline) MarkVerified(id string) bool {
	pos, ok := t.index[id]
	if !ok {
		return false
	}
	m := &t.messages[pos]
	if m.ChainVerified {
		return false
	}
	return m.MarkVerified() == nil
}

// Contains reports whether a message ID is already present.
func (t *Timeline) Contains(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Len returns the number of messages.
func (t *Timeline) Len() int { return len(t.messages) }

// Messages returns a copy of the ordered sequence.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
