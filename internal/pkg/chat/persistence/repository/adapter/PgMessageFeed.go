package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"brunox-chat/internal/infrastructure/database"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PgMessageFeed turns messages-table NOTIFY payloads into feed events.
// Payloads carry only the row id; the row is re-read so content size never
// hits the NOTIFY payload limit.
type PgMessageFeed struct {
	pool *pgxpool.Pool
	repo *PgChatRepository
	log  zerolog.Logger
}

var _ repository.MessageFeed = (*PgMessageFeed)(nil)

func NewPgMessageFeed(pool *pgxpool.Pool, log zerolog.Logger) *PgMessageFeed {
	return &PgMessageFeed{
		pool: pool,
		repo: NewPgChatRepository(pool),
		log:  log.With().Str("component", "pg_message_feed").Logger(),
	}
}

type notification struct {
	Op             string `json:"op"`
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

func (f *PgMessageFeed) Subscribe(ctx context.Context) (<-chan chat.FeedEvent, error) {
	if f == nil || f.pool == nil {
		return nil, errors.New("PgMessageFeed: nil pool")
	}
	payloads, err := database.Listen(ctx, f.pool, database.MessageChannel, f.log)
	if err != nil {
		return nil, err
	}

	out := make(chan chat.FeedEvent, 64)
	go func() {
		defer close(out)
		for payload := range payloads {
			var n notification
			if err := json.Unmarshal([]byte(payload), &n); err != nil || n.ID == "" {
				f.log.Warn().Str("payload", payload).Msg("skipping malformed notification")
				continue
			}
			msg, err := f.repo.GetMessage(ctx, n.ID)
			if err != nil {
				f.log.Warn().Err(err).Str("message_id", n.ID).Msg("failed to load notified message")
				continue
			}
			ev := chat.FeedEvent{Op: chat.FeedOp(n.Op), Message: msg}
			if ev.Op != chat.FeedOpVerified {
				ev.Op = chat.FeedOpInserted
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
