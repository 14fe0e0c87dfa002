package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgChatRepository struct {
	pool *pgxpool.Pool
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

const messageColumns = `id::text, conversation_id::text, sender_id::text, content, created_at, kind, file_url,
	chain_hash, chain_signer, chain_payload, chain_verified`

// ValidateID accepts only the canonical 36-character UUID form; every key
// column is cast to ::uuid.
func (r *PgChatRepository) ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%w: %q", chat.ErrInvalidID, id)
	}
	return nil
}

func (r *PgChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, errors.New("PgChatRepository: nil pool")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (kind, name, created_by)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, '')::uuid)
		RETURNING id::text, created_at
	`, string(c.Kind), c.Name, c.CreatedBy).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return chat.Conversation{}, err
	}
	for i := range c.Participants {
		c.Participants[i].ConversationID = c.ID
	}
	return c, nil
}

func (r *PgChatRepository) AddParticipants(ctx context.Context, ps []chat.Participant) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	if len(ps) == 0 {
		return nil
	}
	convIDs := make([]string, len(ps))
	userIDs := make([]string, len(ps))
	roles := make([]int16, len(ps))
	for i, p := range ps {
		convIDs[i] = p.ConversationID
		userIDs[i] = p.UserID
		roles[i] = int16(p.Role)
	}
	// A single statement keeps the participant rows all-or-nothing.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, role)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::smallint[])
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, convIDs, userIDs, roles)
	return err
}

func (r *PgChatRepository) ListConversationsByUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT c.id::text, c.kind, COALESCE(c.name, ''), COALESCE(c.created_by::text, ''), c.created_at,
		       lm.id::text, lm.sender_id::text, lm.content, lm.created_at, lm.kind, lm.file_url,
		       lm.chain_hash, lm.chain_signer, lm.chain_payload, lm.chain_verified
		FROM conversations c
		JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1::uuid
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, m.content, m.created_at, m.kind, m.file_url,
			       m.chain_hash, m.chain_signer, m.chain_payload, m.chain_verified
			FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON true
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		convs []chat.Conversation
		ids   []string
	)
	for rows.Next() {
		var (
			conv      chat.Conversation
			kind      string
			lmID      *string
			lmSender  *string
			lmContent *string
			lmCreated *time.Time
			lmKind    *string
			lmFileURL *string
			lmHash    *string
			lmSigner  *string
			lmPayload *string
			lmVerif   *bool
		)
		if err := rows.Scan(&conv.ID, &kind, &conv.Name, &conv.CreatedBy, &conv.CreatedAt,
			&lmID, &lmSender, &lmContent, &lmCreated, &lmKind, &lmFileURL,
			&lmHash, &lmSigner, &lmPayload, &lmVerif); err != nil {
			return nil, err
		}
		conv.Kind = chat.ConversationKind(kind)
		if lmID != nil {
			lm := chat.Message{
				ID:             *lmID,
				ConversationID: conv.ID,
				SenderID:       deref(lmSender),
				Content:        deref(lmContent),
				Kind:           chat.MessageKind(deref(lmKind)),
				FileURL:        lmFileURL,
				ChainProof:     toProof(lmHash, lmSigner, lmPayload),
				ChainVerified:  lmVerif != nil && *lmVerif,
			}
			if lmCreated != nil {
				lm.CreatedAt = *lmCreated
			}
			conv.LastMessage = &lm
		}
		convs = append(convs, conv)
		ids = append(ids, conv.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(convs) == 0 {
		return convs, nil
	}

	members, err := r.participantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Participants = members[convs[i].ID]
	}
	return convs, nil
}

func (r *PgChatRepository) participantsFor(ctx context.Context, conversationIDs []string) (map[string][]chat.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.conversation_id::text, p.user_id::text, p.role,
		       COALESCE(pr.username, ''), pr.display_name, pr.avatar_url, COALESCE(pr.status, '')
		FROM conversation_participants p
		LEFT JOIN profiles pr ON pr.user_id = p.user_id
		WHERE p.conversation_id = ANY($1::uuid[])
		ORDER BY p.joined_at ASC, p.user_id ASC
	`, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]chat.Participant, len(conversationIDs))
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Status); err != nil {
			return nil, err
		}
		out[p.ConversationID] = append(out[p.ConversationID], p.WithProfileDefaults())
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgChatRepository) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text FROM conversation_participants
		WHERE conversation_id = $1::uuid
		ORDER BY joined_at ASC, user_id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgChatRepository) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgChatRepository: nil pool")
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1::uuid AND user_id = $2::uuid
		)
	`, conversationID, userID).Scan(&ok)
	return ok, err
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errors.New("PgChatRepository: nil pool")
	}
	var hash, signer, payload *string
	if m.ChainProof != nil {
		hash = &m.ChainProof.Hash
		signer = nilIfEmpty(m.ChainProof.Signer)
		payload = nilIfEmpty(m.ChainProof.Payload)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (
			conversation_id, sender_id, content, kind, file_url, chain_hash, chain_signer, chain_payload
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8)
		RETURNING `+messageColumns,
		m.ConversationID, m.SenderID, m.Content, string(m.Kind), m.FileURL, hash, signer, payload)
	return scanMessage(row)
}

func (r *PgChatRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1::uuid`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Message{}, chat.ErrNotFound
	}
	return m, err
}

func (r *PgChatRepository) GetMessagesByConversation(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgChatRepository) MarkMessageVerified(ctx context.Context, id string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET chain_verified = true
		WHERE id = $1::uuid AND chain_hash IS NOT NULL AND chain_hash <> '' AND NOT chain_verified
	`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		m, err := r.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if !m.HasProof() {
			return chat.ErrVerifiedWithoutProof
		}
	}
	return nil
}

func scanMessage(row pgx.Row) (chat.Message, error) {
	var (
		msg     chat.Message
		kind    string
		hash    *string
		signer  *string
		payload *string
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &kind, &msg.FileURL,
		&hash, &signer, &payload, &msg.ChainVerified); err != nil {
		return chat.Message{}, err
	}
	msg.Kind = chat.MessageKind(kind)
	msg.ChainProof = toProof(hash, signer, payload)
	return msg, nil
}

func toProof(hash, signer, payload *string) *chat.ChainProof {
	if hash == nil || *hash == "" {
		return nil
	}
	return &chat.ChainProof{Hash: *hash, Signer: deref(signer), Payload: deref(payload)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
