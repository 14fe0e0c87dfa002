package usecase_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
)

func TestSendMessage_SignedIsPending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	convID := seedConversation(t, repo)
	sched := &recordingScheduler{}
	uc := newSendUC(repo)
	uc.Scheduler = sched
	signer := &stubSigner{connected: true, signature: "0xabc", address: "0xAlice"}

	msg, err := uc.Execute(ctx, usecase.SendMessageInput{ConversationID: convID, SenderID: "alice", Content: "hello", Signer: signer})
	require.NoError(t, err)

	require.NotNil(t, msg.ChainProof)
	assert.Equal(t, "0xabc", msg.ChainProof.Hash)
	assert.Equal(t, "0xAlice", msg.ChainProof.Signer)
	assert.False(t, msg.ChainVerified)
	assert.Equal(t, chat.TierPending, chat.Classify(*msg))
	assert.Equal(t, []string{"hello:1714564800000"}, signer.signed())
	assert.Equal(t, []string{msg.ID}, sched.ids)

	stored, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.TierPending, chat.Classify(stored))
}

func TestSendMessage_DisconnectedWalletIsUnverified(t *testing.T) {
	repo := newRepo()
	convID := seedConversation(t, repo)
	sched := &recordingScheduler{}
	uc := newSendUC(repo)
	uc.Scheduler = sched
	signer := &stubSigner{connected: false, signature: "0xabc"}

	msg, err := uc.Execute(context.Background(), usecase.SendMessageInput{ConversationID: convID, SenderID: "alice", Content: "hi", Signer: signer})
	require.NoError(t, err)

	assert.Nil(t, msg.ChainProof)
	assert.Equal(t, chat.TierUnverified, chat.Classify(*msg))
	assert.Empty(t, signer.signed(), "a disconnected wallet is never asked")
	assert.Empty(t, sched.ids)
}

func TestSendMessage_SigningFailuresStillSend(t *testing.T) {
	tests := []struct {
		name   string
		signer chat.Signer
	}{
		{name: "no wallet", signer: nil},
		{name: "rejected", signer: &stubSigner{connected: true, err: chat.ErrSignRejected}},
		{name: "provider error", signer: &stubSigner{connected: true, err: chat.ErrSignerUnavailable}},
		{name: "empty signature", signer: &stubSigner{connected: true}},
		{name: "timeout", signer: &stubSigner{connected: true, block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			convID := seedConversation(t, repo)
			uc := newSendUC(repo)

			msg, err := uc.Execute(ctx, usecase.SendMessageInput{ConversationID: convID, SenderID: "alice", Content: "hi", Signer: tt.signer})
			require.NoError(t, err)
			assert.Equal(t, chat.TierUnverified, chat.Classify(*msg))

			msgs, err := repo.GetMessagesByConversation(ctx, convID)
			require.NoError(t, err)
			assert.Len(t, msgs, 1, "exactly one message persisted")
		})
	}
}

func TestSendMessage_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	mem := newRepo()
	convID := seedConversation(t, mem)
	uc := newSendUC(&failingRepo{ChatRepository: mem, failSave: true})

	msg, err := uc.Execute(ctx, usecase.SendMessageInput{ConversationID: convID, SenderID: "alice", Content: "hi"})
	require.ErrorIs(t, err, usecase.ErrPersistence)
	assert.Nil(t, msg)

	msgs, err := mem.GetMessagesByConversation(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendMessage_Validation(t *testing.T) {
	repo := newRepo()
	convID := seedConversation(t, repo)
	uc := newSendUC(repo)
	signer := &stubSigner{connected: true, signature: "0xabc"}

	_, err := uc.Execute(context.Background(), usecase.SendMessageInput{ConversationID: convID, SenderID: "alice", Content: "   ", Signer: signer})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = uc.Execute(context.Background(), usecase.SendMessageInput{ConversationID: convID, SenderID: "mallory", Content: "hi", Signer: signer})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	assert.Empty(t, signer.signed(), "nothing is signed for a rejected send")
}

func TestSendMessage_SchedulerFailureIsBestEffort(t *testing.T) {
	repo := newRepo()
	convID := seedConversation(t, repo)
	uc := newSendUC(repo)
	uc.Scheduler = &recordingScheduler{err: errStoreDown}

	msg, err := uc.Execute(context.Background(), usecase.SendMessageInput{
		ConversationID: convID, SenderID: "alice", Content: "hi",
		Signer: &stubSigner{connected: true, signature: "0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, chat.TierPending, chat.Classify(*msg))
}

func TestSendMessage_MalformedSenderIsInvalidInput(t *testing.T) {
	ctx := context.Background()
	repo := &uuidKeyedRepo{ChatRepository: newRepo()}
	uc := newSendUC(repo)

	_, err := uc.Execute(ctx, usecase.SendMessageInput{ConversationID: uuid.NewString(), SenderID: "not-a-uuid", Content: "hi"})
	require.ErrorIs(t, err, chat.ErrInvalidID)
	assert.NotErrorIs(t, err, usecase.ErrPersistence)
	assert.Zero(t, repo.writeCount())
}
