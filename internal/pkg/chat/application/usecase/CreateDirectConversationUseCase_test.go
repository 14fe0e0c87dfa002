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

func TestCreateDirectConversation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	uc := usecase.NewCreateDirectConversationUseCase(repo, nil)

	conv, err := uc.Execute(ctx, usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: "bob"})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, chat.ConversationKindDirect, conv.Kind)
	require.Len(t, conv.Participants, 2)
	for _, p := range conv.Participants {
		assert.Equal(t, "Unknown", p.Username)
	}

	ids, err := repo.ListParticipantIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
}

func TestCreateDirectConversation_TwiceGivesDistinctConversations(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	uc := usecase.NewCreateDirectConversationUseCase(repo, nil)
	in := usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: "bob"}

	first, err := uc.Execute(ctx, in)
	require.NoError(t, err)
	second, err := uc.Execute(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	convs, err := repo.ListConversationsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestCreateDirectConversation_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := usecase.NewCreateDirectConversationUseCase(newRepo(), nil).Execute(ctx, usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: "alice"})
	assert.ErrorIs(t, err, chat.ErrSelfConversation)

	_, err = usecase.NewCreateDirectConversationUseCase(&failingRepo{ChatRepository: newRepo(), failCreate: true}, nil).
		Execute(ctx, usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: "bob"})
	assert.ErrorIs(t, err, usecase.ErrPersistence)
}

func TestCreateDirectConversation_PartialCreation(t *testing.T) {
	ctx := context.Background()
	mem := newRepo()
	uc := usecase.NewCreateDirectConversationUseCase(&failingRepo{ChatRepository: mem, failParticipants: true}, nil)

	conv, err := uc.Execute(ctx, usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: "bob"})
	require.ErrorIs(t, err, usecase.ErrPartialConversation)
	assert.Nil(t, conv)

	// The conversation row stays, but nobody can see it.
	convs, err := mem.ListConversationsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestCreateDirectConversation_MalformedIDWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := newRepo()
	repo := &uuidKeyedRepo{ChatRepository: mem}
	uc := usecase.NewCreateDirectConversationUseCase(repo, nil)
	alice := uuid.NewString()

	tests := []struct {
		name string
		in   usecase.CreateDirectConversationInput
	}{
		{"malformed other user", usecase.CreateDirectConversationInput{UserID: alice, OtherUserID: "bob"}},
		{"malformed creator", usecase.CreateDirectConversationInput{UserID: "alice", OtherUserID: uuid.NewString()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := uc.Execute(ctx, tt.in)
			require.ErrorIs(t, err, chat.ErrInvalidID)
			assert.NotErrorIs(t, err, usecase.ErrPartialConversation)
			assert.Nil(t, conv)
		})
	}
	assert.Zero(t, repo.writeCount(), "no conversation row is written for a bad request")

	conv, err := uc.Execute(ctx, usecase.CreateDirectConversationInput{UserID: alice, OtherUserID: uuid.NewString()})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, 2, repo.writeCount())
}
