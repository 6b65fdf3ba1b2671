// ABOUTME: Tests for grant scoping of the chat client
// ABOUTME: Covers listing filters, per-chat rejection, chat creation rules and the factory

package inline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inline-mcp/internal/auth"
)

func int64Ptr(v int64) *int64 { return &v }

func newScopedFixture(scope Scope) (*Scoped, *MockClient) {
	mock := NewMockClient()
	mock.AddChat(Chat{ID: 1, Title: "allowed space", SpaceID: int64Ptr(10)})
	mock.AddChat(Chat{ID: 2, Title: "other space", SpaceID: int64Ptr(20)})
	mock.AddChat(Chat{ID: 3, Title: "dm", PeerUserID: int64Ptr(99)})
	mock.AddChat(Chat{ID: 4, Title: "home"})
	mock.Messages[1] = []Message{{ID: 11, ChatID: 1, Text: "deploy today"}}
	mock.Messages[2] = []Message{{ID: 21, ChatID: 2, Text: "deploy secret"}}
	return NewScoped(mock, scope), mock
}

func TestScope_Allows(t *testing.T) {
	s := Scope{SpaceIDs: []int64{10}, AllowDMs: true}
	assert.True(t, s.Allows(&Chat{SpaceID: int64Ptr(10)}))
	assert.False(t, s.Allows(&Chat{SpaceID: int64Ptr(20)}))
	assert.True(t, s.Allows(&Chat{PeerUserID: int64Ptr(1)}))
	assert.False(t, s.Allows(&Chat{}))
}

func TestScoped_ListChatsFilters(t *testing.T) {
	s, _ := newScopedFixture(Scope{SpaceIDs: []int64{10}, AllowHomeThreads: true})

	chats, err := s.ListChats(context.Background(), ListChatsParams{})
	require.NoError(t, err)
	var ids []int64
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{1, 4}, ids)

	_, err = s.ListChats(context.Background(), ListChatsParams{SpaceID: int64Ptr(20)})
	assert.ErrorIs(t, err, ErrChatNotAllowed)
}

func TestScoped_RejectsOutOfScopeChat(t *testing.T) {
	s, mock := newScopedFixture(Scope{SpaceIDs: []int64{10}})
	ctx := context.Background()

	_, err := s.SendMessage(ctx, SendMessageParams{Peer: Peer{ChatID: 2}, Text: "x"})
	assert.ErrorIs(t, err, ErrChatNotAllowed)

	_, err = s.SendMessage(ctx, SendMessageParams{Peer: Peer{UserID: 99}, Text: "x"})
	assert.ErrorIs(t, err, ErrChatNotAllowed)

	_, err = s.ListMessages(ctx, ListMessagesParams{Peer: Peer{ChatID: 4}})
	assert.ErrorIs(t, err, ErrChatNotAllowed)

	assert.Empty(t, mock.Sent)

	msg, err := s.SendMessage(ctx, SendMessageParams{Peer: Peer{ChatID: 1}, Text: "ok"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ChatID)
}

func TestScoped_DMAllowed(t *testing.T) {
	s, _ := newScopedFixture(Scope{AllowDMs: true})
	chat, err := s.GetChat(context.Background(), Peer{UserID: 99})
	require.NoError(t, err)
	assert.Equal(t, int64(3), chat.ID)
}

func TestScoped_SearchEverywhereDropsHidden(t *testing.T) {
	s, _ := newScopedFixture(Scope{SpaceIDs: []int64{10}})

	hits, err := s.SearchMessages(context.Background(), SearchParams{Query: "deploy"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(11), hits[0].ID)

	_, err = s.SearchMessages(context.Background(), SearchParams{Peer: Peer{ChatID: 2}, Query: "deploy"})
	assert.ErrorIs(t, err, ErrChatNotAllowed)
}

func TestScoped_ListUnreadFilters(t *testing.T) {
	s, mock := newScopedFixture(Scope{SpaceIDs: []int64{10}})
	mock.Unread = []UnreadChat{
		{Chat: Chat{ID: 1, SpaceID: int64Ptr(10)}, Messages: []Message{{ID: 12}}},
		{Chat: Chat{ID: 3, PeerUserID: int64Ptr(99)}, Messages: []Message{{ID: 31}}},
	}

	unread, err := s.ListUnread(context.Background(), UnreadParams{})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, int64(1), unread[0].Chat.ID)
}

func TestScoped_MarkRead(t *testing.T) {
	s, mock := newScopedFixture(Scope{SpaceIDs: []int64{10}, AllowDMs: true})
	ctx := context.Background()

	require.NoError(t, s.MarkRead(ctx, MarkReadParams{Peer: Peer{ChatID: 1}, MaxID: int64Ptr(11)}))
	require.NoError(t, s.MarkRead(ctx, MarkReadParams{Peer: Peer{ChatID: 3}}))

	err := s.MarkRead(ctx, MarkReadParams{Peer: Peer{ChatID: 2}})
	assert.ErrorIs(t, err, ErrChatNotAllowed)

	require.Len(t, mock.Read, 2)
	assert.Equal(t, Peer{ChatID: 1}, mock.Read[0].Peer)
	assert.Equal(t, int64(11), *mock.Read[0].MaxID)
	assert.Equal(t, Peer{UserID: 99}, mock.Read[1].Peer)
	assert.Nil(t, mock.Read[1].MaxID)
}

func TestScoped_CreateChat(t *testing.T) {
	s, mock := newScopedFixture(Scope{SpaceIDs: []int64{10}})
	ctx := context.Background()

	_, err := s.CreateChat(ctx, CreateChatParams{Title: "home"})
	assert.ErrorIs(t, err, ErrChatNotAllowed)
	_, err = s.CreateChat(ctx, CreateChatParams{Title: "x", SpaceID: int64Ptr(20)})
	assert.ErrorIs(t, err, ErrChatNotAllowed)

	chat, err := s.CreateChat(ctx, CreateChatParams{Title: "ok", SpaceID: int64Ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, "ok", chat.Title)
	assert.Len(t, mock.Created, 1)

	// Created chats are reachable without another lookup.
	_, err = s.SendMessage(ctx, SendMessageParams{Peer: Peer{ChatID: chat.ID}, Text: "first"})
	require.NoError(t, err)
}

func TestScoped_CloseDelegates(t *testing.T) {
	s, mock := newScopedFixture(Scope{})
	require.NoError(t, s.Close())
	assert.Equal(t, 1, mock.ClosedCount())
}

func TestFactory_NewClient(t *testing.T) {
	f := &Factory{BaseURL: "https://api.inline.chat/v1"}

	_, err := f.NewClient(&auth.Grant{ID: "g", InlineUserID: 5})
	assert.True(t, errors.Is(err, ErrInvalidGrant))
	_, err = f.NewClient(nil)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	c, err := f.NewClient(&auth.Grant{ID: "g", InlineUserID: 5, InlineToken: "tok", AllowedSpaceIDs: []int64{1}})
	require.NoError(t, err)
	scoped, ok := c.(*Scoped)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, scoped.scope.SpaceIDs)
	require.NoError(t, c.Close())
}
