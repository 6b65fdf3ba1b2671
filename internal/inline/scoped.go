// ABOUTME: Grant-scoped Client decorator limiting which chats a session can reach
// ABOUTME: Filters listings and rejects operations outside allowed spaces, DMs and home threads

package inline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/2389/inline-mcp/internal/auth"
)

// ErrChatNotAllowed is returned for a chat outside the grant's reach.
var ErrChatNotAllowed = errors.New("chat is not allowed by this grant")

// Scope is the part of a grant that decides chat visibility.
type Scope struct {
	SpaceIDs         []int64
	AllowDMs         bool
	AllowHomeThreads bool
}

// ScopeFromGrant extracts the chat visibility rules from g.
func ScopeFromGrant(g *auth.Grant) Scope {
	return Scope{
		SpaceIDs:         slices.Clone(g.AllowedSpaceIDs),
		AllowDMs:         g.AllowDMs,
		AllowHomeThreads: g.AllowHomeThreads,
	}
}

// Allows reports whether chat is reachable under the scope.
func (s Scope) Allows(chat *Chat) bool {
	switch chat.Kind() {
	case ChatKindSpace:
		return slices.Contains(s.SpaceIDs, *chat.SpaceID)
	case ChatKindDM:
		return s.AllowDMs
	default:
		return s.AllowHomeThreads
	}
}

// Scoped wraps a Client and enforces a Scope on every call.
type Scoped struct {
	next  Client
	scope Scope

	mu       sync.Mutex
	verified map[int64]*Chat
}

// NewScoped decorates next with scope.
func NewScoped(next Client, scope Scope) *Scoped {
	return &Scoped{next: next, scope: scope, verified: make(map[int64]*Chat)}
}

// ListChats returns only allowed chats.
func (s *Scoped) ListChats(ctx context.Context, p ListChatsParams) ([]Chat, error) {
	if p.SpaceID != nil && !slices.Contains(s.scope.SpaceIDs, *p.SpaceID) {
		return nil, fmt.Errorf("space %d: %w", *p.SpaceID, ErrChatNotAllowed)
	}
	chats, err := s.next.ListChats(ctx, p)
	if err != nil {
		return nil, err
	}
	out := chats[:0]
	for i := range chats {
		if s.scope.Allows(&chats[i]) {
			s.remember(&chats[i])
			out = append(out, chats[i])
		}
	}
	return out, nil
}

// GetChat resolves peer and rejects it when it is out of scope.
func (s *Scoped) GetChat(ctx context.Context, peer Peer) (*Chat, error) {
	if peer.ChatID != 0 {
		s.mu.Lock()
		chat, ok := s.verified[peer.ChatID]
		s.mu.Unlock()
		if ok {
			return chat, nil
		}
	}
	if peer.UserID != 0 && !s.scope.AllowDMs {
		return nil, fmt.Errorf("direct messages: %w", ErrChatNotAllowed)
	}

	chat, err := s.next.GetChat(ctx, peer)
	if err != nil {
		return nil, err
	}
	if !s.scope.Allows(chat) {
		return nil, fmt.Errorf("chat %d: %w", chat.ID, ErrChatNotAllowed)
	}
	s.remember(chat)
	return chat, nil
}

// CreateChat only creates chats in allowed spaces, or home threads when allowed.
func (s *Scoped) CreateChat(ctx context.Context, p CreateChatParams) (*Chat, error) {
	if p.SpaceID != nil {
		if !slices.Contains(s.scope.SpaceIDs, *p.SpaceID) {
			return nil, fmt.Errorf("space %d: %w", *p.SpaceID, ErrChatNotAllowed)
		}
	} else if !s.scope.AllowHomeThreads {
		return nil, fmt.Errorf("home threads: %w", ErrChatNotAllowed)
	}
	chat, err := s.next.CreateChat(ctx, p)
	if err != nil {
		return nil, err
	}
	s.remember(chat)
	return chat, nil
}

// ListMessages checks the peer before reading history.
func (s *Scoped) ListMessages(ctx context.Context, p ListMessagesParams) ([]Message, error) {
	if _, err := s.GetChat(ctx, p.Peer); err != nil {
		return nil, err
	}
	return s.next.ListMessages(ctx, p)
}

// SearchMessages checks the peer, or drops hits from unreachable chats when
// searching everywhere.
func (s *Scoped) SearchMessages(ctx context.Context, p SearchParams) ([]Message, error) {
	if p.Peer != (Peer{}) {
		if _, err := s.GetChat(ctx, p.Peer); err != nil {
			return nil, err
		}
		return s.next.SearchMessages(ctx, p)
	}

	hits, err := s.next.SearchMessages(ctx, p)
	if err != nil {
		return nil, err
	}
	allowed, err := s.allowedChatIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, m := range hits {
		if allowed[m.ChatID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListUnread returns unread messages from allowed chats only.
func (s *Scoped) ListUnread(ctx context.Context, p UnreadParams) ([]UnreadChat, error) {
	unread, err := s.next.ListUnread(ctx, p)
	if err != nil {
		return nil, err
	}
	out := unread[:0]
	for i := range unread {
		if s.scope.Allows(&unread[i].Chat) {
			out = append(out, unread[i])
		}
	}
	return out, nil
}

// MarkRead checks the peer, then addresses the chat the way the API expects:
// DMs by their other user, everything else by chat id.
func (s *Scoped) MarkRead(ctx context.Context, p MarkReadParams) error {
	chat, err := s.GetChat(ctx, p.Peer)
	if err != nil {
		return err
	}
	peer := Peer{ChatID: chat.ID}
	if chat.PeerUserID != nil {
		peer = Peer{UserID: *chat.PeerUserID}
	}
	return s.next.MarkRead(ctx, MarkReadParams{Peer: peer, MaxID: p.MaxID})
}

// UploadFile is not chat-bound and passes through.
func (s *Scoped) UploadFile(ctx context.Context, p UploadParams) (*UploadResult, error) {
	return s.next.UploadFile(ctx, p)
}

// SendMessage checks the peer before sending.
func (s *Scoped) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	if _, err := s.GetChat(ctx, p.Peer); err != nil {
		return nil, err
	}
	return s.next.SendMessage(ctx, p)
}

// Close closes the wrapped client.
func (s *Scoped) Close() error {
	return s.next.Close()
}

func (s *Scoped) remember(chat *Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chat
	s.verified[chat.ID] = &c
}

func (s *Scoped) allowedChatIDs(ctx context.Context) (map[int64]bool, error) {
	chats, err := s.ListChats(ctx, ListChatsParams{})
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(chats))
	for _, c := range chats {
		ids[c.ID] = true
	}
	return ids, nil
}
