// ABOUTME: In-memory Client implementation for tests
// ABOUTME: Holds chats and messages in maps and records every send, upload and read marker

package inline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrMockNotFound is returned by MockClient for unknown chats.
var ErrMockNotFound = errors.New("not found")

// MockClient is an in-memory Client. Fields may be set before use; methods
// are safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	Chats    map[int64]*Chat
	Messages map[int64][]Message
	Unread   []UnreadChat

	Sent    []SendMessageParams
	Uploads []UploadParams
	Created []CreateChatParams
	Read    []MarkReadParams

	// SendErr, when set, fails sends whose text equals the key.
	SendErr   map[string]error
	UploadErr error

	nextMessageID int64
	nextUploadID  int64
	nextChatID    int64
	closed        int
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		Chats:         make(map[int64]*Chat),
		Messages:      make(map[int64][]Message),
		SendErr:       make(map[string]error),
		nextMessageID: 1000,
		nextUploadID:  500,
		nextChatID:    100,
	}
}

// AddChat registers chat.
func (m *MockClient) AddChat(chat Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := chat
	m.Chats[chat.ID] = &c
}

// ClosedCount returns how many times Close was called.
func (m *MockClient) ClosedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockClient) ListChats(ctx context.Context, p ListChatsParams) ([]Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chat, 0, len(m.Chats))
	for _, c := range m.Chats {
		if p.SpaceID != nil && (c.SpaceID == nil || *c.SpaceID != *p.SpaceID) {
			continue
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Chat) int { return int(a.ID - b.ID) })
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *MockClient) GetChat(ctx context.Context, peer Peer) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(peer)
}

func (m *MockClient) lookup(peer Peer) (*Chat, error) {
	if err := peer.Validate(); err != nil {
		return nil, err
	}
	for _, c := range m.Chats {
		if (peer.ChatID != 0 && c.ID == peer.ChatID) ||
			(peer.UserID != 0 && c.PeerUserID != nil && *c.PeerUserID == peer.UserID) {
			out := *c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("chat: %w", ErrMockNotFound)
}

func (m *MockClient) CreateChat(ctx context.Context, p CreateChatParams) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChatID++
	c := &Chat{ID: m.nextChatID, Title: p.Title, Emoji: p.Emoji, SpaceID: p.SpaceID, IsPublic: p.IsPublic}
	m.Chats[c.ID] = c
	m.Created = append(m.Created, p)
	out := *c
	return &out, nil
}

func (m *MockClient) ListMessages(ctx context.Context, p ListMessagesParams) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, err := m.lookup(p.Peer)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, msg := range m.Messages[chat.ID] {
		if p.Since != nil && msg.Date < *p.Since {
			continue
		}
		if p.Until != nil && msg.Date > *p.Until {
			continue
		}
		out = append(out, msg)
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[len(out)-p.Limit:]
	}
	return out, nil
}

func (m *MockClient) SearchMessages(ctx context.Context, p SearchParams) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chatIDs []int64
	if p.Peer != (Peer{}) {
		chat, err := m.lookup(p.Peer)
		if err != nil {
			return nil, err
		}
		chatIDs = []int64{chat.ID}
	} else {
		for id := range m.Messages {
			chatIDs = append(chatIDs, id)
		}
		slices.Sort(chatIDs)
	}
	query := strings.ToLower(p.Query)
	var out []Message
	for _, id := range chatIDs {
		for _, msg := range m.Messages[id] {
			if strings.Contains(strings.ToLower(msg.Text), query) {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (m *MockClient) ListUnread(ctx context.Context, p UnreadParams) ([]UnreadChat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Unread), nil
}

func (m *MockClient) MarkRead(ctx context.Context, p MarkReadParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(p.Peer); err != nil {
		return err
	}
	m.Read = append(m.Read, p)
	return nil
}

func (m *MockClient) UploadFile(ctx context.Context, p UploadParams) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	m.Uploads = append(m.Uploads, p)
	m.nextUploadID++
	id := m.nextUploadID
	res := &UploadResult{FileUniqueID: fmt.Sprintf("file-%d", id)}
	switch p.Type {
	case FileTypePhoto:
		res.PhotoID = &id
	case FileTypeVideo:
		res.VideoID = &id
	default:
		res.DocumentID = &id
	}
	return res, nil
}

func (m *MockClient) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SendErr[p.Text]; err != nil {
		return nil, err
	}
	chat, err := m.lookup(p.Peer)
	if err != nil {
		return nil, err
	}
	m.Sent = append(m.Sent, p)
	m.nextMessageID++
	msg := Message{ID: m.nextMessageID, ChatID: chat.ID, Text: p.Text, ReplyToMsgID: p.ReplyToMsgID, Out: true}
	m.Messages[chat.ID] = append(m.Messages[chat.ID], msg)
	return &msg, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}
