// ABOUTME: JSON shapes returned by the tools
// ABOUTME: Identifiers are rendered as decimal strings

package tools

import (
	"time"

	"github.com/2389/inline-mcp/internal/inline"
)

type conversationView struct {
	ID            string          `json:"id"`
	Kind          inline.ChatKind `json:"kind"`
	Title         string          `json:"title,omitempty"`
	Emoji         string          `json:"emoji,omitempty"`
	SpaceID       string          `json:"spaceId,omitempty"`
	PeerUserID    string          `json:"peerUserId,omitempty"`
	IsPublic      bool            `json:"isPublic,omitempty"`
	LastMessageID string          `json:"lastMessageId,omitempty"`
	UnreadCount   int             `json:"unreadCount,omitempty"`
}

func newConversationView(c *inline.Chat) conversationView {
	return conversationView{
		ID:            FormatID(c.ID),
		Kind:          c.Kind(),
		Title:         c.Title,
		Emoji:         c.Emoji,
		SpaceID:       formatOptionalID(c.SpaceID),
		PeerUserID:    formatOptionalID(c.PeerUserID),
		IsPublic:      c.IsPublic,
		LastMessageID: formatOptionalID(c.LastMessageID),
		UnreadCount:   c.UnreadCount,
	}
}

type messageView struct {
	ID               string `json:"id"`
	ChatID           string `json:"chatId"`
	FromID           string `json:"fromId,omitempty"`
	Date             string `json:"date,omitempty"`
	Text             string `json:"text,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
	Out              bool   `json:"out,omitempty"`
	Media            string `json:"media,omitempty"`
}

func newMessageView(m *inline.Message) messageView {
	v := messageView{
		ID:               FormatID(m.ID),
		ChatID:           FormatID(m.ChatID),
		Text:             m.Text,
		ReplyToMessageID: formatOptionalID(m.ReplyToMsgID),
		Out:              m.Out,
		Media:            m.MediaKind,
	}
	if m.FromID > 0 {
		v.FromID = FormatID(m.FromID)
	}
	if m.Date > 0 {
		v.Date = time.Unix(m.Date, 0).UTC().Format(time.RFC3339)
	}
	return v
}

func messageViews(msgs []inline.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, newMessageView(&msgs[i]))
	}
	return out
}

type uploadView struct {
	FileUniqueID string `json:"fileUniqueId"`
	Kind         string `json:"kind"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	Size         int    `json:"size"`
	PhotoID      string `json:"photoId,omitempty"`
	VideoID      string `json:"videoId,omitempty"`
	DocumentID   string `json:"documentId,omitempty"`
	Source       string `json:"source"`
	SourceRef    string `json:"sourceRef,omitempty"`
}
