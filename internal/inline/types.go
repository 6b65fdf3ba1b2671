// ABOUTME: Chat-side data types exchanged with the Inline API
// ABOUTME: Chats, messages, peers and the parameter structs of each client operation

package inline

import "errors"

// ChatKind classifies a chat for grant scoping.
type ChatKind string

const (
	ChatKindSpace      ChatKind = "space"
	ChatKindDM         ChatKind = "dm"
	ChatKindHomeThread ChatKind = "home_thread"
)

// Chat is a conversation visible to the user.
type Chat struct {
	ID            int64  `json:"id"`
	Title         string `json:"title,omitempty"`
	Emoji         string `json:"emoji,omitempty"`
	SpaceID       *int64 `json:"spaceId,omitempty"`
	PeerUserID    *int64 `json:"peerUserId,omitempty"`
	IsPublic      bool   `json:"isPublic,omitempty"`
	LastMessageID *int64 `json:"lastMessageId,omitempty"`
	UnreadCount   int    `json:"unreadCount,omitempty"`
}

// Kind reports whether the chat lives in a space, is a direct message or is a
// home thread.
func (c *Chat) Kind() ChatKind {
	switch {
	case c.SpaceID != nil:
		return ChatKindSpace
	case c.PeerUserID != nil:
		return ChatKindDM
	default:
		return ChatKindHomeThread
	}
}

// Message is a chat message as returned by history, search and send.
type Message struct {
	ID           int64  `json:"id"`
	ChatID       int64  `json:"chatId"`
	FromID       int64  `json:"fromId"`
	Date         int64  `json:"date"`
	Text         string `json:"text,omitempty"`
	ReplyToMsgID *int64 `json:"replyToMsgId,omitempty"`
	Out          bool   `json:"out,omitempty"`
	MediaKind    string `json:"mediaKind,omitempty"`
}

// Peer names a conversation either by chat id or by the other user of a DM.
// Exactly one field is set.
type Peer struct {
	ChatID int64
	UserID int64
}

// Validate reports an error unless exactly one of ChatID or UserID is set.
func (p Peer) Validate() error {
	if (p.ChatID == 0) == (p.UserID == 0) {
		return errors.New("peer needs exactly one of chat id or user id")
	}
	return nil
}

func (p Peer) payload() map[string]any {
	if p.ChatID != 0 {
		return map[string]any{"chatId": p.ChatID}
	}
	return map[string]any{"peerUserId": p.UserID}
}

// ListChatsParams filters conversation listings.
type ListChatsParams struct {
	SpaceID *int64
	Limit   int
}

// CreateChatParams describes a new chat. A nil SpaceID creates a home thread.
type CreateChatParams struct {
	Title          string
	Emoji          string
	Description    string
	SpaceID        *int64
	IsPublic       bool
	ParticipantIDs []int64
}

// ListMessagesParams pages through a chat's history. Since and Until are
// epoch seconds.
type ListMessagesParams struct {
	Peer     Peer
	Limit    int
	OffsetID *int64
	Since    *int64
	Until    *int64
}

// SearchParams searches message text. A zero Peer searches every chat.
type SearchParams struct {
	Peer  Peer
	Query string
	Limit int
	Since *int64
	Until *int64
}

// UnreadParams bounds the unread listing.
type UnreadParams struct {
	Limit int
}

// MarkReadParams marks a conversation read. A nil MaxID marks every message.
type MarkReadParams struct {
	Peer  Peer
	MaxID *int64
}

// UnreadChat is a chat with unread messages.
type UnreadChat struct {
	Chat     Chat      `json:"chat"`
	Messages []Message `json:"messages"`
}

// Upload file types accepted by the API.
const (
	FileTypePhoto    = "photo"
	FileTypeVideo    = "video"
	FileTypeDocument = "document"
)

// UploadParams is a file to upload. Video metadata is optional.
type UploadParams struct {
	Type        string
	FileName    string
	ContentType string
	Data        []byte
	Width       int
	Height      int
	Duration    int
}

// UploadResult identifies the uploaded media. Exactly one of the typed ids is set.
type UploadResult struct {
	FileUniqueID string `json:"fileUniqueId"`
	PhotoID      *int64 `json:"photoId,omitempty"`
	VideoID      *int64 `json:"videoId,omitempty"`
	DocumentID   *int64 `json:"documentId,omitempty"`
}

// Media references an uploaded file to attach to a message.
type Media struct {
	PhotoID    *int64
	VideoID    *int64
	DocumentID *int64
}

// MediaFromUpload builds the attachment reference for an upload result.
func MediaFromUpload(r *UploadResult) *Media {
	return &Media{PhotoID: r.PhotoID, VideoID: r.VideoID, DocumentID: r.DocumentID}
}

// Send modes accepted by sendMessage. The empty mode is the API default.
const (
	SendModeNormal = "normal"
	SendModeSilent = "silent"
)

// SendMessageParams is an outgoing message. Text is optional when Media is set.
// A nil ParseMarkdown leaves formatting to the API default.
type SendMessageParams struct {
	Peer          Peer
	Text          string
	ReplyToMsgID  *int64
	Media         *Media
	ParseMarkdown *bool
	SendMode      string
}
