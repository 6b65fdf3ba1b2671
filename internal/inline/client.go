// ABOUTME: Client interface for the chat application and its HTTP implementation
// ABOUTME: Calls POST <base>/<method> with the user's bearer token and unwraps the ok/result envelope

package inline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Client is everything the tool layer may do in the chat application on the
// user's behalf.
type Client interface {
	ListChats(ctx context.Context, p ListChatsParams) ([]Chat, error)
	GetChat(ctx context.Context, peer Peer) (*Chat, error)
	CreateChat(ctx context.Context, p CreateChatParams) (*Chat, error)
	ListMessages(ctx context.Context, p ListMessagesParams) ([]Message, error)
	SearchMessages(ctx context.Context, p SearchParams) ([]Message, error)
	ListUnread(ctx context.Context, p UnreadParams) ([]UnreadChat, error)
	MarkRead(ctx context.Context, p MarkReadParams) error
	UploadFile(ctx context.Context, p UploadParams) (*UploadResult, error)
	SendMessage(ctx context.Context, p SendMessageParams) (*Message, error)
	Close() error
}

// DefaultTimeout bounds each API call made by an APIClient.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of an API response is read.
const maxResponseBytes = 8 << 20

// APIError is a failure reported by the chat application.
type APIError struct {
	Method      string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("inline %s: %s: %s", e.Method, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("inline %s: %s", e.Method, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("inline %s: %v", e.Method, e.Err)
	default:
		return fmt.Sprintf("inline %s: unexpected status %d", e.Method, e.Status)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	ErrorCode   *int            `json:"error_code"`
	Description string          `json:"description"`
}

// APIClient talks to the Inline HTTP API with a single user's token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewAPIClient creates a client for baseURL authenticating with token. A nil
// httpClient gets one with DefaultTimeout.
func NewAPIClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger.With("component", "inline"),
	}
}

// ListChats implements Client.
func (c *APIClient) ListChats(ctx context.Context, p ListChatsParams) ([]Chat, error) {
	payload := map[string]any{}
	if p.SpaceID != nil {
		payload["spaceId"] = *p.SpaceID
	}
	if p.Limit > 0 {
		payload["limit"] = p.Limit
	}
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.call(ctx, "getChats", payload, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// GetChat implements Client.
func (c *APIClient) GetChat(ctx context.Context, peer Peer) (*Chat, error) {
	if err := peer.Validate(); err != nil {
		return nil, err
	}
	var out struct {
		Chat Chat `json:"chat"`
	}
	if err := c.call(ctx, "getChat", peer.payload(), &out); err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

// CreateChat implements Client.
func (c *APIClient) CreateChat(ctx context.Context, p CreateChatParams) (*Chat, error) {
	payload := map[string]any{
		"title":    p.Title,
		"isPublic": p.IsPublic,
	}
	if p.SpaceID != nil {
		payload["spaceId"] = *p.SpaceID
	}
	if p.Emoji != "" {
		payload["emoji"] = p.Emoji
	}
	if p.Description != "" {
		payload["description"] = p.Description
	}
	if len(p.ParticipantIDs) > 0 {
		payload["participants"] = p.ParticipantIDs
	}
	var out struct {
		Chat Chat `json:"chat"`
	}
	if err := c.call(ctx, "createChat", payload, &out); err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

// ListMessages implements Client.
func (c *APIClient) ListMessages(ctx context.Context, p ListMessagesParams) ([]Message, error) {
	if err := p.Peer.Validate(); err != nil {
		return nil, err
	}
	payload := p.Peer.payload()
	if p.Limit > 0 {
		payload["limit"] = p.Limit
	}
	setOptional(payload, "offsetId", p.OffsetID)
	setOptional(payload, "since", p.Since)
	setOptional(payload, "until", p.Until)

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.call(ctx, "getChatHistory", payload, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SearchMessages implements Client.
func (c *APIClient) SearchMessages(ctx context.Context, p SearchParams) ([]Message, error) {
	payload := map[string]any{"query": p.Query}
	if p.Peer != (Peer{}) {
		payload = p.Peer.payload()
		payload["query"] = p.Query
	}
	if p.Limit > 0 {
		payload["limit"] = p.Limit
	}
	setOptional(payload, "since", p.Since)
	setOptional(payload, "until", p.Until)

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.call(ctx, "searchMessages", payload, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ListUnread implements Client.
func (c *APIClient) ListUnread(ctx context.Context, p UnreadParams) ([]UnreadChat, error) {
	payload := map[string]any{}
	if p.Limit > 0 {
		payload["limit"] = p.Limit
	}
	var out struct {
		Chats []UnreadChat `json:"chats"`
	}
	if err := c.call(ctx, "getUnreadMessages", payload, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// MarkRead implements Client. DMs are addressed by the other user, every
// other chat by its thread id.
func (c *APIClient) MarkRead(ctx context.Context, p MarkReadParams) error {
	if err := p.Peer.Validate(); err != nil {
		return err
	}
	payload := map[string]any{}
	if p.Peer.UserID != 0 {
		payload["peerUserId"] = p.Peer.UserID
	} else {
		payload["peerThreadId"] = p.Peer.ChatID
	}
	setOptional(payload, "maxId", p.MaxID)
	return c.call(ctx, "readMessages", payload, nil)
}

// SendMessage implements Client.
func (c *APIClient) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	if err := p.Peer.Validate(); err != nil {
		return nil, err
	}
	payload := p.Peer.payload()
	if p.Text != "" {
		payload["text"] = p.Text
	}
	setOptional(payload, "replyToMsgId", p.ReplyToMsgID)
	if p.ParseMarkdown != nil {
		payload["parseMarkdown"] = *p.ParseMarkdown
	}
	if p.SendMode != "" {
		payload["sendMode"] = p.SendMode
	}
	if p.Media != nil {
		setOptional(payload, "photoId", p.Media.PhotoID)
		setOptional(payload, "videoId", p.Media.VideoID)
		setOptional(payload, "documentId", p.Media.DocumentID)
	}
	var out struct {
		Message Message `json:"message"`
	}
	if err := c.call(ctx, "sendMessage", payload, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// UploadFile implements Client. The file goes up as multipart form data.
func (c *APIClient) UploadFile(ctx context.Context, p UploadParams) (*UploadResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("type", p.Type); err != nil {
		return nil, fmt.Errorf("writing upload form: %w", err)
	}
	if p.Type == FileTypeVideo && p.Width > 0 && p.Height > 0 {
		for name, v := range map[string]int{"width": p.Width, "height": p.Height, "duration": p.Duration} {
			if err := w.WriteField(name, strconv.Itoa(v)); err != nil {
				return nil, fmt.Errorf("writing upload form: %w", err)
			}
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, p.FileName))
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("writing upload form: %w", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, fmt.Errorf("writing upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("writing upload form: %w", err)
	}

	var out UploadResult
	if err := c.do(ctx, "uploadFile", w.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases idle connections. The client holds no other resources.
func (c *APIClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *APIClient) call(ctx context.Context, method string, payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	return c.do(ctx, method, "application/json", bytes.NewReader(data), out)
}

func (c *APIClient) do(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("inline %s: reading response: %w", method, err)
	}
	c.logger.Debug("inline api call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Method: method, Status: resp.StatusCode}
		}
		return fmt.Errorf("inline %s: invalid response: %w", method, jsonErr)
	}
	if !env.OK {
		code := env.Error
		if code == "" && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			code = "UNKNOWN"
		}
		return &APIError{Method: method, Status: resp.StatusCode, Code: code, Description: env.Description}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("inline %s: decoding result: %w", method, err)
	}
	return nil
}

func setOptional(payload map[string]any, key string, v *int64) {
	if v != nil {
		payload[key] = *v
	}
}
