// ABOUTME: Tests for the Inline HTTP API client against an httptest server
// ABOUTME: Covers the request shape, envelope decoding, API errors and multipart uploads

package inline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	method  string
	auth    string
	payload map[string]any
}

// fakeAPI answers each method with a canned result and records the calls it saw.
func fakeAPI(t *testing.T, results map[string]any) (*APIClient, *[]apiCall) {
	t.Helper()
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		call := apiCall{method: r.URL.Path[1:], auth: r.Header.Get("Authorization")}
		if r.Header.Get("Content-Type") == "application/json" {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&call.payload))
		}
		calls = append(calls, call)

		res, ok := results[call.method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "METHOD_NOT_FOUND", "description": "no such method"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": res})
	}))
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL+"/", "tok-123", srv.Client(), nil), &calls
}

func TestAPIClient_GetChat(t *testing.T) {
	c, calls := fakeAPI(t, map[string]any{
		"getChat": map[string]any{"chat": map[string]any{"id": 7, "title": "general", "spaceId": 42}},
	})

	chat, err := c.GetChat(context.Background(), Peer{ChatID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), chat.ID)
	assert.Equal(t, ChatKindSpace, chat.Kind())
	require.NotNil(t, chat.SpaceID)
	assert.Equal(t, int64(42), *chat.SpaceID)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "getChat", got.method)
	assert.Equal(t, "Bearer tok-123", got.auth)
	assert.Equal(t, float64(7), got.payload["chatId"])
}

func TestAPIClient_SendMessageByUser(t *testing.T) {
	c, calls := fakeAPI(t, map[string]any{
		"sendMessage": map[string]any{"message": map[string]any{"id": 900, "chatId": 5, "fromId": 1, "date": 1700000000}},
	})
	photo := int64(33)

	msg, err := c.SendMessage(context.Background(), SendMessageParams{
		Peer:  Peer{UserID: 12},
		Text:  "hi",
		Media: &Media{PhotoID: &photo},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), msg.ID)
	assert.Equal(t, int64(5), msg.ChatID)

	p := (*calls)[0].payload
	assert.Equal(t, float64(12), p["peerUserId"])
	assert.Equal(t, "hi", p["text"])
	assert.Equal(t, float64(33), p["photoId"])
	assert.NotContains(t, p, "chatId")
	assert.NotContains(t, p, "parseMarkdown")
	assert.NotContains(t, p, "sendMode")
}

func TestAPIClient_SendMessageOptions(t *testing.T) {
	c, calls := fakeAPI(t, map[string]any{
		"sendMessage": map[string]any{"message": map[string]any{"id": 901, "chatId": 7}},
	})
	markdown := false

	_, err := c.SendMessage(context.Background(), SendMessageParams{
		Peer:          Peer{ChatID: 7},
		Text:          "**literal**",
		ParseMarkdown: &markdown,
		SendMode:      SendModeSilent,
	})
	require.NoError(t, err)

	p := (*calls)[0].payload
	assert.Equal(t, false, p["parseMarkdown"])
	assert.Equal(t, "silent", p["sendMode"])
}

func TestAPIClient_PeerValidation(t *testing.T) {
	c, calls := fakeAPI(t, nil)

	_, err := c.SendMessage(context.Background(), SendMessageParams{Peer: Peer{ChatID: 1, UserID: 2}})
	require.Error(t, err)
	_, err = c.GetChat(context.Background(), Peer{})
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestAPIClient_APIError(t *testing.T) {
	c, _ := fakeAPI(t, nil)

	_, err := c.ListChats(context.Background(), ListChatsParams{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "getChats", apiErr.Method)
	assert.Equal(t, "METHOD_NOT_FOUND", apiErr.Code)
	assert.Contains(t, err.Error(), "no such method")
}

func TestAPIClient_HTTPStatusWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "t", srv.Client(), nil).ListChats(context.Background(), ListChatsParams{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestAPIClient_UploadFileMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uploadFile", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "video", r.FormValue("type"))
		assert.Equal(t, "640", r.FormValue("width"))
		assert.Equal(t, "12", r.FormValue("duration"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.mp4", hdr.Filename)
		assert.Equal(t, "video/mp4", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "MP4DATA", string(data))

		_, _ = io.WriteString(w, `{"ok":true,"result":{"fileUniqueId":"u1","videoId":77}}`)
	}))
	defer srv.Close()

	res, err := NewAPIClient(srv.URL, "tok", srv.Client(), nil).UploadFile(context.Background(), UploadParams{
		Type:        FileTypeVideo,
		FileName:    "clip.mp4",
		ContentType: "video/mp4",
		Data:        []byte("MP4DATA"),
		Width:       640,
		Height:      480,
		Duration:    12,
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.FileUniqueID)
	require.NotNil(t, res.VideoID)
	assert.Equal(t, int64(77), *res.VideoID)
	assert.Nil(t, res.PhotoID)

	media := MediaFromUpload(res)
	assert.Equal(t, res.VideoID, media.VideoID)
}

func TestAPIClient_ListUnreadDoesNotMarkRead(t *testing.T) {
	c, calls := fakeAPI(t, map[string]any{
		"getUnreadMessages": map[string]any{"chats": []any{
			map[string]any{
				"chat":     map[string]any{"id": 3, "peerUserId": 9},
				"messages": []any{map[string]any{"id": 10, "chatId": 3}, map[string]any{"id": 11, "chatId": 3}},
			},
		}},
	})

	unread, err := c.ListUnread(context.Background(), UnreadParams{Limit: 5})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Len(t, *calls, 1)
	assert.Equal(t, "getUnreadMessages", (*calls)[0].method)
}

func TestAPIClient_MarkRead(t *testing.T) {
	c, calls := fakeAPI(t, map[string]any{"readMessages": map[string]any{}})
	ctx := context.Background()

	require.NoError(t, c.MarkRead(ctx, MarkReadParams{Peer: Peer{UserID: 9}, MaxID: int64Ptr(11)}))
	require.NoError(t, c.MarkRead(ctx, MarkReadParams{Peer: Peer{ChatID: 3}}))

	require.Len(t, *calls, 2)
	assert.Equal(t, "readMessages", (*calls)[0].method)
	assert.Equal(t, float64(9), (*calls)[0].payload["peerUserId"])
	assert.Equal(t, float64(11), (*calls)[0].payload["maxId"])
	assert.Equal(t, float64(3), (*calls)[1].payload["peerThreadId"])
	assert.NotContains(t, (*calls)[1].payload, "maxId")

	assert.Error(t, c.MarkRead(ctx, MarkReadParams{}))
}
