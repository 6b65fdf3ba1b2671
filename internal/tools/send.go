// ABOUTME: Send-style tools: text, media and ordered batches
// ABOUTME: Each records the target chat, space and sent message on the call's audit trail

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/inline-mcp/internal/audit"
	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/batch"
	"github.com/2389/inline-mcp/internal/inline"
)

const (
	maxTextLength  = 4096
	maxBatchItems  = 20
	batchItemText  = "text"
	batchItemMedia = "media"
)

type sendView struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

func (ts *Toolset) messagesSend() *Tool {
	return &Tool{
		Name:        "messages.send",
		Title:       "Send message",
		Description: "Send a text message to a chat or to a user's direct messages.",
		Schema: object([]string{"text"}, withTarget(map[string]*jsonschema.Schema{
			"text":             stringProp("Message text", 1, maxTextLength),
			"replyToMessageId": idProp("Message to reply to"),
		})),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		Audited:       true,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.Target(call.Tool)
			if err != nil {
				return nil, err
			}
			params, err := sendParams(call.Args)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(params.Text) == "" {
				return nil, invalidf("text must not be blank")
			}
			chat, err := resolveSendTarget(ctx, call.Client, peer)
			if err != nil {
				return nil, err
			}
			params.Peer = inline.Peer{ChatID: chat.ID}
			msg, err := call.Client.SendMessage(ctx, params)
			if err != nil {
				return nil, err
			}
			audit.TrailFromContext(ctx).SetMessage(msg.ID)
			return sendView{MessageID: FormatID(msg.ID), ChatID: FormatID(msg.ChatID)}, nil
		},
	}
}

func (ts *Toolset) messagesSendMedia() *Tool {
	props := withTarget(withSendOptions(withMediaSource(map[string]*jsonschema.Schema{
		"text": stringProp("Caption", 1, maxTextLength),
	})))
	return &Tool{
		Name:          "messages.send_media",
		Title:         "Send media",
		Description:   "Upload a file from base64 data or a public https URL and send it to a chat, with an optional caption.",
		Schema:        object(nil, props),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		OpenWorld:     true,
		Audited:       true,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.Target(call.Tool)
			if err != nil {
				return nil, err
			}
			params, err := sendParams(call.Args)
			if err != nil {
				return nil, err
			}
			chat, err := resolveSendTarget(ctx, call.Client, peer)
			if err != nil {
				return nil, err
			}
			uploaded, view, err := ts.uploadMedia(ctx, call.Client, call.Args)
			if err != nil {
				return nil, err
			}
			params.Peer = inline.Peer{ChatID: chat.ID}
			params.Media = inline.MediaFromUpload(uploaded)
			msg, err := call.Client.SendMessage(ctx, params)
			if err != nil {
				return nil, err
			}
			audit.TrailFromContext(ctx).SetMessage(msg.ID)
			return map[string]any{
				"messageId": FormatID(msg.ID),
				"chatId":    FormatID(msg.ChatID),
				"file":      view,
			}, nil
		},
	}
}

// batchItem is one validated entry of messages.send_batch. params carries
// the item's own text and send options.
type batchItem struct {
	kind   string
	args   Args
	params inline.SendMessageParams
}

func (b batchItem) ItemType() string { return b.kind }

func (ts *Toolset) messagesSendBatch() *Tool {
	item := object([]string{"type"}, withSendOptions(withMediaSource(map[string]*jsonschema.Schema{
		"type": enumProp("Item kind", batchItemText, batchItemMedia),
		"text": stringProp("Message text, or caption for media", 1, maxTextLength),
	})))
	return &Tool{
		Name:        "messages.send_batch",
		Title:       "Send batch",
		Description: "Send several text and media messages to one chat, in order. Failed items are reported per item; stopOnError ends the batch at the first failure. Sent messages are never rolled back.",
		Schema: object([]string{"items"}, withTarget(map[string]*jsonschema.Schema{
			"items": {
				Type:     "array",
				Items:    item,
				MinItems: jsonschema.Ptr(1),
				MaxItems: jsonschema.Ptr(maxBatchItems),
			},
			"stopOnError": boolProp("Stop at the first failed item"),
		})),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		OpenWorld:     true,
		Audited:       true,
		Handler:       ts.sendBatch,
	}
}

func (ts *Toolset) sendBatch(ctx context.Context, call *Call) (any, error) {
	peer, err := call.Args.Target(call.Tool)
	if err != nil {
		return nil, err
	}
	items, err := batchItems(call.Args)
	if err != nil {
		return nil, err
	}
	chat, err := resolveSendTarget(ctx, call.Client, peer)
	if err != nil {
		return nil, err
	}

	executor := ts.Batch
	if executor == nil {
		executor = batch.NewExecutor(nil)
	}
	trail := audit.TrailFromContext(ctx)
	res := batch.Run(ctx, executor, items, batch.Options{StopOnError: call.Args.Bool("stopOnError")},
		func(ctx context.Context, _ int, it batchItem) (int64, error) {
			params := it.params
			params.Peer = inline.Peer{ChatID: chat.ID}
			if it.kind == batchItemMedia {
				uploaded, _, err := ts.uploadMedia(ctx, call.Client, it.args)
				if err != nil {
					return 0, err
				}
				params.Media = inline.MediaFromUpload(uploaded)
			}
			msg, err := call.Client.SendMessage(ctx, params)
			if err != nil {
				return 0, err
			}
			trail.SetMessage(msg.ID)
			return msg.ID, nil
		})

	if res.FailedCount > 0 {
		trail.MarkFailed()
	}
	return res, nil
}

// batchItems checks every item's shape before anything is sent.
func batchItems(a Args) ([]batchItem, error) {
	raw, _ := a["items"].([]any)
	items := make([]batchItem, 0, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, invalidf("invalid items[%d]", i)
		}
		it := batchItem{kind: Args(m).String("type"), args: Args(m)}
		params, err := sendParams(it.args)
		if err != nil {
			return nil, invalidf("items[%d]: %v", i, err)
		}
		it.params = params
		switch it.kind {
		case batchItemText:
			if strings.TrimSpace(params.Text) == "" {
				return nil, invalidf("items[%d]: text items need text", i)
			}
		case batchItemMedia:
			if it.args.Has("base64") == it.args.Has("url") {
				return nil, invalidf("items[%d]: media items need exactly one of base64 or url", i)
			}
		default:
			return nil, invalidf("items[%d]: unknown type %q", i, it.kind)
		}
		items = append(items, it)
	}
	return items, nil
}

// sendParams reads the text and send options shared by every send-style
// tool and batch item. The peer is left for the caller.
func sendParams(a Args) (inline.SendMessageParams, error) {
	replyTo, err := a.ID("replyToMessageId")
	if err != nil {
		return inline.SendMessageParams{}, err
	}
	p := inline.SendMessageParams{
		Text:         a.String("text"),
		ReplyToMsgID: replyTo,
		SendMode:     a.String("sendMode"),
	}
	if a.Has("parseMarkdown") {
		markdown := a.Bool("parseMarkdown")
		p.ParseMarkdown = &markdown
	}
	return p, nil
}

// resolveSendTarget looks up the target chat through the scoped client and
// records it on the audit trail.
func resolveSendTarget(ctx context.Context, client inline.Client, peer inline.Peer) (*inline.Chat, error) {
	chat, err := client.GetChat(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("resolving target chat: %w", err)
	}
	trail := audit.TrailFromContext(ctx)
	trail.SetChat(chat.ID)
	if chat.SpaceID != nil {
		trail.SetSpace(*chat.SpaceID)
	}
	return chat, nil
}
