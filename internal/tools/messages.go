// ABOUTME: Message history, search and unread tools, plus marking a chat read
// ABOUTME: since/until arguments use the shared time grammar

package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
)

func (ts *Toolset) messagesList() *Tool {
	return &Tool{
		Name:        "messages.list",
		Title:       "List messages",
		Description: "Read recent messages of a chat, optionally within a time range or before a message id.",
		Schema: object(nil, withTarget(map[string]*jsonschema.Schema{
			"limit":    intProp("Maximum number of messages", 1, maxLimit),
			"offsetId": idProp("Only messages older than this message id"),
			"since":    timeProp("Lower"),
			"until":    timeProp("Upper"),
		})),
		RequiredScope: auth.ScopeMessagesRead,
		Tier:          TierReadOnly,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.Target(call.Tool)
			if err != nil {
				return nil, err
			}
			offsetID, err := call.Args.ID("offsetId")
			if err != nil {
				return nil, err
			}
			since, until, err := timeRange(call.Args, ts.now(), ts.Location)
			if err != nil {
				return nil, err
			}
			msgs, err := call.Client.ListMessages(ctx, inline.ListMessagesParams{
				Peer:     peer,
				Limit:    call.Args.Int("limit", defaultLimit),
				OffsetID: offsetID,
				Since:    since,
				Until:    until,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"messages": messageViews(msgs)}, nil
		},
	}
}

func (ts *Toolset) messagesSearch() *Tool {
	return &Tool{
		Name:        "messages.search",
		Title:       "Search messages",
		Description: "Search message text in one chat, or across every chat this grant can see.",
		Schema: object([]string{"query"}, withTarget(map[string]*jsonschema.Schema{
			"query": stringProp("Text to search for", 1, 500),
			"limit": intProp("Maximum number of hits", 1, maxLimit),
			"since": timeProp("Lower"),
			"until": timeProp("Upper"),
		})),
		RequiredScope: auth.ScopeMessagesRead,
		Tier:          TierReadOnly,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.OptionalTarget(call.Tool)
			if err != nil {
				return nil, err
			}
			since, until, err := timeRange(call.Args, ts.now(), ts.Location)
			if err != nil {
				return nil, err
			}
			hits, err := call.Client.SearchMessages(ctx, inline.SearchParams{
				Peer:  peer,
				Query: call.Args.String("query"),
				Limit: call.Args.Int("limit", defaultLimit),
				Since: since,
				Until: until,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"messages": messageViews(hits)}, nil
		},
	}
}

func (ts *Toolset) messagesUnread() *Tool {
	return &Tool{
		Name:        "messages.unread",
		Title:       "Unread messages",
		Description: "List unread messages grouped by chat. Use messages.mark_read to clear them.",
		Schema: object(nil, map[string]*jsonschema.Schema{
			"limit": intProp("Maximum number of chats", 1, maxLimit),
		}),
		RequiredScope: auth.ScopeMessagesRead,
		Tier:          TierReadOnly,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			unread, err := call.Client.ListUnread(ctx, inline.UnreadParams{
				Limit: call.Args.Int("limit", defaultLimit),
			})
			if err != nil {
				return nil, err
			}
			type unreadView struct {
				Conversation conversationView `json:"conversation"`
				Messages     []messageView    `json:"messages"`
			}
			views := make([]unreadView, 0, len(unread))
			for i := range unread {
				views = append(views, unreadView{
					Conversation: newConversationView(&unread[i].Chat),
					Messages:     messageViews(unread[i].Messages),
				})
			}
			return map[string]any{"chats": views}, nil
		},
	}
}

func (ts *Toolset) messagesMarkRead() *Tool {
	return &Tool{
		Name:        "messages.mark_read",
		Title:       "Mark read",
		Description: "Mark a chat as read, up to maxMessageId when given or entirely otherwise.",
		Schema: object(nil, withTarget(map[string]*jsonschema.Schema{
			"maxMessageId": idProp("Last message to mark as read"),
		})),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.Target(call.Tool)
			if err != nil {
				return nil, err
			}
			maxID, err := call.Args.ID("maxMessageId")
			if err != nil {
				return nil, err
			}
			if err := call.Client.MarkRead(ctx, inline.MarkReadParams{Peer: peer, MaxID: maxID}); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	}
}
