// ABOUTME: Conversation tools: list, get and create chats
// ABOUTME: Visibility is enforced by the session's scoped client

package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
)

func (ts *Toolset) conversationsList() *Tool {
	return &Tool{
		Name:        "conversations.list",
		Title:       "List conversations",
		Description: "List the chats this grant can see: space chats, direct messages and home threads.",
		Schema: object(nil, map[string]*jsonschema.Schema{
			"spaceId": idProp("Only list chats in this space"),
			"limit":   intProp("Maximum number of chats", 1, maxLimit),
		}),
		RequiredScope: auth.ScopeMessagesRead,
		Tier:          TierReadOnly,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			spaceID, err := call.Args.ID("spaceId")
			if err != nil {
				return nil, err
			}
			chats, err := call.Client.ListChats(ctx, inline.ListChatsParams{
				SpaceID: spaceID,
				Limit:   call.Args.Int("limit", defaultLimit),
			})
			if err != nil {
				return nil, err
			}
			views := make([]conversationView, 0, len(chats))
			for i := range chats {
				views = append(views, newConversationView(&chats[i]))
			}
			return map[string]any{"conversations": views}, nil
		},
	}
}

func (ts *Toolset) conversationsGet() *Tool {
	return &Tool{
		Name:          "conversations.get",
		Title:         "Get conversation",
		Description:   "Look up one chat by chat id, or the direct message with a user.",
		Schema:        object(nil, withTarget(map[string]*jsonschema.Schema{})),
		RequiredScope: auth.ScopeMessagesRead,
		Tier:          TierReadOnly,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			peer, err := call.Args.Target(call.Tool)
			if err != nil {
				return nil, err
			}
			chat, err := call.Client.GetChat(ctx, peer)
			if err != nil {
				return nil, err
			}
			return map[string]any{"conversation": newConversationView(chat)}, nil
		},
	}
}

func (ts *Toolset) conversationsCreate() *Tool {
	return &Tool{
		Name:        "conversations.create",
		Title:       "Create conversation",
		Description: "Create a chat in a space, or a home thread when no space is given.",
		Schema: object([]string{"title"}, map[string]*jsonschema.Schema{
			"title":          stringProp("Chat title", 1, 200),
			"spaceId":        idProp("Space to create the chat in"),
			"emoji":          stringProp("Chat emoji", 1, 16),
			"description":    stringProp("Chat description", 1, 1000),
			"isPublic":       boolProp("Whether every space member can see the chat"),
			"participantIds": {Type: "array", Items: idProp("User id"), MaxItems: jsonschema.Ptr(100)},
		}),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			spaceID, err := call.Args.ID("spaceId")
			if err != nil {
				return nil, err
			}
			participants, err := call.Args.IDs("participantIds")
			if err != nil {
				return nil, err
			}
			chat, err := call.Client.CreateChat(ctx, inline.CreateChatParams{
				Title:          call.Args.String("title"),
				Emoji:          call.Args.String("emoji"),
				Description:    call.Args.String("description"),
				SpaceID:        spaceID,
				IsPublic:       call.Args.Bool("isPublic"),
				ParticipantIDs: participants,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"conversation": newConversationView(chat)}, nil
		},
	}
}
