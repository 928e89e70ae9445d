package discordtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/discord-mcp/internal/chunker"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
)

type sendMessageArgs struct {
	ChannelID string `json:"channel_id" validate:"required,snowflake"`
	Content   string `json:"content" validate:"required"`
}

type sendMessageResult struct {
	Success bool `json:"success"`

	// MessageID is the id of the last message sent.
	MessageID  string   `json:"message_id,omitempty"`
	MessageIDs []string `json:"message_ids"`
	Count      int      `json:"count"`
	Error      string   `json:"error,omitempty"`
}

type readMessagesArgs struct {
	ChannelID string `json:"channel_id" validate:"required,snowflake"`
	Limit     *int   `json:"limit"`
	Before    string `json:"before" validate:"omitempty,snowflake"`
	After     string `json:"after" validate:"omitempty,snowflake"`
}

type messageInfo struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	AuthorID    string `json:"author_id"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Attachments int    `json:"attachments"`
}

type readMessagesResult struct {
	Count    int           `json:"count"`
	Messages []messageInfo `json:"messages"`
	Error    string        `json:"error,omitempty"`
}

type messageRefArgs struct {
	ChannelID string `json:"channel_id" validate:"required,snowflake"`
	MessageID string `json:"message_id" validate:"required,snowflake"`
}

type addReactionArgs struct {
	messageRefArgs
	Emoji string `json:"emoji" validate:"required"`
}

// actionResult is the result of tools that change remote state and return
// nothing of interest.
type actionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	defaultReadLimit = 50
	maxReadLimit     = 100
)

func (h *handlers) sendMessageTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "send_message",
			Description: "Send a message to a Discord channel. Content longer than Discord's per-message " +
				"limit is split at line boundaries and sent as several consecutive messages. Pieces that " +
				"contain only whitespace, such as runs of blank lines between long blocks, are not sent.",
			Parameters: objectSchema(map[string]any{
				"channel_id": idSchema("The Discord channel ID to send the message to."),
				"content": map[string]any{
					"type":        "string",
					"description": "The message content to send.",
					"minLength":   1,
				},
			}, "channel_id", "content"),
		},
		Handler:     h.sendMessage,
		DeclaredP50: 300,
		DeclaredMax: 60000,
	}
}

// sendMessage posts every chunk in order and stops at the first failure.
// Chunks that were already delivered are reported and left in place.
func (h *handlers) sendMessage(ctx context.Context, args string) (string, error) {
	res := sendMessageResult{MessageIDs: []string{}}

	var a sendMessageArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	var chunks []string
	for _, c := range chunker.Split(a.Content, h.maxLen) {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		res.Error = "invalid arguments: content must not be blank"
		return respond(res)
	}

	defer func() { h.metrics.RecordChunksSent(ctx, res.Count) }()
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			res.Error = fmt.Sprintf("send cancelled after %d of %d chunks: %v", i, len(chunks), err)
			return respond(res)
		}
		msg, err := h.api.CreateMessage(ctx, a.ChannelID, c)
		if err != nil {
			res.Error = err.Error()
			if i > 0 {
				res.Error = fmt.Sprintf("chunk %d of %d: %s", i+1, len(chunks), res.Error)
			}
			return respond(res)
		}
		res.MessageIDs = append(res.MessageIDs, msg.ID)
		res.MessageID = msg.ID
		res.Count++
	}
	res.Success = true
	return respond(res)
}

func (h *handlers) readMessagesTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "read_messages",
			Description: "Read recent messages from a Discord channel, newest first.",
			Parameters: objectSchema(map[string]any{
				"channel_id": idSchema("The Discord channel ID to read messages from."),
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of messages to retrieve (default: 50, max: 100). Larger values are clamped to 100.",
					"default":     defaultReadLimit,
				},
				"before": idSchema("Only return messages sent before this message ID."),
				"after":  idSchema("Only return messages sent after this message ID."),
			}, "channel_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.readMessages,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) readMessages(ctx context.Context, args string) (string, error) {
	res := readMessagesResult{Messages: []messageInfo{}}

	var a readMessagesArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	limit := clamp(a.Limit, defaultReadLimit, 1, maxReadLimit)
	msgs, err := h.api.ChannelMessages(ctx, a.ChannelID, limit, a.Before, a.After)
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	for _, m := range msgs {
		if m == nil {
			continue
		}
		res.Messages = append(res.Messages, flattenMessage(m))
	}
	res.Count = len(res.Messages)
	return respond(res)
}

func flattenMessage(m *discordgo.Message) messageInfo {
	info := messageInfo{
		ID:          m.ID,
		Author:      "Unknown",
		Content:     m.Content,
		Attachments: len(m.Attachments),
	}
	if m.Author != nil {
		info.Author = authorName(m.Author)
		info.AuthorID = m.Author.ID
	}
	if !m.Timestamp.IsZero() {
		info.Timestamp = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return info
}

// authorName renders a user the way Discord clients do: the bare username
// for migrated accounts, "name#1234" for legacy discriminators.
func authorName(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func (h *handlers) addReactionTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "add_reaction",
			Description: "Add a reaction emoji to a message. Accepts a unicode emoji, name:id, or a custom emoji mention like <:name:id>.",
			Parameters: objectSchema(map[string]any{
				"channel_id": idSchema("The Discord channel ID containing the message."),
				"message_id": idSchema("The Discord message ID to react to."),
				"emoji": map[string]any{
					"type":        "string",
					"description": "The emoji to react with.",
					"minLength":   1,
				},
			}, "channel_id", "message_id", "emoji"),
			Idempotent: true,
		},
		Handler:     h.addReaction,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) addReaction(ctx context.Context, args string) (string, error) {
	var a addReactionArgs
	if err := decodeArgs(args, &a); err != nil {
		return respond(actionResult{Error: err.Error()})
	}
	if err := h.api.AddReaction(ctx, a.ChannelID, a.MessageID, a.Emoji); err != nil {
		return respond(actionResult{Error: err.Error()})
	}
	return respond(actionResult{
		Success: true,
		Message: "Reaction '" + strings.TrimSpace(a.Emoji) + "' added",
	})
}

func (h *handlers) deleteMessageTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "delete_message",
			Description: "Delete a message from a Discord channel. This cannot be undone.",
			Parameters: objectSchema(map[string]any{
				"channel_id": idSchema("The Discord channel ID containing the message."),
				"message_id": idSchema("The Discord message ID to delete."),
			}, "channel_id", "message_id"),
			Destructive: true,
		},
		Handler:     h.deleteMessage,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) deleteMessage(ctx context.Context, args string) (string, error) {
	var a messageRefArgs
	if err := decodeArgs(args, &a); err != nil {
		return respond(actionResult{Error: err.Error()})
	}
	if err := h.api.DeleteMessage(ctx, a.ChannelID, a.MessageID); err != nil {
		return respond(actionResult{Error: err.Error()})
	}
	return respond(actionResult{
		Success: true,
		Message: "Message " + a.MessageID + " deleted",
	})
}
