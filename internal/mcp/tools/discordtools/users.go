package discordtools

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
)

type getUserInfoArgs struct {
	UserID string `json:"user_id" validate:"required,snowflake"`
}

type userInfoResult struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username,omitempty"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Bot           bool   `json:"bot"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

type testConnectionResult struct {
	Success bool           `json:"success"`
	Body    map[string]any `json:"body,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (h *handlers) getUserInfoTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "get_user_info",
			Description: "Get information about a Discord user.",
			Parameters: objectSchema(map[string]any{
				"user_id": idSchema("The Discord user ID."),
			}, "user_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.getUserInfo,
		DeclaredP50: 200,
		DeclaredMax: 20000,
	}
}

func (h *handlers) getUserInfo(ctx context.Context, args string) (string, error) {
	var a getUserInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return respond(userInfoResult{Error: err.Error()})
	}

	u, err := h.api.User(ctx, a.UserID)
	if err != nil {
		return respond(userInfoResult{Error: err.Error()})
	}
	res := userInfoResult{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		GlobalName:    u.GlobalName,
		Bot:           u.Bot,
		AvatarURL:     u.AvatarURL(""),
	}
	if res.Discriminator == "0" {
		res.Discriminator = ""
	}
	if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		res.CreatedAt = ts.UTC().Format(time.RFC3339)
	}
	return respond(res)
}

func (h *handlers) testConnectionTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "test_connection",
			Description: "Check that the bot token is valid and Discord is reachable by fetching the " +
				"bot's own user.",
			Parameters: objectSchema(map[string]any{}),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.testConnection,
		DeclaredP50: 200,
		DeclaredMax: 20000,
	}
}

// testConnection reports the scalar fields of GET /users/@me. Nested objects
// are left out to keep the result small.
func (h *handlers) testConnection(ctx context.Context, _ string) (string, error) {
	resp, err := h.api.Requester().Do(ctx, discordapi.Request{Method: http.MethodGet, Path: "/users/@me"})
	if err != nil {
		return respond(testConnectionResult{Error: err.Error()})
	}

	res := testConnectionResult{Success: true}
	parsed := gjson.ParseBytes(resp.Body)
	if parsed.IsObject() {
		res.Body = make(map[string]any)
		parsed.ForEach(func(key, value gjson.Result) bool {
			if !value.IsObject() && !value.IsArray() {
				res.Body[key.String()] = value.Value()
			}
			return true
		})
	}
	return respond(res)
}
