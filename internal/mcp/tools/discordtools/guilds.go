package discordtools

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
)

const (
	defaultServerLimit = 200
	maxServerLimit     = 200

	defaultMemberLimit = 100
	maxMemberLimit     = 1000

	// findThreshold is the minimum Jaro-Winkler similarity for a channel
	// name to be reported by find_channels.
	findThreshold = 0.75
)

type serverRefArgs struct {
	ServerID string `json:"server_id" validate:"required,snowflake"`
}

type listServersArgs struct {
	Limit *int `json:"limit"`
}

type serverSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	IconURL     string `json:"icon_url,omitempty"`
	Owner       bool   `json:"owner"`
	Permissions string `json:"permissions"`
}

type listServersResult struct {
	Count   int             `json:"count"`
	Servers []serverSummary `json:"servers"`
	Error   string          `json:"error,omitempty"`
}

type serverInfoResult struct {
	ID                string   `json:"id,omitempty"`
	Name              string   `json:"name,omitempty"`
	Description       string   `json:"description,omitempty"`
	MemberCount       int      `json:"member_count"`
	PresenceCount     int      `json:"presence_count"`
	OwnerID           string   `json:"owner_id,omitempty"`
	IconURL           string   `json:"icon_url,omitempty"`
	Features          []string `json:"features"`
	VerificationLevel int      `json:"verification_level"`
	PremiumTier       int      `json:"premium_tier"`
	Error             string   `json:"error,omitempty"`
}

type channelInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     int      `json:"type"`
	Position int      `json:"position"`
	ParentID string   `json:"parent_id,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

type listChannelsResult struct {
	Count    int           `json:"count"`
	Channels []channelInfo `json:"channels"`
	Error    string        `json:"error,omitempty"`
}

type listMembersArgs struct {
	ServerID string `json:"server_id" validate:"required,snowflake"`
	Limit    *int   `json:"limit"`
	After    string `json:"after" validate:"omitempty,snowflake"`
}

type memberInfo struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	GlobalName    string `json:"global_name,omitempty"`
	Nick          string `json:"nick,omitempty"`
	Bot           bool   `json:"bot"`
	JoinedAt      string `json:"joined_at,omitempty"`
}

type listMembersResult struct {
	Count   int          `json:"count"`
	Members []memberInfo `json:"members"`
	Error   string       `json:"error,omitempty"`
}

type findChannelsArgs struct {
	ServerID string `json:"server_id" validate:"required,snowflake"`
	Query    string `json:"query"`
	TextOnly *bool  `json:"text_only"`
}

func (h *handlers) listServersTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "list_servers",
			Description: "List the Discord servers (guilds) the bot is a member of.",
			Parameters: objectSchema(map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of servers to return (default: 200, max: 200).",
					"default":     defaultServerLimit,
				},
			}),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.listServers,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) listServers(ctx context.Context, args string) (string, error) {
	res := listServersResult{Servers: []serverSummary{}}

	var a listServersArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	guilds, err := h.api.CurrentUserGuilds(ctx, clamp(a.Limit, defaultServerLimit, 1, maxServerLimit))
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	for _, g := range guilds {
		if g == nil {
			continue
		}
		s := serverSummary{
			ID:          g.ID,
			Name:        g.Name,
			Icon:        g.Icon,
			Owner:       g.Owner,
			Permissions: strconv.FormatInt(g.Permissions, 10),
		}
		if g.Icon != "" {
			s.IconURL = (&discordgo.Guild{ID: g.ID, Icon: g.Icon}).IconURL("")
		}
		res.Servers = append(res.Servers, s)
	}
	res.Count = len(res.Servers)
	return respond(res)
}

func (h *handlers) getServerInfoTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "get_server_info",
			Description: "Get details about a Discord server, including approximate member and online counts.",
			Parameters: objectSchema(map[string]any{
				"server_id": idSchema("The Discord server (guild) ID."),
			}, "server_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.getServerInfo,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) getServerInfo(ctx context.Context, args string) (string, error) {
	res := serverInfoResult{Features: []string{}}

	var a serverRefArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	g, err := h.api.Guild(ctx, a.ServerID)
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	res.ID = g.ID
	res.Name = g.Name
	res.Description = g.Description
	res.OwnerID = g.OwnerID
	res.MemberCount = g.ApproximateMemberCount
	if res.MemberCount == 0 {
		res.MemberCount = g.MemberCount
	}
	res.PresenceCount = g.ApproximatePresenceCount
	res.VerificationLevel = int(g.VerificationLevel)
	res.PremiumTier = int(g.PremiumTier)
	if g.Icon != "" {
		res.IconURL = g.IconURL("")
	}
	for _, f := range g.Features {
		res.Features = append(res.Features, string(f))
	}
	return respond(res)
}

func (h *handlers) listChannelsTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name:        "list_channels",
			Description: "List all channels of a Discord server in display order.",
			Parameters: objectSchema(map[string]any{
				"server_id": idSchema("The Discord server (guild) ID."),
			}, "server_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.listChannels,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) listChannels(ctx context.Context, args string) (string, error) {
	res := listChannelsResult{Channels: []channelInfo{}}

	var a serverRefArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	chs, err := h.api.GuildChannels(ctx, a.ServerID)
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	for _, c := range chs {
		if c != nil {
			res.Channels = append(res.Channels, flattenChannel(c))
		}
	}
	slices.SortStableFunc(res.Channels, func(x, y channelInfo) int {
		return cmp.Compare(x.Position, y.Position)
	})
	res.Count = len(res.Channels)
	return respond(res)
}

func flattenChannel(c *discordgo.Channel) channelInfo {
	return channelInfo{
		ID:       c.ID,
		Name:     c.Name,
		Type:     int(c.Type),
		Position: c.Position,
		ParentID: c.ParentID,
	}
}

func (h *handlers) listMembersTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "list_members",
			Description: "List members of a Discord server ordered by user ID. Requires the Server Members " +
				"privileged intent. Page through large servers with the after cursor.",
			Parameters: objectSchema(map[string]any{
				"server_id": idSchema("The Discord server (guild) ID."),
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of members to return (default: 100, max: 1000).",
					"default":     defaultMemberLimit,
				},
				"after": idSchema("Only return members whose user ID is greater than this one."),
			}, "server_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.listMembers,
		DeclaredP50: 400,
		DeclaredMax: 20000,
	}
}

func (h *handlers) listMembers(ctx context.Context, args string) (string, error) {
	res := listMembersResult{Members: []memberInfo{}}

	var a listMembersArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	limit := clamp(a.Limit, defaultMemberLimit, 1, maxMemberLimit)
	members, err := h.api.GuildMembers(ctx, a.ServerID, limit, a.After)
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	for _, m := range members {
		if m == nil || m.User == nil {
			continue
		}
		info := memberInfo{
			ID:            m.User.ID,
			Username:      m.User.Username,
			GlobalName:    m.User.GlobalName,
			Nick:          m.Nick,
			Bot:           m.User.Bot,
			Discriminator: m.User.Discriminator,
		}
		if info.Discriminator == "0" {
			info.Discriminator = ""
		}
		if !m.JoinedAt.IsZero() {
			info.JoinedAt = m.JoinedAt.UTC().Format(time.RFC3339)
		}
		res.Members = append(res.Members, info)
	}
	res.Count = len(res.Members)
	return respond(res)
}

func (h *handlers) findChannelsTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "find_channels",
			Description: "Find channels in a Discord server by approximate name. Results are ranked by " +
				"similarity to the query; without a query every channel is returned sorted by name.",
			Parameters: objectSchema(map[string]any{
				"server_id": idSchema("The Discord server (guild) ID."),
				"query": map[string]any{
					"type":        "string",
					"description": "Channel name to search for, e.g. \"general\" or \"dev chat\".",
				},
				"text_only": map[string]any{
					"type":        "boolean",
					"description": "Only consider text channels (default: true).",
					"default":     true,
				},
			}, "server_id"),
			ReadOnly:   true,
			Idempotent: true,
		},
		Handler:     h.findChannels,
		DeclaredP50: 250,
		DeclaredMax: 20000,
	}
}

func (h *handlers) findChannels(ctx context.Context, args string) (string, error) {
	res := listChannelsResult{Channels: []channelInfo{}}

	var a findChannelsArgs
	if err := decodeArgs(args, &a); err != nil {
		res.Error = err.Error()
		return respond(res)
	}
	textOnly := a.TextOnly == nil || *a.TextOnly

	chs, err := h.api.GuildChannels(ctx, a.ServerID)
	if err != nil {
		res.Error = err.Error()
		return respond(res)
	}

	query := nameTokens(a.Query)
	for _, c := range chs {
		if c == nil || (textOnly && c.Type != discordgo.ChannelTypeGuildText) {
			continue
		}
		info := flattenChannel(c)
		if len(query) > 0 {
			score := channelScore(query, nameTokens(c.Name))
			if score < findThreshold {
				continue
			}
			info.Score = &score
		}
		res.Channels = append(res.Channels, info)
	}

	slices.SortStableFunc(res.Channels, func(x, y channelInfo) int {
		if x.Score != nil && y.Score != nil {
			if c := cmp.Compare(*y.Score, *x.Score); c != 0 {
				return c
			}
		}
		return cmp.Compare(strings.ToLower(x.Name), strings.ToLower(y.Name))
	})
	res.Count = len(res.Channels)
	return respond(res)
}

// nameTokens lowercases s and splits it on the separators Discord channel
// names use in place of spaces.
func nameTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})
}

// channelScore rates how well a channel name matches the query. A name that
// contains the query verbatim scores 1. Otherwise the best of the full,
// concatenated and pairwise token Jaro-Winkler similarities wins.
func channelScore(query, name []string) float64 {
	if len(name) == 0 {
		return 0
	}
	q := strings.Join(query, " ")
	n := strings.Join(name, " ")
	if strings.Contains(n, q) {
		return 1
	}

	score := matchr.JaroWinkler(q, n, false)
	if s := matchr.JaroWinkler(strings.Join(query, ""), strings.Join(name, ""), false); s > score {
		score = s
	}
	for _, qt := range query {
		for _, nt := range name {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
