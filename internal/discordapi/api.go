package discordapi

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// API exposes typed helpers for the endpoints used by the MCP tools.
type API struct {
	r Requester
}

// NewAPI wraps r. It panics if r is nil.
func NewAPI(r Requester) *API {
	if r == nil {
		panic("discordapi: NewAPI called with nil Requester")
	}
	return &API{r: r}
}

// Requester returns the underlying [Requester].
func (a *API) Requester() Requester { return a.r }

// CreateMessage posts content to a channel.
func (a *API) CreateMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	var msg discordgo.Message
	err := a.call(ctx, Request{
		Method: http.MethodPost,
		Path:   "/channels/" + seg(channelID) + "/messages",
		Body:   map[string]string{"content": content},
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChannelMessages fetches up to limit messages, newest first. before and
// after are optional message ids.
func (a *API) ChannelMessages(ctx context.Context, channelID string, limit int, before, after string) ([]*discordgo.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	if after != "" {
		q.Set("after", after)
	}
	var msgs []*discordgo.Message
	err := a.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/channels/" + seg(channelID) + "/messages",
		Query:  q,
	}, &msgs)
	return msgs, err
}

// DeleteMessage deletes a message.
func (a *API) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return a.call(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/channels/" + seg(channelID) + "/messages/" + seg(messageID),
	}, nil)
}

// AddReaction reacts to a message as the bot. emoji is a unicode emoji, a
// "name:id" pair or a custom emoji mention such as "<:name:id>".
func (a *API) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	e := NormalizeEmoji(emoji)
	if e == "" {
		return newInvalidRequest("emoji must not be empty")
	}
	return a.call(ctx, Request{
		Method: http.MethodPut,
		Path: "/channels/" + seg(channelID) + "/messages/" + seg(messageID) +
			"/reactions/" + url.PathEscape(e) + "/@me",
	}, nil)
}

// Guild fetches a guild including approximate member and presence counts.
func (a *API) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	var g discordgo.Guild
	err := a.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/guilds/" + seg(guildID),
		Query:  url.Values{"with_counts": {"true"}},
	}, &g)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GuildChannels lists the channels of a guild.
func (a *API) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	var chs []*discordgo.Channel
	err := a.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/guilds/" + seg(guildID) + "/channels",
	}, &chs)
	return chs, err
}

// CurrentUserGuilds lists up to limit guilds the bot is a member of.
func (a *API) CurrentUserGuilds(ctx context.Context, limit int) ([]*discordgo.UserGuild, error) {
	var gs []*discordgo.UserGuild
	err := a.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/users/@me/guilds",
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	}, &gs)
	return gs, err
}

// GuildMembers lists up to limit members ordered by user id, starting after
// the optional user id after.
func (a *API) GuildMembers(ctx context.Context, guildID string, limit int, after string) ([]*discordgo.Member, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if after != "" {
		q.Set("after", after)
	}
	var ms []*discordgo.Member
	err := a.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/guilds/" + seg(guildID) + "/members",
		Query:  q,
	}, &ms)
	return ms, err
}

// User fetches a user by id.
func (a *API) User(ctx context.Context, userID string) (*discordgo.User, error) {
	var u discordgo.User
	if err := a.call(ctx, Request{Method: http.MethodGet, Path: "/users/" + seg(userID)}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CurrentUser fetches the bot's own user.
func (a *API) CurrentUser(ctx context.Context) (*discordgo.User, error) {
	var u discordgo.User
	if err := a.call(ctx, Request{Method: http.MethodGet, Path: "/users/@me"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// call runs req and decodes the body into out when out is non-nil. A body
// that does not fit out is reported as a [KindRemoteError].
func (a *API) call(ctx context.Context, req Request, out any) error {
	resp, err := a.r.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return &APIError{
			Kind:    KindRemoteError,
			Status:  resp.StatusCode,
			Message: "unexpected response shape",
			Body:    truncate(string(resp.Body), maxErrorBody),
			err:     err,
		}
	}
	return nil
}

// seg escapes a single path segment.
func seg(s string) string { return url.PathEscape(s) }

var customEmoji = regexp.MustCompile(`^<a?:([A-Za-z0-9_~]+):(\d+)>$`)

// NormalizeEmoji converts a custom emoji mention ("<:name:id>" or
// "<a:name:id>") into the "name:id" form the reactions endpoint expects.
// Other input is returned trimmed.
func NormalizeEmoji(emoji string) string {
	emoji = strings.TrimSpace(emoji)
	if m := customEmoji.FindStringSubmatch(emoji); m != nil {
		return m[1] + ":" + m[2]
	}
	return emoji
}
