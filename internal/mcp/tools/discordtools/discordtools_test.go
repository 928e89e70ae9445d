package discordtools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// request is one call received by the fake Discord server.
type request struct {
	Method string
	Path   string // escaped path
	Query  string
	Body   string
}

// fakeDiscord dispatches to handlers keyed by "METHOD /escaped/path" and
// records every request.
type fakeDiscord struct {
	handlers map[string]http.HandlerFunc

	mu   sync.Mutex
	seen []request
}

func (f *fakeDiscord) requests() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.seen...)
}

func (f *fakeDiscord) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	key := r.Method + " " + r.URL.EscapedPath()

	f.mu.Lock()
	f.seen = append(f.seen, request{Method: r.Method, Path: r.URL.EscapedPath(), Query: r.URL.RawQuery, Body: string(body)})
	h, ok := f.handlers[key]
	f.mu.Unlock()

	if !ok {
		reply(http.StatusNotFound, `{"message":"Unknown route","code":0}`)(w, r)
		return
	}
	h(w, r)
}

// reply returns a handler that writes a canned JSON response.
func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

type fixture struct {
	tools   map[string]tools.Tool
	discord *fakeDiscord
	reader  *sdkmetric.ManualReader
}

func newFixture(t *testing.T, token string, handlers map[string]http.HandlerFunc, opts Options) *fixture {
	t.Helper()
	f := &fakeDiscord{handlers: handlers}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts.Metrics = m

	client, err := discordapi.New(discordapi.StaticToken(token),
		discordapi.WithBaseURL(srv.URL),
		discordapi.WithHTTPClient(srv.Client()),
		discordapi.WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("discordapi.New: %v", err)
	}

	byName := make(map[string]tools.Tool)
	for _, tool := range Tools(discordapi.NewAPI(client), opts) {
		byName[tool.Definition.Name] = tool
	}
	return &fixture{tools: byName, discord: f, reader: reader}
}

// call runs the named tool and parses its JSON result.
func (fx *fixture) call(t *testing.T, name string, args any) gjson.Result {
	t.Helper()
	tool, ok := fx.tools[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	out, err := tool.Handler(context.Background(), string(raw))
	if err != nil {
		t.Fatalf("%s handler: %v", name, err)
	}
	if !gjson.Valid(out) {
		t.Fatalf("%s returned invalid JSON: %s", name, out)
	}
	return gjson.Parse(out)
}

func TestTools_Names(t *testing.T) {
	want := []string{
		"send_message", "read_messages", "list_servers", "get_server_info", "list_channels",
		"add_reaction", "delete_message", "get_user_info", "list_members", "find_channels",
		"test_connection",
	}
	api := discordapi.NewAPI(&discordapi.Client{})

	var got []string
	for _, tool := range Tools(api, Options{}) {
		got = append(got, tool.Definition.Name)
		if tool.Handler == nil {
			t.Errorf("%s has no handler", tool.Definition.Name)
		}
		if tool.Definition.Parameters["type"] != "object" {
			t.Errorf("%s schema type = %v, want object", tool.Definition.Name, tool.Definition.Parameters["type"])
		}
		if tool.DeclaredMax <= 0 {
			t.Errorf("%s declares no timeout", tool.Definition.Name)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tool names (-want +got):\n%s", diff)
	}

	raw := Tools(api, Options{EnableRawRequest: true})
	if last := raw[len(raw)-1].Definition.Name; last != "api_request" {
		t.Errorf("last tool = %q, want api_request", last)
	}
}

func TestTools_NilAPIPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Tools(nil) did not panic")
		}
	}()
	Tools(nil, Options{})
}

func TestSendMessage_ChunksLongContentInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		next = 100
	)
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"POST /channels/111/messages": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			id := next
			next++
			mu.Unlock()
			reply(http.StatusOK, fmt.Sprintf(`{"id":"%d","channel_id":"111"}`, id))(w, r)
		},
	}, Options{})

	res := fx.call(t, "send_message", map[string]any{
		"channel_id": "111",
		"content":    strings.Repeat("A", 4500),
	})

	if !res.Get("success").Bool() {
		t.Fatalf("success = false, result: %s", res.Raw)
	}
	if got := res.Get("count").Int(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	var ids []string
	for _, id := range res.Get("message_ids").Array() {
		ids = append(ids, id.String())
	}
	if diff := cmp.Diff([]string{"100", "101", "102"}, ids); diff != "" {
		t.Errorf("message_ids (-want +got):\n%s", diff)
	}
	if got := res.Get("message_id").String(); got != "102" {
		t.Errorf("message_id = %q, want the last id 102", got)
	}

	reqs := fx.discord.requests()
	var lengths []int
	for _, r := range reqs {
		lengths = append(lengths, len(gjson.Get(r.Body, "content").String()))
	}
	if diff := cmp.Diff([]int{2000, 2000, 500}, lengths); diff != "" {
		t.Errorf("chunk lengths (-want +got):\n%s", diff)
	}

	var rm metricdata.ResourceMetrics
	if err := fx.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := chunksSent(rm); got != 3 {
		t.Errorf("chunks.sent = %d, want 3", got)
	}
}

func chunksSent(rm metricdata.ResourceMetrics) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "discord_mcp.chunks.sent" {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestSendMessage_StopsAtFirstFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"POST /channels/111/messages": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 2 {
				reply(http.StatusForbidden, `{"message":"Missing Permissions","code":50013}`)(w, r)
				return
			}
			reply(http.StatusOK, fmt.Sprintf(`{"id":"%d"}`, n))(w, r)
		},
	}, Options{MaxMessageLength: 10})

	res := fx.call(t, "send_message", map[string]any{
		"channel_id": "111",
		"content":    "line one\nline two\nline three",
	})

	if res.Get("success").Bool() {
		t.Fatal("success = true, want false")
	}
	if got := res.Get("count").Int(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	errMsg := res.Get("error").String()
	for _, want := range []string{"chunk 2 of 3", "Missing Permissions"} {
		if !strings.Contains(errMsg, want) {
			t.Errorf("error %q does not contain %q", errMsg, want)
		}
	}
	if got := len(fx.discord.requests()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestSendMessage_BlankContent(t *testing.T) {
	fx := newFixture(t, "test-token", nil, Options{})

	res := fx.call(t, "send_message", map[string]any{"channel_id": "111", "content": "  \n\t "})
	if !strings.Contains(res.Get("error").String(), "must not be blank") {
		t.Errorf("error = %q, want blank content error", res.Get("error").String())
	}
	if got := len(fx.discord.requests()); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestSendMessage_SkipsWhitespaceChunks(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"POST /channels/111/messages": reply(http.StatusOK, `{"id":"1"}`),
	}, Options{MaxMessageLength: 10})

	// The run of blank lines packs into a chunk of its own.
	content := strings.Repeat("a", 12) + strings.Repeat("\n", 12) + strings.Repeat("b", 12)
	res := fx.call(t, "send_message", map[string]any{"channel_id": "111", "content": content})

	if !res.Get("success").Bool() || res.Get("count").Int() != 4 {
		t.Fatalf("result = %s, want 4 messages sent", res.Raw)
	}
	var sent []string
	for _, r := range fx.discord.requests() {
		sent = append(sent, gjson.Get(r.Body, "content").String())
	}
	want := []string{"aaaaaaaaaa", "aa", "bbbbbbbbbb", "bb"}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Errorf("sent contents (-want +got):\n%s", diff)
	}

	if desc := fx.tools["send_message"].Definition.Description; !strings.Contains(desc, "only whitespace") {
		t.Errorf("description %q does not mention that whitespace-only pieces are skipped", desc)
	}
}

func TestReadMessages_Limit(t *testing.T) {
	tests := []struct {
		name  string
		limit any
		want  string
	}{
		{"default", nil, "limit=50"},
		{"clamped high", 150, "limit=100"},
		{"clamped low", 0, "limit=1"},
		{"in range", 25, "limit=25"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
				"GET /channels/111/messages": reply(http.StatusOK, `[]`),
			}, Options{})

			args := map[string]any{"channel_id": "111"}
			if tc.limit != nil {
				args["limit"] = tc.limit
			}
			res := fx.call(t, "read_messages", args)
			if res.Get("error").Exists() {
				t.Fatalf("unexpected error: %s", res.Get("error").String())
			}
			reqs := fx.discord.requests()
			if len(reqs) != 1 || reqs[0].Query != tc.want {
				t.Errorf("requests = %+v, want one with query %q", reqs, tc.want)
			}
		})
	}
}

func TestReadMessages_Flattens(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /channels/111/messages": reply(http.StatusOK, `[
			{"id":"2","content":"hi","timestamp":"2024-01-02T03:04:05.000000+00:00","author":{"id":"7","username":"alice","discriminator":"0"},"attachments":[{"id":"a"}]},
			{"id":"1","content":"yo","timestamp":"2024-01-02T03:00:00.000000+00:00","author":{"id":"8","username":"bob","discriminator":"1234"},"attachments":[]}
		]`),
	}, Options{})

	res := fx.call(t, "read_messages", map[string]any{"channel_id": "111", "before": "99"})

	type msg struct {
		ID          string `json:"id"`
		Author      string `json:"author"`
		AuthorID    string `json:"author_id"`
		Content     string `json:"content"`
		Timestamp   string `json:"timestamp"`
		Attachments int    `json:"attachments"`
	}
	var got []msg
	if err := json.Unmarshal([]byte(res.Get("messages").Raw), &got); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	want := []msg{
		{"2", "alice", "7", "hi", "2024-01-02T03:04:05Z", 1},
		{"1", "bob#1234", "8", "yo", "2024-01-02T03:00:00Z", 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	if got := res.Get("count").Int(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if q := fx.discord.requests()[0].Query; !strings.Contains(q, "before=99") {
		t.Errorf("query = %q, want before=99", q)
	}
}

func TestTools_ForbiddenSurfacesDiscordMessage(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /channels/111/messages": reply(http.StatusForbidden, `{"message":"Missing Permissions","code":50013}`),
	}, Options{})

	res := fx.call(t, "read_messages", map[string]any{"channel_id": "111"})
	if got := res.Get("error").String(); !strings.Contains(got, "Missing Permissions") {
		t.Errorf("error = %q, want it to contain Missing Permissions", got)
	}
	if got := res.Get("count").Int(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestTools_MissingTokenFailsBeforeNetwork(t *testing.T) {
	fx := newFixture(t, "  ", nil, Options{EnableRawRequest: true})

	calls := map[string]map[string]any{
		"send_message":    {"channel_id": "1", "content": "hi"},
		"read_messages":   {"channel_id": "1"},
		"list_servers":    {},
		"get_server_info": {"server_id": "1"},
		"list_channels":   {"server_id": "1"},
		"add_reaction":    {"channel_id": "1", "message_id": "2", "emoji": "👍"},
		"delete_message":  {"channel_id": "1", "message_id": "2"},
		"get_user_info":   {"user_id": "1"},
		"list_members":    {"server_id": "1"},
		"find_channels":   {"server_id": "1"},
		"test_connection": {},
		"api_request":     {"method": "GET", "path": "/users/@me"},
	}
	for name, args := range calls {
		res := fx.call(t, name, args)
		if got := res.Get("error").String(); !strings.Contains(got, "bot token is not set") {
			t.Errorf("%s error = %q, want missing token", name, got)
		}
	}
	if got := len(fx.discord.requests()); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestTools_ArgumentValidation(t *testing.T) {
	fx := newFixture(t, "test-token", nil, Options{EnableRawRequest: true})

	tests := []struct {
		tool string
		args any
		want string
	}{
		{"send_message", map[string]any{"content": "hi"}, "channel_id is required"},
		{"send_message", map[string]any{"channel_id": "1"}, "content is required"},
		{"read_messages", map[string]any{"channel_id": "general"}, `channel_id must be a numeric Discord id, got "general"`},
		{"read_messages", map[string]any{"channel_id": "1", "after": "x"}, "after must be a numeric Discord id"},
		{"read_messages", map[string]any{"channel_id": "1", "limit": "ten"}, "invalid arguments"},
		{"add_reaction", map[string]any{"channel_id": "1", "message_id": "2"}, "emoji is required"},
		{"list_members", map[string]any{}, "server_id is required"},
		{"get_user_info", map[string]any{"user_id": "@me"}, "user_id must be a numeric Discord id"},
		{"api_request", map[string]any{"method": "TRACE", "path": "/x"}, "method must be one of"},
		{"api_request", map[string]any{"method": "GET", "path": "users/@me"}, `path must start with "/"`},
		{"api_request", map[string]any{"method": "GET", "path": "/x", "query": map[string]any{"a": []int{1}}}, `query value "a"`},
	}
	for _, tc := range tests {
		t.Run(tc.tool+"/"+tc.want, func(t *testing.T) {
			res := fx.call(t, tc.tool, tc.args)
			if got := res.Get("error").String(); !strings.Contains(got, tc.want) {
				t.Errorf("error = %q, want it to contain %q", got, tc.want)
			}
		})
	}
	if got := len(fx.discord.requests()); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestAddReaction_EmojiPath(t *testing.T) {
	tests := []struct {
		emoji    string
		wantPath string
	}{
		{"👍", "/channels/1/messages/2/reactions/%F0%9F%91%8D/@me"},
		{"<:party:123456>", "/channels/1/messages/2/reactions/party:123456/@me"},
		{"<a:dance:42>", "/channels/1/messages/2/reactions/dance:42/@me"},
	}
	for _, tc := range tests {
		t.Run(tc.emoji, func(t *testing.T) {
			fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
				"PUT " + tc.wantPath: reply(http.StatusNoContent, ""),
			}, Options{})

			res := fx.call(t, "add_reaction", map[string]any{"channel_id": "1", "message_id": "2", "emoji": tc.emoji})
			if !res.Get("success").Bool() {
				t.Fatalf("success = false: %s", res.Raw)
			}
			if got := res.Get("message").String(); got != "Reaction '"+tc.emoji+"' added" {
				t.Errorf("message = %q", got)
			}
		})
	}
}

func TestDeleteMessage(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"DELETE /channels/1/messages/2": reply(http.StatusNoContent, ""),
	}, Options{})

	res := fx.call(t, "delete_message", map[string]any{"channel_id": "1", "message_id": "2"})
	if !res.Get("success").Bool() || res.Get("message").String() != "Message 2 deleted" {
		t.Errorf("result = %s", res.Raw)
	}

	res = fx.call(t, "delete_message", map[string]any{"channel_id": "1", "message_id": "3"})
	if res.Get("success").Bool() || !strings.Contains(res.Get("error").String(), "not_found") {
		t.Errorf("result = %s, want not_found error", res.Raw)
	}
}

func TestListServers(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /users/@me/guilds": reply(http.StatusOK, `[
			{"id":"10","name":"Tavern","icon":"abc","owner":true,"permissions":"2147483647"},
			{"id":"11","name":"Guild Hall","icon":null,"owner":false,"permissions":"1024"}
		]`),
	}, Options{})

	res := fx.call(t, "list_servers", map[string]any{"limit": 500})

	if got := res.Get("count").Int(); got != 2 {
		t.Fatalf("count = %d, want 2 (%s)", got, res.Raw)
	}
	first := res.Get("servers.0")
	if first.Get("permissions").String() != "2147483647" || !first.Get("owner").Bool() {
		t.Errorf("servers[0] = %s", first.Raw)
	}
	if url := first.Get("icon_url").String(); !strings.Contains(url, "/icons/10/abc") {
		t.Errorf("icon_url = %q", url)
	}
	if res.Get("servers.1.icon_url").Exists() {
		t.Errorf("servers[1] has icon_url without an icon: %s", res.Get("servers.1").Raw)
	}
	if q := fx.discord.requests()[0].Query; q != "limit=200" {
		t.Errorf("query = %q, want limit=200", q)
	}
}

func TestGetServerInfo(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /guilds/10": reply(http.StatusOK, `{
			"id":"10","name":"Tavern","description":"ale","owner_id":"5","icon":"abc",
			"approximate_member_count":42,"approximate_presence_count":7,
			"features":["COMMUNITY","NEWS"],"verification_level":2,"premium_tier":1
		}`),
	}, Options{})

	res := fx.call(t, "get_server_info", map[string]any{"server_id": "10"})

	checks := map[string]string{
		"id":                 "10",
		"name":               "Tavern",
		"description":        "ale",
		"owner_id":           "5",
		"member_count":       "42",
		"presence_count":     "7",
		"verification_level": "2",
		"premium_tier":       "1",
		"features":           `["COMMUNITY","NEWS"]`,
	}
	for path, want := range checks {
		got := res.Get(path)
		if got.String() != want && got.Raw != want {
			t.Errorf("%s = %s, want %s", path, got.Raw, want)
		}
	}
	if q := fx.discord.requests()[0].Query; q != "with_counts=true" {
		t.Errorf("query = %q, want with_counts=true", q)
	}
}

const guildChannels = `[
	{"id":"3","name":"off-topic","type":0,"position":2},
	{"id":"1","name":"general","type":0,"position":0,"parent_id":"9"},
	{"id":"2","name":"General Voice","type":2,"position":1},
	{"id":"4","name":"dev-chat","type":0,"position":3},
	{"id":"9","name":"Text","type":4,"position":0}
]`

func TestListChannels_SortedByPosition(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /guilds/10/channels": reply(http.StatusOK, guildChannels),
	}, Options{})

	res := fx.call(t, "list_channels", map[string]any{"server_id": "10"})

	var ids []string
	for _, c := range res.Get("channels").Array() {
		ids = append(ids, c.Get("id").String())
	}
	if diff := cmp.Diff([]string{"1", "9", "2", "3", "4"}, ids); diff != "" {
		t.Errorf("channel order (-want +got):\n%s", diff)
	}
	if got := res.Get("channels.0.parent_id").String(); got != "9" {
		t.Errorf("parent_id = %q, want 9", got)
	}
	if got := res.Get("channels.2.type").Int(); got != 2 {
		t.Errorf("type = %d, want 2", got)
	}
}

func TestFindChannels(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"GET /guilds/10/channels": reply(http.StatusOK, guildChannels),
	}

	t.Run("ranked by similarity", func(t *testing.T) {
		fx := newFixture(t, "test-token", handlers, Options{})
		res := fx.call(t, "find_channels", map[string]any{"server_id": "10", "query": "genral"})

		if got := res.Get("channels.0.name").String(); got != "general" {
			t.Fatalf("best match = %q, want general (%s)", got, res.Raw)
		}
		for _, c := range res.Get("channels").Array() {
			if c.Get("type").Int() != 0 {
				t.Errorf("non-text channel %s returned with text_only default", c.Get("name").String())
			}
			if !c.Get("score").Exists() {
				t.Errorf("channel %s has no score", c.Get("name").String())
			}
		}
	})

	t.Run("substring match scores 1", func(t *testing.T) {
		fx := newFixture(t, "test-token", handlers, Options{})
		res := fx.call(t, "find_channels", map[string]any{"server_id": "10", "query": "Dev"})
		if got := res.Get("channels.0"); got.Get("name").String() != "dev-chat" || got.Get("score").Float() != 1 {
			t.Errorf("channels[0] = %s, want dev-chat with score 1", got.Raw)
		}
	})

	t.Run("all channel types", func(t *testing.T) {
		fx := newFixture(t, "test-token", handlers, Options{})
		res := fx.call(t, "find_channels", map[string]any{"server_id": "10", "query": "general", "text_only": false})
		var names []string
		for _, c := range res.Get("channels").Array() {
			names = append(names, c.Get("name").String())
		}
		if len(names) < 2 || names[0] != "general" || names[1] != "General Voice" {
			t.Errorf("names = %v, want general then General Voice first", names)
		}
	})

	t.Run("no query lists text channels by name", func(t *testing.T) {
		fx := newFixture(t, "test-token", handlers, Options{})
		res := fx.call(t, "find_channels", map[string]any{"server_id": "10"})
		var names []string
		for _, c := range res.Get("channels").Array() {
			names = append(names, c.Get("name").String())
		}
		if diff := cmp.Diff([]string{"dev-chat", "general", "off-topic"}, names); diff != "" {
			t.Errorf("names (-want +got):\n%s", diff)
		}
	})
}

func TestListMembers(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /guilds/10/members": reply(http.StatusOK, `[
			{"user":{"id":"21","username":"alice","discriminator":"0","global_name":"Alice"},"nick":"Al","joined_at":"2023-05-06T07:08:09.000000+00:00"},
			{"user":{"id":"22","username":"helper","discriminator":"4321","bot":true},"joined_at":"2023-05-07T00:00:00+00:00"},
			{"nick":"ghost"}
		]`),
	}, Options{})

	res := fx.call(t, "list_members", map[string]any{"server_id": "10", "limit": 5000, "after": "20"})

	if got := res.Get("count").Int(); got != 2 {
		t.Fatalf("count = %d, want 2 (%s)", got, res.Raw)
	}
	alice := res.Get("members.0")
	if alice.Get("nick").String() != "Al" || alice.Get("global_name").String() != "Alice" ||
		alice.Get("joined_at").String() != "2023-05-06T07:08:09Z" || alice.Get("discriminator").Exists() {
		t.Errorf("members[0] = %s", alice.Raw)
	}
	if !res.Get("members.1.bot").Bool() || res.Get("members.1.discriminator").String() != "4321" {
		t.Errorf("members[1] = %s", res.Get("members.1").Raw)
	}
	q := fx.discord.requests()[0].Query
	if !strings.Contains(q, "limit=1000") || !strings.Contains(q, "after=20") {
		t.Errorf("query = %q, want limit=1000 and after=20", q)
	}
}

func TestGetUserInfo(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /users/175928847299117063": reply(http.StatusOK,
			`{"id":"175928847299117063","username":"nelly","discriminator":"0","global_name":"Nelly","avatar":"8342729096ea3675442027381ff50dfe"}`),
	}, Options{})

	res := fx.call(t, "get_user_info", map[string]any{"user_id": "175928847299117063"})

	if got := res.Get("created_at").String(); got != "2016-04-30T11:18:25Z" {
		t.Errorf("created_at = %q, want 2016-04-30T11:18:25Z", got)
	}
	if got := res.Get("avatar_url").String(); !strings.Contains(got, "8342729096ea3675442027381ff50dfe") {
		t.Errorf("avatar_url = %q", got)
	}
	if res.Get("username").String() != "nelly" || res.Get("global_name").String() != "Nelly" || res.Get("bot").Bool() {
		t.Errorf("result = %s", res.Raw)
	}
}

func TestTestConnection(t *testing.T) {
	fx := newFixture(t, "Bot test-token", map[string]http.HandlerFunc{
		"GET /users/@me": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bot test-token" {
				reply(http.StatusUnauthorized, `{"message":"401: Unauthorized","code":0}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"id":"5","username":"mcp-bot","bot":true,"flags":0,"avatar_decoration_data":{"asset":"x"}}`)(w, r)
		},
	}, Options{})

	res := fx.call(t, "test_connection", nil)

	if !res.Get("success").Bool() {
		t.Fatalf("success = false: %s", res.Raw)
	}
	if res.Get("body.username").String() != "mcp-bot" || !res.Get("body.bot").Bool() {
		t.Errorf("body = %s", res.Get("body").Raw)
	}
	if res.Get("body.avatar_decoration_data").Exists() {
		t.Error("nested objects should be omitted from body")
	}
}

func TestTestConnection_Unauthorized(t *testing.T) {
	fx := newFixture(t, "wrong", map[string]http.HandlerFunc{
		"GET /users/@me": reply(http.StatusUnauthorized, `{"message":"401: Unauthorized","code":0}`),
	}, Options{})

	res := fx.call(t, "test_connection", map[string]any{})
	if res.Get("success").Bool() || !strings.Contains(res.Get("error").String(), "unauthorized") {
		t.Errorf("result = %s, want unauthorized error", res.Raw)
	}
	if !strings.Contains(res.Get("error").String(), "bot token is missing, invalid or expired") {
		t.Errorf("error = %q, want a hint to check the bot token", res.Get("error").String())
	}
}

func TestAPIRequest(t *testing.T) {
	fx := newFixture(t, "test-token", map[string]http.HandlerFunc{
		"GET /channels/1/pins":      reply(http.StatusOK, `[{"id":"7"}]`),
		"PATCH /channels/1":         reply(http.StatusOK, `{"id":"1","topic":"new"}`),
		"DELETE /channels/1/x":      reply(http.StatusNoContent, ""),
		"POST /channels/1/messages": reply(http.StatusOK, `{"id":"9","nonce":1234567890123456789}`),
	}, Options{EnableRawRequest: true})

	res := fx.call(t, "api_request", map[string]any{
		"method": "get",
		"path":   "/channels/1/pins?before=2024",
		"query":  map[string]any{"limit": 5, "with_counts": true},
	})
	if res.Get("status").Int() != 200 || res.Get("body.0.id").String() != "7" {
		t.Errorf("GET result = %s", res.Raw)
	}

	res = fx.call(t, "api_request", map[string]any{
		"method": "PATCH",
		"path":   "/channels/1",
		"body":   map[string]any{"topic": "new"},
	})
	if res.Get("body.topic").String() != "new" {
		t.Errorf("PATCH result = %s", res.Raw)
	}

	res = fx.call(t, "api_request", map[string]any{"method": "DELETE", "path": "/channels/1/x"})
	if res.Get("status").Int() != 204 || res.Get("body").Exists() || res.Get("error").Exists() {
		t.Errorf("DELETE result = %s", res.Raw)
	}

	// Snowflake-sized numbers must survive with every digit.
	res = fx.call(t, "api_request", map[string]any{
		"method": "POST",
		"path":   "/channels/1/messages",
		"query":  map[string]any{"after": int64(1234567890123456789)},
		"body":   map[string]any{"content": "hi", "nonce": int64(1234567890123456789)},
	})
	if got := res.Get("body.nonce").Raw; got != "1234567890123456789" {
		t.Errorf("response nonce = %s, want the exact integer (%s)", got, res.Raw)
	}

	reqs := fx.discord.requests()
	if len(reqs) != 4 {
		t.Fatalf("requests = %d, want 4", len(reqs))
	}
	if reqs[3].Query != "after=1234567890123456789" {
		t.Errorf("POST query = %q, want after=1234567890123456789", reqs[3].Query)
	}
	if got := gjson.Get(reqs[3].Body, "nonce").Raw; got != "1234567890123456789" {
		t.Errorf("POST body nonce = %s, want the exact integer", got)
	}
	if reqs[0].Query != "before=2024&limit=5&with_counts=true" {
		t.Errorf("GET query = %q", reqs[0].Query)
	}
	if reqs[1].Method != http.MethodPatch || gjson.Get(reqs[1].Body, "topic").String() != "new" {
		t.Errorf("PATCH request = %+v", reqs[1])
	}
}
