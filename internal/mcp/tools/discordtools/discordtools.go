// Package discordtools provides the MCP tools that expose the Discord REST API
// to agents.
//
// Every handler follows the same shape: decode and validate the JSON
// arguments, call Discord through a [discordapi.API], flatten the response
// into a tool-specific result struct, and encode it. Failures of any kind are
// reported in the result's "error" field; handlers only return a Go error
// when the result itself cannot be encoded.
//
// Exported tools (see [Tools]):
//   - send_message, read_messages, add_reaction, delete_message
//   - list_servers, get_server_info, list_channels, list_members, find_channels
//   - get_user_info, test_connection
//   - api_request (only when [Options.EnableRawRequest] is set)
package discordtools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/discord-mcp/internal/chunker"
	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// Options configures the tool set.
type Options struct {
	// MaxMessageLength is the per-message character limit used to chunk
	// send_message content. Default: [chunker.MaxMessageLength].
	MaxMessageLength int

	// EnableRawRequest registers the api_request passthrough tool.
	EnableRawRequest bool

	// Metrics receives tool-level counters. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// handlers binds the tool implementations to their dependencies.
type handlers struct {
	api     *discordapi.API
	maxLen  int
	metrics *observe.Metrics
}

// Tools returns the Discord tool set backed by api. It panics if api is nil.
func Tools(api *discordapi.API, opts Options) []tools.Tool {
	if api == nil {
		panic("discordtools: Tools called with nil API")
	}
	if opts.MaxMessageLength <= 0 || opts.MaxMessageLength > chunker.MaxMessageLength {
		opts.MaxMessageLength = chunker.MaxMessageLength
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	h := &handlers{api: api, maxLen: opts.MaxMessageLength, metrics: opts.Metrics}

	ts := []tools.Tool{
		h.sendMessageTool(),
		h.readMessagesTool(),
		h.listServersTool(),
		h.getServerInfoTool(),
		h.listChannelsTool(),
		h.addReactionTool(),
		h.deleteMessageTool(),
		h.getUserInfoTool(),
		h.listMembersTool(),
		h.findChannelsTool(),
		h.testConnectionTool(),
	}
	if opts.EnableRawRequest {
		ts = append(ts, h.apiRequestTool())
	}
	return ts
}

// validate checks decoded tool arguments. Field names in messages are the
// JSON argument names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Discord ids are unsigned 64-bit integers rendered as decimal strings.
	_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) == 0 || len(s) > 20 {
			return false
		}
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
		return true
	})
	return v
}

// decodeArgs unmarshals args into v and validates it. Empty args decode as
// an empty object. Numbers landing in untyped fields stay [json.Number] so
// snowflake-sized integers keep their digits.
func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid arguments: trailing data after JSON object")
	}
	if err := validate.Struct(v); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

// validationMessage renders validator errors as one human-readable line.
func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return "invalid arguments: " + err.Error()
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "snowflake":
			msgs = append(msgs, fmt.Sprintf("%s must be a numeric Discord id, got %q", fe.Field(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "startswith":
			msgs = append(msgs, fmt.Sprintf("%s must start with %q", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
		}
	}
	return "invalid arguments: " + strings.Join(msgs, "; ")
}

// respond encodes a tool result.
func respond(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("discordtools: encode result: %w", err)
	}
	return string(b), nil
}

// clamp returns def when v is nil, otherwise *v bounded to [lo, hi].
func clamp(v *int, def, lo, hi int) int {
	if v == nil {
		return def
	}
	return min(max(*v, lo), hi)
}

// idSchema is the JSON Schema of a snowflake argument.
func idSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": desc,
		"pattern":     "^[0-9]+$",
	}
}

// objectSchema builds an object schema from properties and required names.
func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
