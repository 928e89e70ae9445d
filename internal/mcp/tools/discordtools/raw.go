package discordtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
)

type apiRequestArgs struct {
	Method string         `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	Path   string         `json:"path" validate:"required,startswith=/"`
	Body   any            `json:"body"`
	Query  map[string]any `json:"query"`
}

type apiRequestResult struct {
	Status int    `json:"status,omitempty"`
	Body   any    `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *handlers) apiRequestTool() tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{
			Name: "api_request",
			Description: "Send an arbitrary request to the Discord REST API (v9) as the bot. The path is " +
				"relative to the API root, e.g. /channels/123/pins.",
			Parameters: objectSchema(map[string]any{
				"method": map[string]any{
					"type": "string",
					"enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				},
				"path": map[string]any{
					"type":        "string",
					"description": "API path starting with /.",
					"pattern":     "^/",
				},
				"body": map[string]any{
					"description": "Optional JSON request body.",
				},
				"query": map[string]any{
					"type":                 "object",
					"description":          "Optional query parameters. Values must be strings, numbers or booleans.",
					"additionalProperties": map[string]any{"type": []string{"string", "number", "boolean"}},
				},
			}, "method", "path"),
			Destructive: true,
		},
		Handler:     h.apiRequest,
		DeclaredP50: 300,
		DeclaredMax: 20000,
	}
}

func (h *handlers) apiRequest(ctx context.Context, args string) (string, error) {
	var a apiRequestArgs
	if err := decodeArgs(args, &a); err != nil {
		return respond(apiRequestResult{Error: err.Error()})
	}

	path, rawQuery, _ := strings.Cut(a.Path, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return respond(apiRequestResult{Error: "invalid arguments: path query: " + err.Error()})
	}
	for k, v := range a.Query {
		switch v := v.(type) {
		case json.Number:
			q.Set(k, v.String())
		case string:
			q.Set(k, v)
		case bool:
			q.Set(k, strconv.FormatBool(v))
		default:
			return respond(apiRequestResult{Error: fmt.Sprintf("invalid arguments: query value %q must be a string, number or boolean", k)})
		}
	}

	resp, err := h.api.Requester().Do(ctx, discordapi.Request{
		Method: strings.ToUpper(a.Method),
		Path:   path,
		Body:   a.Body,
		Query:  q,
	})
	if err != nil {
		return respond(apiRequestResult{Error: err.Error()})
	}
	body, err := resp.Value()
	if err != nil {
		return respond(apiRequestResult{Status: resp.StatusCode, Error: err.Error()})
	}
	return respond(apiRequestResult{Status: resp.StatusCode, Body: body})
}
