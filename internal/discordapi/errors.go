package discordapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies a failed Discord call.
type ErrorKind string

const (
	// KindConfiguration means the client is not usable as configured, for
	// example because no bot token is available. No request was sent.
	KindConfiguration ErrorKind = "configuration"

	// KindInvalidRequest covers malformed calls rejected locally and HTTP 400.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindUnauthorized is HTTP 401: the token is missing, malformed or revoked.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindForbidden is HTTP 403, usually "Missing Permissions" or "Missing Access".
	KindForbidden ErrorKind = "forbidden"

	// KindNotFound is HTTP 404.
	KindNotFound ErrorKind = "not_found"

	// KindRateLimited is HTTP 429. RetryAfter carries the advised wait.
	KindRateLimited ErrorKind = "rate_limited"

	// KindRemoteError is any other non-2xx status.
	KindRemoteError ErrorKind = "remote_error"

	// KindTransportFailure covers network errors, timeouts and cancellation.
	KindTransportFailure ErrorKind = "transport_failure"
)

// maxErrorBody bounds how much of an unparsed error body is kept.
const maxErrorBody = 512

// APIError is the error type returned by [Client.Do] and everything built on
// top of it. It never contains the bot token.
type APIError struct {
	Kind ErrorKind

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Code is Discord's JSON error code (e.g. 50013 for Missing Permissions).
	Code int

	// Message is Discord's human-readable message or a local description.
	Message string

	// Details lists per-field validation messages from a 400 body.
	Details []string

	// RetryAfter is the advised wait for rate-limited responses.
	RetryAfter time.Duration

	// Global reports whether a rate limit applies to the whole bot.
	Global bool

	// Body is the raw (possibly truncated) response body.
	Body string

	err error
}

// Error implements error.
func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString("discord: ")
	sb.WriteString(string(e.Kind))
	if e.Status != 0 {
		sb.WriteString(" (")
		sb.WriteString(strconv.Itoa(e.Status))
		sb.WriteString(")")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Code != 0 {
		fmt.Fprintf(&sb, " [code %d]", e.Code)
	}
	if len(e.Details) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		fmt.Fprintf(&sb, " (retry after %s)", e.RetryAfter)
	}
	if e.Kind == KindRemoteError && e.Message == "" && e.Body != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Body)
	}
	if e.err != nil && e.Message == "" {
		sb.WriteString(": ")
		sb.WriteString(e.err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error { return e.err }

// Temporary reports whether repeating the same call later may succeed.
func (e *APIError) Temporary() bool {
	switch e.Kind {
	case KindRateLimited, KindTransportFailure:
		return true
	case KindRemoteError:
		return e.Status == http.StatusBadGateway ||
			e.Status == http.StatusServiceUnavailable ||
			e.Status == http.StatusGatewayTimeout
	}
	return false
}

// KindOf returns the [ErrorKind] of err, or the empty string when err is not
// (and does not wrap) an [*APIError].
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func newConfigError(msg string) *APIError {
	return &APIError{Kind: KindConfiguration, Message: msg}
}

func newInvalidRequest(format string, args ...any) *APIError {
	return &APIError{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewTransportError classifies err as a [KindTransportFailure]. Decorators
// use it for failures that happen before a request reaches Discord.
func NewTransportError(err error) *APIError {
	return &APIError{Kind: KindTransportFailure, err: err}
}

// errorFromResponse maps a non-2xx response to an [*APIError].
func errorFromResponse(status int, header http.Header, body []byte) *APIError {
	e := &APIError{Status: status, Body: truncate(string(body), maxErrorBody)}

	switch {
	case status == http.StatusBadRequest:
		e.Kind = KindInvalidRequest
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	default:
		e.Kind = KindRemoteError
	}

	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		e.Message = doc.Get("message").String()
		e.Code = int(doc.Get("code").Int())
		e.Details = fieldErrors(doc.Get("errors"), "")
		if e.Kind == KindRateLimited {
			e.Global = doc.Get("global").Bool()
			if ra := doc.Get("retry_after"); ra.Exists() {
				e.RetryAfter = seconds(ra.Float())
			}
		}
	}

	if e.Kind == KindRateLimited {
		if d, ok := headerSeconds(header, "Retry-After"); ok {
			e.RetryAfter = d
		} else if d, ok := headerSeconds(header, "X-RateLimit-Reset-After"); ok && e.RetryAfter == 0 {
			e.RetryAfter = d
		}
		if header.Get("X-RateLimit-Global") == "true" {
			e.Global = true
		}
	}

	switch {
	case e.Kind == KindUnauthorized && e.Message != "":
		e.Message = unauthorizedMessage + " (" + e.Message + ")"
	case e.Kind == KindUnauthorized:
		e.Message = unauthorizedMessage
	case e.Message == "" && e.Kind != KindRemoteError:
		e.Message = http.StatusText(status)
	}
	return e
}

// unauthorizedMessage tells the caller where to look after a 401.
const unauthorizedMessage = "bot token is missing, invalid or expired"

// fieldErrors flattens Discord's nested validation error object
// ({"content": {"_errors": [{"code": ..., "message": ...}]}}) into
// "path: message" strings.
func fieldErrors(node gjson.Result, prefix string) []string {
	if !node.IsObject() {
		return nil
	}
	var out []string
	node.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "_errors" {
			for _, fe := range value.Array() {
				msg := fe.Get("message").String()
				if prefix != "" {
					msg = prefix + ": " + msg
				}
				out = append(out, msg)
			}
			return true
		}
		path := key.String()
		if prefix != "" {
			path = prefix + "." + path
		}
		out = append(out, fieldErrors(value, path)...)
		return true
	})
	return out
}

func headerSeconds(h http.Header, name string) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return seconds(f), true
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
