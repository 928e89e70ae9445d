package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// RetryConfig bounds a [Retrier].
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values <= 1 disable retrying.
	MaxAttempts int

	// InitialDelay is the first backoff step. Default: 500ms.
	InitialDelay time.Duration

	// MaxDelay caps every wait, including server-advised rate-limit waits:
	// a 429 asking for longer is returned to the caller instead. Default: 10s.
	MaxDelay time.Duration
}

// Retrier is a [discordapi.Requester] that re-issues failed calls which are
// safe and likely to succeed on a later attempt.
type Retrier struct {
	next discordapi.Requester
	cfg  RetryConfig
}

var _ discordapi.Requester = (*Retrier)(nil)

// NewRetrier wraps next.
func NewRetrier(next discordapi.Requester, cfg RetryConfig) *Retrier {
	if next == nil {
		panic("resilience: NewRetrier requires a requester")
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	return &Retrier{next: next, cfg: cfg}
}

// Do implements [discordapi.Requester].
func (r *Retrier) Do(ctx context.Context, req discordapi.Request) (*discordapi.Response, error) {
	if r.cfg.MaxAttempts <= 1 {
		return r.next.Do(ctx, req)
	}

	resp, err := retry.DoWithData(
		func() (*discordapi.Response, error) {
			return r.next.Do(ctx, req)
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.MaxAttempts)),
		retry.Delay(r.cfg.InitialDelay),
		retry.MaxDelay(r.cfg.MaxDelay),
		retry.MaxJitter(r.cfg.InitialDelay),
		retry.DelayType(r.delay),
		retry.RetryIf(func(err error) bool { return r.retryable(req.Method, err) }),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			observe.Logger(ctx).Warn("retrying discord request",
				"method", req.Method,
				"route", discordapi.Route(req.Path),
				"attempt", n+1,
				"err", err)
		}),
	)
	if err != nil && discordapi.KindOf(err) == "" {
		// Cancelled while waiting between attempts.
		return nil, discordapi.NewTransportError(err)
	}
	return resp, err
}

// delay honours Discord's advised wait and falls back to jittered
// exponential backoff.
func (r *Retrier) delay(n uint, err error, cfg *retry.Config) time.Duration {
	var apiErr *discordapi.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == discordapi.KindRateLimited && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, cfg)
}

// retryable reports whether a failed call may be re-issued.
func (r *Retrier) retryable(method string, err error) bool {
	var apiErr *discordapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case discordapi.KindRateLimited:
		// Discord drops rate-limited requests unprocessed.
		return apiErr.RetryAfter <= r.cfg.MaxDelay
	case discordapi.KindTransportFailure:
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		return idempotent(method)
	case discordapi.KindRemoteError:
		return idempotent(method) && apiErr.Temporary()
	}
	return false
}

func idempotent(method string) bool {
	return !strings.EqualFold(method, http.MethodPost)
}
