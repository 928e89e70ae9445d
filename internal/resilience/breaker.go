package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
)

// Breaker is a [discordapi.Requester] that routes calls through a
// [CircuitBreaker]. Only transport failures and 5xx responses count against
// the breaker; 4xx answers mean Discord is up and the caller is wrong.
type Breaker struct {
	next discordapi.Requester
	cb   *CircuitBreaker
}

var _ discordapi.Requester = (*Breaker)(nil)

// NewBreaker wraps next with cb.
func NewBreaker(next discordapi.Requester, cb *CircuitBreaker) *Breaker {
	if next == nil || cb == nil {
		panic("resilience: NewBreaker requires a requester and a circuit breaker")
	}
	return &Breaker{next: next, cb: cb}
}

// CircuitBreaker returns the breaker guarding the wrapped requester.
func (b *Breaker) CircuitBreaker() *CircuitBreaker { return b.cb }

// Do implements [discordapi.Requester]. A rejected call fails with a
// [discordapi.KindTransportFailure] error wrapping [ErrCircuitOpen].
func (b *Breaker) Do(ctx context.Context, req discordapi.Request) (*discordapi.Response, error) {
	var (
		resp    *discordapi.Response
		callErr error
	)
	err := b.cb.Execute(func() error {
		resp, callErr = b.next.Do(ctx, req)
		if countsAsOutage(ctx, callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) && callErr == nil && resp == nil {
		return nil, discordapi.NewTransportError(ErrCircuitOpen)
	}
	return resp, callErr
}

// countsAsOutage reports whether err indicates Discord itself is unhealthy.
func countsAsOutage(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *discordapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case discordapi.KindTransportFailure:
		return true
	case discordapi.KindRemoteError:
		return apiErr.Status >= http.StatusInternalServerError
	}
	return false
}
