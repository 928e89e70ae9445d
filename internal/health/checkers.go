package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/resilience"
)

// Credentials reports ready while src yields a non-empty bot token. The token
// is resolved on every probe so rotation and removal are both noticed.
func Credentials(src discordapi.TokenSource) Checker {
	return Checker{
		Name: "credentials",
		Check: func(ctx context.Context) error {
			_, err := discordapi.ResolveToken(ctx, src)
			return err
		},
	}
}

// Breaker reports ready unless cb is open. A half-open breaker is probing
// Discord and counts as ready.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "discord",
		Check: func(context.Context) error {
			if st := cb.State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %q is %s", cb.Name(), st)
			}
			return nil
		},
	}
}
