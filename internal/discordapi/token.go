package discordapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// TokenSource yields the bot token. Implementations are consulted on every
// request so a rotated secret takes effect without a restart.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token implements [TokenSource].
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// EnvToken reads the named environment variable.
type EnvToken string

// Token implements [TokenSource].
func (e EnvToken) Token(context.Context) (string, error) {
	return os.Getenv(string(e)), nil
}

// FileToken reads the token from a file such as a mounted secret. A missing
// file yields an empty token rather than an error.
type FileToken string

// Token implements [TokenSource].
func (f FileToken) Token(context.Context) (string, error) {
	if f == "" {
		return "", nil
	}
	b, err := os.ReadFile(string(f))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("discordapi: read token file: %w", err)
	}
	return string(b), nil
}

// FirstToken returns the first non-empty token among its sources.
type FirstToken []TokenSource

// Token implements [TokenSource].
func (s FirstToken) Token(ctx context.Context) (string, error) {
	for _, src := range s {
		tok, err := src.Token(ctx)
		if err != nil {
			return "", err
		}
		if tok = normalizeToken(tok); tok != "" {
			return tok, nil
		}
	}
	return "", nil
}

// normalizeToken trims surrounding whitespace and a leading "Bot " scheme.
func normalizeToken(tok string) string {
	tok = strings.TrimSpace(tok)
	switch {
	case strings.EqualFold(tok, "bot"):
		return ""
	case len(tok) >= 4 && strings.EqualFold(tok[:4], "bot "):
		return strings.TrimSpace(tok[4:])
	}
	return tok
}

// ResolveToken returns the normalised token from src, or a
// [KindConfiguration] error when none is available.
func ResolveToken(ctx context.Context, src TokenSource) (string, error) {
	if src == nil {
		return "", newConfigError("no bot token source configured")
	}
	tok, err := src.Token(ctx)
	if err != nil {
		return "", &APIError{Kind: KindConfiguration, Message: "bot token unavailable", err: err}
	}
	tok = normalizeToken(tok)
	if tok == "" {
		return "", newConfigError("bot token is not set (DISCORD_TOKEN)")
	}
	return tok, nil
}
