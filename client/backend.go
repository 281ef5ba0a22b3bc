// Package client provides the rewording backends: a remote OpenAI-compatible
// API, a local Ollama server and a websocket streaming server. The pipeline
// only sees the Backend interface.
package client

import (
	"context"
	"errors"
)

// Backend rewrites one piece of text. An empty result or an error means the
// rewrite is absent; callers keep the original text.
type Backend interface {
	Reword(ctx context.Context, text string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, text string) (string, error)

func (f BackendFunc) Reword(ctx context.Context, text string) (string, error) { return f(ctx, text) }

var (
	// ErrEmptyResponse is returned when a backend answered without text.
	ErrEmptyResponse = errors.New("backend returned no text")
	// ErrUnavailable is returned by Resolve when no backend can be used.
	ErrUnavailable = errors.New("no rewording backend available")
)
