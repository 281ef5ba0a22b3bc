package client

import (
	"context"
	"strings"
)

// RemoteOptions configures the OpenAI-compatible backend.
type RemoteOptions struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Remote rewords text through a chat completions endpoint.
type Remote struct {
	c    *Client
	opts RemoteOptions
}

// NewRemote builds a remote backend on top of c.
func NewRemote(c *Client, opts RemoteOptions) *Remote {
	return &Remote{c: c, opts: opts}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Reword sends the instruction as the system message and text as the user
// message.
func (r *Remote) Reword(ctx context.Context, text string) (string, error) {
	req := chatRequest{
		Model:       r.opts.Model,
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: r.opts.Prompt},
			{Role: "user", Content: text},
		},
	}
	var resp chatResponse
	if err := r.c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
