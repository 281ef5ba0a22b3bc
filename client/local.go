package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// LocalOptions configures the Ollama backend.
type LocalOptions struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// Local rewords text with a model served by a local Ollama instance.
type Local struct {
	c    *Client
	opts LocalOptions
}

// NewLocal builds a local backend on top of c.
func NewLocal(c *Client, opts LocalOptions) *Local {
	return &Local{c: c, opts: opts}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Small instruction-tuned models sometimes echo the task prefix.
const paraphrasePrefix = "paraphrase: "

// Probe checks that the server is up. It does not retry.
func (l *Local) Probe(ctx context.Context) error {
	status, err := l.c.get(ctx, "/api/tags")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("local model server answered HTTP %d", status)
	}
	return nil
}

// Reword prefixes the instruction to text, since completion models take a
// single prompt.
func (l *Local) Reword(ctx context.Context, text string) (string, error) {
	req := generateRequest{
		Model:   l.opts.Model,
		Prompt:  l.opts.Prompt + "\n\n" + text,
		Stream:  false,
		Options: generateOptions{NumPredict: l.opts.MaxTokens},
	}
	var resp generateResponse
	if err := l.c.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Response)
	out = strings.TrimSpace(strings.TrimPrefix(out, paraphrasePrefix))
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
