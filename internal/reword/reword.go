// Package reword rewrites unit text through a backend. In ModeSpans only the
// interiors of markup spans are rewritten and every other byte is kept; in
// ModeWhole the backend receives the whole text.
package reword

import (
	"context"
	"fmt"
	"strings"

	"github.com/witanlabs/rowsmith/client"
	"github.com/witanlabs/rowsmith/internal/logging"
)

// Mode selects what part of a unit goes to the backend.
type Mode string

const (
	ModeSpans Mode = "spans"
	ModeWhole Mode = "whole"
)

// ParseMode validates a mode name. Empty selects ModeSpans.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeSpans, nil
	case ModeSpans, ModeWhole:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want spans or whole)", s)
	}
}

// Options controls a rewording run.
type Options struct {
	Mode        Mode
	Tag         string
	Concurrency int
	Logger      logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeSpans
	}
	if o.Tag == "" {
		o.Tag = DefaultTag
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	o.Logger = logging.OrNoOp(o.Logger)
	return o
}

// Unit rewrites one unit's text. ok is false only in ModeWhole when the
// backend produced nothing; ModeSpans always succeeds and falls back to the
// original interior per span.
func Unit(ctx context.Context, text string, backend client.Backend, opts Options) (string, bool) {
	opts = opts.withDefaults()
	if opts.Mode == ModeWhole {
		out := call(ctx, backend, text, opts.Logger)
		if out == "" {
			return "", false
		}
		return out, true
	}
	return rewordSpans(ctx, text, backend, opts), true
}

func rewordSpans(ctx context.Context, text string, backend client.Backend, opts Options) string {
	spans := FindSpans(text, opts.Tag)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, sp := range spans {
		interior := text[sp.InnerStart:sp.InnerEnd]
		b.WriteString(text[last:sp.InnerStart])

		replacement := interior
		if plain := stripTags(interior); plain != "" {
			if out := call(ctx, backend, plain, opts.Logger); out != "" {
				replacement = out
			} else {
				opts.Logger.Debug("span kept", "span", i)
			}
		}
		b.WriteString(replacement)
		last = sp.InnerEnd
	}
	b.WriteString(text[last:])
	return b.String()
}

// call invokes the backend and converts every failure, panics included,
// into an empty result.
func call(ctx context.Context, backend client.Backend, text string, log logging.Logger) (out string) {
	if backend == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("backend panicked", "panic", fmt.Sprint(r))
			out = ""
		}
	}()
	res, err := backend.Reword(ctx, text)
	if err != nil {
		log.Warn("backend failed", "error", err)
		return ""
	}
	return res
}
