package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/witanlabs/rowsmith/config"
	"github.com/witanlabs/rowsmith/internal/logging"
)

// Kind names a backend selection.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
	KindStream Kind = "stream"
	KindNone   Kind = "none"
)

const probeTimeout = 3 * time.Second

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAuto, KindLocal, KindRemote, KindStream, KindNone:
		return k, nil
	case "":
		return KindAuto, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want auto, local, remote, stream or none)", s)
	}
}

// Resolved is the backend chosen at startup. Backend is nil for KindNone.
// Close must be called once the batch is done.
type Resolved struct {
	Kind    Kind
	Backend Backend
	Close   func() error
}

func noClose() error { return nil }

// Resolve picks the backend described by cfg. For auto the order is: local
// model server if it answers a probe, then the remote API if a key is
// configured. Explicit kinds never fall back.
func Resolve(ctx context.Context, cfg config.Config, log logging.Logger) (*Resolved, error) {
	log = logging.OrNoOp(log)

	kind, err := ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}

	var res *Resolved
	switch kind {
	case KindNone:
		log.Info("no rewording backend configured")
		return &Resolved{Kind: KindNone, Close: noClose}, nil
	case KindLocal:
		res, err = resolveLocal(ctx, cfg)
	case KindRemote:
		res, err = resolveRemote(cfg)
	case KindStream:
		res, err = resolveStream(ctx, cfg)
	case KindAuto:
		res, err = resolveLocal(ctx, cfg)
		if err != nil {
			log.Warn("local model server unavailable", "url", cfg.Local.BaseURL, "error", err)
			res, err = resolveRemote(cfg)
			if err != nil {
				log.Warn("remote API unavailable", "error", err)
				return nil, fmt.Errorf("%w: no local model server at %s and no API key configured", ErrUnavailable, cfg.Local.BaseURL)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info("rewording backend selected", "backend", string(res.Kind), "model", modelFor(res.Kind, cfg))
	if cfg.Cache {
		cache := NewResponseCache()
		res.Backend = NewCached(res.Backend, cache, fingerprint(res.Kind, cfg))
		log.Debug("response cache enabled", "dir", cache.dir)
	}
	return res, nil
}

func resolveLocal(ctx context.Context, cfg config.Config) (*Resolved, error) {
	c := New(cfg.Local.BaseURL, "", clientOptions(cfg, 0))
	l := NewLocal(c, LocalOptions{
		Model:     cfg.Local.Model,
		Prompt:    cfg.Prompt,
		MaxTokens: cfg.MaxLength,
	})
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := l.Probe(pctx); err != nil {
		return nil, fmt.Errorf("%w: local model server: %v", ErrUnavailable, err)
	}
	return &Resolved{Kind: KindLocal, Backend: l, Close: noClose}, nil
}

func resolveRemote(cfg config.Config) (*Resolved, error) {
	if strings.TrimSpace(cfg.Remote.APIKey) == "" {
		return nil, fmt.Errorf("%w: remote API key not set (remote.api_key or OPENAI_API_KEY)", ErrUnavailable)
	}
	c := New(cfg.Remote.BaseURL, cfg.Remote.APIKey, clientOptions(cfg, cfg.Remote.RequestsPerMinute))
	r := NewRemote(c, RemoteOptions{
		Model:       cfg.Remote.Model,
		Prompt:      cfg.Prompt,
		MaxTokens:   cfg.MaxLength,
		Temperature: cfg.Remote.Temperature,
	})
	return &Resolved{Kind: KindRemote, Backend: r, Close: noClose}, nil
}

func resolveStream(ctx context.Context, cfg config.Config) (*Resolved, error) {
	s := NewStream(StreamOptions{
		URL:         cfg.Stream.URL,
		Prompt:      cfg.Prompt,
		MaxTokens:   cfg.MaxLength,
		CallTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := s.Probe(pctx); err != nil {
		return nil, fmt.Errorf("%w: stream server: %v", ErrUnavailable, err)
	}
	return &Resolved{Kind: KindStream, Backend: s, Close: s.Close}, nil
}

func clientOptions(cfg config.Config, rpm int) ClientOptions {
	return ClientOptions{
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		RequestsPerMinute: rpm,
		UserAgent:         UserAgent,
	}
}

// UserAgent is sent with every HTTP request; the CLI stamps its version in.
var UserAgent = defaultUserAgent

func modelFor(kind Kind, cfg config.Config) string {
	switch kind {
	case KindLocal:
		return cfg.Local.Model
	case KindRemote:
		return cfg.Remote.Model
	case KindStream:
		return cfg.Stream.URL
	default:
		return ""
	}
}

func endpointFor(kind Kind, cfg config.Config) string {
	switch kind {
	case KindLocal:
		return cfg.Local.BaseURL
	case KindRemote:
		return cfg.Remote.BaseURL
	case KindStream:
		return cfg.Stream.URL
	default:
		return ""
	}
}

// fingerprint covers everything besides the input text that shapes a reply.
func fingerprint(kind Kind, cfg config.Config) string {
	fp := fmt.Sprintf("%s|%s|%s|%s|%d", kind, endpointFor(kind, cfg), modelFor(kind, cfg), cfg.Prompt, cfg.MaxLength)
	if kind == KindRemote {
		fp += "|" + strconv.FormatFloat(cfg.Remote.Temperature, 'g', -1, 64)
	}
	return fp
}
