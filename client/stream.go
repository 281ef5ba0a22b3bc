package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// StreamOptions configures the websocket streaming backend.
type StreamOptions struct {
	URL         string
	Prompt      string
	MaxTokens   int
	CallTimeout time.Duration
}

// Stream rewords text against a generation server that streams tokens over
// a websocket: the request is answered by any number of text_stream events
// followed by stream_end. The server handles one generation per connection
// at a time, so calls are serialized.
type Stream struct {
	opts StreamOptions

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream returns a stream backend. The connection is dialed on first use.
func NewStream(opts StreamOptions) *Stream {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultRequestTimeout
	}
	return &Stream{opts: opts}
}

type streamRequest struct {
	Prompt       string `json:"prompt"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty"`
}

type streamEvent struct {
	Event      string `json:"event"`
	MessageNum int    `json:"message_num"`
	Text       string `json:"text"`
	Error      string `json:"error,omitempty"`
}

// Probe dials the server if no connection is open.
func (s *Stream) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.connect(ctx)
	return err
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", s.opts.URL, err)
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn
	return conn, nil
}

// Reword sends one generation request and collects the streamed text.
func (s *Stream) Reword(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	conn, err := s.connect(ctx)
	if err != nil {
		return "", err
	}

	out, err := s.roundTrip(ctx, conn, text)
	if err != nil {
		// The stream position is unknown after a failure; start over next call.
		conn.CloseNow()
		s.conn = nil
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

func (s *Stream) roundTrip(ctx context.Context, conn *websocket.Conn, text string) (string, error) {
	req := streamRequest{Prompt: s.opts.Prompt + "\n\n" + text, MaxNewTokens: s.opts.MaxTokens}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}

	var b strings.Builder
	for {
		var ev streamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return "", fmt.Errorf("reading stream: %w", err)
		}
		switch ev.Event {
		case "text_stream":
			b.WriteString(ev.Text)
		case "stream_end":
			return b.String(), nil
		case "error":
			return "", fmt.Errorf("stream server: %s", ev.Error)
		}
	}
}

// Close closes the open connection, if any.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn = nil
	return err
}
