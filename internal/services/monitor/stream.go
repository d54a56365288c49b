package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"
)

// MaxEventSize caps one SSE event. Longer events are cut short and reach the
// decoder truncated, so they are dropped without tearing the stream down.
const MaxEventSize = 1 << 20

// SSEDialer opens text/event-stream connections to <base>/events.
type SSEDialer struct {
	url      string
	client   *http.Client
	maxEvent int
}

// NewSSEDialer: client must not carry a Timeout, the stream is long lived.
func NewSSEDialer(baseURL string, client *http.Client) *SSEDialer {
	if client == nil {
		client = &http.Client{}
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &SSEDialer{url: base + "/events", client: client, maxEvent: MaxEventSize}
}

func (d *SSEDialer) URL() string { return d.url }

// Open subscribes once. The sse client never reconnects on its own
// (StopBackOff): retry policy belongs to the ConnectionManager.
func (d *SSEDialer) Open(cb StreamCallbacks) Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &sseStream{cancel: cancel}

	hc := *d.client
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = clampTransport{base: base, max: d.maxEvent}

	c := sse.NewClient(d.url, sse.ClientMaxBufferSize(4*d.maxEvent+4096))
	c.Connection = &hc
	c.ReconnectStrategy = &backoff.StopBackOff{}
	c.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return fmt.Errorf("events upstream status %d", resp.StatusCode)
		}
		if !s.closed.Load() {
			cb.OnOpen()
		}
		return nil
	}

	go s.run(ctx, c, cb)
	return s
}

type sseStream struct {
	cancel context.CancelFunc
	closed atomic.Bool
}

// Close cancels the request; no callback is delivered afterwards.
func (s *sseStream) Close() error {
	s.closed.Store(true)
	s.cancel()
	return nil
}

func (s *sseStream) run(ctx context.Context, c *sse.Client, cb StreamCallbacks) {
	err := c.SubscribeRawWithContext(ctx, func(ev *sse.Event) {
		if s.closed.Load() || len(ev.Data) == 0 {
			return
		}
		typ := string(ev.Event)
		if typ == "" {
			typ = "message"
		}
		cb.OnMessage(typ, bytes.Clone(ev.Data))
	})
	if err == nil {
		err = io.ErrUnexpectedEOF // the device closed the stream
	} else {
		err = fmt.Errorf("events request error: %w", err)
	}
	if !s.closed.Load() {
		cb.OnError(err)
	}
}

type clampTransport struct {
	base http.RoundTripper
	max  int
}

func (t clampTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &eventClamp{ReadCloser: resp.Body, max: t.max}
	return resp, nil
}

// eventClamp keeps at most max bytes per event. The tail of a long line and
// any further line of the same event are dropped; line breaks survive, so the
// event framing does not change.
type eventClamp struct {
	io.ReadCloser
	max  int
	size int  // bytes kept in the current event
	col  int  // bytes in the current line, '\r' excluded
	skip bool // dropping a whole line
	cut  bool // dropping the tail of a line
}

func (c *eventClamp) Read(p []byte) (int, error) {
	for {
		n, err := c.ReadCloser.Read(p)
		k := 0
		for _, b := range p[:n] {
			if c.keep(b) {
				p[k] = b
				k++
			}
		}
		if k > 0 || n == 0 || err != nil {
			return k, err
		}
	}
}

func (c *eventClamp) keep(b byte) bool {
	switch b {
	case '\n':
		skipped := c.skip
		blank := c.col == 0 && !c.skip && !c.cut
		c.col, c.skip, c.cut = 0, false, false
		if skipped {
			return false
		}
		if blank {
			c.size = 0
		} else {
			c.size++
		}
		return true
	case '\r':
		return !c.skip
	}
	if c.skip || c.cut {
		return false
	}
	if c.size >= c.max {
		if c.col == 0 {
			c.skip = true
		} else {
			c.cut = true
		}
		return false
	}
	c.col++
	c.size++
	return true
}
