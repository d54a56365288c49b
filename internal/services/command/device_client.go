package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// RequestIDHeader correla log del client e del device.
const RequestIDHeader = "X-Request-ID"

type BreakerConfig struct {
	Fails    int           // consecutive failures before opening
	OpenFor  time.Duration // how long the breaker stays open
	Interval time.Duration // closed-state counter reset period, 0 = never
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Fails: 3, OpenFor: 10 * time.Second}
}

// newBreaker builds a breaker that trips on consecutive failures only.
// Only transport errors and 5xx answers count as failures: a 4xx or an
// unreadable 2xx body means the device is there.
func newBreaker(name string, bc BreakerConfig) *gobreaker.CircuitBreaker {
	fails := bc.Fails
	if fails < 1 {
		fails = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: bc.Interval,
		Timeout:  bc.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		IsSuccessful: func(err error) bool {
			return !unreachable(err)
		},
	})
}

func unreachable(err error) bool {
	if err == nil {
		return false
	}
	var de *DeliveryError
	if !errors.As(err, &de) {
		return true
	}
	return de.transport || de.Status >= http.StatusInternalServerError
}

// DeviceClient fa le POST verso il device, un circuit breaker per path.
// It never retries: a failed call is reported once and left to the operator.
type DeviceClient struct {
	base   string
	client *http.Client
	bc     BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewDeviceClient(base string, timeout time.Duration, bc BreakerConfig) *DeviceClient {
	return &DeviceClient{
		base:     strings.TrimRight(strings.TrimSpace(base), "/"),
		client:   &http.Client{Timeout: timeout},
		bc:       bc,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *DeviceClient) breaker(path string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[path]
	if !ok {
		cb = newBreaker("device "+path, c.bc)
		c.breakers[path] = cb
	}
	return cb
}

// BreakerState is exposed for logs and health.
func (c *DeviceClient) BreakerState(path string) gobreaker.State {
	return c.breaker(cleanPath(path)).State()
}

// ResetBreaker forgets the failures recorded for path: the next call goes
// through a fresh, closed breaker.
func (c *DeviceClient) ResetBreaker(path string) {
	c.mu.Lock()
	delete(c.breakers, cleanPath(path))
	c.mu.Unlock()
}

func cleanPath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}

// PostJSON sends body (nil = no body) to path and decodes the JSON answer.
// Every failure comes back as *DeliveryError.
func (c *DeviceClient) PostJSON(ctx context.Context, path, requestID string, body any) (map[string]any, error) {
	path = cleanPath(path)
	op := http.MethodPost + " " + path
	if requestID == "" {
		requestID = uuid.NewString()
	}

	res, err := c.breaker(path).Execute(func() (any, error) {
		return c.post(ctx, op, path, requestID, body)
	})
	if err != nil {
		if de, ok := err.(*DeliveryError); ok {
			return nil, de
		}
		// ErrOpenState / ErrTooManyRequests: the device was not contacted
		return nil, &DeliveryError{Op: op, Err: err}
	}
	return res.(map[string]any), nil
}

func (c *DeviceClient) post(ctx context.Context, op, path, requestID string, body any) (map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &DeliveryError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, rd)
	if err != nil {
		return nil, &DeliveryError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &DeliveryError{Op: op, Err: fmt.Errorf("request error: %w", err), transport: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &DeliveryError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DeliveryError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err), transport: true}
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &DeliveryError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode error: %w", err)}
	}
	return out, nil
}
