// Package webhook notifies pool consumers with an HTTP POST.
//
// The body is the JSON capture event. Headers repeat the fields a receiver
// routes on (target, outcome, whether the pool changed) and carry the run id
// as Idempotency-Key, which stays the same across retries of one run.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/justapithecus/chunkprobe/adapter"
	"github.com/justapithecus/chunkprobe/iox"
)

const DefaultTimeout = 10 * time.Second

// Headers set on every request.
const (
	HeaderEvent          = "X-Chunkprobe-Event"
	HeaderTarget         = "X-Chunkprobe-Target"
	HeaderOutcome        = "X-Chunkprobe-Outcome"
	HeaderPoolChanged    = "X-Chunkprobe-Pool-Changed"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Config configures the webhook adapter.
type Config struct {
	URL string
	// Headers are added to each request (for example Authorization).
	Headers map[string]string
	Timeout time.Duration
	Retries int
}

type Adapter struct {
	config  Config
	client  *http.Client
	retrier adapter.Retrier
}

func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retrier: adapter.Retrier{
			Name:      "webhook",
			Retries:   cfg.Retries,
			Permanent: isPermanent,
		},
	}, nil
}

// Publish POSTs the event. Network errors, 5xx, 408 and 429 are retried;
// any other non-2xx status fails at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.CaptureCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.eventHeader(event)

	return a.retrier.Do(ctx, func(ctx context.Context) error {
		return a.post(ctx, header, body)
	})
}

func (a *Adapter) eventHeader(event *adapter.CaptureCompletedEvent) http.Header {
	h := make(http.Header)
	for k, v := range a.config.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderTarget, event.Target)
	h.Set(HeaderOutcome, event.Outcome)
	h.Set(HeaderPoolChanged, strconv.FormatBool(event.PoolChanged))
	if event.RunID != "" {
		h.Set(HeaderIdempotencyKey, event.RunID)
	}
	return h
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether the receiver may accept a later attempt.
func (e *StatusError) Retriable() bool {
	switch {
	case e.Code >= 500:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func isPermanent(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && !statusErr.Retriable()
}

func (a *Adapter) post(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
