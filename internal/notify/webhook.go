// Package notify delivers patrol reports to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultRetries = 3
	maxBackoff     = 30 * time.Second
	deliveryHeader = "X-Codepatrol-Delivery"
)

// Message is the structured, human-readable report payload.
type Message struct {
	Channel   string `json:"channel,omitempty"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Summary   string `json:"summary"`
	RiskLevel string `json:"risk_level"`
	RunID     string `json:"run_id"`
}

// Options configures the webhook.
type Options struct {
	URL     string
	Channel string
	// Retries after the first attempt. 0 sends once; negative uses the default.
	Retries int
	Timeout time.Duration
	Backoff time.Duration
}

// Webhook posts messages as JSON with exponential-backoff retry.
type Webhook struct {
	url        string
	channel    string
	retries    int
	backoff    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
	newID      func() string
}

// New creates a webhook. Returns nil if no URL is configured; a nil
// Webhook delivers nothing.
func New(opts Options, logger zerolog.Logger) *Webhook {
	if opts.URL == "" {
		return nil
	}
	retries := opts.Retries
	if retries < 0 {
		retries = defaultRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Webhook{
		url:        opts.URL,
		channel:    opts.Channel,
		retries:    retries,
		backoff:    backoff,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "notify").Logger(),
		newID:      uuid.NewString,
	}
}

// Deliver posts msg and returns an opaque delivery handle, or "" when
// delivery failed. It never returns an error.
func (w *Webhook) Deliver(ctx context.Context, msg Message) string {
	if w == nil {
		return ""
	}
	if msg.Channel == "" {
		msg.Channel = w.channel
	}

	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to marshal notification")
		return ""
	}

	id := w.newID()
	backoff := w.backoff

	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			w.logger.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying webhook after backoff")
			select {
			case <-ctx.Done():
				w.logger.Warn().Err(ctx.Err()).Msg("webhook delivery cancelled")
				return ""
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		handle, err := w.send(ctx, body, id)
		if err == nil {
			w.logger.Info().Str("delivery", handle).Int("attempt", attempt).Msg("report delivered")
			return handle
		}
		w.logger.Warn().Err(err).Int("attempt", attempt).Msg("webhook attempt failed")
	}

	return ""
}

func (w *Webhook) send(ctx context.Context, body []byte, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "codepatrol")
	req.Header.Set(deliveryHeader, id)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	// Chat APIs answer with their own message id; prefer it when present.
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var ack struct {
		ID string `json:"id"`
		TS string `json:"ts"`
	}
	if json.Unmarshal(data, &ack) == nil {
		if ack.ID != "" {
			return ack.ID, nil
		}
		if ack.TS != "" {
			return ack.TS, nil
		}
	}
	return id, nil
}
