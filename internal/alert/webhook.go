package alert

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	baseBackoff    = 500 * time.Millisecond
)

var httpClient = &http.Client{Timeout: requestTimeout}

// Send posts an alert event to a webhook endpoint. Transport errors and
// 5xx responses are retried with jittered exponential backoff; a 4xx
// response fails immediately since a retry cannot change it. A cancelled
// context abandons the delivery between attempts.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		status, err := post(ctx, cfg, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 500:
			lastErr = fmt.Errorf("alert: webhook server error: HTTP %d", status)
		default:
			return fmt.Errorf("alert: webhook rejected: HTTP %d", status)
		}
	}

	return fmt.Errorf("alert: webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

func post(ctx context.Context, cfg Config, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("alert: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// backoff doubles per attempt with up to 50% random jitter so that
// webhooks recovering from an outage are not hit in lockstep.
func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}
