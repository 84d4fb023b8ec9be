package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jordanhubbard/councilhub/internal/events"
)

const userAgent = "LLM-Council-Webhook/1.0"

// DeliveryRecorder counts delivery outcomes. Implemented in internal/app
// over the prometheus registry.
type DeliveryRecorder interface {
	WebhookDelivery(outcome string)
}

// Dispatcher delivers signed webhook payloads with retries.
type Dispatcher struct {
	client      *http.Client
	retries     int
	backoffBase time.Duration
	bus         *events.Bus
	metrics     DeliveryRecorder
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEventBus publishes webhook_sent / webhook_failed events.
func WithEventBus(bus *events.Bus) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithMetrics attaches a delivery recorder.
func WithMetrics(m DeliveryRecorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBackoffBase overrides the backoff unit. Tests use a small value.
func WithBackoffBase(base time.Duration) Option {
	return func(d *Dispatcher) { d.backoffBase = base }
}

// New creates a Dispatcher. Deliveries make up to 3 attempts with
// exponential backoff (1s, 2s, 4s units) between them.
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		client:      &http.Client{Timeout: 30 * time.Second},
		retries:     3,
		backoffBase: time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CanonicalJSON serializes a payload with all object keys sorted at every
// nesting level. The round trip through map[string]any makes encoding/json
// emit keys in sorted order regardless of the payload's Go type.
func CanonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Sign computes the X-Webhook-Signature header value: HMAC-SHA256 over the
// canonical JSON serialization of the payload, hex-encoded with a sha256=
// prefix.
func Sign(payload any, secret string) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// Deliver POSTs the payload to url, signing it when a secret is set. Any
// response status below 300 counts as delivered. Failed attempts are retried
// with exponential backoff; the error reports exhaustion.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload any, secret string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	signature := ""
	if secret != "" {
		signature, err = Sign(payload, secret)
		if err != nil {
			return fmt.Errorf("failed to sign webhook payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < d.retries; attempt++ {
		if attempt > 0 {
			backoff := d.backoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.attempt(ctx, url, body, signature)
		if err == nil {
			if d.metrics != nil {
				d.metrics.WebhookDelivery("success")
			}
			if d.bus != nil {
				d.bus.Publish(events.Event{
					Type:       events.EventWebhookSent,
					WebhookURL: url,
					Attempts:   attempt + 1,
				})
			}
			return nil
		}
		lastErr = err
		d.logger.Warn("webhook attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("url", url),
			slog.String("error", err.Error()))
	}

	if d.metrics != nil {
		d.metrics.WebhookDelivery("failure")
	}
	if d.bus != nil {
		d.bus.Publish(events.Event{
			Type:       events.EventWebhookFailed,
			WebhookURL: url,
			Attempts:   d.retries,
			ErrorMsg:   lastErr.Error(),
		})
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", d.retries, lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
