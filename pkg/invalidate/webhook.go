package invalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookBackend posts events to an HTTP endpoint, such as a static-site
// host's purge hook. Transient failures are retried with exponential
// backoff; 4xx responses are permanent.
type WebhookBackend struct {
	url        string
	secret     string
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// WebhookBackendConfig holds webhook backend configuration.
type WebhookBackendConfig struct {
	URL string

	// Secret is sent as a bearer token when set.
	Secret string

	// InitialInterval is the first retry delay (default: 500ms).
	InitialInterval time.Duration

	// MaxElapsedTime bounds all attempts together (default: 1 minute).
	MaxElapsedTime time.Duration

	// Client overrides the HTTP client.
	Client *http.Client
}

// NewWebhookBackend creates a new webhook backend.
func NewWebhookBackend(cfg WebhookBackendConfig) (*WebhookBackend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = time.Minute
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &WebhookBackend{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: client,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialInterval
			b.MaxElapsedTime = cfg.MaxElapsedTime
			return b
		},
	}, nil
}

func (b *WebhookBackend) Name() string {
	return "webhook"
}

func (b *WebhookBackend) Invalidate(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return NewBackendError(b.Name(), "marshal", err)
	}

	op := func() error {
		return b.post(ctx, body)
	}
	if err := backoff.Retry(op, backoff.WithContext(b.newBackOff(), ctx)); err != nil {
		return NewBackendError(b.Name(), "post", err)
	}
	return nil
}

func (b *WebhookBackend) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.secret != "" {
		req.Header.Set("Authorization", "Bearer "+b.secret)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned %s", resp.Status))
	}
}
