package invalidate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill/pkg/models"
)

func newTestWebhook(t *testing.T, url string) *WebhookBackend {
	t.Helper()
	b, err := NewWebhookBackend(WebhookBackendConfig{
		URL:             url,
		Secret:          "s3cret",
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	})
	require.NoError(t, err)
	return b
}

func TestWebhookBackendRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var ev Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, []int{1, 2}, ev.IDs)

		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := newTestWebhook(t, srv.URL)
	err := b.Invalidate(context.Background(), NewEvent(models.CollectionArticle, ReasonReordered, 2, 1))

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookBackendClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := newTestWebhook(t, srv.URL)
	err := b.Invalidate(context.Background(), NewEvent(models.CollectionArticle, ReasonCreated, 1))

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "webhook", backendErr.Backend)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestNewWebhookBackendRequiresURL(t *testing.T) {
	_, err := NewWebhookBackend(WebhookBackendConfig{})
	assert.ErrorContains(t, err, "webhook url is required")
}
