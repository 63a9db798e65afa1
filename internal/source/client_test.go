package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pagemirror/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.New(io.Discard)
	return NewClient(config.SourceConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 2,
		RPS:            100,
		Burst:          100,
	}, &logger)
}

func TestFetchPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages/p1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
            "external_id": "p1",
            "title": "Hello",
            "slug": "hello",
            "blocks": "[]"
        }`))
	})

	content, err := client.FetchPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", content.ExternalID)
	assert.Equal(t, "Hello", content.Title)
	assert.Equal(t, "hello", content.Slug)
}

func TestFetchPageErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"NotFoundIsPermanent", http.StatusNotFound, false},
		{"ForbiddenIsPermanent", http.StatusForbidden, false},
		{"TooManyRequestsIsTransient", http.StatusTooManyRequests, true},
		{"ServerErrorIsTransient", http.StatusInternalServerError, true},
		{"BadGatewayIsTransient", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := client.FetchPage(context.Background(), "p1")
			require.Error(t, err)

			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestFetchPageNetworkErrorIsTransient(t *testing.T) {
	logger := zerolog.New(io.Discard)
	client := NewClient(config.SourceConfig{
		BaseURL:        "http://127.0.0.1:1", // nothing listens here
		TimeoutSeconds: 1,
		RPS:            100,
		Burst:          100,
	}, &logger)

	_, err := client.FetchPage(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestListPublishedPageIDsPagination(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"results":[{"id":"a"},{"id":"b"}],"next_cursor":"c2","has_more":true}`))
			return
		}
		assert.Equal(t, "c2", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"results":[{"id":"c"}],"has_more":false}`))
	})

	ids, err := client.ListPublishedPageIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 2, calls)
}

func TestIsTransientUnknownError(t *testing.T) {
	assert.True(t, IsTransient(errors.New("who knows")))
}
