package cache_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalyx/chronicle/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("downloads body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("attachment body"))
		}))
		defer server.Close()

		data, err := cache.NewHTTPFetcher(time.Second, 1024).Fetch(t.Context(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "attachment body", string(data))
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		data, err := cache.NewHTTPFetcher(time.Second, 1024).Fetch(t.Context(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(data))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry missing files", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := cache.NewHTTPFetcher(time.Second, 1024).Fetch(t.Context(), server.URL)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(make([]byte, 64))
		}))
		defer server.Close()

		_, err := cache.NewHTTPFetcher(time.Second, 32).Fetch(t.Context(), server.URL)
		require.ErrorIs(t, err, cache.ErrAttachmentTooLarge)
	})
}
