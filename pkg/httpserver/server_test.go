package httpserver_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/httpserver"
)

func testConfig() httpserver.Config {
	return httpserver.Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     10 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	t.Run("serves until the context is canceled", func(t *testing.T) {
		t.Parallel()

		srv := httpserver.New(testConfig(), httpserver.WithLogger(slog.New(slog.DiscardHandler)))
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
		}()

		require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 10*time.Millisecond)

		resp, err := http.Get("http://" + srv.Addr() + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("rejects a nil handler", func(t *testing.T) {
		t.Parallel()

		srv := httpserver.New(testConfig(), httpserver.WithLogger(slog.New(slog.DiscardHandler)))
		assert.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrStart)
	})

	t.Run("unbindable address fails to start", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Addr = "256.256.256.256:1"
		srv := httpserver.New(cfg, httpserver.WithLogger(slog.New(slog.DiscardHandler)))
		assert.ErrorIs(t, srv.Run(context.Background(), http.NotFoundHandler()), httpserver.ErrStart)
	})
}
