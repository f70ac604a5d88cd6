package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/httpapi"
	"github.com/companionlabs/companion-go/pkg/memory"
	memstore "github.com/companionlabs/companion-go/pkg/store/memory"
)

func newRateLimitedHandler(t *testing.T, max int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewCache("redis://"+mr.Addr(), time.Hour, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	svc := memory.NewService(memstore.NewStore(), c, nil, nil)
	orchestrator := chat.NewOrchestrator(svc, nil, nil)
	server := httpapi.NewServer(orchestrator, svc, nil)

	cfg := &core.Config{
		Server:    core.ServerConfig{Addr: ":0", AllowedOrigin: "*"},
		RateLimit: core.RateLimitConfig{Max: max, Window: time.Minute},
	}
	return server.Handler(cfg, c), mr
}

func getHealthFrom(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitKeysOnClientIP(t *testing.T) {
	handler, _ := newRateLimitedHandler(t, 2)

	// One client, new ephemeral port per connection: one shared budget.
	assert.Equal(t, http.StatusOK, getHealthFrom(handler, "203.0.113.7:1111").Code)
	assert.Equal(t, http.StatusOK, getHealthFrom(handler, "203.0.113.7:2222").Code)

	rec := getHealthFrom(handler, "203.0.113.7:3333")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too Many Requests", decodeBody(t, rec)["error"])

	// A different client address still has budget.
	assert.Equal(t, http.StatusOK, getHealthFrom(handler, "203.0.113.8:4444").Code)
}

func TestRateLimitFailsOpenWhenRedisDown(t *testing.T) {
	handler, mr := newRateLimitedHandler(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, getHealthFrom(handler, "203.0.113.7:1111").Code)
	}
}
