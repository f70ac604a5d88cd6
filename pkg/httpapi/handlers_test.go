package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/httpapi"
	"github.com/companionlabs/companion-go/pkg/memory"
	memstore "github.com/companionlabs/companion-go/pkg/store/memory"
)

func newTestHandler(t *testing.T) (http.Handler, *memory.Service) {
	t.Helper()
	svc := memory.NewService(memstore.NewStore(), nil, nil, nil)
	orchestrator := chat.NewOrchestrator(svc, nil, nil)
	server := httpapi.NewServer(orchestrator, svc, nil)

	cfg := &core.Config{
		Server: core.ServerConfig{Addr: ":0", AllowedOrigin: "*"},
	}
	return server.Handler(cfg, nil), svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSendMessageEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "Hello, my name is John",
		"userId":  "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["sessionId"])
	require.Contains(t, body, "emotionAnalysis")
	require.Contains(t, body, "context")
}

func TestSendMessageEndpointValidation(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"userId": "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message and userId are required", decodeBody(t, rec)["error"])

	rec = doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/message", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	sent := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "remember this",
		"userId":  "user-1",
	})
	require.Equal(t, http.StatusOK, sent.Code)
	sessionID := decodeBody(t, sent)["sessionId"].(string)

	rec := doJSON(t, handler, http.MethodGet, "/api/chat/history/user-1/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, sessionID, body["sessionId"])

	// Without a session the merged history is returned.
	rec = doJSON(t, handler, http.MethodGet, "/api/chat/history/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	// Unknown users get an empty history, not an error.
	rec = doJSON(t, handler, http.MethodGet, "/api/chat/history/nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestDeleteConversationEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	sent := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "hello",
		"userId":  "user-1",
	})
	sessionID := decodeBody(t, sent)["sessionId"].(string)

	rec := doJSON(t, handler, http.MethodDelete, "/api/chat/conversation/user-1/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["cleared"])

	rec = doJSON(t, handler, http.MethodGet, "/api/chat/history/user-1/"+sessionID, nil)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestSummaryEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	sent := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "I started a new job this week",
		"userId":  "user-1",
	})
	sessionID := decodeBody(t, sent)["sessionId"].(string)

	rec := doJSON(t, handler, http.MethodGet, "/api/chat/summary/user-1/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Conversation with 2 messages about started. Duration: 0 minutes.", body["summary"])
	assert.Equal(t, sessionID, body["sessionId"])

	rec = doJSON(t, handler, http.MethodGet, "/api/chat/summary/user-1/no-such-session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/user/profile/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user-1", body["userId"])

	rec = doJSON(t, handler, http.MethodPut, "/api/user/preferences/user-1", map[string]any{
		"name":          "John",
		"responseStyle": "direct",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/user/profile/user-1", nil)
	body = decodeBody(t, rec)
	profileSection := body["profile"].(map[string]any)
	assert.Equal(t, "John", profileSection["name"])
	preferences := body["preferences"].(map[string]any)
	assert.Equal(t, "direct", preferences["responseStyle"])
}

func TestAnalyticsEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	sent := doJSON(t, handler, http.MethodPost, "/api/chat/message", map[string]any{
		"message": "I'm so happy about my new job",
		"userId":  "user-1",
	})
	require.Equal(t, http.StatusOK, sent.Code)

	rec := doJSON(t, handler, http.MethodGet, "/api/user/analytics/user-1?timeRange=30d", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "30d", body["timeRange"])
	assert.Equal(t, "user-1", body["userId"])

	analytics := body["analytics"].(map[string]any)
	assert.Equal(t, float64(1), analytics["totalSessions"])
	assert.Equal(t, float64(2), analytics["totalMessages"])

	// Garbage ranges fall back to the 7-day default instead of erroring.
	rec = doJSON(t, handler, http.MethodGet, "/api/user/analytics/user-1?timeRange=bogus", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPersonaEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/user/persona/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	persona := body["persona"].(map[string]any)
	assert.Equal(t, "Alex", persona["name"])
	assert.Equal(t, "user-1", body["userId"])
	assert.NotEmpty(t, body["generated"])
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decodeBody(t, rec)["error"])
}
