package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
)

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req chat.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Message and userId are required"})
		return
	}

	resp, err := s.orchestrator.SendMessage(r.Context(), &req)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Message and userId are required"})
			return
		}
		s.logger.Error("send message failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to process message",
			"message": "I apologize, but I encountered an error. Please try again.",
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sessionID := chi.URLParam(r, "sessionId")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.memory.History(r.Context(), userID, sessionID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", "user", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to retrieve conversation history"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages":  messages,
		"count":     len(messages),
		"sessionId": sessionID,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sessionID := chi.URLParam(r, "sessionId")

	summary, err := s.orchestrator.Summarize(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Conversation not found"})
			return
		}
		s.logger.Error("summary generation failed", "user", userID, "session", sessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to generate summary"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":   summary,
		"sessionId": sessionID,
		"userId":    userID,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sessionID := chi.URLParam(r, "sessionId")

	if err := s.memory.Clear(r.Context(), userID, sessionID); err != nil {
		s.logger.Error("clear conversation failed", "user", userID, "session", sessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to clear conversation"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Conversation cleared successfully",
		"cleared":   true,
		"sessionId": sessionID,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	profile, err := s.memory.UserProfile(r.Context(), userID)
	if err != nil {
		s.logger.Error("profile lookup failed", "user", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to retrieve user profile"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var patch core.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}

	profile, err := s.memory.UpdateProfile(r.Context(), userID, &patch)
	if err != nil {
		s.logger.Error("profile update failed", "user", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to update user profile"})
		return
	}

	if profile.Temporary {
		writeJSON(w, http.StatusOK, map[string]any{
			"profile": profile,
			"note":    "Profile update not saved - storage not available",
		})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	timeRange := r.URL.Query().Get("timeRange")
	if timeRange == "" {
		timeRange = "7d"
	}

	analytics, err := s.memory.Analytics(r.Context(), userID, parseTimeRange(timeRange))
	if err != nil {
		s.logger.Error("analytics lookup failed", "user", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to retrieve analytics"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analytics": analytics,
		"timeRange": timeRange,
		"userId":    userID,
	})
}

func (s *Server) handleGeneratePersona(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	persona, err := s.orchestrator.GeneratePersona(r.Context(), userID)
	if err != nil {
		s.logger.Error("persona generation failed", "user", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to generate persona"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"persona":   persona,
		"userId":    userID,
		"generated": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

// parseTimeRange parses ranges like "7d" or "30d" into a day count.
// Unparseable ranges default to 7 days.
func parseTimeRange(timeRange string) int {
	trimmed := strings.TrimSuffix(timeRange, "d")
	days, err := strconv.Atoi(trimmed)
	if err != nil || days <= 0 {
		return 7
	}
	return days
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
