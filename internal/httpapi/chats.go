package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/transcript"
)

const (
	defaultChatListLimit = 50
	maxChatListLimit     = 200
)

type chatSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"createdAt"`
	Incomplete bool      `json:"incomplete,omitempty"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	if sess.Anonymous() {
		auth.Unauthorized(w)
		return
	}

	limit := defaultChatListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxChatListLimit)
	}

	records, err := s.store.ListChats(r.Context(), sess.UserID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", sess.UserID).Msg("list chats failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to list chats")
		return
	}

	items := make([]chatSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, chatSummary{
			ID:         rec.ID,
			Title:      rec.Title,
			Path:       rec.Path,
			CreatedAt:  rec.CreatedAt,
			Incomplete: rec.Incomplete,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": items})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFrom(r.Context())
	if sess.Anonymous() {
		auth.Unauthorized(w)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "missing chat id")
		return
	}

	rec, err := s.store.GetChat(r.Context(), id)
	if errors.Is(err, transcript.ErrNotFound) || (err == nil && rec.UserID != sess.UserID) {
		respondError(w, http.StatusNotFound, "chat_not_found", "chat not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", id).Msg("get chat failed")
		respondError(w, http.StatusInternalServerError, "store_error", "failed to load chat")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
