package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/chat"
	"github.com/ent0n29/summitchat/internal/reliability"
	"github.com/ent0n29/summitchat/internal/transcript"
)

// handleChat streams the assistant reply as plain text, flushing after every
// chunk. Headers are only committed once the upstream stream is open, so a
// provider failure still produces a proper error status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	sess, _ := auth.SessionFrom(r.Context())

	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	turn, err := s.chat.Start(r.Context(), sess, req)
	if err != nil {
		s.respondChatError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Chat-Id", turn.ChatID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	err = turn.Pump(func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Debug().Str("chat_id", turn.ChatID).Msg("client left before the reply finished")
	default:
		log.Warn().Err(err).Str("chat_id", turn.ChatID).Msg("chat stream interrupted")
	}
}

func (s *Server) respondChatError(w http.ResponseWriter, err error) {
	if errors.Is(err, chat.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if errors.Is(err, transcript.ErrChatNotOwned) {
		respondError(w, http.StatusNotFound, "chat_not_found", "chat not found")
		return
	}
	c := reliability.Classify(err)
	respondError(w, c.Status, c.Code, err.Error())
}
