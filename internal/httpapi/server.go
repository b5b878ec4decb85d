package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/chat"
	"github.com/ent0n29/summitchat/internal/config"
	"github.com/ent0n29/summitchat/internal/observability"
	"github.com/ent0n29/summitchat/internal/transcript"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Chat      *chat.Service
	Store     transcript.Store
	StoreMode string
	Auth      auth.Authenticator
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

type Server struct {
	cfg       config.Config
	chat      *chat.Service
	store     transcript.Store
	storeMode string
	auth      auth.Authenticator
	metrics   *observability.Metrics
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	authn := deps.Auth
	if authn == nil {
		authn = auth.AnonymousAuthenticator{}
	}
	return &Server{
		cfg:       cfg,
		chat:      deps.Chat,
		store:     deps.Store,
		storeMode: deps.StoreMode,
		auth:      authn,
		metrics:   deps.Metrics,
		log:       deps.Log.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may open the chat socket unless
				// explicitly relaxed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(s.auth, s.log))
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/chat/ws", s.handleChatWS)
		r.Get("/api/chats", s.handleListChats)
		r.Get("/api/chats/{id}", s.handleGetChat)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	provider := ""
	if s.chat != nil {
		provider = s.chat.ProviderName()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"provider":   provider,
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "transcript store not configured",
		})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Str("store_mode", s.storeMode).Msg("readiness check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "unavailable",
			"store_mode": s.storeMode,
			"error":      err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
