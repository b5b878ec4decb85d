package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ent0n29/summitchat/internal/auth"
	"github.com/ent0n29/summitchat/internal/chat"
	"github.com/ent0n29/summitchat/internal/completion"
	"github.com/ent0n29/summitchat/internal/config"
	"github.com/ent0n29/summitchat/internal/httpapi"
	"github.com/ent0n29/summitchat/internal/observability"
	"github.com/ent0n29/summitchat/internal/policy"
	"github.com/ent0n29/summitchat/internal/transcript"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Chat     *chat.Service
	Store    transcript.Store
	Recorder *transcript.Recorder
	Metrics  *observability.Metrics
	Provider string

	// Cleanup waits for in-flight transcript writes, then releases the store.
	Cleanup func() error
}

// Build wires the service from configuration. metrics may be nil, in which
// case instruments are registered on the default Prometheus registry.
func Build(ctx context.Context, cfg config.Config, metrics *observability.Metrics, log zerolog.Logger) (*BuildResult, error) {
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	authn, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := completion.NewProvider(completion.Config{
		Mode:    cfg.LLMProvider,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("completion provider init failed: %w", err)
	}

	store, err := transcript.NewStore(ctx, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}
	storeMode := cfg.StoreMode()

	recorder := transcript.NewRecorder(store, transcript.RecorderConfig{
		StoreMode:    storeMode,
		Redactor:     policy.NewRedactor(cfg.TranscriptRedactPII),
		WriteTimeout: cfg.TranscriptWriteTimeout,
	}, metrics, log)

	bridge := completion.NewBridge(provider, cfg.ChatModel, cfg.ChatTemperature)
	chatService := chat.NewService(bridge, recorder, chat.Config{
		StreamTimeout:     cfg.ChatStreamTimeout,
		DrainOnDisconnect: cfg.ChatDrainOnDisconnect,
		AllowPreviewToken: cfg.ChatAllowPreviewToken,
	}, metrics, log)

	api := httpapi.New(cfg, httpapi.Deps{
		Chat:      chatService,
		Store:     store,
		StoreMode: storeMode,
		Auth:      authn,
		Metrics:   metrics,
		Log:       log,
	})

	log.Info().
		Str("provider", provider.Name()).
		Str("model", cfg.ChatModel).
		Str("store_mode", storeMode).
		Str("auth_mode", cfg.AuthMode).
		Bool("drain_on_disconnect", cfg.ChatDrainOnDisconnect).
		Msg("chat service wired")

	cleanup := func() error {
		recorder.Close()
		return store.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Chat:     chatService,
		Store:    store,
		Recorder: recorder,
		Metrics:  metrics,
		Provider: provider.Name(),
		Cleanup:  cleanup,
	}, nil
}

func newAuthenticator(cfg config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case "none":
		return auth.AnonymousAuthenticator{}, nil
	case "jwt", "":
		a, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret:     cfg.AuthJWTSecret,
			Issuer:     cfg.AuthJWTIssuer,
			Audience:   cfg.AuthJWTAudience,
			CookieName: cfg.AuthCookieName,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt authenticator init failed: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}
