package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/summitchat/internal/config"
	"github.com/ent0n29/summitchat/internal/observability"
	"github.com/ent0n29/summitchat/internal/transcript"
)

func baseConfig() config.Config {
	return config.Config{
		MetricsNamespace:       "test_app",
		LLMProvider:            "mock",
		ChatModel:              "gpt-3.5-turbo",
		ChatTemperature:        0.7,
		ChatStreamTimeout:      time.Minute,
		AuthMode:               "jwt",
		AuthJWTSecret:          "secret",
		AuthCookieName:         "session_token",
		TranscriptWriteTimeout: time.Second,
	}
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsWithRegistry("test_app", prometheus.NewRegistry())
}

func TestBuildInMemoryMock(t *testing.T) {
	res, err := Build(context.Background(), baseConfig(), newTestMetrics(), zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Equal(t, "mock", res.Provider)
	_, ok := res.Store.(*transcript.InMemoryStore)
	assert.True(t, ok)
	assert.NotNil(t, res.API.Router())
}

func TestBuildPrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.DatabaseURL = "postgres://unused"

	res, err := Build(context.Background(), cfg, newTestMetrics(), zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	_, ok := res.Store.(*transcript.RedisStore)
	assert.True(t, ok)
}

func TestBuildRejectsMissingJWTSecret(t *testing.T) {
	cfg := baseConfig()
	cfg.AuthJWTSecret = ""
	_, err := Build(context.Background(), cfg, newTestMetrics(), zerolog.Nop())
	assert.Error(t, err)

	cfg.AuthMode = "none"
	res, err := Build(context.Background(), cfg, newTestMetrics(), zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, res.Cleanup())
}
