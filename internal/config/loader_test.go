package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DISCUSSION_TOKEN_LIMIT", "REDIS_URL", "REDIS_HOST", "LLM_PROVIDER",
		"MAX_CONNECTIONS_PER_IP", "FILE_OPERATION_MAX_RETRIES",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Budget.DiscussionTokenLimit)
	require.Equal(t, 3, cfg.Store.MaxRetries)
	require.Equal(t, 100, cfg.Store.RetryDelayMS)
	require.Equal(t, 30, cfg.Lock.FileTTLSeconds)
	require.Equal(t, 300, cfg.Lock.ProcessingTTLSeconds)
	require.Equal(t, 10, cfg.Gateway.MaxConnectionsPerIP)
	require.Equal(t, 5, cfg.Gateway.ConnectionRateLimit)
	require.Equal(t, 100, cfg.Gateway.MaxMessagesPerMinute)
	require.False(t, cfg.Redis.Enabled)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadRedisURLEnablesBackend(t *testing.T) {
	t.Setenv("REDIS_URL", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadDiscussionTokenLimitOverride(t *testing.T) {
	t.Setenv("DISCUSSION_TOKEN_LIMIT", "8000")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Budget.DiscussionTokenLimit)
}

func TestParseCommaSeparatedList(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, parseCommaSeparatedList(" a, b ,c"))
	require.Nil(t, parseCommaSeparatedList("  "))
}
