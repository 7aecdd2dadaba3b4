package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
// Mirrors the teacher's env-first, defaults-after shape: read every
// recognized variable with no defaulting, then backfill zero values.
func Load() (Config, error) {
	// Overload so a repo-local .env deterministically wins in development,
	// the same trade-off the teacher makes for its own Load().
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.LLM.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	cfg.LLM.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLM.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.LLM.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	cfg.LLM.Anthropic.Fallbacks = parseCommaSeparatedList(os.Getenv("ANTHROPIC_FALLBACK_MODELS"))

	cfg.LLM.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLM.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	cfg.LLM.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.LLM.OpenAI.Fallbacks = parseCommaSeparatedList(os.Getenv("OPENAI_FALLBACK_MODELS"))

	cfg.LLM.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.LLM.Google.Model = strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL"))
	cfg.LLM.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	cfg.LLM.Google.Fallbacks = parseCommaSeparatedList(os.Getenv("GOOGLE_LLM_FALLBACK_MODELS"))

	if n, ok := parseIntEnv("PROVIDER_STREAM_TIMEOUT_SECONDS"); ok {
		cfg.LLM.StreamTimeoutSeconds = n
	}
	if n, ok := parseIntEnv("PROVIDER_FALLBACK_MAX_ATTEMPTS"); ok {
		cfg.LLM.FallbackMaxAttempts = n
	}

	cfg.Store.DiscussionsDir = strings.TrimSpace(os.Getenv("DISCUSSIONS_DIR"))
	cfg.Store.DatabasePath = strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	cfg.Store.BackupsDir = strings.TrimSpace(os.Getenv("BACKUPS_DIR"))
	if n, ok := parseIntEnv("FILE_OPERATION_MAX_RETRIES"); ok {
		cfg.Store.MaxRetries = n
	}
	if n, ok := parseIntEnv("FILE_OPERATION_RETRY_DELAY_MS"); ok {
		cfg.Store.RetryDelayMS = n
	}
	if n, ok := parseIntEnv("RECONCILE_INTERVAL_SECONDS"); ok {
		cfg.Store.ReconcileIntervalSeconds = n
	}
	if f, ok := parseFloatEnv("RECONCILE_TOKEN_TOLERANCE"); ok {
		cfg.Store.ReconcileTokenTolerance = f
	}
	if n, ok := parseIntEnv("STALE_DISCUSSION_THRESHOLD_MINUTES"); ok {
		cfg.Store.StaleDiscussionThresholdMinutes = n
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	} else if v := strings.TrimSpace(os.Getenv("REDIS_HOST")); v != "" {
		cfg.Redis.Enabled = true
		port := strings.TrimSpace(os.Getenv("REDIS_PORT"))
		if port == "" {
			port = "6379"
		}
		cfg.Redis.Addr = v + ":" + port
	}
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if n, ok := parseIntEnv("REDIS_DB"); ok {
		cfg.Redis.DB = n
	}

	if n, ok := parseIntEnv("LOCK_FILE_TTL_SECONDS"); ok {
		cfg.Lock.FileTTLSeconds = n
	}
	if n, ok := parseIntEnv("LOCK_PROCESSING_TTL_SECONDS"); ok {
		cfg.Lock.ProcessingTTLSeconds = n
	}
	if n, ok := parseIntEnv("LOCK_POLL_INTERVAL_MS"); ok {
		cfg.Lock.PollIntervalMS = n
	}

	cfg.Gateway.Host = strings.TrimSpace(os.Getenv("GATEWAY_HOST"))
	if n, ok := parseIntEnv("GATEWAY_PORT"); ok {
		cfg.Gateway.Port = n
	}
	if n, ok := parseIntEnv("MAX_CONNECTIONS_PER_IP"); ok {
		cfg.Gateway.MaxConnectionsPerIP = n
	}
	if n, ok := parseIntEnv("CONNECTION_RATE_LIMIT"); ok {
		cfg.Gateway.ConnectionRateLimit = n
	}
	if n, ok := parseIntEnv("MAX_MESSAGES_PER_MINUTE"); ok {
		cfg.Gateway.MaxMessagesPerMinute = n
	}
	if n, ok := parseIntEnv("GATEWAY_MAX_PAYLOAD_BYTES"); ok {
		cfg.Gateway.MaxPayloadBytes = int64(n)
	}
	if n, ok := parseIntEnv("GATEWAY_IDLE_TIMEOUT_MINUTES"); ok {
		cfg.Gateway.IdleTimeoutMinutes = n
	}
	if n, ok := parseIntEnv("GATEWAY_ACK_TIMEOUT_SECONDS"); ok {
		cfg.Gateway.AckTimeoutSeconds = n
	}
	if n, ok := parseIntEnv("GATEWAY_SHUTDOWN_DRAIN_SECONDS"); ok {
		cfg.Gateway.ShutdownDrainSeconds = n
	}

	if n, ok := parseIntEnv("DISCUSSION_TOKEN_LIMIT"); ok {
		cfg.Budget.DiscussionTokenLimit = n
	}

	if v := strings.TrimSpace(os.Getenv("ALERTS_ENABLED")); v != "" {
		cfg.Alerts.Enabled = isTruthy(v)
	}
	if f, ok := parseFloatEnv("ALERT_ERROR_RATE_THRESHOLD"); ok {
		cfg.Alerts.ErrorRateThreshold = f
	}

	if v := strings.TrimSpace(os.Getenv("ENABLE_TOKEN_SYNC_VALIDATION")); v != "" {
		cfg.TokenSync.EnableValidation = isTruthy(v)
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_REPAIR_TOKEN_SYNC")); v != "" {
		cfg.TokenSync.AutoRepair = isTruthy(v)
	}

	cfg.Obs.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.Obs.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.Obs.LogPayloads = isTruthy(v)
	}
	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in the zero-valued fields per spec §6/§4 defaults.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.StreamTimeoutSeconds <= 0 {
		cfg.LLM.StreamTimeoutSeconds = 60
	}
	if cfg.LLM.FallbackMaxAttempts <= 0 {
		cfg.LLM.FallbackMaxAttempts = 5
	}

	if cfg.Store.DiscussionsDir == "" {
		cfg.Store.DiscussionsDir = "./data/discussions"
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = "./data/metadata.db"
	}
	if cfg.Store.BackupsDir == "" {
		cfg.Store.BackupsDir = "./data/backups"
	}
	if cfg.Store.MaxRetries <= 0 {
		cfg.Store.MaxRetries = 3
	}
	if cfg.Store.RetryDelayMS <= 0 {
		cfg.Store.RetryDelayMS = 100
	}
	if cfg.Store.ReconcileIntervalSeconds <= 0 {
		cfg.Store.ReconcileIntervalSeconds = 300
	}
	if cfg.Store.ReconcileTokenTolerance <= 0 {
		cfg.Store.ReconcileTokenTolerance = 0.05
	}
	if cfg.Store.StaleDiscussionThresholdMinutes <= 0 {
		cfg.Store.StaleDiscussionThresholdMinutes = 60
	}

	if cfg.Lock.FileTTLSeconds <= 0 {
		cfg.Lock.FileTTLSeconds = 30
	}
	if cfg.Lock.ProcessingTTLSeconds <= 0 {
		cfg.Lock.ProcessingTTLSeconds = 300
	}
	if cfg.Lock.PollIntervalMS <= 0 {
		cfg.Lock.PollIntervalMS = 100
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "0.0.0.0"
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Gateway.MaxConnectionsPerIP <= 0 {
		cfg.Gateway.MaxConnectionsPerIP = 10
	}
	if cfg.Gateway.ConnectionRateLimit <= 0 {
		cfg.Gateway.ConnectionRateLimit = 5
	}
	if cfg.Gateway.MaxMessagesPerMinute <= 0 {
		cfg.Gateway.MaxMessagesPerMinute = 100
	}
	if cfg.Gateway.MaxPayloadBytes <= 0 {
		cfg.Gateway.MaxPayloadBytes = 1 << 20
	}
	if cfg.Gateway.IdleTimeoutMinutes <= 0 {
		cfg.Gateway.IdleTimeoutMinutes = 30
	}
	if cfg.Gateway.AckTimeoutSeconds <= 0 {
		cfg.Gateway.AckTimeoutSeconds = 5
	}
	if cfg.Gateway.ShutdownDrainSeconds <= 0 {
		cfg.Gateway.ShutdownDrainSeconds = 30
	}

	if cfg.Budget.DiscussionTokenLimit <= 0 {
		cfg.Budget.DiscussionTokenLimit = 4000
	}

	if cfg.Alerts.ErrorRateThreshold <= 0 {
		cfg.Alerts.ErrorRateThreshold = 0.05
	}

	if cfg.Obs.LogLevel == "" {
		cfg.Obs.LogLevel = "info"
	}
	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "deliberation-engine"
	}
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func parseCommaSeparatedList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntEnv(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloatEnv(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
