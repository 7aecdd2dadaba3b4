// Package config holds the process-wide configuration struct assembled by
// Load. It carries no behavior of its own.
package config

// ProviderConfig holds the credentials and defaults for a single language
// model back-end, plus its ordered fallback chain of model names.
type ProviderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Fallbacks []string
}

// LLMConfig configures the provider registry (§4.5).
type LLMConfig struct {
	// Provider is the logical provider name every discussion uses; there is
	// no per-discussion override: "anthropic", "openai", or "google".
	Provider  string
	Anthropic ProviderConfig
	OpenAI    ProviderConfig
	Google    ProviderConfig
	// StreamTimeoutSeconds bounds a single streaming call (§4.5 default 60s).
	StreamTimeoutSeconds int
	// FallbackMaxAttempts caps retries across the fallback chain (§4.5 default 5).
	FallbackMaxAttempts int
}

// StoreConfig configures the Discussion Store (§4.1, §6).
type StoreConfig struct {
	DiscussionsDir string
	DatabasePath   string
	BackupsDir     string
	MaxRetries     int
	RetryDelayMS   int
	// ReconcileIntervalSeconds governs the periodic metadata sweep (§4.1 Reconciliation).
	ReconcileIntervalSeconds int
	// ReconcileTokenTolerance is the fractional drift allowed before repair (default 0.05).
	ReconcileTokenTolerance float64
	// StaleDiscussionThresholdMinutes is the "past which an unresolved
	// discussion is force-resolved" window (§3, default 60).
	StaleDiscussionThresholdMinutes int
}

// RedisConfig configures the Lock Service's distributed back-end (§4.8, §6).
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LockConfig configures lock TTLs and retry cadence (§4.8, §3 Lock Record).
type LockConfig struct {
	FileTTLSeconds       int
	ProcessingTTLSeconds int
	PollIntervalMS       int
}

// GatewayConfig configures the Event Bus / Session Gateway (§4.9, §6).
type GatewayConfig struct {
	Host                     string
	Port                     int
	MaxConnectionsPerIP      int
	ConnectionRateLimit      int
	MaxMessagesPerMinute     int
	MaxPayloadBytes          int64
	IdleTimeoutMinutes       int
	AckTimeoutSeconds        int
	ShutdownDrainSeconds     int
}

// TokenBudgetConfig configures the summarizer trigger (§4.3, §4.6).
type TokenBudgetConfig struct {
	DiscussionTokenLimit int
}

// AlertConfig configures the out-of-scope alerting collaborator's thresholds
// (carried through so the Scheduler can decide whether to call it; §6).
type AlertConfig struct {
	Enabled           bool
	ErrorRateThreshold float64
}

// TokenSyncConfig toggles the reconciliation sweep's validation/auto-repair (§6).
type TokenSyncConfig struct {
	EnableValidation bool
	AutoRepair       bool
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string
	LogPath           string
	LogPayloads       bool
	ServiceName       string
	OTLPEndpoint      string
}

// Config is the fully assembled, process-wide configuration.
type Config struct {
	LLM       LLMConfig
	Store     StoreConfig
	Redis     RedisConfig
	Lock      LockConfig
	Gateway   GatewayConfig
	Budget    TokenBudgetConfig
	Alerts    AlertConfig
	TokenSync TokenSyncConfig
	Obs       ObservabilityConfig
}
