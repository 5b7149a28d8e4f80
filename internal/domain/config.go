package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Decision logic
	Screening ScreeningConfig `json:"screening" yaml:"screening"`
	Retrain   RetrainConfig   `json:"retrain" yaml:"retrain"`
	Sweep     SweepConfig     `json:"sweep" yaml:"sweep"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// ScreeningConfig holds the real-time rule parameters.
type ScreeningConfig struct {
	// Blacklist is the single static set of handles that are always fraud.
	Blacklist []string `json:"blacklist" yaml:"blacklist"`

	// AllowedDevices are the device labels that do not raise "Unknown device".
	AllowedDevices []string `json:"allowedDevices" yaml:"allowed_devices"`

	HighAmountThreshold float64 `json:"highAmountThreshold" yaml:"high_amount_threshold"`
	NightHourCutoff     int     `json:"nightHourCutoff" yaml:"night_hour_cutoff"`

	// RateLimitPerMinute caps ingest requests per caller. Zero disables the cap.
	RateLimitPerMinute int `json:"rateLimitPerMinute" yaml:"rate_limit_per_minute"`

	// BlockCacheTTL bounds how long a positive block lookup is cached.
	BlockCacheTTL time.Duration `json:"blockCacheTtl" yaml:"block_cache_ttl"`
}

// RetrainConfig holds the retrain trigger and trainer parameters.
type RetrainConfig struct {
	// Threshold is the number of fraud flags that fires one retrain signal.
	Threshold int `json:"threshold" yaml:"threshold"`

	Epochs       int     `json:"epochs" yaml:"epochs"`
	LearningRate float64 `json:"learningRate" yaml:"learning_rate"`

	// Timeout bounds a single retrain job.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SweepConfig holds the batch pattern detector parameters.
type SweepConfig struct {
	NightAmountThreshold float64  `json:"nightAmountThreshold" yaml:"night_amount_threshold"`
	NightDevices         []string `json:"nightDevices" yaml:"night_devices"`

	// Group sizes strictly above these thresholds are flagged.
	ReceiverBurstThreshold int `json:"receiverBurstThreshold" yaml:"receiver_burst_threshold"`
	PairRepeatThreshold    int `json:"pairRepeatThreshold" yaml:"pair_repeat_threshold"`
	SenderBurstThreshold   int `json:"senderBurstThreshold" yaml:"sender_burst_threshold"`

	// Interval schedules periodic sweeps in the server. Zero disables them.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Screening: ScreeningConfig{
			Blacklist:           []string{"scam@upi", "fraud123@okaxis", "spam@okhdfc"},
			AllowedDevices:      []string{"Android", "iOS", "Windows", "Linux"},
			HighAmountThreshold: 10000,
			NightHourCutoff:     5,
			RateLimitPerMinute:  10,
			BlockCacheTTL:       10 * time.Minute,
		},
		Retrain: RetrainConfig{
			Threshold:    500,
			Epochs:       200,
			LearningRate: 0.1,
			Timeout:      5 * time.Minute,
		},
		Sweep: SweepConfig{
			NightAmountThreshold:   50000,
			NightDevices:           []string{"Linux", "Windows"},
			ReceiverBurstThreshold: 5,
			PairRepeatThreshold:    3,
			SenderBurstThreshold:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Sweep.Interval = time.Hour
	cfg.Tracing.Enabled = true
	return cfg
}
