// Package config builds the service configuration from tier defaults, an
// optional YAML file and command-line/environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Options are the overrides accepted by every Kestrel command. Zero values
// leave the tier default or file value in place.
type Options struct {
	ConfigFile string `long:"config" env:"KESTREL_CONFIG" description:"Path to a YAML config file"`
	Tier       string `long:"tier" env:"KESTREL_TIER" description:"Deployment tier" choice:"community" choice:"pro" default:"community"`
	Debug      bool   `long:"debug" env:"KESTREL_DEBUG" description:"Enable debug logging"`

	Host string `long:"host" env:"KESTREL_HOST" description:"HTTP listen host"`
	Port int    `long:"port" env:"KESTREL_PORT" description:"HTTP listen port"`

	SQLitePath   string `long:"sqlite-path" env:"KESTREL_SQLITE_PATH" description:"SQLite database file"`
	PostgresHost string `long:"postgres-host" env:"KESTREL_POSTGRES_HOST" description:"PostgreSQL host"`
	RedisAddr    string `long:"redis-addr" env:"KESTREL_REDIS_ADDR" description:"Redis address"`
	NATSUrl      string `long:"nats-url" env:"KESTREL_NATS_URL" description:"NATS server URL"`

	RetrainThreshold int           `long:"retrain-threshold" env:"KESTREL_RETRAIN_THRESHOLD" description:"Fraud flags per retrain signal"`
	RateLimit        int           `long:"rate-limit" env:"KESTREL_RATE_LIMIT" description:"Screening requests per minute per caller"`
	SweepInterval    time.Duration `long:"sweep-interval" env:"KESTREL_SWEEP_INTERVAL" description:"Periodic sweep interval"`
}

// Parse reads options from args (without the program name) and the
// environment. Unknown arguments are returned.
func Parse(opts any, args []string) ([]string, error) {
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return rest, nil
}

// IsHelp reports whether err is the go-flags help request.
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

// Load builds the configuration for opts.
func Load(opts *Options) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if domain.Tier(opts.Tier) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if opts.ConfigFile != "" {
		f, err := os.Open(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if err := Decode(f, cfg); err != nil {
			return nil, err
		}
	}

	apply(opts, cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Keys absent from the document keep
// their current values.
func Decode(r io.Reader, cfg *domain.Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func apply(opts *Options, cfg *domain.Config) {
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.SQLitePath != "" {
		cfg.Repository.SQLitePath = opts.SQLitePath
	}
	if opts.PostgresHost != "" {
		cfg.Repository.PostgresHost = opts.PostgresHost
	}
	if opts.RedisAddr != "" {
		cfg.Cache.RedisAddr = opts.RedisAddr
	}
	if opts.NATSUrl != "" {
		cfg.EventBus.NATSUrl = opts.NATSUrl
	}
	if opts.RetrainThreshold > 0 {
		cfg.Retrain.Threshold = opts.RetrainThreshold
	}
	if opts.RateLimit > 0 {
		cfg.Screening.RateLimitPerMinute = opts.RateLimit
	}
	if opts.SweepInterval > 0 {
		cfg.Sweep.Interval = opts.SweepInterval
	}
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Retrain.Threshold <= 0 {
		errs = append(errs, errors.New("retrain threshold must be positive"))
	}
	if cfg.Screening.NightHourCutoff < 0 || cfg.Screening.NightHourCutoff > 24 {
		errs = append(errs, fmt.Errorf("night hour cutoff %d out of range", cfg.Screening.NightHourCutoff))
	}
	if cfg.Screening.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if len(cfg.Screening.AllowedDevices) == 0 {
		errs = append(errs, errors.New("at least one allowed device is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// SetupLogging installs the JSON slog handler as the default logger.
func SetupLogging(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
