// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository is the record store behind the screening engine.
// Collections: transactions (append-only), flagged_transactions (rebuildable),
// blocked_senders (unique per handle) and model_artifacts.
type Repository interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context) ([]*Transaction, error)
	PageTransactions(ctx context.Context, offset, limit int) ([]*Transaction, int, error)

	// SaveScreening stores a screened transaction and its flagged record
	// atomically. Either both are written or neither is.
	SaveScreening(ctx context.Context, tx *Transaction, rec *FlaggedRecord) error

	// Flagged record operations
	ListFlagged(ctx context.Context) ([]*FlaggedRecord, error)
	PageFlagged(ctx context.Context, filter FlaggedFilter) ([]*FlaggedRecord, int, error)

	// ReplaceFlagged swaps the whole flagged collection for recs in one
	// store transaction. Readers see the old set or the new one.
	ReplaceFlagged(ctx context.Context, recs []*FlaggedRecord) error

	// Block list operations. UpsertBlockedSender is last-write-wins.
	UpsertBlockedSender(ctx context.Context, b *BlockedSender) error
	GetBlockedSender(ctx context.Context, upiID string) (*BlockedSender, error)
	ListBlockedSenders(ctx context.Context) ([]*BlockedSender, error)

	// Model artifacts
	SaveModelArtifact(ctx context.Context, a *ModelArtifact) error
	LatestModelArtifact(ctx context.Context) (*ModelArtifact, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
