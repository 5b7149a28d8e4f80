// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const insertTransaction = `
	INSERT INTO transactions (
		id, sender, receiver, amount, device, location, ts, ts_unix, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
`

const selectTransaction = `
	SELECT id, sender, receiver, amount, device, location, ts, created_at
	FROM transactions
`

func (r *SQLRepository) insertTransaction(ctx context.Context, ex execer, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	_, err := ex.ExecContext(ctx, r.rebind(insertTransaction),
		tx.ID, tx.Sender, tx.Receiver, tx.Amount.String(),
		tx.Device, tx.Location,
		domain.FormatTimestamp(tx.Timestamp), tx.Timestamp.UnixNano(),
		tx.CreatedAt.UTC(),
	)
	return err
}

func scanTransaction(s rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, ts string

	if err := s.Scan(
		&tx.ID, &tx.Sender, &tx.Receiver, &amount,
		&tx.Device, &tx.Location, &ts, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %s: bad amount %q: %w", tx.ID, amount, err)
	}
	if tx.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("transaction %s: bad timestamp %q: %w", tx.ID, ts, err)
	}
	return &tx, nil
}

// SaveTransactions appends transactions in a single store transaction.
// Rows whose id already exists are left untouched.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := r.insertTransaction(ctx, sqlTx, tx); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
	}

	return sqlTx.Commit()
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectTransaction+` WHERE id = ?`), txID)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns the full history ordered by (timestamp, id).
func (r *SQLRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, selectTransaction+` ORDER BY ts_unix ASC, id ASC`)
}

// PageTransactions returns one page of transactions, newest first,
// together with the total count.
func (r *SQLRepository) PageTransactions(ctx context.Context, offset, limit int) ([]*domain.Transaction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	txs, err := r.queryTransactions(ctx,
		selectTransaction+` ORDER BY ts_unix DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

const insertFlagged = `
	INSERT INTO flagged_transactions (
		id, seq, tx_id, sender, receiver, amount, device, location, ts,
		reasons, is_fraud, checked_at, source
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectFlagged = `
	SELECT id, tx_id, sender, receiver, amount, device, location, ts,
		   reasons, is_fraud, checked_at, source
	FROM flagged_transactions
`

func (r *SQLRepository) insertFlagged(ctx context.Context, ex execer, seq int64, rec *domain.FlaggedRecord) error {
	reasons, err := json.Marshal(rec.Reasons)
	if err != nil {
		return err
	}

	isFraud := 0
	if rec.IsFraud {
		isFraud = 1
	}

	_, err = ex.ExecContext(ctx, r.rebind(insertFlagged),
		rec.ID, seq, rec.TxID, rec.Sender, rec.Receiver, rec.Amount.String(),
		rec.Device, rec.Location, domain.FormatTimestamp(rec.Timestamp),
		string(reasons), isFraud, rec.CheckedAt.UTC(), rec.Source,
	)
	return err
}

func scanFlagged(s rowScanner) (*domain.FlaggedRecord, error) {
	var rec domain.FlaggedRecord
	var amount, ts, reasons string
	var isFraud int

	if err := s.Scan(
		&rec.ID, &rec.TxID, &rec.Sender, &rec.Receiver, &amount,
		&rec.Device, &rec.Location, &ts,
		&reasons, &isFraud, &rec.CheckedAt, &rec.Source,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("flagged %s: bad amount %q: %w", rec.ID, amount, err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("flagged %s: bad timestamp %q: %w", rec.ID, ts, err)
	}
	if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
		return nil, fmt.Errorf("flagged %s: failed to parse reasons: %w", rec.ID, err)
	}
	rec.IsFraud = isFraud == 1
	return &rec, nil
}

// SaveScreening writes the transaction and its flagged record together.
func (r *SQLRepository) SaveScreening(ctx context.Context, tx *domain.Transaction, rec *domain.FlaggedRecord) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := r.insertTransaction(ctx, sqlTx, tx); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	if err := r.insertFlagged(ctx, sqlTx, rec.CheckedAt.UnixNano(), rec); err != nil {
		return fmt.Errorf("failed to insert flagged record: %w", err)
	}

	return sqlTx.Commit()
}

// ListFlagged returns every flagged record in insertion order.
func (r *SQLRepository) ListFlagged(ctx context.Context) ([]*domain.FlaggedRecord, error) {
	return r.queryFlagged(ctx, selectFlagged+` ORDER BY seq ASC, id ASC`)
}

// PageFlagged returns one page of flagged records and the filtered total.
func (r *SQLRepository) PageFlagged(ctx context.Context, filter domain.FlaggedFilter) ([]*domain.FlaggedRecord, int, error) {
	where := ""
	var args []any
	if needle := strings.ToLower(strings.TrimSpace(filter.UPIID)); needle != "" {
		where = ` WHERE lower(sender) LIKE ? OR lower(receiver) LIKE ?`
		pattern := "%" + needle + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM flagged_transactions` + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, filter.Offset)

	recs, err := r.queryFlagged(ctx, selectFlagged+where+` ORDER BY seq ASC, id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *SQLRepository) queryFlagged(ctx context.Context, query string, args ...any) ([]*domain.FlaggedRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.FlaggedRecord
	for rows.Next() {
		rec, err := scanFlagged(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ReplaceFlagged clears the flagged collection and repopulates it with recs,
// preserving their order, inside one store transaction.
func (r *SQLRepository) ReplaceFlagged(ctx context.Context, recs []*domain.FlaggedRecord) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM flagged_transactions`); err != nil {
		return fmt.Errorf("failed to clear flagged records: %w", err)
	}

	base := time.Now().UnixNano()
	for i, rec := range recs {
		if err := r.insertFlagged(ctx, sqlTx, base+int64(i), rec); err != nil {
			return fmt.Errorf("failed to insert flagged record %s: %w", rec.ID, err)
		}
	}

	return sqlTx.Commit()
}

// AcquireLease takes the named lease for holder until ttl elapses. It
// reports false when another holder owns an unexpired lease. The holder
// that already owns the lease extends it.
func (r *SQLRepository) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO leases (name, holder, expires_unix) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			expires_unix = excluded.expires_unix
		WHERE leases.expires_unix < ? OR leases.holder = excluded.holder
	`
	now := time.Now()
	res, err := r.db.ExecContext(ctx, r.rebind(query), name, holder, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLease drops the named lease if holder still owns it.
func (r *SQLRepository) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM leases WHERE name = ? AND holder = ?`), name, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// UpsertBlockedSender inserts or overwrites the entry for b.UPIID.
// Uniqueness is enforced by the primary key, so concurrent calls for
// one handle never produce two rows.
func (r *SQLRepository) UpsertBlockedSender(ctx context.Context, b *domain.BlockedSender) error {
	if b.UPIID == "" {
		return fmt.Errorf("%w: upi_id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO blocked_senders (upi_id, reason, blocked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(upi_id) DO UPDATE SET
			reason = excluded.reason,
			blocked_at = excluded.blocked_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), b.UPIID, b.Reason, b.BlockedAt.UTC())
	return err
}

// GetBlockedSender looks up one block-list entry.
func (r *SQLRepository) GetBlockedSender(ctx context.Context, upiID string) (*domain.BlockedSender, error) {
	query := `SELECT upi_id, reason, blocked_at FROM blocked_senders WHERE upi_id = ?`

	var b domain.BlockedSender
	err := r.db.QueryRowContext(ctx, r.rebind(query), upiID).Scan(&b.UPIID, &b.Reason, &b.BlockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBlockedSenders returns the block list, most recent first.
func (r *SQLRepository) ListBlockedSenders(ctx context.Context) ([]*domain.BlockedSender, error) {
	query := `SELECT upi_id, reason, blocked_at FROM blocked_senders ORDER BY blocked_at DESC, upi_id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*domain.BlockedSender
	for rows.Next() {
		var b domain.BlockedSender
		if err := rows.Scan(&b.UPIID, &b.Reason, &b.BlockedAt); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}

// SaveModelArtifact persists a trained artifact.
func (r *SQLRepository) SaveModelArtifact(ctx context.Context, a *domain.ModelArtifact) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	query := `
		INSERT INTO model_artifacts (version, body, samples, trained_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			body = excluded.body,
			samples = excluded.samples,
			trained_at = excluded.trained_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), a.Version, string(body), a.Samples, a.TrainedAt.UTC())
	return err
}

// LatestModelArtifact returns the most recently trained artifact.
func (r *SQLRepository) LatestModelArtifact(ctx context.Context) (*domain.ModelArtifact, error) {
	query := `SELECT body FROM model_artifacts ORDER BY trained_at DESC, version DESC LIMIT 1`

	var body string
	err := r.db.QueryRowContext(ctx, query).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a domain.ModelArtifact
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}
	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
