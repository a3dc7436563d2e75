package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

const (
	DefaultAttempts   = 5
	DefaultRetryDelay = 200 * time.Millisecond

	// maxBindParams is the PostgreSQL limit of bind parameters in one statement.
	maxBindParams = 65535
)

// Store persists pricing records with idempotent, all-or-nothing batch upserts.
type Store struct {
	db         *sql.DB
	logger     log.FieldLogger
	logQueries bool
	attempts   int
	retryDelay time.Duration
}

type Option func(*Store)

// WithRetry sets the total number of attempts per batch and the delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Store) {
		s.attempts = attempts
		s.retryDelay = delay
	}
}

// WithQueryLogging logs every statement with its arguments at debug level.
func WithQueryLogging(enabled bool) Option {
	return func(s *Store) {
		s.logQueries = enabled
	}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, logger log.FieldLogger, opts ...Option) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Store{
		db:         db,
		logger:     logger.WithField("component", "store"),
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.attempts < 1 {
		s.attempts = 1
	}
	return s
}

// Migrate creates the pricing tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	exec := newLoggingExecer(tx, s.logger, s.logQueries)
	for _, t := range tables {
		if _, err := exec.ExecContext(ctx, t.createSQL()); err != nil {
			tx.Rollback()
			return fmt.Errorf("creating table %s: %w", t.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	s.logger.Infof("pricing tables are up to date [tables=%d]", len(tables))
	return nil
}

func (s *Store) UpsertOnDemand(ctx context.Context, records []catalog.OnDemandInstance) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{r.Region, r.InstanceType, r.VCPU, r.MemoryGB, r.PricePerHour, r.Architecture, r.Storage})
	}
	return s.upsert(ctx, onDemandTable, rows)
}

func (s *Store) UpsertSpot(ctx context.Context, records []catalog.SpotInstance) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{r.Region, r.AvailabilityZone, r.InstanceType, r.PricePerHour})
	}
	return s.upsert(ctx, spotTable, rows)
}

func (s *Store) UpsertStorage(ctx context.Context, records []catalog.StorageOffering) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{r.Region, r.VolumeAPIName, r.StorageMedia, r.PricePerGBMonth})
	}
	return s.upsert(ctx, storageTable, rows)
}

func (s *Store) UpsertInterRegion(ctx context.Context, records []catalog.InterRegionTransfer) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{r.FromRegion, r.ToRegion, r.PricePerGB})
	}
	return s.upsert(ctx, interRegionTable, rows)
}

func (s *Store) UpsertExternalTiers(ctx context.Context, records []catalog.ExternalTransferTier) error {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{r.FromRegion, r.TierStart, r.TierEnd, r.PricePerGB})
	}
	return s.upsert(ctx, externalTable, rows)
}

func (s *Store) upsert(ctx context.Context, t table, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	rows = t.dedupe(rows)

	attempts := 0
	op := func() error {
		attempts++
		return s.upsertOnce(ctx, t, rows)
	}
	notify := func(err error, next time.Duration) {
		entry := s.logger.WithError(err).WithField("table", t.name)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			entry = entry.WithField("pg_code", string(pqErr.Code))
		}
		entry.Warnf("upsert failed, retrying in %s [attempt=%d/%d]", next, attempts, s.attempts)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(s.attempts-1)), ctx)

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return &catalog.PersistError{Table: t.name, Attempts: attempts, Err: err}
	}
	s.logger.Debugf("upserted %d rows into %s [attempts=%d]", len(rows), t.name, attempts)
	return nil
}

// upsertOnce writes every row in one transaction, chunking statements to stay under the
// bind parameter limit.
func (s *Store) upsertOnce(ctx context.Context, t table, rows [][]interface{}) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WithError(rbErr).Warnf("error while rolling back upsert into %s", t.name)
		}
	}()

	exec := newLoggingExecer(tx, s.logger, s.logQueries)
	for _, chunk := range chunkRows(rows, maxBindParams/len(t.columns)) {
		args := make([]interface{}, 0, len(chunk)*len(t.columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		if _, err = exec.ExecContext(ctx, t.upsertSQL(len(chunk)), args...); err != nil {
			return fmt.Errorf("executing upsert into %s: %w", t.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert into %s: %w", t.name, err)
	}
	return nil
}
