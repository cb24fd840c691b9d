package storage

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

// Schema creates the journal table. Sequence is unique so replays after a
// restart of the journal worker are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS escrow_events (
	id          UUID PRIMARY KEY,
	sequence    BIGINT NOT NULL UNIQUE,
	event_type  TEXT NOT NULL,
	listing_id  TEXT,
	order_id    TEXT,
	actor       TEXT,
	attributes  JSONB NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS escrow_events_listing_idx ON escrow_events (listing_id);
CREATE INDEX IF NOT EXISTS escrow_events_order_idx ON escrow_events (order_id);
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and ensures the journal schema.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}

	err = p.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// Migrate creates the journal table if it does not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// StoreEvent inserts an event. An event whose sequence is already journaled
// is ignored.
func (p *PostgresStorage) StoreEvent(ctx context.Context, evt *escrow.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	query := `
		INSERT INTO escrow_events (
			id, sequence, event_type, listing_id, order_id, actor,
			attributes, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (sequence) DO NOTHING
	`

	_, err = p.db.ExecContext(ctx, query,
		uuid.NewString(),
		int64(evt.Sequence),
		evt.Type,
		nullable(evt.ListingID),
		nullable(evt.OrderID),
		nullable(evt.Actor),
		string(attrs),
		evt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	p.logger.Debug("event-stored",
		zap.Uint64("sequence", evt.Sequence),
		zap.String("event-type", evt.Type))

	return nil
}

// Ping checks the database connection.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
