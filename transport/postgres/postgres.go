// Package postgres provides a PostgreSQL table-backed pull transport for
// pullflow. Messages live in a queue table; each ReceiveNext selects and
// locks one row, Complete deletes it, and Abandon releases the lock so the
// row is picked up again.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/internal/runtime/jsoncodec"
	"github.com/drblury/pullflow/internal/runtime/metadata"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

const (
	// DefaultPollInterval is the pause between empty fetch attempts.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultLockTimeout is how long a fetched row stays locked before it
	// becomes eligible for redelivery.
	DefaultLockTimeout = 30 * time.Second

	// DefaultSchemaName is the schema holding the queue table.
	DefaultSchemaName = "pullflow"

	// DefaultMaxOpenConns bounds the connection pool.
	DefaultMaxOpenConns = 10

	// DefaultMaxIdleConns bounds idle pooled connections.
	DefaultMaxIdleConns = 5
)

// OpenFactory allows overriding the database handle creation for testing.
var OpenFactory = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// Schema names are interpolated into DDL and queries, so they are restricted
// to plain identifiers.
var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities) // Alias
}

// Build creates a receiver polling a PostgreSQL queue table.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	return New(Config{
		URL:   cfg.GetPostgresURL(),
		Topic: cfg.GetEntity(),
		Mode:  mode,
	}, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.PostgresCapabilities
}

// Config holds PostgreSQL-specific configuration.
type Config struct {
	// URL is the PostgreSQL connection string.
	URL string

	// Topic is the queue the receiver consumes from.
	Topic string

	// SchemaName is the schema holding the queue table. Defaults to
	// DefaultSchemaName; names that are not plain identifiers fall back to
	// the default.
	SchemaName string

	// PollInterval is the pause between empty fetch attempts.
	PollInterval time.Duration

	// LockTimeout is how long a fetched row stays invisible to other
	// receivers before redelivery.
	LockTimeout time.Duration

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections.
	MaxIdleConns int

	// Mode selects peek-lock or receive-and-delete semantics.
	Mode runtime.ReceiveMode
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if !schemaNamePattern.MatchString(c.SchemaName) {
		c.SchemaName = DefaultSchemaName
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	return c
}

// Receiver pulls messages from a PostgreSQL queue table one row at a time.
type Receiver struct {
	db     *sql.DB
	config Config
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// New connects to PostgreSQL, ensures the queue schema exists, and returns a
// receiver for the configured topic.
func New(cfg Config, logger watermill.LoggerAdapter) (*Receiver, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("postgres: topic is required")
	}

	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	db, err := OpenFactory(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	r := &Receiver{db: db, config: cfg, logger: logger}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *Receiver) initSchema() error {
	if _, err := r.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, r.config.SchemaName)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s.messages (
		id BIGSERIAL PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		payload BYTEA NOT NULL,
		metadata JSONB DEFAULT '{}',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		available_at TIMESTAMPTZ DEFAULT NOW(),
		locked_until TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_messages_topic_available
		ON %[1]s.messages(topic, available_at);

	CREATE INDEX IF NOT EXISTS idx_messages_locked_until ON %[1]s.messages(locked_until)
		WHERE locked_until IS NOT NULL;
	`, r.config.SchemaName)

	_, err := r.db.Exec(schema)
	return err
}

func (r *Receiver) Mode() runtime.ReceiveMode { return r.config.Mode }

func (r *Receiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// ReceiveNext polls the queue table for one message. The caller's timeout
// bounds the poll; an empty poll is not an error and yields (nil, nil).
func (r *Receiver) ReceiveNext(ctx context.Context, timeout time.Duration) (runtime.Envelope, error) {
	if !r.IsOpen() {
		return nil, fmt.Errorf("postgres: receiver for %q is closed", r.config.Topic)
	}
	if timeout <= 0 {
		timeout = r.config.PollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		env, err := r.fetchOne(ctx)
		if err != nil || env != nil {
			return env, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := r.config.PollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// fetchOne claims at most one due row. Under peek-lock the row is locked
// until LockTimeout elapses or the envelope settles; under
// receive-and-delete the row is removed as it is read. SKIP LOCKED keeps
// concurrent receivers from blocking on each other's claims.
func (r *Receiver) fetchOne(ctx context.Context) (runtime.Envelope, error) {
	now := time.Now().UTC()

	var query string
	args := []any{r.config.Topic, now}
	if r.config.Mode == runtime.ReceiveAndDelete {
		query = fmt.Sprintf(`
		DELETE FROM %[1]s.messages
		WHERE id = (
			SELECT id FROM %[1]s.messages
			WHERE topic = $1
			AND available_at <= $2
			AND (locked_until IS NULL OR locked_until < $2)
			ORDER BY available_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, payload, metadata
		`, r.config.SchemaName)
	} else {
		query = fmt.Sprintf(`
		UPDATE %[1]s.messages
		SET locked_until = $3
		WHERE id = (
			SELECT id FROM %[1]s.messages
			WHERE topic = $1
			AND available_at <= $2
			AND (locked_until IS NULL OR locked_until < $2)
			ORDER BY available_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, payload, metadata
		`, r.config.SchemaName)
		args = append(args, now.Add(r.config.LockTimeout))
	}

	var id int64
	var payload []byte
	var metadataJSON []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&id, &payload, &metadataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("postgres: fetch from %q: %w", r.config.Topic, err)
	}

	props := metadata.Metadata{}
	if len(metadataJSON) > 0 {
		if err := jsoncodec.Unmarshal(metadataJSON, &props); err != nil {
			r.logger.Error("failed to unmarshal message metadata", err, watermill.LogFields{
				"topic": r.config.Topic,
			})
		}
	}

	env := postgresEnvelope{props: props, payload: payload}
	if r.config.Mode == runtime.ReceiveAndDelete {
		return &env, nil
	}
	return &lockedPostgresEnvelope{
		postgresEnvelope: env,
		db:               r.db,
		schema:           r.config.SchemaName,
		id:               id,
	}, nil
}

// Close closes the database handle. Idempotent.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.db.Close()
}

// postgresEnvelope exposes a fetched queue row without settlement.
type postgresEnvelope struct {
	props   metadata.Metadata
	payload []byte
}

func (e *postgresEnvelope) Properties() metadata.Metadata { return e.props }
func (e *postgresEnvelope) Payload() []byte               { return e.payload }

// lockedPostgresEnvelope settles against the claimed row. Complete deletes
// it; Abandon clears the lock so the row is redelivered immediately.
type lockedPostgresEnvelope struct {
	postgresEnvelope
	db     *sql.DB
	schema string
	id     int64

	settled atomic.Bool
}

func (e *lockedPostgresEnvelope) Complete(ctx context.Context) error {
	if !e.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("postgres: message %d was already settled", e.id)
	}
	query := fmt.Sprintf(`DELETE FROM %s.messages WHERE id = $1`, e.schema)
	if _, err := e.db.ExecContext(ctx, query, e.id); err != nil {
		return fmt.Errorf("postgres: complete message %d: %w", e.id, err)
	}
	return nil
}

func (e *lockedPostgresEnvelope) Abandon(ctx context.Context) error {
	if !e.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("postgres: message %d was already settled", e.id)
	}
	query := fmt.Sprintf(`UPDATE %s.messages SET locked_until = NULL WHERE id = $1`, e.schema)
	if _, err := e.db.ExecContext(ctx, query, e.id); err != nil {
		return fmt.Errorf("postgres: abandon message %d: %w", e.id, err)
	}
	return nil
}
