package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/types"
)

// relayTableColumns matches the externally-owned relay table schema.
var relayTableColumns = []string{
	"request_id",
	"application_id",
	"app_public_key",
	"blockchain",
	"service_node",
	"relay_start",
	"elapsed_time",
	"result",
	"bytes",
	"delivered",
	"fallback",
	"method",
	"error",
}

// PostgresSink bulk-inserts relay metric records into the relay table.
type PostgresSink struct {
	logger logging.Logger
	db     *sql.DB
}

// NewPostgresSink opens the metrics database connection and verifies it.
func NewPostgresSink(ctx context.Context, logger logging.Logger, connectionURL string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to metrics database: %w", err)
	}

	return &PostgresSink{
		logger: logging.ForComponent(logger, logging.ComponentMetricsSink),
		db:     db,
	}, nil
}

// Write bulk-inserts a batch of records using COPY.
func (s *PostgresSink) Write(ctx context.Context, records []types.RelayMetric) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metrics transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("relay", relayTableColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare relay copy: %w", err)
	}

	for _, record := range records {
		_, err = stmt.ExecContext(ctx,
			record.RequestID,
			record.ApplicationID,
			record.ApplicationPublicKey,
			record.Blockchain,
			record.ServiceNode,
			record.RelayStart,
			record.Elapsed,
			record.Result,
			record.Bytes,
			record.Delivered,
			record.Fallback,
			record.Method,
			record.Error,
		)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy relay record: %w", err)
		}
	}

	// Flush the COPY buffer.
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush relay copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("failed to close relay copy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit relay batch: %w", err)
	}

	s.logger.Debug().Int(logging.FieldBatchSize, len(records)).Msg("relay batch written")

	return nil
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection for readiness checks.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
