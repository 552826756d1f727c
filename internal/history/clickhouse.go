package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS confirmations (
		record_id    UUID,
		plan_id      UUID,
		intent       LowCardinality(String),
		step         UInt16,
		label        String,
		signature    String,
		status       LowCardinality(String),
		slot         UInt64,
		attempts     UInt16,
		error_name   String,
		error_detail String,
		submitted_at DateTime64(3),
		finished_at  DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (submitted_at, record_id)
`

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ClickHouseStore struct {
	conn driver.Conn
	log  *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, log *logrus.Logger) (*ClickHouseStore, error) {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create confirmations table: %w", err)
	}

	log.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return &ClickHouseStore{conn: conn, log: log}, nil
}

func (c *ClickHouseStore) Insert(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO confirmations (
			record_id, plan_id, intent, step, label, signature, status,
			slot, attempts, error_name, error_detail, submitted_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		e.RecordID,
		e.PlanID,
		e.Intent,
		e.Step,
		e.Label,
		e.Signature,
		string(e.Status),
		e.Slot,
		e.Attempts,
		e.ErrorName,
		e.ErrorDetail,
		e.SubmittedAt,
		e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert confirmation: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.conn.Query(ctx, `
		SELECT record_id, plan_id, intent, step, label, signature, status,
		       slot, attempts, error_name, error_detail, submitted_at, finished_at
		FROM confirmations
		ORDER BY submitted_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			recordID uuid.UUID
			planID   uuid.UUID
			status   string
		)
		if err := rows.Scan(&recordID, &planID, &e.Intent, &e.Step, &e.Label, &e.Signature, &status,
			&e.Slot, &e.Attempts, &e.ErrorName, &e.ErrorDetail, &e.SubmittedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		e.RecordID, e.PlanID, e.Status = recordID, planID, confirm.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
