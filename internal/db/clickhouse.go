package db

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
)

// ClickHouseClient wraps the ClickHouse driver connection
type ClickHouseClient struct {
	conn driver.Conn
}

// NewClickHouseClient creates a new ClickHouse client with the given configuration
func NewClickHouseClient(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseClient{conn: conn}, nil
}

// Conn returns the underlying ClickHouse connection
func (c *ClickHouseClient) Conn() driver.Conn {
	return c.conn
}

// EnsureHistorySchema creates the account_history table.
// Each replay writes a new version of an account's rows; older versions are
// deleted once the new one is in place.
func (c *ClickHouseClient) EnsureHistorySchema(ctx context.Context) error {
	err := c.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS account_history (
			account_id    String,
			version       UInt64,
			sequence      UInt64,
			stream_id     String,
			event_id      String,
			operation_key String,
			event_type    LowCardinality(String),
			category_id   String,
			contractor_id String,
			amount        Decimal(38, 10),
			delta         Decimal(38, 10),
			balance       Decimal(38, 10),
			operation_day Date,
			comment       String,
			replayed_at   DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (account_id, version, sequence)
	`)
	if err != nil {
		return fmt.Errorf("failed to create account_history table: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
