// Package repository keeps replayed account history in ClickHouse.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// HistoryRepository implements domain.HistoryStore on the account_history table
type HistoryRepository struct {
	db  *db.ClickHouseClient
	now func() time.Time
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *db.ClickHouseClient) *HistoryRepository {
	return &HistoryRepository{db: db, now: time.Now}
}

// ReplaceAll writes records as a new version of the account's history and
// then deletes every older version. Readers see only the newest version, so
// an interrupted replace leaves the previous history visible.
func (r *HistoryRepository) ReplaceAll(ctx context.Context, accountID string, records []models.HistoryRecord) error {
	version, err := r.nextVersion(ctx, accountID)
	if err != nil {
		return err
	}

	if len(records) > 0 {
		batch, err := r.db.Conn().PrepareBatch(ctx, `
			INSERT INTO account_history (
				account_id, version, sequence, stream_id, event_id, operation_key, event_type,
				category_id, contractor_id, amount, delta, balance, operation_day, comment
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare history batch for %s: %w", accountID, err)
		}

		for _, rec := range records {
			err := batch.Append(
				accountID,
				version,
				rec.Sequence,
				rec.StreamID,
				rec.EventID,
				rec.OperationKey,
				string(rec.EventType),
				rec.CategoryID,
				rec.ContractorID,
				rec.Amount,
				rec.Delta,
				rec.Balance,
				rec.OperationDay.Time(),
				rec.Comment,
			)
			if err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append history record %d of %s: %w", rec.Sequence, accountID, err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert history of %s: %w", accountID, err)
		}
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 1,
	}))
	err = r.db.Conn().Exec(syncCtx, `ALTER TABLE account_history DELETE WHERE account_id = ? AND version < ?`, accountID, version)
	if err != nil {
		return fmt.Errorf("failed to delete stale history of %s: %w", accountID, err)
	}

	return nil
}

// nextVersion is the current time in nanoseconds, kept above any stored version.
func (r *HistoryRepository) nextVersion(ctx context.Context, accountID string) (uint64, error) {
	var latest uint64
	err := r.db.Conn().QueryRow(ctx, `SELECT max(version) FROM account_history WHERE account_id = ?`, accountID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read history version of %s: %w", accountID, err)
	}

	version := uint64(r.now().UnixNano())
	if version <= latest {
		version = latest + 1
	}
	return version, nil
}

// List returns the newest history of accountID in replay order
func (r *HistoryRepository) List(ctx context.Context, accountID string) ([]models.HistoryRecord, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT
			sequence, stream_id, event_id, operation_key, event_type, category_id, contractor_id,
			amount, delta, balance, operation_day, comment
		FROM account_history
		WHERE account_id = ?
		  AND version = (SELECT max(version) FROM account_history WHERE account_id = ?)
		ORDER BY sequence
	`, accountID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var (
			rec       models.HistoryRecord
			eventType string
			day       time.Time
			amount    decimal.Decimal
			delta     decimal.Decimal
			balance   decimal.Decimal
		)

		err := rows.Scan(
			&rec.Sequence,
			&rec.StreamID,
			&rec.EventID,
			&rec.OperationKey,
			&eventType,
			&rec.CategoryID,
			&rec.ContractorID,
			&amount,
			&delta,
			&balance,
			&day,
			&rec.Comment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		rec.AccountID = accountID
		rec.EventType = models.EventType(eventType)
		rec.Amount = amount
		rec.Delta = delta
		rec.Balance = balance
		rec.OperationDay = models.DateOf(day)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return records, nil
}
