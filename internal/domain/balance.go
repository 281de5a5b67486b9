package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// Effect returns the signed balance change of tx: +Amount for an income
// category, -Amount for an expense category. The direction is resolved through
// categories on every call; it is never stored on the event.
func Effect(ctx context.Context, categories CategoryLookup, tx models.FinancialTransaction) (decimal.Decimal, error) {
	income, err := categories.IsIncomeCategory(ctx, tx.CategoryID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve category %s of operation %s: %w", tx.CategoryID, tx.Key, err)
	}
	if income {
		return tx.Amount, nil
	}
	return tx.Amount.Neg(), nil
}
