// Package stream derives event-store stream identifiers.
//
// Every account has one append-only stream per calendar month. The identifier is
// "<accountId>-<firstDay>-<lastDay>" with days written as yyyy-M-d (no zero padding),
// e.g. "acc-1-2024-2-1-2024-2-29".
package stream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// For returns the stream holding operations of accountID on day.
func For(accountID string, day models.Date) string {
	first, last := MonthBounds(day)
	return accountID + "-" + formatDay(first) + "-" + formatDay(last)
}

// MonthBounds returns the first and last day of the month containing day.
func MonthBounds(day models.Date) (models.Date, models.Date) {
	first := models.Date{Year: day.Year, Month: day.Month, Day: 1}
	// Day 0 of the next month is the last day of this one.
	last := models.DateOf(time.Date(day.Year, day.Month+1, 0, 0, 0, 0, 0, time.UTC))
	return first, last
}

// Parse splits a stream id back into the account id and the first day of its month.
// Account ids may themselves contain dashes; the six trailing fields are the dates.
func Parse(id string) (string, models.Date, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 7 {
		return "", models.Date{}, fmt.Errorf("malformed stream id %q", id)
	}

	datePart := parts[len(parts)-6:]
	accountID := strings.Join(parts[:len(parts)-6], "-")
	if accountID == "" {
		return "", models.Date{}, fmt.Errorf("malformed stream id %q: empty account id", id)
	}

	nums := make([]int, 0, 3)
	for _, p := range datePart[:3] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", models.Date{}, fmt.Errorf("malformed stream id %q: %w", id, err)
		}
		nums = append(nums, n)
	}

	first := models.Date{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}
	if For(accountID, first) != id {
		return "", models.Date{}, fmt.Errorf("malformed stream id %q: not a month stream", id)
	}
	return accountID, first, nil
}

func formatDay(d models.Date) string {
	return fmt.Sprintf("%d-%d-%d", d.Year, int(d.Month), d.Day)
}
