package stream

import (
	"testing"
	"time"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		day       models.Date
		expected  string
	}{
		{
			name:      "no zero padding",
			accountID: "acc-1",
			day:       models.NewDate(2024, time.March, 5),
			expected:  "acc-1-2024-3-1-2024-3-31",
		},
		{
			name:      "leap february",
			accountID: "A",
			day:       models.NewDate(2024, time.February, 10),
			expected:  "A-2024-2-1-2024-2-29",
		},
		{
			name:      "common february",
			accountID: "A",
			day:       models.NewDate(2023, time.February, 28),
			expected:  "A-2023-2-1-2023-2-28",
		},
		{
			name:      "end of year",
			accountID: "B",
			day:       models.NewDate(2023, time.December, 31),
			expected:  "B-2023-12-1-2023-12-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := For(tt.accountID, tt.day); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFor_SameMonthSameStream(t *testing.T) {
	start := models.NewDate(2024, time.April, 1)
	want := For("acc-1", start)

	for d := 0; d < 30; d++ {
		day := models.DateOf(start.Time().AddDate(0, 0, d))
		if got := For("acc-1", day); got != want {
			t.Errorf("expected %s for %s, got %s", want, day, got)
		}
	}
}

func TestFor_DifferentMonthsOrAccountsDiffer(t *testing.T) {
	seen := map[string]models.Date{}
	for m := 1; m <= 24; m++ {
		day := models.NewDate(2023, time.Month(m), 15)
		id := For("acc-1", day)
		if prev, ok := seen[id]; ok {
			t.Fatalf("stream %s reused for %s and %s", id, prev, day)
		}
		seen[id] = day
	}

	day := models.NewDate(2024, time.May, 2)
	if For("acc-1", day) == For("acc-2", day) {
		t.Error("expected different accounts to map to different streams")
	}
}

func TestParse(t *testing.T) {
	day := models.NewDate(2024, time.November, 17)
	id := For("acc-with-dashes", day)

	accountID, first, err := Parse(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accountID != "acc-with-dashes" {
		t.Errorf("expected account acc-with-dashes, got %s", accountID)
	}
	if first != models.NewDate(2024, time.November, 1) {
		t.Errorf("expected first day 2024-11-01, got %s", first)
	}

	for _, bad := range []string{"", "acc", "acc-2024-1-1-2024-1-30", "-2024-1-1-2024-1-31", "acc-x-1-1-2024-1-31"} {
		if _, _, err := Parse(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
