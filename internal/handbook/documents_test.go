package handbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

func TestDecimal128Conversion(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"zero", "0"},
		{"integer", "1150"},
		{"fraction", "12.34"},
		{"negative", "-80.5"},
		{"small", "0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := decimal.RequireFromString(tt.value)
			d128, err := toDecimal128(want)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := fromDecimal128(d128)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("expected %s, got %s", want, got)
			}
		})
	}
}

func TestFromDecimal128_UnsetIsZero(t *testing.T) {
	got, err := fromDecimal128(primitive.Decimal128{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero, got %s", got)
	}
}

func TestAccountDocumentRoundTrip(t *testing.T) {
	account := models.PaymentAccount{
		Key:            "acc-1",
		Agent:          "Bank",
		Description:    "Salary card",
		Balance:        decimal.RequireFromString("250.10"),
		InitialBalance: decimal.RequireFromString("100"),
		Currency:       "BYN",
		Type:           "Card",
	}

	doc, err := newAccountDocument(account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := doc.model()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Key != account.Key || got.Description != account.Description || got.Currency != account.Currency {
		t.Errorf("descriptive fields not preserved: %+v", got)
	}
	if !got.Balance.Equal(account.Balance) || !got.InitialBalance.Equal(account.InitialBalance) {
		t.Errorf("balances not preserved: %s / %s", got.Balance, got.InitialBalance)
	}
	if got.Info() != (models.AccountInfo{Agent: "Bank", Description: "Salary card", Currency: "BYN"}) {
		t.Errorf("unexpected info: %+v", got.Info())
	}
}
