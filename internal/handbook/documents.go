package handbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

type accountDocument struct {
	Key            string               `bson:"_id"`
	Agent          string               `bson:"agent"`
	Description    string               `bson:"description"`
	Balance        primitive.Decimal128 `bson:"balance"`
	InitialBalance primitive.Decimal128 `bson:"initial_balance"`
	Currency       string               `bson:"currency"`
	Type           string               `bson:"type"`
}

type categoryDocument struct {
	Key      string `bson:"_id"`
	Name     string `bson:"name"`
	IsIncome bool   `bson:"is_income"`
}

func newAccountDocument(a models.PaymentAccount) (accountDocument, error) {
	balance, err := toDecimal128(a.Balance)
	if err != nil {
		return accountDocument{}, err
	}
	initial, err := toDecimal128(a.InitialBalance)
	if err != nil {
		return accountDocument{}, err
	}
	return accountDocument{
		Key:            a.Key,
		Agent:          a.Agent,
		Description:    a.Description,
		Balance:        balance,
		InitialBalance: initial,
		Currency:       a.Currency,
		Type:           a.Type,
	}, nil
}

func (d accountDocument) model() (models.PaymentAccount, error) {
	balance, err := fromDecimal128(d.Balance)
	if err != nil {
		return models.PaymentAccount{}, err
	}
	initial, err := fromDecimal128(d.InitialBalance)
	if err != nil {
		return models.PaymentAccount{}, err
	}
	return models.PaymentAccount{
		Key:            d.Key,
		Agent:          d.Agent,
		Description:    d.Description,
		Balance:        balance,
		InitialBalance: initial,
		Currency:       d.Currency,
		Type:           d.Type,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

// fromDecimal128 treats an unset field as zero.
func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	if v == (primitive.Decimal128{}) {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to convert decimal128 %s: %w", v, err)
	}
	return d, nil
}
