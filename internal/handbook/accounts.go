package handbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

const accountInfoKeyPrefix = "handbook:account:"

// AccountRepository implements domain.AccountLookup and domain.AccountStore
// over the payment_accounts collection. Only the descriptive fields are
// cached; balances are always read from and written to MongoDB.
type AccountRepository struct {
	coll  *mongo.Collection
	cache *ViewCache[models.AccountInfo]
}

// NewAccountRepository creates a new AccountRepository; rdb may be nil to disable caching
func NewAccountRepository(db *mongo.Database, rdb *goredis.Client, ttl time.Duration) *AccountRepository {
	r := &AccountRepository{coll: db.Collection(AccountsCollection)}
	if rdb != nil {
		r.cache = NewViewCache[models.AccountInfo](rdb, accountInfoKeyPrefix, ttl)
	}
	return r
}

// GetByID returns the account's descriptive fields, trying Redis first
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (models.AccountInfo, error) {
	if info, ok := r.cache.Get(ctx, accountID); ok {
		return *info, nil
	}

	account, err := r.Get(ctx, accountID)
	if err != nil {
		return models.AccountInfo{}, err
	}

	info := account.Info()
	r.cache.Set(ctx, accountID, &info)
	return info, nil
}

// Get loads the whole account document
func (r *AccountRepository) Get(ctx context.Context, accountID string) (models.PaymentAccount, error) {
	var doc accountDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": accountID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PaymentAccount{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return models.PaymentAccount{}, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return doc.model()
}

// Upsert creates or replaces an account document and drops its cached view
func (r *AccountRepository) Upsert(ctx context.Context, account models.PaymentAccount) error {
	doc, err := newAccountDocument(account)
	if err != nil {
		return err
	}

	_, err = r.coll.ReplaceOne(ctx, bson.M{"_id": account.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.Key, err)
	}

	r.cache.Delete(ctx, account.Key)
	return nil
}

// InitialBalance returns the balance the account was opened with
func (r *AccountRepository) InitialBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var doc accountDocument
	opts := options.FindOne().SetProjection(bson.M{"initial_balance": 1})
	err := r.coll.FindOne(ctx, bson.M{"_id": accountID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get initial balance of %s: %w", accountID, err)
	}
	return fromDecimal128(doc.InitialBalance)
}

// SetBalance overwrites the account balance
func (r *AccountRepository) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	value, err := toDecimal128(balance)
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, bson.M{"$set": bson.M{"balance": value}})
}

// AdjustBalance adds delta to the account balance atomically
func (r *AccountRepository) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	value, err := toDecimal128(delta)
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, bson.M{"$inc": bson.M{"balance": value}})
}

func (r *AccountRepository) update(ctx context.Context, accountID string, update bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": accountID}, update)
	if err != nil {
		return fmt.Errorf("failed to update balance of %s: %w", accountID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return nil
}
