package handbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

const categoryKeyPrefix = "handbook:category:"

// CategoryRepository implements domain.CategoryLookup over the categories collection.
type CategoryRepository struct {
	coll  *mongo.Collection
	cache *ViewCache[models.Category]
}

// NewCategoryRepository creates a new CategoryRepository; rdb may be nil to disable caching
func NewCategoryRepository(db *mongo.Database, rdb *goredis.Client, ttl time.Duration) *CategoryRepository {
	r := &CategoryRepository{coll: db.Collection(CategoriesCollection)}
	if rdb != nil {
		r.cache = NewViewCache[models.Category](rdb, categoryKeyPrefix, ttl)
	}
	return r
}

// IsIncomeCategory reports whether operations of categoryID raise the balance
func (r *CategoryRepository) IsIncomeCategory(ctx context.Context, categoryID string) (bool, error) {
	category, err := r.Get(ctx, categoryID)
	if err != nil {
		return false, err
	}
	return category.IsIncome, nil
}

// Get returns the category, trying Redis first
func (r *CategoryRepository) Get(ctx context.Context, categoryID string) (models.Category, error) {
	if category, ok := r.cache.Get(ctx, categoryID); ok {
		return *category, nil
	}

	var doc categoryDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": categoryID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Category{}, fmt.Errorf("%w: %s", domain.ErrCategoryNotFound, categoryID)
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to get category %s: %w", categoryID, err)
	}

	category := models.Category{Key: doc.Key, Name: doc.Name, IsIncome: doc.IsIncome}
	r.cache.Set(ctx, categoryID, &category)
	return category, nil
}

// Upsert creates or replaces a category and drops its cached copy
func (r *CategoryRepository) Upsert(ctx context.Context, category models.Category) error {
	doc := categoryDocument{Key: category.Key, Name: category.Name, IsIncome: category.IsIncome}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": category.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", category.Key, err)
	}

	r.cache.Delete(ctx, category.Key)
	return nil
}
