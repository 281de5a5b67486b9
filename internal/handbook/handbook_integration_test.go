package handbook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

func startContainer(t *testing.T, ctx context.Context, image, port, readyLog string) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port + "/tcp"},
			WaitingFor:   wait.ForLog(readyLog),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", image, err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to get %s port: %v", image, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func setupHandbook(t *testing.T) (*mongo.Database, *goredis.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mongoAddr := startContainer(t, ctx, "mongo:7", "27017", "Waiting for connections")
	redisAddr := startContainer(t, ctx, "redis:7", "6379", "Ready to accept connections")

	client, db, err := ConnectMongo(ctx, config.MongoConfig{URI: "mongodb://" + mongoAddr, Database: "handbook"})
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })

	rdb, err := ConnectRedis(ctx, config.RedisConfig{Addr: redisAddr})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	return db, rdb
}

func TestAccountRepository_LookupAndBalances(t *testing.T) {
	db, rdb := setupHandbook(t)
	ctx := context.Background()
	repo := NewAccountRepository(db, rdb, time.Minute)

	err := repo.Upsert(ctx, models.PaymentAccount{
		Key:            "acc-1",
		Agent:          "Bank",
		Description:    "Salary card",
		Balance:        decimal.RequireFromString("100"),
		InitialBalance: decimal.RequireFromString("100"),
		Currency:       "BYN",
	})
	if err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	info, err := repo.GetByID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if info.Description != "Salary card" {
		t.Errorf("unexpected info: %+v", info)
	}

	// Served from Redis once the document is gone.
	if _, err := db.Collection(AccountsCollection).DeleteMany(ctx, map[string]string{"_id": "acc-1"}); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	cached, err := repo.GetByID(ctx, "acc-1")
	if err != nil || cached != info {
		t.Errorf("expected cached info, got %+v, %v", cached, err)
	}

	repo.Upsert(ctx, models.PaymentAccount{Key: "acc-1", InitialBalance: decimal.RequireFromString("100"), Balance: decimal.RequireFromString("100")})
	if err := repo.AdjustBalance(ctx, "acc-1", decimal.RequireFromString("-30.25")); err != nil {
		t.Fatalf("failed to adjust: %v", err)
	}
	if err := repo.AdjustBalance(ctx, "acc-1", decimal.RequireFromString("10")); err != nil {
		t.Fatalf("failed to adjust: %v", err)
	}

	account, err := repo.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !account.Balance.Equal(decimal.RequireFromString("79.75")) {
		t.Errorf("expected 79.75, got %s", account.Balance)
	}

	initial, err := repo.InitialBalance(ctx, "acc-1")
	if err != nil || !initial.Equal(decimal.RequireFromString("100")) {
		t.Errorf("expected initial 100, got %s, %v", initial, err)
	}

	if err := repo.SetBalance(ctx, "acc-1", decimal.RequireFromString("5")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	account, _ = repo.Get(ctx, "acc-1")
	if !account.Balance.Equal(decimal.RequireFromString("5")) {
		t.Errorf("expected 5, got %s", account.Balance)
	}
}

func TestAccountRepository_NotFound(t *testing.T) {
	db, rdb := setupHandbook(t)
	ctx := context.Background()
	repo := NewAccountRepository(db, rdb, time.Minute)

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.InitialBalance(ctx, "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if err := repo.AdjustBalance(ctx, "missing", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCategoryRepository_IsIncomeCategory(t *testing.T) {
	db, rdb := setupHandbook(t)
	ctx := context.Background()
	repo := NewCategoryRepository(db, rdb, time.Minute)

	repo.Upsert(ctx, models.Category{Key: "salary", Name: "Salary", IsIncome: true})
	repo.Upsert(ctx, models.Category{Key: "food", Name: "Food"})

	tests := []struct {
		categoryID string
		want       bool
		wantErr    error
	}{
		{"salary", true, nil},
		{"food", false, nil},
		{"missing", false, domain.ErrCategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.categoryID, func(t *testing.T) {
			got, err := repo.IsIncomeCategory(ctx, tt.categoryID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestProcessedMarker(t *testing.T) {
	_, rdb := setupHandbook(t)
	ctx := context.Background()
	marker := NewProcessedMarker(rdb)

	if marker.IsProcessed(ctx, "e-1") {
		t.Fatal("expected fresh event not processed")
	}
	marker.MarkProcessed(ctx, "e-1")
	if !marker.IsProcessed(ctx, "e-1") {
		t.Error("expected event processed after marking")
	}

	ttl, err := rdb.TTL(ctx, processedEventKeyPrefix+"e-1").Result()
	if err != nil || ttl <= 71*time.Hour {
		t.Errorf("expected ~72h ttl, got %s, %v", ttl, err)
	}
}
