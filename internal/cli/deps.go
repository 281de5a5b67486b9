package cli

import (
	"context"
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/handbook"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/messaging"
)

// handbookDeps holds the MongoDB and Redis backed lookups.
type handbookDeps struct {
	mongo      *mongo.Client
	redis      *goredis.Client
	accounts   *handbook.AccountRepository
	categories *handbook.CategoryRepository
	marker     *handbook.ProcessedMarker
}

func openHandbook(ctx context.Context, cfg *config.Config) (*handbookDeps, error) {
	mongoClient, database, err := handbook.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to MongoDB: database=%s", cfg.Mongo.Database)

	rdb, err := handbook.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		mongoClient.Disconnect(context.Background())
		return nil, err
	}
	log.Printf("Connected to Redis: addr=%s", cfg.Redis.Addr)

	return &handbookDeps{
		mongo:      mongoClient,
		redis:      rdb,
		accounts:   handbook.NewAccountRepository(database, rdb, cfg.Redis.CacheTTL),
		categories: handbook.NewCategoryRepository(database, rdb, cfg.Redis.CacheTTL),
		marker:     handbook.NewProcessedMarker(rdb),
	}, nil
}

func (h *handbookDeps) Close() {
	if err := h.redis.Close(); err != nil {
		log.Printf("Failed to close Redis client: %v", err)
	}
	if err := h.mongo.Disconnect(context.Background()); err != nil {
		log.Printf("Failed to disconnect from MongoDB: %v", err)
	}
}

func openClickHouse(ctx context.Context, cfg *config.Config) (*db.ClickHouseClient, error) {
	client, err := db.NewClickHouseClient(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHistorySchema(ctx); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("Connected to ClickHouse: host=%s, database=%s", cfg.ClickHouse.Host, cfg.ClickHouse.Database)
	return client, nil
}

// newPublisher builds the outbox publisher named by cfg.Outbox.Publisher
func newPublisher(cfg *config.Config) (domain.Publisher, error) {
	switch messaging.ConsumerType(cfg.Outbox.Publisher) {
	case messaging.ConsumerTypeRabbitMQ:
		return messaging.NewRabbitMQPublisher(cfg.RabbitMQ)
	case messaging.ConsumerTypeKafka:
		return messaging.NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown outbox publisher %q", cfg.Outbox.Publisher)
	}
}
