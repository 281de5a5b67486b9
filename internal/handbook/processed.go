package handbook

import (
	"context"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	processedEventKeyPrefix = "processed:event:"
	processedEventTTL       = 72 * time.Hour
)

// ProcessedMarker implements domain.ProcessedMarker with expiring Redis keys.
type ProcessedMarker struct {
	redis *goredis.Client
	ttl   time.Duration
}

// NewProcessedMarker creates a marker whose keys live for 72 hours
func NewProcessedMarker(rdb *goredis.Client) *ProcessedMarker {
	return &ProcessedMarker{redis: rdb, ttl: processedEventTTL}
}

// IsProcessed reports whether eventID was already applied; Redis errors count as not processed
func (m *ProcessedMarker) IsProcessed(ctx context.Context, eventID string) bool {
	n, err := m.redis.Exists(ctx, processedEventKeyPrefix+eventID).Result()
	return err == nil && n > 0
}

// MarkProcessed records eventID as applied
func (m *ProcessedMarker) MarkProcessed(ctx context.Context, eventID string) {
	if err := m.redis.Set(ctx, processedEventKeyPrefix+eventID, "1", m.ttl).Err(); err != nil {
		log.Printf("Failed to mark event as processed: eventId=%s, error=%v", eventID, err)
	}
}
