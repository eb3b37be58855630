package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orderwise/orderwise/log"
)

const defaultTTL = time.Hour * 24

// ProcessedChecker is the durable side of the ledger, backed by the store's
// inbox table.
type ProcessedChecker interface {
	IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error)
}

// Ledger answers whether an inbound message was already processed. The durable
// inbox record is authoritative, redis only short-circuits the SQL lookup.
type Ledger interface {
	IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error)
	// MarkProcessed warms the cache after a successful commit, best effort
	MarkProcessed(ctx context.Context, orderUID string, messageUID string)
}

type redisLedger struct {
	client  *redis.Client
	durable ProcessedChecker
	ttl     time.Duration
	logger  log.Logger
}

func NewRedisLedger(client *redis.Client, durable ProcessedChecker, logger log.Logger) Ledger {
	return &redisLedger{
		client:  client,
		durable: durable,
		ttl:     defaultTTL,
		logger:  logger,
	}
}

func (l redisLedger) IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error) {
	key := cacheKey(orderUID, messageUID)

	_, err := l.client.Get(ctx, key).Result()

	if err == nil {
		return true, nil
	}

	if err != redis.Nil {
		// cache outage degrades to the SQL inbox, processing stays correct
		l.logger.Logf(log.WarnLevel, "idempotency cache lookup failed for %s: %s", key, err)
	}

	processed, err := l.durable.IsProcessed(ctx, orderUID, messageUID)

	if err != nil {
		return false, err
	}

	if processed {
		l.MarkProcessed(ctx, orderUID, messageUID)
	}

	return processed, nil
}

func (l redisLedger) MarkProcessed(ctx context.Context, orderUID string, messageUID string) {
	key := cacheKey(orderUID, messageUID)

	if err := l.client.Set(ctx, key, 1, l.ttl).Err(); err != nil {
		l.logger.Logf(log.WarnLevel, "idempotency cache write failed for %s: %s", key, err)
	}
}

func cacheKey(orderUID, messageUID string) string {
	return fmt.Sprintf("orderwise:inbox:%s:%s", orderUID, messageUID)
}

// NewDurableLedger skips the cache layer entirely, used when no redis address
// is configured.
func NewDurableLedger(durable ProcessedChecker) Ledger {
	return durableLedger{durable: durable}
}

type durableLedger struct {
	durable ProcessedChecker
}

func (l durableLedger) IsProcessed(ctx context.Context, orderUID string, messageUID string) (bool, error) {
	return l.durable.IsProcessed(ctx, orderUID, messageUID)
}

func (l durableLedger) MarkProcessed(ctx context.Context, orderUID string, messageUID string) {
}
