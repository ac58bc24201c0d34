package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sales-service/models"

	"github.com/redis/go-redis/v9"
)

// ReconcileKey is the Redis list holding stock commands that never reached
// the Inventory Service.
const ReconcileKey = "sales:reconcile:decrements"

// ReconcileQueue stores undelivered stock commands for a later resend.
type ReconcileQueue interface {
	Push(ctx context.Context, cmd models.StockCommand) error
	// Pop blocks up to timeout; it returns nil, nil when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (*models.StockCommand, error)
	Len(ctx context.Context) (int64, error)
}

type RedisReconcileQueue struct {
	client *redis.Client
	key    string
}

func NewRedisReconcileQueue(client *redis.Client) *RedisReconcileQueue {
	return &RedisReconcileQueue{client: client, key: ReconcileKey}
}

func (q *RedisReconcileQueue) Push(ctx context.Context, cmd models.StockCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal stock command: %w", err)
	}
	return q.client.RPush(ctx, q.key, body).Err()
}

func (q *RedisReconcileQueue) Pop(ctx context.Context, timeout time.Duration) (*models.StockCommand, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPOP replies [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	return DecodeStockCommand(res[1])
}

func (q *RedisReconcileQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// DecodeStockCommand parses a queued command.
func DecodeStockCommand(raw string) (*models.StockCommand, error) {
	var cmd models.StockCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil, fmt.Errorf("decode stock command: %w", err)
	}
	if cmd.ProductID <= 0 || cmd.Quantity <= 0 || cmd.Action == "" {
		return nil, fmt.Errorf("invalid stock command %q", raw)
	}
	return &cmd, nil
}
