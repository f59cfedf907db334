package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"verigate/internal/provider"
	"verigate/pkg/platform/sentinel"
)

const (
	opKeyPrefix     = "opreg:op:"
	activeKeyPrefix = "opreg:active:"
)

// RedisStore is the distributed operation registry backend. The per-user
// active key only exists while the operation is non-terminal, so a plain
// SETNX gives atomic check-and-bind across instances. Key TTLs track the
// operation expiry, which makes expired-binding cleanup a Redis concern.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func opKey(operationID string) string { return opKeyPrefix + operationID }

func redisActiveKey(userID uuid.UUID, purpose provider.Purpose) string {
	return fmt.Sprintf("%s%s:%s", activeKeyPrefix, userID, purpose)
}

type redisOperation struct {
	OperationID string           `json:"operation_id"`
	UserID      uuid.UUID        `json:"user_id"`
	Purpose     provider.Purpose `json:"purpose"`
	State       provider.State   `json:"state"`
	Result      provider.Result  `json:"result"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func toRedis(op Operation) redisOperation {
	return redisOperation(op)
}

func fromRedis(op redisOperation) Operation {
	return Operation(op)
}

func (s *RedisStore) ttl(op Operation) time.Duration {
	if op.ExpiresAt.IsZero() {
		return 24 * time.Hour
	}
	ttl := time.Until(op.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	// Keep the record readable slightly past expiry so in-flight status
	// checks can still resolve it.
	return ttl + time.Minute
}

func (s *RedisStore) Bind(ctx context.Context, op Operation) error {
	payload, err := json.Marshal(toRedis(op))
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}

	ttl := s.ttl(op)
	ok, err := s.client.SetNX(ctx, redisActiveKey(op.UserID, op.Purpose), op.OperationID, ttl).Result()
	if err != nil {
		return fmt.Errorf("bind active key: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}

	if err := s.client.Set(ctx, opKey(op.OperationID), payload, ttl).Err(); err != nil {
		// Roll back the active claim so the user is not locked out.
		s.client.Del(ctx, redisActiveKey(op.UserID, op.Purpose))
		return fmt.Errorf("store operation: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByOperationID(ctx context.Context, operationID string) (Operation, error) {
	payload, err := s.client.Get(ctx, opKey(operationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Operation{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Operation{}, fmt.Errorf("get operation: %w", err)
	}

	var op redisOperation
	if err := json.Unmarshal(payload, &op); err != nil {
		return Operation{}, fmt.Errorf("unmarshal operation: %w", err)
	}
	return fromRedis(op), nil
}

func (s *RedisStore) FindActiveByUser(ctx context.Context, userID uuid.UUID, purpose provider.Purpose) (Operation, error) {
	operationID, err := s.client.Get(ctx, redisActiveKey(userID, purpose)).Result()
	if errors.Is(err, redis.Nil) {
		return Operation{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Operation{}, fmt.Errorf("get active operation: %w", err)
	}

	op, err := s.FindByOperationID(ctx, operationID)
	if err != nil {
		return Operation{}, err
	}
	if op.Terminal() {
		return Operation{}, sentinel.ErrNotFound
	}
	// Key TTLs carry a readability margin past the operation expiry, so a
	// binding can still resolve shortly after it lapsed.
	if !op.ExpiresAt.IsZero() && time.Now().After(op.ExpiresAt) {
		return Operation{}, sentinel.ErrExpired
	}
	return op, nil
}

// MarkTerminal uses an optimistic transaction so a concurrent transition
// cannot resurrect or double-finalize the operation.
func (s *RedisStore) MarkTerminal(ctx context.Context, operationID string, state provider.State, result provider.Result, completedAt *time.Time) error {
	key := opKey(operationID)

	txn := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get operation: %w", err)
		}

		var op redisOperation
		if err := json.Unmarshal(payload, &op); err != nil {
			return fmt.Errorf("unmarshal operation: %w", err)
		}
		if op.State.Terminal() {
			return sentinel.ErrTerminal
		}

		op.State = state
		op.Result = result
		op.CompletedAt = completedAt

		updated, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("marshal operation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			pipe.Del(ctx, redisActiveKey(op.UserID, op.Purpose))
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// The operation changed underneath us; the competing writer made
		// it terminal first.
		return sentinel.ErrTerminal
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, operationID string) error {
	op, err := s.FindByOperationID(ctx, operationID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, opKey(operationID))
		pipe.Del(ctx, redisActiveKey(op.UserID, op.Purpose))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete operation: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op for Redis: key TTLs already garbage-collect
// expired bindings.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
