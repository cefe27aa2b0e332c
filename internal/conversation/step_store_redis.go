package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const stepsHashKey = "conversation:steps"

// RedisStepStore keeps every user's step as one field of a Redis hash.
type RedisStepStore struct {
	redis  *redis.Client
	key    string
	tracer trace.Tracer
}

func NewRedisStepStore(client *redis.Client) *RedisStepStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisStepStore{
		redis:  client,
		key:    stepsHashKey,
		tracer: otel.Tracer("clinic.internal.conversation.steps"),
	}
}

func (s *RedisStepStore) GetStep(ctx context.Context, userID string) (int, bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.steps.get")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return 0, false, errUserIDRequired
	}
	created, err := s.redis.HSetNX(ctx, s.key, userID, FirstStep).Result()
	if err != nil {
		span.RecordError(err)
		return 0, false, fmt.Errorf("conversation: create step: %w", err)
	}
	if created {
		return FirstStep, true, nil
	}
	step, err := s.redis.HGet(ctx, s.key, userID).Int()
	if err != nil {
		span.RecordError(err)
		return 0, false, fmt.Errorf("conversation: load step: %w", err)
	}
	return step, false, nil
}

func (s *RedisStepStore) Lookup(ctx context.Context, userID string) (int, bool, error) {
	step, err := s.redis.HGet(ctx, s.key, userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("conversation: load step: %w", err)
	}
	return step, true, nil
}

func (s *RedisStepStore) SetStep(ctx context.Context, userID string, step int) error {
	ctx, span := s.tracer.Start(ctx, "conversation.steps.set")
	defer span.End()

	if err := validateStep(userID, step); err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, s.key, userID, step).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist step: %w", err)
	}
	return nil
}

func (s *RedisStepStore) Snapshot(ctx context.Context) (map[string]int, error) {
	raw, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: load steps: %w", err)
	}
	out := make(map[string]int, len(raw))
	for userID, v := range raw {
		step, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("conversation: decode step for %s: %w", userID, err)
		}
		out[userID] = step
	}
	return out, nil
}
