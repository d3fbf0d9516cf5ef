package robotstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Cache is the fast read side of the manager.
type Cache interface {
	SetState(ctx context.Context, s *RobotState) error
	GetState(ctx context.Context, id string) (*RobotState, error)
	GetAllIDs(ctx context.Context) ([]string, error)
	FlushAll(ctx context.Context) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(id string) string {
	return fmt.Sprintf("chessbots:robot:%s:state", id)
}

const allRobotsKey = "chessbots:robots"

func (r *RedisStore) SetState(ctx context.Context, s *RobotState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(s.ID), data, 0)
	pipe.SAdd(ctx, allRobotsKey, s.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetState(ctx context.Context, id string) (*RobotState, error) {
	data, err := r.client.Get(ctx, stateKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s RobotState
	return &s, json.Unmarshal(data, &s)
}

func (r *RedisStore) GetAllIDs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allRobotsKey).Result()
}

func (r *RedisStore) Remove(ctx context.Context, id string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, stateKey(id))
	pipe.SRem(ctx, allRobotsKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.GetAllIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.Remove(ctx, id)
	}
	return r.client.Del(ctx, allRobotsKey).Err()
}

var _ Cache = (*RedisStore)(nil)
