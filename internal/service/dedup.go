package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UpdateGuard drops repeated deliveries of the same transport update.
type UpdateGuard struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewUpdateGuard(redisClient *redis.Client, ttl time.Duration) *UpdateGuard {
	return &UpdateGuard{redisClient: redisClient, ttl: ttl}
}

// Claim reports whether updateID is seen for the first time.
func (g *UpdateGuard) Claim(ctx context.Context, updateID int64) (bool, error) {
	if g.redisClient == nil {
		return true, nil
	}
	ok, err := g.redisClient.SetNX(ctx, updateKey(updateID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim update: %w", err)
	}
	return ok, nil
}

// Release forgets updateID so a redelivery is processed again.
func (g *UpdateGuard) Release(ctx context.Context, updateID int64) {
	if g.redisClient == nil {
		return
	}
	g.redisClient.Del(ctx, updateKey(updateID))
}

func updateKey(id int64) string {
	return "tg_update:" + strconv.FormatInt(id, 10)
}
