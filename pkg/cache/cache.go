// Package cache is a thin JSON cache on Redis. Verification results for a
// given bundle digest are cached briefly so repeated scans of the same
// label don't hammer the ledger; ledger writes must invalidate by product.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/veritas/config"
)

var RDB *redis.Client

// Connect dials Redis using the configured address. Safe to skip in tests;
// every helper degrades to a no-op when RDB is nil.
func Connect() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
	})
}

// Get unmarshals the cached value at key into dest and reports a hit.
func Get(ctx context.Context, key string, dest interface{}) bool {
	if RDB == nil {
		return false
	}

	val, err := RDB.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

// Set stores value at key as JSON with the given TTL.
func Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if RDB == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return RDB.Set(ctx, key, data, ttl).Err()
}

// Forget removes keys, used to invalidate cached verdicts after a ledger
// write changes a product's state.
func Forget(ctx context.Context, keys ...string) {
	if RDB == nil || len(keys) == 0 {
		return
	}
	RDB.Del(ctx, keys...)
}

// ForgetPrefix removes every key starting with prefix. Verdicts are keyed
// by product id first so a custody write can drop all of them at once.
func ForgetPrefix(ctx context.Context, prefix string) {
	if RDB == nil || prefix == "" {
		return
	}

	iter := RDB.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		RDB.Del(ctx, keys...)
	}
}
