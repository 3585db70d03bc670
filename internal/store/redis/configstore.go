// Package redis implements the per-user configuration store on Redis
// hashes: one hash per user keyed by instrument token, JSON values.
// Writes pass through a circuit breaker so a flapping Redis degrades to
// fast failures instead of piling up timeouts on the caller.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"stallwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const configKeyPrefix = "alertengine:configs:"

// ConfigStoreConfig configures the Redis config store.
type ConfigStoreConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// ConfigStore is the Redis-backed model.ConfigStore.
type ConfigStore struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (s *ConfigStore) Client() *goredis.Client { return s.client }

// NewConfigStore connects to Redis and pings the server.
func NewConfigStore(cfg ConfigStoreConfig) (*ConfigStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &ConfigStore{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

func configKey(userID string) string {
	return configKeyPrefix + userID
}

// List returns every stored configuration for a user.
func (s *ConfigStore) List(ctx context.Context, userID string) ([]model.InstrumentConfig, error) {
	entries, err := s.client.HGetAll(ctx, configKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	cfgs := make([]model.InstrumentConfig, 0, len(entries))
	for token, raw := range entries {
		var c model.InstrumentConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			log.Printf("[redis] skipping corrupt config for token %s: %v", token, err)
			continue
		}
		cfgs = append(cfgs, c)
	}
	return cfgs, nil
}

// Save upserts one configuration under its user's hash.
func (s *ConfigStore) Save(ctx context.Context, cfg model.InstrumentConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("redis marshal config: %w", err)
	}
	return s.breaker.Execute(func() error {
		if err := s.client.HSet(ctx, configKey(cfg.UserID), cfg.Token, data).Err(); err != nil {
			return fmt.Errorf("redis hset: %w", err)
		}
		return nil
	})
}

// Delete removes the configuration for one instrument token.
func (s *ConfigStore) Delete(ctx context.Context, userID, token string) error {
	return s.breaker.Execute(func() error {
		if err := s.client.HDel(ctx, configKey(userID), token).Err(); err != nil {
			return fmt.Errorf("redis hdel: %w", err)
		}
		return nil
	})
}

// Close releases the Redis connection.
func (s *ConfigStore) Close() error {
	return s.client.Close()
}
