package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smc-enginev1/config"
)

const (
	strategyKey     = "smc:config:strategy"
	strategyChannel = "smc:config:reload"
)

// ConfigStore holds the hot-reloadable strategy record in Redis. Writers
// publish on the reload channel after every save; the engine subscribes and
// swaps its config without restarting.
type ConfigStore struct {
	client *goredis.Client
}

// NewConfigStore creates a ConfigStore and pings the server.
func NewConfigStore(addr, password string, db int) (*ConfigStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ConfigStore{client: client}, nil
}

// Load reads the stored strategy record. ok is false when no record exists
// (the caller falls back to the env-derived default).
func (s *ConfigStore) Load(ctx context.Context) (config.Strategy, bool, error) {
	data, err := s.client.Get(ctx, strategyKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return config.Strategy{}, false, nil
		}
		return config.Strategy{}, false, fmt.Errorf("redis get strategy: %w", err)
	}

	var strat config.Strategy
	if err := json.Unmarshal(data, &strat); err != nil {
		return config.Strategy{}, false, fmt.Errorf("unmarshal strategy: %w", err)
	}
	return strat, true, nil
}

// Save validates, stores, and announces a new strategy record. Invalid
// records are rejected before touching Redis.
func (s *ConfigStore) Save(ctx context.Context, strat config.Strategy) error {
	if err := strat.Validate(); err != nil {
		return fmt.Errorf("invalid strategy: %w", err)
	}

	data, err := json.Marshal(strat)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	if err := s.client.Set(ctx, strategyKey, string(data), 0).Err(); err != nil {
		return fmt.Errorf("redis set strategy: %w", err)
	}
	return s.client.Publish(ctx, strategyChannel, "reload").Err()
}

// Watch subscribes to the reload channel and invokes onUpdate with each
// freshly loaded record. Records that fail to load or validate are skipped —
// a bad save must never poison a running engine. Blocks until ctx is
// cancelled.
func (s *ConfigStore) Watch(ctx context.Context, onUpdate func(config.Strategy)) error {
	pubsub := s.client.Subscribe(ctx, strategyChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", strategyChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			strat, found, err := s.Load(ctx)
			if err != nil || !found {
				log.Printf("[configstore] reload skipped: found=%v err=%v", found, err)
				continue
			}
			if err := strat.Validate(); err != nil {
				log.Printf("[configstore] reload skipped, invalid record: %v", err)
				continue
			}
			onUpdate(strat)
		}
	}
}

// Close closes the Redis client.
func (s *ConfigStore) Close() error {
	return s.client.Close()
}
