/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
)

// RedisBridge mirrors player events onto Redis pub/sub channels.
type RedisBridge struct {
	client *redis.Client
	fwd    *forwarder
}

// NewRedisBridge connects to Redis and starts mirroring.
func NewRedisBridge(addr, password string, db int, prefix string, bus *events.Bus, logger zerolog.Logger) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log := logger.With().Str("component", "eventbus").Str("backend", "redis").Logger()
	fwd := newForwarder(bus, prefix, log, func(subject string, payload []byte) error {
		return client.Publish(context.Background(), subject, payload).Err()
	})

	log.Info().Str("addr", addr).Msg("redis event bridge connected")
	return &RedisBridge{client: client, fwd: fwd}, nil
}

// Close stops mirroring and disconnects.
func (b *RedisBridge) Close() error {
	b.fwd.close()
	return b.client.Close()
}
