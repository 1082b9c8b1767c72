/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection for the play history log.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBridge backend selection for mirroring player events to the host app.
type EventBridge string

const (
	BridgeNone  EventBridge = "none"
	BridgeRedis EventBridge = "redis"
	BridgeNATS  EventBridge = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Player
	StationsFile     string // YAML station catalog (optional, built-in defaults apply)
	DefaultStationID string
	DefaultVolume    int
	FFmpegBin        string
	MaxQueueLength   int

	// Play history
	DBBackend DatabaseBackend
	DBDSN     string

	// Media room
	RoomName      string
	RoomServerURL string // WebSocket signaling endpoint of the media room server
	RoomTokenURL  string // Credential issuer; empty means self-issue with RoomAPISecret
	RoomAPISecret string // Shared secret: token signing and E2EE key fallback
	RoomSecret    string // Room-specific E2EE secret (optional)
	RoomIdentity  string // Participant identity shown in the room
	RoomE2EE      bool

	// Event bridge back to the host chat application
	Bridge        EventBridge
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	BridgePrefix  string // channel/subject prefix, e.g. "bragi.events"
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"BRAGI_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"BRAGI_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"BRAGI_HTTP_PORT"}, 8090),
		MetricsBind: getEnvAny([]string{"BRAGI_METRICS_BIND"}, "127.0.0.1:9100"),

		StationsFile:     StationsFile(),
		DefaultStationID: DefaultStationID(),
		DefaultVolume:    getEnvIntAny([]string{"BRAGI_DEFAULT_VOLUME"}, 100),
		FFmpegBin:        getEnvAny([]string{"BRAGI_FFMPEG_BIN"}, "ffmpeg"),
		MaxQueueLength:   getEnvIntAny([]string{"BRAGI_MAX_QUEUE_LENGTH"}, 50),

		DBBackend: DatabaseBackend(getEnvAny([]string{"BRAGI_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"BRAGI_DB_DSN"}, "bragi_dj.db"),

		RoomName:      getEnvAny([]string{"BRAGI_ROOM_NAME"}, "lobby"),
		RoomServerURL: getEnvAny([]string{"BRAGI_ROOM_SERVER_URL"}, ""),
		RoomTokenURL:  getEnvAny([]string{"BRAGI_ROOM_TOKEN_URL"}, ""),
		RoomAPISecret: getEnvAny([]string{"BRAGI_ROOM_API_SECRET"}, ""),
		RoomSecret:    getEnvAny([]string{"BRAGI_ROOM_SECRET"}, ""),
		RoomIdentity:  getEnvAny([]string{"BRAGI_ROOM_IDENTITY"}, "bragi-dj"),
		RoomE2EE:      getEnvBoolAny([]string{"BRAGI_ROOM_E2EE"}, false),

		Bridge:        EventBridge(getEnvAny([]string{"BRAGI_EVENT_BRIDGE"}, string(BridgeNone))),
		RedisAddr:     getEnvAny([]string{"BRAGI_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"BRAGI_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"BRAGI_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"BRAGI_NATS_URL"}, "nats://localhost:4222"),
		BridgePrefix:  getEnvAny([]string{"BRAGI_BRIDGE_PREFIX"}, "bragi.events"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.Bridge != BridgeNone && cfg.Bridge != BridgeRedis && cfg.Bridge != BridgeNATS {
		return nil, fmt.Errorf("unsupported event bridge %q", cfg.Bridge)
	}

	if cfg.RoomServerURL == "" {
		return nil, fmt.Errorf("BRAGI_ROOM_SERVER_URL must be provided")
	}

	if cfg.RoomTokenURL == "" && cfg.RoomAPISecret == "" {
		return nil, fmt.Errorf("BRAGI_ROOM_TOKEN_URL or BRAGI_ROOM_API_SECRET must be provided")
	}

	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 100 {
		return nil, fmt.Errorf("BRAGI_DEFAULT_VOLUME must be within 0..100, got %d", cfg.DefaultVolume)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.RoomE2EE && cfg.RoomSecret == "" && cfg.RoomAPISecret == "" {
		return nil, fmt.Errorf("BRAGI_ROOM_SECRET or BRAGI_ROOM_API_SECRET must be set when E2EE is enabled in production")
	}

	return cfg, nil
}

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// StationsFile returns the station catalog path from the environment. Shared
// with subcommands that load the catalog without the full serve configuration.
func StationsFile() string {
	return getEnvAny([]string{"BRAGI_STATIONS_FILE"}, "")
}

// DefaultStationID returns the configured default station id, if any.
func DefaultStationID() string {
	return getEnvAny([]string{"BRAGI_DEFAULT_STATION"}, "")
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
