/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
)

// NATSBridge mirrors player events onto NATS subjects.
type NATSBridge struct {
	conn *nats.Conn
	fwd  *forwarder
}

// NewNATSBridge connects to NATS and starts mirroring.
func NewNATSBridge(url, prefix string, bus *events.Bus, logger zerolog.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log := logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()
	fwd := newForwarder(bus, prefix, log, func(subject string, payload []byte) error {
		return conn.Publish(subject, payload)
	})

	log.Info().Str("url", url).Msg("nats event bridge connected")
	return &NATSBridge{conn: conn, fwd: fwd}, nil
}

// Close stops mirroring, flushes pending publishes, and disconnects.
func (b *NATSBridge) Close() error {
	b.fwd.close()
	err := b.conn.Flush()
	b.conn.Close()
	return err
}
