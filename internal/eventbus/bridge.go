/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors in-process player events onto an external broker
// so the surrounding chat platform can react to now-playing changes without
// polling the control API.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
)

// Bridge is a connected event mirror.
type Bridge interface {
	Close() error
}

// envelope is the wire form of one mirrored event.
type envelope struct {
	Type string         `json:"type"`
	Data events.Payload `json:"data"`
	At   time.Time      `json:"at"`
}

type publishFunc func(subject string, payload []byte) error

// forwarder subscribes to every event type and relays each payload to the
// broker under prefix.<type>. Publish failures are logged and dropped; the
// bridge never blocks the player.
type forwarder struct {
	bus    *events.Bus
	prefix string
	logger zerolog.Logger
	pub    publishFunc
	subs   map[events.EventType]events.Subscriber
	wg     sync.WaitGroup
}

func newForwarder(bus *events.Bus, prefix string, logger zerolog.Logger, pub publishFunc) *forwarder {
	f := &forwarder{
		bus:    bus,
		prefix: prefix,
		logger: logger,
		pub:    pub,
		subs:   make(map[events.EventType]events.Subscriber, len(events.All)),
	}

	for _, t := range events.All {
		sub := bus.Subscribe(t)
		f.subs[t] = sub
		f.wg.Add(1)
		go f.relay(t, sub)
	}

	return f
}

func (f *forwarder) relay(t events.EventType, sub events.Subscriber) {
	defer f.wg.Done()

	subject := f.prefix + "." + string(t)
	for payload := range sub {
		data, err := json.Marshal(envelope{Type: string(t), Data: payload, At: time.Now().UTC()})
		if err != nil {
			f.logger.Debug().Bool("ignored", true).Err(err).Str("event", string(t)).Msg("event encode failed")
			continue
		}
		if err := f.pub(subject, data); err != nil {
			f.logger.Debug().Bool("ignored", true).Err(err).Str("subject", subject).Msg("event publish failed")
		}
	}
}

// close unsubscribes everything and waits for in-flight relays to drain.
func (f *forwarder) close() {
	for t, sub := range f.subs {
		f.bus.Unsubscribe(t, sub)
	}
	f.wg.Wait()
}
