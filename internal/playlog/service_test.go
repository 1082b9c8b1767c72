/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlog

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/bragi_dj/internal/events"
)

func newTestService(t *testing.T, bus *events.Bus) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A second pooled connection would see its own empty in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	svc, err := NewService(db, bus, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// waitEvents blocks until n track-started events arrive. Record writes run
// asynchronously, so tests synchronize on the published event before querying.
func waitEvents(t *testing.T, sub events.Subscriber, n int) []events.Payload {
	t.Helper()

	payloads := make([]events.Payload, 0, n)
	deadline := time.After(5 * time.Second)
	for len(payloads) < n {
		select {
		case payload := <-sub:
			payloads = append(payloads, payload)
		case <-deadline:
			t.Fatalf("got %d events before deadline, want %d", len(payloads), n)
		}
	}
	return payloads
}

func TestRecordAndRecent(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	svc := newTestService(t, bus)
	ctx := context.Background()

	svc.RecordStation(ctx, "groove-salad", "Groove Salad", "https://ice2.somafm.com/groovesalad-128-mp3")
	svc.RecordTrack(ctx, "My Song", "https://cdn.example.com/song.mp3", "alice")
	waitEvents(t, sub, 2)

	entries, err := svc.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	kinds := map[string]bool{}
	for _, e := range entries {
		kinds[e.Kind] = true
		if e.ID == "" || e.StartedAt.IsZero() {
			t.Errorf("entry missing id or timestamp: %+v", e)
		}
	}
	if !kinds["station"] || !kinds["track"] {
		t.Errorf("kinds = %v, want station and track", kinds)
	}
}

func TestRecordPublishesEvent(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	svc := newTestService(t, bus)
	svc.RecordTrack(context.Background(), "My Song", "https://cdn.example.com/song.mp3", "alice")

	payload := waitEvents(t, sub, 1)[0]
	if payload["title"] != "My Song" || payload["kind"] != "track" {
		t.Errorf("payload = %v", payload)
	}
}

// Recording must not block the caller while the write is in flight.
func TestRecordReturnsBeforeWrite(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	svc := newTestService(t, bus)

	done := make(chan struct{})
	go func() {
		svc.RecordTrack(context.Background(), "t", "https://cdn.example.com/t.mp3", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("record call blocked")
	}
	waitEvents(t, sub, 1)
}

func TestRecentLimitBounds(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, sub)

	svc := newTestService(t, bus)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordTrack(ctx, "t", "https://cdn.example.com/t.mp3", "")
	}
	waitEvents(t, sub, 5)

	entries, err := svc.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries with limit 3", len(entries))
	}

	entries, err = svc.Recent(ctx, -1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d entries with invalid limit, want all 5", len(entries))
	}
}
