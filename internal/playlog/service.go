/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlog records what the player has aired.
package playlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/bragi_dj/internal/events"
)

// Entry is one aired track or station session.
type Entry struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"index" json:"kind"` // "station" or "track"
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Station   string    `json:"station,omitempty"`
	AddedBy   string    `json:"added_by,omitempty"`
	StartedAt time.Time `gorm:"index" json:"started_at"`
}

// Service persists play history.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService runs migrations and returns the play history service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) (*Service, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate playlog: %w", err)
	}

	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "playlog").Logger(),
	}, nil
}

// RecordStation logs the start of a radio station session. The write runs on
// its own goroutine so a slow database never stalls the caller.
func (s *Service) RecordStation(ctx context.Context, stationID, name, url string) {
	go s.record(ctx, Entry{
		ID:        uuid.New().String(),
		Kind:      "station",
		Title:     name,
		Source:    url,
		Station:   stationID,
		StartedAt: time.Now(),
	})
}

// RecordTrack logs the start of a queued track. The write runs on its own
// goroutine so a slow database never stalls the caller.
func (s *Service) RecordTrack(ctx context.Context, title, url, addedBy string) {
	go s.record(ctx, Entry{
		ID:        uuid.New().String(),
		Kind:      "track",
		Title:     title,
		Source:    url,
		AddedBy:   addedBy,
		StartedAt: time.Now(),
	})
}

func (s *Service) record(ctx context.Context, entry Entry) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// History is a convenience; a write failure never disturbs playback.
		s.logger.Debug().Bool("ignored", true).Err(err).Msg("playlog write failed")
		return
	}

	s.bus.Publish(events.EventTrackStarted, events.Payload{
		"id":       entry.ID,
		"kind":     entry.Kind,
		"title":    entry.Title,
		"source":   entry.Source,
		"added_by": entry.AddedBy,
	})
}

// Recent returns the latest entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []Entry
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query playlog: %w", err)
	}
	return entries, nil
}
