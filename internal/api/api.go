/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the player control surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
	"github.com/friendsincode/bragi_dj/internal/player"
	"github.com/friendsincode/bragi_dj/internal/playlog"
	"github.com/friendsincode/bragi_dj/internal/station"
	"github.com/friendsincode/bragi_dj/internal/version"
)

// maxTrackURLLength bounds user-submitted track URLs.
const maxTrackURLLength = 2048

// API holds the handler dependencies.
type API struct {
	player   *player.Controller
	catalog  *station.Catalog
	history  *playlog.Service
	bus      *events.Bus
	logger   zerolog.Logger
	maxQueue int
}

// New wires the control API.
func New(p *player.Controller, catalog *station.Catalog, history *playlog.Service, bus *events.Bus, logger zerolog.Logger, maxQueue int) *API {
	return &API{
		player:   p,
		catalog:  catalog,
		history:  history,
		bus:      bus,
		logger:   logger.With().Str("component", "api").Logger(),
		maxQueue: maxQueue,
	}
}

// Routes mounts every endpoint.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", a.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/player", a.handleState)
		r.Post("/player/queue", a.handleEnqueue)
		r.Delete("/player/queue/{id}", a.handleRemove)
		r.Post("/player/skip", a.handleSkip)
		r.Put("/player/station", a.handleSetStation)
		r.Put("/player/volume", a.handleSetVolume)
		r.Post("/player/pause", a.handlePause)
		r.Get("/stations", a.handleStations)
		r.Get("/history", a.handleHistory)
		r.Get("/events", a.handleEvents)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	a.respondState(w)
}

func (a *API) respondState(w http.ResponseWriter) {
	st, err := a.player.State()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "player unavailable")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		AddedBy string `json:"added_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateTrackURL(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if a.player.QueueLength() >= a.maxQueue {
		respondError(w, http.StatusConflict, "queue is full")
		return
	}

	entry, err := a.player.Enqueue(req.URL, req.Title, req.AddedBy)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "player unavailable")
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

func (a *API) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !a.player.Remove(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "no such queue entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	if err := a.player.Skip(); err != nil {
		if errors.Is(err, player.ErrNotInQueueMode) {
			respondError(w, http.StatusConflict, "nothing to skip: not in queue mode")
			return
		}
		respondError(w, http.StatusServiceUnavailable, "player unavailable")
		return
	}
	a.respondState(w)
}

func (a *API) handleSetStation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.player.SetStation(req.ID); err != nil {
		if errors.Is(err, player.ErrUnknownStation) {
			respondError(w, http.StatusNotFound, "unknown station")
			return
		}
		respondError(w, http.StatusServiceUnavailable, "player unavailable")
		return
	}
	a.respondState(w)
}

func (a *API) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied := a.player.SetVolume(*req.Volume)
	respondJSON(w, http.StatusOK, map[string]int{"volume": applied})
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	paused := a.player.TogglePause()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (a *API) handleStations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.catalog.List())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := a.history.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []playlog.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// validateTrackURL enforces the enqueue preconditions; reachability of the
// URL is not checked here, a dead source surfaces through the exit policy.
func validateTrackURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	if len(raw) > maxTrackURLLength {
		return errors.New("url too long")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("url is not valid")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
