/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station holds the static catalog of ambient radio sources.
package station

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RadioStation describes one named streaming source. Immutable after load.
type RadioStation struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Genre string `yaml:"genre" json:"genre"`
	URL   string `yaml:"url" json:"url"`
}

// Catalog is the set of stations available to the player.
type Catalog struct {
	stations []RadioStation
	byID     map[string]RadioStation
	def      string
}

// defaults apply when no catalog file is configured.
var defaults = []RadioStation{
	{ID: "groove-salad", Name: "Groove Salad", Genre: "ambient", URL: "https://ice2.somafm.com/groovesalad-128-mp3"},
	{ID: "drone-zone", Name: "Drone Zone", Genre: "ambient", URL: "https://ice2.somafm.com/dronezone-128-mp3"},
	{ID: "nightride", Name: "Nightride FM", Genre: "synthwave", URL: "https://stream.nightride.fm/nightride.mp3"},
	{ID: "dance-wave", Name: "Dance Wave", Genre: "dance", URL: "https://dancewave.online/dance.mp3"},
}

type catalogFile struct {
	Stations []RadioStation `yaml:"stations"`
	Default  string         `yaml:"default"`
}

// Load reads the catalog from a YAML file; an empty path yields the built-in
// catalog. defaultID overrides the file's default when non-empty.
func Load(path, defaultID string) (*Catalog, error) {
	stations := defaults
	fileDefault := ""

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stations file: %w", err)
		}
		var parsed catalogFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse stations file: %w", err)
		}
		if len(parsed.Stations) == 0 {
			return nil, fmt.Errorf("stations file %s lists no stations", path)
		}
		stations = parsed.Stations
		fileDefault = parsed.Default
	}

	byID := make(map[string]RadioStation, len(stations))
	for _, st := range stations {
		if st.ID == "" || st.URL == "" {
			return nil, fmt.Errorf("station %q missing id or url", st.Name)
		}
		if _, dup := byID[st.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", st.ID)
		}
		byID[st.ID] = st
	}

	def := stations[0].ID
	if fileDefault != "" {
		def = fileDefault
	}
	if defaultID != "" {
		def = defaultID
	}
	if _, ok := byID[def]; !ok {
		return nil, fmt.Errorf("default station %q not in catalog", def)
	}

	return &Catalog{stations: stations, byID: byID, def: def}, nil
}

// Get returns the station with the given id.
func (c *Catalog) Get(id string) (RadioStation, bool) {
	st, ok := c.byID[id]
	return st, ok
}

// List returns all stations in catalog order.
func (c *Catalog) List() []RadioStation {
	out := make([]RadioStation, len(c.stations))
	copy(out, c.stations)
	return out
}

// Default returns the startup station.
func (c *Catalog) Default() RadioStation {
	return c.byID[c.def]
}
