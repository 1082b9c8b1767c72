/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stations.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadBuiltinDefaults(t *testing.T) {
	cat, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cat.List()) == 0 {
		t.Fatal("built-in catalog is empty")
	}
	if cat.Default().ID != cat.List()[0].ID {
		t.Errorf("default = %s, want first station %s", cat.Default().ID, cat.List()[0].ID)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeCatalog(t, `
stations:
  - id: jazz
    name: Jazz 24/7
    genre: jazz
    url: https://radio.example.com/jazz
  - id: lofi
    name: Lofi Beats
    genre: lofi
    url: https://radio.example.com/lofi
default: lofi
`)

	cat, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cat.Default().ID != "lofi" {
		t.Errorf("default = %s, want lofi", cat.Default().ID)
	}
	if _, ok := cat.Get("jazz"); !ok {
		t.Error("jazz missing from catalog")
	}
	if _, ok := cat.Get("groove-salad"); ok {
		t.Error("built-in station leaked into file-based catalog")
	}
}

func TestLoadDefaultOverride(t *testing.T) {
	cat, err := Load("", "nightride")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cat.Default().ID != "nightride" {
		t.Errorf("default = %s, want nightride", cat.Default().ID)
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name    string
		content string
		def     string
	}{
		{"duplicate ids", `
stations:
  - {id: a, name: A, url: https://x/a}
  - {id: a, name: B, url: https://x/b}
`, ""},
		{"missing url", `
stations:
  - {id: a, name: A}
`, ""},
		{"empty", `stations: []`, ""},
		{"unknown default", `
stations:
  - {id: a, name: A, url: https://x/a}
default: b
`, ""},
		{"unknown default override", `
stations:
  - {id: a, name: A, url: https://x/a}
`, "zzz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCatalog(t, tc.content)
			if _, err := Load(path, tc.def); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/stations.yaml", ""); err == nil {
		t.Error("expected error for missing file")
	}
}
