/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// QueueEntry is one user-submitted track awaiting playback. Owned by the
// queue until dequeued, then by the controller for the duration of playback.
type QueueEntry struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	AddedBy string `json:"added_by"`
}

// queue is the FIFO of user-submitted tracks. It enforces no size cap; the
// API layer bounds it before calling enqueue. Mutated only on the control
// goroutine.
type queue struct {
	entries []QueueEntry
	nextID  uint64
}

// enqueue appends a track, assigning a fresh monotonic id. An empty title is
// replaced with a guess derived from the URL's filename.
func (q *queue) enqueue(rawURL, title, addedBy string) QueueEntry {
	q.nextID++
	if title == "" {
		title = titleFromURL(rawURL)
	}

	entry := QueueEntry{
		ID:      strconv.FormatUint(q.nextID, 10),
		URL:     rawURL,
		Title:   title,
		AddedBy: addedBy,
	}
	q.entries = append(q.entries, entry)
	return entry
}

// remove deletes the entry with the given id, reporting whether it existed.
func (q *queue) remove(id string) bool {
	for i, entry := range q.entries {
		if entry.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// dequeueNext pops the head of the queue, or nil when empty.
func (q *queue) dequeueNext() *QueueEntry {
	if len(q.entries) == 0 {
		return nil
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return &entry
}

func (q *queue) len() int {
	return len(q.entries)
}

// snapshot returns a copy of the pending entries in playback order.
func (q *queue) snapshot() []QueueEntry {
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// titleFromURL guesses a display title from the last path segment of a URL.
func titleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return rawURL
	}

	base := path.Base(parsed.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ReplaceAll(base, "_", " ")
	if base == "" || base == "." {
		return rawURL
	}
	return base
}
