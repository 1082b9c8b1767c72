/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import "testing"

func TestQueueFIFOOrder(t *testing.T) {
	var q queue

	a := q.enqueue("https://cdn.example.com/a.mp3", "Track A", "alice")
	b := q.enqueue("https://cdn.example.com/b.mp3", "Track B", "bob")
	c := q.enqueue("https://cdn.example.com/c.mp3", "Track C", "carol")

	for i, want := range []QueueEntry{a, b, c} {
		got := q.dequeueNext()
		if got == nil {
			t.Fatalf("dequeue %d: got nil, want %q", i, want.Title)
		}
		if got.ID != want.ID {
			t.Errorf("dequeue %d: got id %s, want %s", i, got.ID, want.ID)
		}
	}

	if got := q.dequeueNext(); got != nil {
		t.Errorf("dequeue from empty queue: got %+v, want nil", got)
	}
}

func TestQueueIDsNotReusedAfterRemove(t *testing.T) {
	var q queue

	first := q.enqueue("https://cdn.example.com/a.mp3", "A", "")
	if !q.remove(first.ID) {
		t.Fatalf("remove(%s) = false, want true", first.ID)
	}

	second := q.enqueue("https://cdn.example.com/b.mp3", "B", "")
	if second.ID == first.ID {
		t.Errorf("id %s reused after removal", first.ID)
	}
}

func TestQueueRemoveMissing(t *testing.T) {
	var q queue
	q.enqueue("https://cdn.example.com/a.mp3", "A", "")

	if q.remove("nope") {
		t.Error("remove of unknown id reported success")
	}
	if q.len() != 1 {
		t.Errorf("len = %d after failed remove, want 1", q.len())
	}
}

func TestQueueSnapshotIsCopy(t *testing.T) {
	var q queue
	q.enqueue("https://cdn.example.com/a.mp3", "A", "")

	snap := q.snapshot()
	snap[0].Title = "mutated"

	if q.entries[0].Title != "A" {
		t.Error("snapshot mutation leaked into queue")
	}
}

func TestTitleFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/music/My_Song.mp3", "My Song"},
		{"https://cdn.example.com/music/Late%20Night.flac", "Late Night"},
		{"https://cdn.example.com/stream", "stream"},
		{"https://cdn.example.com/", "https://cdn.example.com/"},
	}

	for _, tc := range cases {
		if got := titleFromURL(tc.url); got != tc.want {
			t.Errorf("titleFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
