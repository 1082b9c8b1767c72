/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
	"github.com/friendsincode/bragi_dj/internal/station"
)

type fakeDecoder struct {
	mu     sync.Mutex
	starts []string
	live   bool
	paused bool
}

func (d *fakeDecoder) start(_ context.Context, _ uint64, url string, _ chan<- message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts = append(d.starts, url)
	d.live = true
	d.paused = false
	return nil
}

func (d *fakeDecoder) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = false
	d.paused = false
}

func (d *fakeDecoder) clear() {
	d.stop()
}

func (d *fakeDecoder) pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	return nil
}

func (d *fakeDecoder) resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	return nil
}

func (d *fakeDecoder) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *fakeDecoder) startedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.starts...)
}

type discardSink struct{}

func (discardSink) WriteFrame([]byte) {}

func newTestController(t *testing.T) (*Controller, *fakeDecoder) {
	t.Helper()

	cat, err := station.Load("", "groove-salad")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	c := New(cat, discardSink{}, nil, events.NewBus(), zerolog.Nop(), Options{FFmpegBin: "ffmpeg", Volume: 100})
	fd := &fakeDecoder{}
	c.tc = fd
	c.meta = nil

	c.Start()
	t.Cleanup(c.Close)

	return c, fd
}

func mustState(t *testing.T, c *Controller) PlayerState {
	t.Helper()
	st, err := c.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return st
}

// currentGen reads the loop-owned generation from the control goroutine.
func currentGen(t *testing.T, c *Controller) uint64 {
	t.Helper()
	var gen uint64
	if err := c.do(func() { gen = c.gen }); err != nil {
		t.Fatalf("read generation: %v", err)
	}
	return gen
}

// deliverExit posts a decode exit for gen and waits until the loop has
// handled it. Commands and exit messages share one ordered inbox, so the
// follow-up no-op command cannot complete before the exit.
func deliverExit(t *testing.T, c *Controller, gen uint64) {
	t.Helper()
	c.inbox <- exitMsg{gen: gen}
	if err := c.do(func() {}); err != nil {
		t.Fatalf("flush inbox: %v", err)
	}
}

func TestStartPlaysDefaultStation(t *testing.T) {
	c, fd := newTestController(t)

	st := mustState(t, c)
	if st.Mode != ModeRadio {
		t.Fatalf("mode = %s, want radio", st.Mode)
	}
	if st.CurrentStation == nil || st.CurrentStation.ID != "groove-salad" {
		t.Errorf("current station = %+v, want groove-salad", st.CurrentStation)
	}
	if st.NowPlaying != st.CurrentStation.Name {
		t.Errorf("now playing = %q, want station name %q", st.NowPlaying, st.CurrentStation.Name)
	}

	urls := fd.startedURLs()
	if len(urls) != 1 || urls[0] != st.CurrentStation.URL {
		t.Errorf("decoder started with %v, want [%s]", urls, st.CurrentStation.URL)
	}
}

func TestEnqueueSwitchesToQueueMode(t *testing.T) {
	c, fd := newTestController(t)

	entry, err := c.Enqueue("https://cdn.example.com/first.mp3", "First", "alice")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	st := mustState(t, c)
	if st.Mode != ModeQueue {
		t.Fatalf("mode = %s after enqueue from radio, want queue", st.Mode)
	}
	if st.CurrentStation != nil {
		t.Error("current station set in queue mode")
	}
	if st.NowPlaying != entry.Title {
		t.Errorf("now playing = %q, want %q", st.NowPlaying, entry.Title)
	}
	if len(st.Queue) != 0 {
		t.Errorf("queue holds %d entries while the only track plays, want 0", len(st.Queue))
	}

	urls := fd.startedURLs()
	if urls[len(urls)-1] != entry.URL {
		t.Errorf("decoder playing %s, want %s", urls[len(urls)-1], entry.URL)
	}

	// Further enqueues accumulate without interrupting playback.
	second, _ := c.Enqueue("https://cdn.example.com/second.mp3", "Second", "bob")
	st = mustState(t, c)
	if len(st.Queue) != 1 || st.Queue[0].ID != second.ID {
		t.Errorf("queue = %+v, want [%s]", st.Queue, second.ID)
	}
	if st.NowPlaying != entry.Title {
		t.Errorf("second enqueue changed now playing to %q", st.NowPlaying)
	}
}

func TestTrackEndAdvancesThenFallsBackToRadio(t *testing.T) {
	c, fd := newTestController(t)

	first, _ := c.Enqueue("https://cdn.example.com/a.mp3", "A", "")
	second, _ := c.Enqueue("https://cdn.example.com/b.mp3", "B", "")
	_ = first

	deliverExit(t, c, currentGen(t, c))

	st := mustState(t, c)
	if st.Mode != ModeQueue || st.NowPlaying != second.Title {
		t.Fatalf("after first exit: mode=%s now=%q, want queue/%q", st.Mode, st.NowPlaying, second.Title)
	}

	deliverExit(t, c, currentGen(t, c))

	st = mustState(t, c)
	if st.Mode != ModeRadio {
		t.Fatalf("mode = %s after queue drained, want radio", st.Mode)
	}
	if st.CurrentStation == nil || st.CurrentStation.ID != "groove-salad" {
		t.Errorf("fell back to %+v, want groove-salad", st.CurrentStation)
	}

	urls := fd.startedURLs()
	if urls[len(urls)-1] != st.CurrentStation.URL {
		t.Errorf("decoder playing %s after fallback, want %s", urls[len(urls)-1], st.CurrentStation.URL)
	}
}

func TestPendingStationHonoredOnFallback(t *testing.T) {
	c, _ := newTestController(t)

	_, _ = c.Enqueue("https://cdn.example.com/a.mp3", "A", "")

	if err := c.SetStation("drone-zone"); err != nil {
		t.Fatalf("set station in queue mode: %v", err)
	}
	// Queue playback is not interrupted by the station change.
	if st := mustState(t, c); st.Mode != ModeQueue {
		t.Fatalf("mode = %s after station change during queue, want queue", st.Mode)
	}

	deliverExit(t, c, currentGen(t, c))

	st := mustState(t, c)
	if st.Mode != ModeRadio {
		t.Fatalf("mode = %s, want radio", st.Mode)
	}
	if st.CurrentStation == nil || st.CurrentStation.ID != "drone-zone" {
		t.Errorf("resumed on %+v, want pending drone-zone", st.CurrentStation)
	}
}

func TestStaleExitIgnored(t *testing.T) {
	c, fd := newTestController(t)

	stale := currentGen(t, c)
	if err := c.SetStation("nightride"); err != nil {
		t.Fatalf("set station: %v", err)
	}
	before := len(fd.startedURLs())

	deliverExit(t, c, stale)

	if after := len(fd.startedURLs()); after != before {
		t.Errorf("stale exit triggered %d new decoder starts", after-before)
	}
	if st := mustState(t, c); st.CurrentStation == nil || st.CurrentStation.ID != "nightride" {
		t.Errorf("station = %+v after stale exit, want nightride", st.CurrentStation)
	}
}

func TestSkipOutsideQueueMode(t *testing.T) {
	c, _ := newTestController(t)

	if err := c.Skip(); err != ErrNotInQueueMode {
		t.Errorf("Skip in radio mode = %v, want ErrNotInQueueMode", err)
	}
}

func TestSkipAdvancesQueue(t *testing.T) {
	c, _ := newTestController(t)

	_, _ = c.Enqueue("https://cdn.example.com/a.mp3", "A", "")
	second, _ := c.Enqueue("https://cdn.example.com/b.mp3", "B", "")

	if err := c.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}

	st := mustState(t, c)
	if st.Mode != ModeQueue || st.NowPlaying != second.Title {
		t.Errorf("after skip: mode=%s now=%q, want queue/%q", st.Mode, st.NowPlaying, second.Title)
	}
}

func TestSetStationUnknown(t *testing.T) {
	c, _ := newTestController(t)

	if err := c.SetStation("does-not-exist"); err != ErrUnknownStation {
		t.Errorf("SetStation(unknown) = %v, want ErrUnknownStation", err)
	}
}

func TestSetStationRestartsRadioSession(t *testing.T) {
	c, fd := newTestController(t)

	if err := c.SetStation("dance-wave"); err != nil {
		t.Fatalf("set station: %v", err)
	}

	st := mustState(t, c)
	if st.CurrentStation == nil || st.CurrentStation.ID != "dance-wave" {
		t.Fatalf("station = %+v, want dance-wave", st.CurrentStation)
	}

	urls := fd.startedURLs()
	if len(urls) != 2 || urls[1] != st.CurrentStation.URL {
		t.Errorf("decoder starts = %v, want second start on %s", urls, st.CurrentStation.URL)
	}
}

func TestTogglePause(t *testing.T) {
	c, fd := newTestController(t)

	if paused := c.TogglePause(); !paused {
		t.Fatal("first toggle did not pause")
	}
	fd.mu.Lock()
	suspended := fd.paused
	fd.mu.Unlock()
	if !suspended {
		t.Error("decode process not suspended")
	}

	if paused := c.TogglePause(); paused {
		t.Fatal("second toggle did not resume")
	}
}

func TestPauseClearedOnNewSession(t *testing.T) {
	c, _ := newTestController(t)

	c.TogglePause()
	if err := c.SetStation("nightride"); err != nil {
		t.Fatalf("set station: %v", err)
	}

	if st := mustState(t, c); st.Paused {
		t.Error("paused flag survived a session restart")
	}
}

func TestSetVolumeClampsAndReports(t *testing.T) {
	c, _ := newTestController(t)

	if got := c.SetVolume(250); got != 100 {
		t.Errorf("SetVolume(250) = %d, want 100", got)
	}
	if got := c.SetVolume(-10); got != 0 {
		t.Errorf("SetVolume(-10) = %d, want 0", got)
	}
	if st := mustState(t, c); st.Volume != 0 {
		t.Errorf("state volume = %d, want 0", st.Volume)
	}
}

func TestStateAfterCloseReturnsError(t *testing.T) {
	c, _ := newTestController(t)

	c.Close()

	if _, err := c.State(); err != ErrShuttingDown {
		t.Errorf("State after close = %v, want ErrShuttingDown", err)
	}
}

func TestRemoveMissingEntry(t *testing.T) {
	c, _ := newTestController(t)

	if c.Remove("42") {
		t.Error("Remove of unknown id reported success")
	}
}

func TestChunksFlowToSink(t *testing.T) {
	cat, err := station.Load("", "")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	var mu sync.Mutex
	var frames int
	sink := frameCounter{mu: &mu, n: &frames}

	c := New(cat, sink, nil, events.NewBus(), zerolog.Nop(), Options{FFmpegBin: "ffmpeg", Volume: 100})
	fd := &fakeDecoder{}
	c.tc = fd
	c.meta = nil
	c.Start()
	defer c.Close()

	gen := currentGen(t, c)
	c.inbox <- chunkMsg{gen: gen, data: make([]byte, FrameBytes*2)}
	c.inbox <- chunkMsg{gen: gen - 1, data: make([]byte, FrameBytes)} // stale, dropped
	if err := c.do(func() {}); err != nil {
		t.Fatalf("flush inbox: %v", err)
	}

	mu.Lock()
	got := frames
	mu.Unlock()
	if got != 2 {
		t.Errorf("sink received %d frames, want 2", got)
	}
}

type frameCounter struct {
	mu *sync.Mutex
	n  *int
}

func (f frameCounter) WriteFrame([]byte) {
	f.mu.Lock()
	*f.n++
	f.mu.Unlock()
}
