/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player implements the ambient radio / request-queue audio player:
// a single supervised decode subprocess, a frame reassembler, ICY metadata
// polling, and the control surface consumed by the HTTP layer. All session
// state is owned by one control goroutine fed by a single-consumer inbox;
// staleness of asynchronous completions is an explicit generation check.
package player

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/events"
	"github.com/friendsincode/bragi_dj/internal/station"
	"github.com/friendsincode/bragi_dj/internal/telemetry"
)

// Mode is the playback source selector.
type Mode string

const (
	ModeRadio Mode = "radio"
	ModeQueue Mode = "queue"
)

// radioRestartBackoff delays restarting a station whose decode process
// exited on its own, so a flaky source does not spin the supervisor.
const radioRestartBackoff = 2500 * time.Millisecond

var (
	// ErrUnknownStation rejects a station id not present in the catalog.
	ErrUnknownStation = errors.New("unknown station")

	// ErrNotInQueueMode rejects skip outside queue mode.
	ErrNotInQueueMode = errors.New("not in queue mode")

	// ErrShuttingDown rejects control operations during shutdown.
	ErrShuttingDown = errors.New("player shutting down")
)

// PlayerState is the read-only snapshot handed to the HTTP layer.
// CurrentStation is non-nil exactly when Mode is radio.
type PlayerState struct {
	Mode           Mode                  `json:"mode"`
	Paused         bool                  `json:"paused"`
	Volume         int                   `json:"volume"`
	NowPlaying     string                `json:"now_playing"`
	CurrentStation *station.RadioStation `json:"current_station,omitempty"`
	Queue          []QueueEntry          `json:"queue"`
}

// FrameSink receives every completed audio frame exactly once.
type FrameSink interface {
	WriteFrame(frame []byte)
}

// History records what the player aired. May be nil.
type History interface {
	RecordStation(ctx context.Context, stationID, name, url string)
	RecordTrack(ctx context.Context, title, url, addedBy string)
}

// Options tunes a Controller.
type Options struct {
	FFmpegBin string
	Volume    int
}

// decoder is the supervised decode subprocess as the control loop sees it.
type decoder interface {
	start(ctx context.Context, gen uint64, url string, sink chan<- message) error
	stop()
	clear()
	pause() error
	resume() error
	running() bool
}

// Controller owns the playback state machine. Constructed once per process;
// no ambient globals.
type Controller struct {
	catalog *station.Catalog
	sink    FrameSink
	history History
	bus     *events.Bus
	logger  zerolog.Logger

	inbox  chan message
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// Session state below is mutated only on the control goroutine.
	gen          uint64
	mode         Mode
	paused       bool
	nowPlaying   string
	current      station.RadioStation
	pending      *station.RadioStation
	currentTrack *QueueEntry
	queue        queue
	framer       *framer
	tc           decoder
	meta         *metadataPoller
	metaCancel   context.CancelFunc
}

// New constructs the controller. Start must be called before use.
func New(catalog *station.Catalog, sink FrameSink, history History, bus *events.Bus, logger zerolog.Logger, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		catalog: catalog,
		sink:    sink,
		history: history,
		bus:     bus,
		logger:  logger.With().Str("component", "player").Logger(),
		inbox:   make(chan message, 64),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		mode:    ModeRadio,
		current: catalog.Default(),
		tc:      newTranscoder(opts.FFmpegBin, logger),
		meta:    newMetadataPoller(logger),
	}
	c.framer = newFramer(opts.Volume, func(frame []byte) {
		c.sink.WriteFrame(frame)
	})

	return c
}

// Start launches the control goroutine and begins playing the default
// station.
func (c *Controller) Start() {
	go c.run()

	_ = c.do(func() {
		c.startStation(c.current, "startup")
	})
}

// Close stops playback and releases the decode process.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

// run is the single consumer of the inbox. Every mutation of session state
// happens here, so no locks guard it.
func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			c.stopMetadata()
			c.tc.stop()
			return

		case msg := <-c.inbox:
			switch m := msg.(type) {
			case command:
				m.apply()
				close(m.done)

			case chunkMsg:
				if m.gen != c.gen {
					continue
				}
				c.framer.push(m.data)

			case exitMsg:
				c.handleExit(m)

			case metadataMsg:
				if m.gen != c.gen || c.mode != ModeRadio {
					continue
				}
				if m.title != c.nowPlaying {
					c.nowPlaying = m.title
					c.publishNowPlaying()
				}

			case restartMsg:
				if m.gen != c.gen || c.mode != ModeRadio {
					continue
				}
				c.startStation(c.current, "radio_retry")
			}
		}
	}
}

// do serializes fn onto the control goroutine and waits for completion.
func (c *Controller) do(fn func()) error {
	cmd := command{apply: fn, done: make(chan struct{})}

	select {
	case c.inbox <- cmd:
	case <-c.done:
		return ErrShuttingDown
	}

	select {
	case <-cmd.done:
		return nil
	case <-c.done:
		return ErrShuttingDown
	}
}

// --- control surface (called from the HTTP layer) ---

// State returns the current read-only snapshot, or ErrShuttingDown once the
// control loop has stopped.
func (c *Controller) State() (PlayerState, error) {
	var st PlayerState
	if err := c.do(func() { st = c.snapshot() }); err != nil {
		return PlayerState{}, err
	}
	return st, nil
}

// Enqueue appends a track. The first enqueue while in radio mode switches
// playback to queue mode and begins the track immediately.
func (c *Controller) Enqueue(url, title, addedBy string) (QueueEntry, error) {
	var entry QueueEntry
	err := c.do(func() {
		entry = c.queue.enqueue(url, title, addedBy)
		c.publishQueueUpdate()

		if c.mode == ModeRadio {
			next := c.queue.dequeueNext()
			c.publishQueueUpdate()
			c.startTrack(*next, "enqueue")
		}
	})
	return entry, err
}

// Remove deletes a pending queue entry. The currently playing track is not
// in the queue and cannot be removed; use Skip.
func (c *Controller) Remove(id string) bool {
	removed := false
	_ = c.do(func() {
		removed = c.queue.remove(id)
		if removed {
			c.publishQueueUpdate()
		}
	})
	return removed
}

// Skip advances to the next queue entry, or back to radio when the queue is
// empty. Only meaningful in queue mode.
func (c *Controller) Skip() error {
	var err error
	derr := c.do(func() {
		if c.mode != ModeQueue {
			err = ErrNotInQueueMode
			return
		}
		c.advanceQueue("skip")
	})
	if derr != nil {
		return derr
	}
	return err
}

// SetStation selects a new radio station. In radio mode the decode session
// restarts immediately; in queue mode the change is recorded and honored
// automatically when the queue drains back to radio.
func (c *Controller) SetStation(id string) error {
	var err error
	derr := c.do(func() {
		st, ok := c.catalog.Get(id)
		if !ok {
			err = ErrUnknownStation
			return
		}
		if c.mode == ModeRadio {
			c.startStation(st, "station_change")
			return
		}
		c.pending = &st
	})
	if derr != nil {
		return derr
	}
	return err
}

// SetVolume clamps v to [0,100] and returns the applied value. Takes effect
// on the next frame; already-produced frames are not replayed.
func (c *Controller) SetVolume(v int) int {
	applied := 0
	_ = c.do(func() {
		applied = c.framer.setVolume(v)
		c.bus.Publish(events.EventVolumeChange, events.Payload{"volume": applied})
	})
	return applied
}

// TogglePause suspends or resumes the live decode session without changing
// mode or generation, returning the new paused flag.
func (c *Controller) TogglePause() bool {
	paused := false
	_ = c.do(func() {
		var err error
		if c.paused {
			err = c.tc.resume()
		} else {
			err = c.tc.pause()
		}
		if err != nil {
			c.logger.Debug().Bool("ignored", true).Err(err).Msg("pause toggle failed")
		} else {
			c.paused = !c.paused
			c.bus.Publish(events.EventPauseToggle, events.Payload{"paused": c.paused})
		}
		paused = c.paused
	})
	return paused
}

// --- session management (control goroutine only) ---

// startSession supersedes the live decode session by bumping the generation
// before terminating the old process, then spawns a new one for url. A
// spawn failure is funneled through the normal exit policy.
func (c *Controller) startSession(url, reason string) {
	c.gen++
	c.stopMetadata()
	c.tc.stop()
	c.framer.reset()
	c.paused = false

	telemetry.DecoderRestarts.WithLabelValues(reason).Inc()

	if err := c.tc.start(c.ctx, c.gen, url, c.inbox); err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("decode process failed to start")
		// Funnel the failure through the normal exit policy, delayed so a
		// persistently failing spawn cannot hot-loop through the queue.
		gen := c.gen
		time.AfterFunc(radioRestartBackoff, func() {
			select {
			case c.inbox <- exitMsg{gen: gen, err: err}:
			case <-c.ctx.Done():
			}
		})
	}
}

func (c *Controller) startStation(st station.RadioStation, reason string) {
	prevMode := c.mode

	c.startSession(st.URL, reason)
	c.mode = ModeRadio
	c.current = st
	c.currentTrack = nil
	c.nowPlaying = st.Name

	if c.tc.running() {
		c.startMetadata(st.URL)
		if c.history != nil {
			c.history.RecordStation(c.ctx, st.ID, st.Name, st.URL)
		}
	}

	c.logger.Info().Str("station", st.ID).Str("reason", reason).Msg("radio session started")

	if prevMode != ModeRadio {
		c.publishModeChange()
	}
	c.publishNowPlaying()
}

func (c *Controller) startTrack(entry QueueEntry, reason string) {
	prevMode := c.mode

	c.startSession(entry.URL, reason)
	c.mode = ModeQueue
	c.currentTrack = &entry
	c.nowPlaying = entry.Title

	if c.tc.running() && c.history != nil {
		c.history.RecordTrack(c.ctx, entry.Title, entry.URL, entry.AddedBy)
	}

	c.logger.Info().Str("track", entry.ID).Str("title", entry.Title).Str("reason", reason).Msg("queue session started")

	if prevMode != ModeQueue {
		c.publishModeChange()
	}
	c.publishNowPlaying()
}

// handleExit applies the exit policy: stale generations are no-ops; a
// current-generation exit advances the queue or schedules a radio restart.
func (c *Controller) handleExit(m exitMsg) {
	if m.gen != c.gen {
		c.logger.Debug().Uint64("gen", m.gen).Uint64("current", c.gen).Msg("stale decode exit discarded")
		return
	}

	c.tc.clear()
	c.logger.Info().Uint64("gen", m.gen).Err(m.err).Msg("decode process exited")

	if c.mode == ModeQueue {
		c.advanceQueue("track_end")
		return
	}

	// Radio sources drop out; try the same station again after a short wait
	// unless something else supersedes the session first.
	gen := c.gen
	time.AfterFunc(radioRestartBackoff, func() {
		select {
		case c.inbox <- restartMsg{gen: gen}:
		case <-c.ctx.Done():
		}
	})
}

// advanceQueue starts the next pending track, or falls back to radio,
// honoring a station change recorded while in queue mode.
func (c *Controller) advanceQueue(reason string) {
	if next := c.queue.dequeueNext(); next != nil {
		c.publishQueueUpdate()
		c.startTrack(*next, reason)
		return
	}

	st := c.current
	if c.pending != nil {
		st = *c.pending
		c.pending = nil
	}
	c.startStation(st, reason)
}

func (c *Controller) startMetadata(url string) {
	if c.meta == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.metaCancel = cancel
	go c.meta.run(ctx, c.gen, url, c.inbox)
}

func (c *Controller) stopMetadata() {
	if c.metaCancel != nil {
		c.metaCancel()
		c.metaCancel = nil
	}
}

func (c *Controller) snapshot() PlayerState {
	st := PlayerState{
		Mode:       c.mode,
		Paused:     c.paused,
		Volume:     c.framer.volume,
		NowPlaying: c.nowPlaying,
		Queue:      c.queue.snapshot(),
	}
	if c.mode == ModeRadio {
		cur := c.current
		st.CurrentStation = &cur
	}
	return st
}

func (c *Controller) publishNowPlaying() {
	payload := events.Payload{"title": c.nowPlaying, "mode": string(c.mode)}
	if c.mode == ModeRadio {
		payload["station"] = c.current.ID
	}
	c.bus.Publish(events.EventNowPlaying, payload)
}

func (c *Controller) publishModeChange() {
	c.bus.Publish(events.EventModeChange, events.Payload{"mode": string(c.mode)})
}

func (c *Controller) publishQueueUpdate() {
	telemetry.QueueLength.Set(float64(c.queue.len()))
	c.bus.Publish(events.EventQueueUpdate, events.Payload{"length": c.queue.len()})
}

// QueueLength reports the number of pending entries.
func (c *Controller) QueueLength() int {
	n := 0
	_ = c.do(func() { n = c.queue.len() })
	return n
}
