/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
)

// readChunkSize is how much transcoder output is read per syscall. Frames
// are cut downstream by the framer, so the size here only affects latency.
const readChunkSize = 4096

// transcoder owns the single live ffmpeg subprocess decoding the current
// source into raw s16le stereo PCM on stdout. All methods are called from
// the control goroutine; the only concurrent activity is the reader
// goroutine, which communicates exclusively through generation-tagged
// messages on the controller inbox.
type transcoder struct {
	bin    string
	logger zerolog.Logger

	cmd    *exec.Cmd
	paused bool
}

func newTranscoder(bin string, logger zerolog.Logger) *transcoder {
	return &transcoder{
		bin:    bin,
		logger: logger.With().Str("component", "transcoder").Logger(),
	}
}

// start spawns a decode process for url under the given generation. Any
// previously running process must have been stopped by the caller after
// bumping the generation, so its late messages are discarded upstream.
func (t *transcoder) start(ctx context.Context, gen uint64, url string, sink chan<- message) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-i", url,
		"-vn", "-ac", fmt.Sprint(Channels), "-ar", fmt.Sprint(SampleRate),
		"-f", "s16le", "pipe:1",
	}

	cmd := exec.Command(t.bin, args...)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.bin, err)
	}

	t.cmd = cmd
	t.paused = false

	t.logger.Debug().Uint64("gen", gen).Int("pid", cmd.Process.Pid).Str("url", url).Msg("decode process started")

	go t.read(ctx, gen, cmd, stdout, sink)

	return nil
}

// read streams stdout into the controller inbox until the process exits,
// then reports the exit. Chunks are delivered strictly in arrival order.
func (t *transcoder) read(ctx context.Context, gen uint64, cmd *exec.Cmd, stdout io.ReadCloser, sink chan<- message) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case sink <- chunkMsg{gen: gen, data: data}:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
		if err != nil {
			break
		}
	}

	werr := cmd.Wait()
	select {
	case sink <- exitMsg{gen: gen, err: werr}:
	case <-ctx.Done():
	}
}

// stop terminates the live process. The caller bumps the generation first,
// so the eventual exit message is ignored by the loop.
func (t *transcoder) stop() {
	if t.cmd == nil || t.cmd.Process == nil {
		return
	}
	if t.paused {
		// A stopped process cannot handle SIGKILL delivery ordering issues;
		// resume before killing so Wait returns promptly.
		_ = t.cmd.Process.Signal(syscall.SIGCONT)
		t.paused = false
	}
	_ = t.cmd.Process.Kill()
	t.cmd = nil
}

// pause suspends the subprocess at the OS level, keeping the decode session
// (and its generation) alive across the pause.
func (t *transcoder) pause() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return fmt.Errorf("no live decode process")
	}
	if err := t.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("suspend decode process: %w", err)
	}
	t.paused = true
	return nil
}

// resume continues a suspended subprocess.
func (t *transcoder) resume() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return fmt.Errorf("no live decode process")
	}
	if err := t.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("resume decode process: %w", err)
	}
	t.paused = false
	return nil
}

// clear forgets a process that already exited on its own. Unlike stop it
// sends no signal; the reader goroutine already reaped it via Wait.
func (t *transcoder) clear() {
	t.cmd = nil
	t.paused = false
}

// running reports whether a decode process is live (possibly suspended).
func (t *transcoder) running() bool {
	return t.cmd != nil
}
