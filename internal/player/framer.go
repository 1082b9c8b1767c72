/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import "encoding/binary"

const (
	// SampleRate is the fixed decode rate of the transcoder output.
	SampleRate = 48000

	// Channels is the fixed channel count of the transcoder output.
	Channels = 2

	// FrameSamples is the number of sample pairs in one 20 ms frame.
	FrameSamples = SampleRate / 50

	// FrameBytes is the wire size of one frame of interleaved s16le stereo.
	FrameBytes = FrameSamples * Channels * 2
)

// framer reassembles the transcoder's arbitrary-size chunks into exact
// 20 ms frames and applies the user volume. Mutated only on the control
// goroutine; the accumulation buffer is discarded on every new decode
// session so stale partial frames never leak across sources.
type framer struct {
	buf    []byte
	volume int
	emit   func([]byte)
}

func newFramer(volume int, emit func([]byte)) *framer {
	return &framer{volume: volume, emit: emit}
}

// reset drops any buffered partial frame.
func (f *framer) reset() {
	f.buf = f.buf[:0]
}

// setVolume clamps v to [0,100] and returns the applied value. Takes effect
// on the next emitted frame.
func (f *framer) setVolume(v int) int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	f.volume = v
	return v
}

// push appends a chunk and emits every completed frame exactly once.
// Frames never span chunk boundaries arbitrarily; the remainder stays
// buffered for the next chunk.
func (f *framer) push(chunk []byte) {
	f.buf = append(f.buf, chunk...)

	for len(f.buf) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, f.buf[:FrameBytes])
		f.buf = f.buf[FrameBytes:]

		applyGain(frame, f.volume)
		f.emit(frame)
	}
}

// applyGain scales every 16-bit sample by volume/100, clamping to the
// signed range. Volume 100 is a no-op fast path.
func applyGain(frame []byte, volume int) {
	if volume == 100 {
		return
	}

	for i := 0; i+1 < len(frame); i += 2 {
		sample := int32(int16(binary.LittleEndian.Uint16(frame[i:])))
		scaled := sample * int32(volume) / 100
		if scaled > 32767 {
			scaled = 32767
		}
		if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(scaled)))
	}
}
