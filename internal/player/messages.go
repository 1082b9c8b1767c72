/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

// message is anything delivered to the control goroutine's inbox. Messages
// originating from a decode session carry the generation that produced them;
// the loop discards any message whose generation is no longer current, which
// is the sole cancellation primitive for superseded sessions.
type message interface{}

// chunkMsg carries raw PCM bytes read from the transcoder's stdout.
type chunkMsg struct {
	gen  uint64
	data []byte
}

// exitMsg reports that the decode subprocess of a session has exited.
type exitMsg struct {
	gen uint64
	err error
}

// metadataMsg reports a StreamTitle extracted by the ICY poller.
type metadataMsg struct {
	gen   uint64
	title string
}

// restartMsg fires after the radio backoff delay to restart the station.
type restartMsg struct {
	gen uint64
}

// command is a user-driven control operation, serialized onto the control
// goroutine. apply runs with exclusive access to all session state.
type command struct {
	apply func()
	done  chan struct{}
}
