/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/bragi_dj/internal/events"
)

// eventFrame is one event pushed over the websocket feed.
type eventFrame struct {
	Type string         `json:"type"`
	Data events.Payload `json:"data"`
}

// handleEvents streams every player event to the client until it goes away.
// Slow clients lose events rather than stalling the player.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		a.logger.Debug().Bool("ignored", true).Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	out := make(chan eventFrame, 64)
	done := make(chan struct{})
	defer close(done)

	subs := make(map[events.EventType]events.Subscriber, len(events.All))
	for _, t := range events.All {
		sub := a.bus.Subscribe(t)
		subs[t] = sub

		go func(t events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case out <- eventFrame{Type: string(t), Data: payload}:
				case <-done:
					return
				}
			}
		}(t, sub)
	}
	defer func() {
		for t, sub := range subs {
			a.bus.Unsubscribe(t, sub)
		}
	}()

	// Clients see the current state immediately, then live updates.
	snapshot, err := a.player.State()
	if err != nil {
		return
	}
	if err := wsjson.Write(ctx, conn, eventFrame{
		Type: "snapshot",
		Data: events.Payload{"player": snapshot},
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return
			}
		}
	}
}
