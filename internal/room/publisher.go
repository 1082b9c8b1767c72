/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/bragi_dj/internal/events"
	"github.com/friendsincode/bragi_dj/internal/player"
	"github.com/friendsincode/bragi_dj/internal/telemetry"
)

const (
	// mimeTypeL16 is raw 16-bit PCM; the room mixer consumes it directly
	// without an opus hop on the publisher side.
	mimeTypeL16    = "audio/L16"
	payloadTypeL16 = 102

	connectTimeout    = 15 * time.Second
	startupAttempts   = 5
	startupBackoffCap = 10 * time.Second
	backgroundRetry   = 15 * time.Second
)

// Config holds the room connection settings.
type Config struct {
	ServerURL string
	TokenURL  string
	APISecret string
	RoomName  string
	Identity  string
	Secret    string
	E2EE      bool
}

// signalMessage is the websocket signaling envelope shared with the room
// server.
type signalMessage struct {
	Type      string                     `json:"type"`
	Room      string                     `json:"room,omitempty"`
	Token     string                     `json:"token,omitempty"`
	E2EE      bool                       `json:"e2ee,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Publisher joins the media room as a synthetic participant and publishes
// the player's PCM frames on a single audio track. Frames arriving while
// the room is unreachable are dropped, never buffered, so reconnects resume
// live rather than replaying a backlog.
type Publisher struct {
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger
	tokens tokenSource
	block  cipher.Block

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Retry policy seams. NewPublisher installs the real join attempt and
	// the default timings; tests substitute these.
	connectFn     func() (<-chan struct{}, error)
	backoff       func(attempt int) time.Duration
	retryInterval time.Duration

	mu        sync.RWMutex
	pc        *webrtc.PeerConnection
	ws        *websocket.Conn
	track     *webrtc.TrackLocalStaticRTP
	connected bool

	// RTP continuity across reconnects. Touched only by the frame producer.
	seq  uint16
	ts   uint32
	ssrc uint32
}

// NewPublisher validates the config, derives the frame key when end-to-end
// encryption is on, and picks a credential source. Start must be called to
// begin connecting.
func NewPublisher(cfg Config, bus *events.Bus, logger zerolog.Logger) (*Publisher, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("room server url not configured")
	}
	if cfg.Identity == "" {
		cfg.Identity = "bragi-dj"
	}

	var tokens tokenSource
	switch {
	case cfg.TokenURL != "":
		tokens = newRemoteTokenSource(cfg.TokenURL, cfg.APISecret, cfg.RoomName, cfg.Identity)
	case cfg.APISecret != "":
		tokens = newLocalTokenSource([]byte(cfg.APISecret), cfg.RoomName, cfg.Identity)
	default:
		return nil, errors.New("neither room token url nor api secret configured")
	}

	var block cipher.Block
	if cfg.E2EE {
		key, err := DeriveKey(cfg.RoomName, cfg.Secret, cfg.APISecret)
		if err != nil {
			return nil, err
		}
		block, err = aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("init frame cipher: %w", err)
		}
	}

	var ssrcBytes [4]byte
	if _, err := rand.Read(ssrcBytes[:]); err != nil {
		return nil, fmt.Errorf("generate ssrc: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{
		cfg:           cfg,
		bus:           bus,
		logger:        logger.With().Str("component", "room").Str("room", cfg.RoomName).Logger(),
		tokens:        tokens,
		block:         block,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		backoff:       startupBackoff,
		retryInterval: backgroundRetry,
		ssrc:          binary.BigEndian.Uint32(ssrcBytes[:]),
	}
	p.connectFn = p.connect
	return p, nil
}

// Start launches the connection supervisor.
func (p *Publisher) Start() {
	go p.supervise()
}

// Close tears down the room session and stops reconnecting.
func (p *Publisher) Close() {
	p.cancel()
	<-p.done
	p.teardown()
}

// supervise owns the connection lifecycle: a bounded startup phase with
// linear backoff, then an indefinite low-frequency retry loop that also
// handles reconnects after a drop.
func (p *Publisher) supervise() {
	defer close(p.done)

	lost, ok := p.startupConnect()
	for {
		if ok {
			select {
			case <-p.ctx.Done():
				return
			case <-lost:
				p.teardown()
				p.logger.Warn().Msg("room session lost")
			}
		}

		lost, ok = p.backgroundConnect()
		if !ok {
			return
		}
	}
}

// startupConnect makes the bounded initial attempts. Failure here is not
// fatal; the caller falls through to the background loop.
func (p *Publisher) startupConnect() (<-chan struct{}, bool) {
	for attempt := 1; attempt <= startupAttempts; attempt++ {
		lost, err := p.connectFn()
		if err == nil {
			return lost, true
		}
		p.logger.Warn().Err(err).Int("attempt", attempt).Msg("room connection failed")

		select {
		case <-p.ctx.Done():
			return nil, false
		case <-time.After(p.backoff(attempt)):
		}
	}

	p.logger.Error().Int("attempts", startupAttempts).Msg("room unreachable at startup, retrying in background")
	return nil, false
}

// backgroundConnect retries indefinitely at a fixed interval. Returns false
// only on shutdown.
func (p *Publisher) backgroundConnect() (<-chan struct{}, bool) {
	ticker := time.NewTicker(p.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return nil, false
		case <-ticker.C:
			lost, err := p.connectFn()
			if err == nil {
				return lost, true
			}
			p.logger.Warn().Err(err).Msg("room reconnection failed")
		}
	}
}

// startupBackoff grows linearly with the attempt number, capped.
func startupBackoff(attempt int) time.Duration {
	wait := time.Duration(attempt) * 2 * time.Second
	if wait > startupBackoffCap {
		wait = startupBackoffCap
	}
	return wait
}

// connect runs one full join: fetch a credential, negotiate the peer
// connection over the signaling websocket, and wait for the media path to
// come up. The returned channel closes when the session is later lost.
func (p *Publisher) connect() (<-chan struct{}, error) {
	ctx, cancel := context.WithTimeout(p.ctx, connectTimeout)
	defer cancel()

	lost := make(chan struct{})
	var lostOnce sync.Once
	closeLost := func() { lostOnce.Do(func() { close(lost) }) }

	token, err := p.tokens.Token(ctx)
	if err != nil {
		telemetry.RoomConnectAttempts.WithLabelValues("token_error").Inc()
		return nil, fmt.Errorf("fetch join token: %w", err)
	}

	pc, track, err := p.newPeerConnection()
	if err != nil {
		telemetry.RoomConnectAttempts.WithLabelValues("setup_error").Inc()
		return nil, err
	}

	connected := make(chan struct{})
	var connectedOnce sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			connectedOnce.Do(func() { close(connected) })
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			closeLost()
		}
	})

	ws, _, err := websocket.Dial(ctx, p.cfg.ServerURL, nil)
	if err != nil {
		_ = pc.Close()
		telemetry.RoomConnectAttempts.WithLabelValues("dial_error").Inc()
		return nil, fmt.Errorf("dial room server: %w", err)
	}

	join := signalMessage{Type: "join", Room: p.cfg.RoomName, Token: token, E2EE: p.cfg.E2EE}
	if err := wsjson.Write(ctx, ws, join); err != nil {
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("signal_error").Inc()
		return nil, fmt.Errorf("send join: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("signal_error").Inc()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("signal_error").Inc()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	// Non-trickle on our side: ship one complete offer.
	select {
	case <-gathered:
	case <-ctx.Done():
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("timeout").Inc()
		return nil, ctx.Err()
	}

	if err := wsjson.Write(ctx, ws, signalMessage{Type: "offer", SDP: pc.LocalDescription()}); err != nil {
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("signal_error").Inc()
		return nil, fmt.Errorf("send offer: %w", err)
	}

	go p.readSignals(ws, pc, closeLost)

	select {
	case <-connected:
	case <-lost:
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("failed").Inc()
		return nil, errors.New("connection failed during negotiation")
	case <-ctx.Done():
		p.abort(pc, ws)
		telemetry.RoomConnectAttempts.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("negotiation timed out: %w", ctx.Err())
	}

	p.mu.Lock()
	p.pc, p.ws, p.track = pc, ws, track
	p.connected = true
	p.mu.Unlock()

	telemetry.RoomConnectAttempts.WithLabelValues("connected").Inc()
	telemetry.RoomConnected.Set(1)
	p.bus.Publish(events.EventRoomConnected, events.Payload{"room": p.cfg.RoomName, "identity": p.cfg.Identity})
	p.logger.Info().Str("identity", p.cfg.Identity).Msg("joined media room")

	return lost, nil
}

// newPeerConnection builds an API with the raw PCM codec registered and one
// outbound audio track.
func (p *Publisher) newPeerConnection() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticRTP, error) {
	codec := webrtc.RTPCodecCapability{
		MimeType:  mimeTypeL16,
		ClockRate: player.SampleRate,
		Channels:  player.Channels,
	}

	media := &webrtc.MediaEngine{}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: codec,
		PayloadType:        payloadTypeL16,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("register codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, registry); err != nil {
		return nil, nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(codec, "audio", p.cfg.Identity)
	if err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("create track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("add track: %w", err)
	}

	return pc, track, nil
}

// readSignals consumes the signaling stream for the life of the session.
func (p *Publisher) readSignals(ws *websocket.Conn, pc *webrtc.PeerConnection, closeLost func()) {
	for {
		var msg signalMessage
		if err := wsjson.Read(p.ctx, ws, &msg); err != nil {
			closeLost()
			return
		}

		switch msg.Type {
		case "answer":
			if msg.SDP == nil {
				continue
			}
			if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
				p.logger.Error().Err(err).Msg("apply answer failed")
				closeLost()
				return
			}
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := pc.AddICECandidate(*msg.Candidate); err != nil {
				p.logger.Debug().Bool("ignored", true).Err(err).Msg("add remote candidate failed")
			}
		case "error":
			p.logger.Error().Str("reason", msg.Error).Msg("room server rejected session")
			closeLost()
			return
		}
	}
}

func (p *Publisher) abort(pc *webrtc.PeerConnection, ws *websocket.Conn) {
	_ = ws.Close(websocket.StatusNormalClosure, "")
	_ = pc.Close()
}

// teardown releases the current session if any and flips the published
// state. Safe to call repeatedly.
func (p *Publisher) teardown() {
	p.mu.Lock()
	pc, ws := p.pc, p.ws
	wasConnected := p.connected
	p.pc, p.ws, p.track = nil, nil, nil
	p.connected = false
	p.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "leaving")
	}
	if pc != nil {
		_ = pc.Close()
	}
	if wasConnected {
		telemetry.RoomConnected.Set(0)
		p.bus.Publish(events.EventRoomDisconnected, events.Payload{"room": p.cfg.RoomName})
	}
}

// WriteFrame publishes one 20ms PCM frame as a single RTP packet. Called by
// the player's frame producer; drops the frame when no session is up.
func (p *Publisher) WriteFrame(frame []byte) {
	p.mu.RLock()
	track := p.track
	up := p.connected
	p.mu.RUnlock()

	if !up || track == nil {
		telemetry.FramesDropped.Inc()
		return
	}

	p.seq++
	p.ts += player.FrameSamples

	payload := p.encodePayload(frame)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypeL16,
			SequenceNumber: p.seq,
			Timestamp:      p.ts,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	if err := track.WriteRTP(pkt); err != nil {
		telemetry.FramesDropped.Inc()
		p.logger.Debug().Bool("ignored", true).Err(err).Msg("frame write failed")
		return
	}
	telemetry.FramesPublished.Inc()
}

// encodePayload converts the little-endian PCM frame to network byte order
// and applies the frame cipher when end-to-end encryption is on. The IV is
// reconstructible by receivers from the RTP header alone.
func (p *Publisher) encodePayload(frame []byte) []byte {
	payload := make([]byte, len(frame))
	for i := 0; i+1 < len(frame); i += 2 {
		payload[i], payload[i+1] = frame[i+1], frame[i]
	}

	if p.block != nil {
		var iv [aes.BlockSize]byte
		binary.BigEndian.PutUint32(iv[0:], p.ssrc)
		binary.BigEndian.PutUint32(iv[4:], p.ts)
		binary.BigEndian.PutUint16(iv[8:], p.seq)
		cipher.NewCTR(p.block, iv[:]).XORKeyStream(payload, payload)
	}

	return payload
}
