/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_dj/internal/logging"
	"github.com/friendsincode/bragi_dj/internal/telemetry"
)

const (
	// metadataPollInterval spaces ICY polls while in radio mode.
	metadataPollInterval = 15 * time.Second

	// metadataPollTimeout is the per-poll watchdog; the request is closed
	// unconditionally once it elapses.
	metadataPollTimeout = 10 * time.Second
)

var streamTitleRe = regexp.MustCompile(`StreamTitle='([^']*)'`)

// metadataPoller extracts the current track title embedded in a live ICY
// audio stream over a dedicated HTTP connection, never touching the audio
// path. Titles are reported as generation-tagged messages; every failure is
// swallowed because metadata is a convenience, not a correctness
// requirement.
type metadataPoller struct {
	client *http.Client
	logger zerolog.Logger
}

func newMetadataPoller(logger zerolog.Logger) *metadataPoller {
	return &metadataPoller{
		client: &http.Client{
			Transport: &http.Transport{DisableCompression: true},
		},
		logger: logger.With().Str("component", "icy-metadata").Logger(),
	}
}

// run polls url on a fixed timer until ctx is cancelled, posting extracted
// titles tagged with gen. The controller cancels ctx together with the
// radio decode session the poller belongs to.
func (p *metadataPoller) run(ctx context.Context, gen uint64, url string, sink chan<- message) {
	ticker := time.NewTicker(metadataPollInterval)
	defer ticker.Stop()

	for {
		title, err := p.pollOnce(ctx, url)
		switch {
		case err != nil:
			telemetry.MetadataPolls.WithLabelValues("error").Inc()
			logging.Ignored(p.logger, err, "icy metadata poll")
		case title == "":
			telemetry.MetadataPolls.WithLabelValues("empty").Inc()
		default:
			telemetry.MetadataPolls.WithLabelValues("title").Inc()
			select {
			case sink <- metadataMsg{gen: gen, title: title}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce opens one metadata request against url and reads until the first
// StreamTitle is found, the watchdog fires, or the stream errors. A missing
// or invalid icy-metaint header abandons the cycle without error.
func (p *metadataPoller) pollOnce(ctx context.Context, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, metadataPollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "1")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	metaInt, err := strconv.Atoi(resp.Header.Get("icy-metaint"))
	if err != nil || metaInt <= 0 {
		// Server does not interleave metadata; nothing to extract.
		return "", nil
	}

	return extractTitle(resp.Body, metaInt)
}

// extractTitle runs the two-phase ICY state machine: skip exactly metaInt
// audio bytes, read one length byte L, accumulate exactly L*16 metadata
// bytes (both phases span network chunk boundaries), then scan for a
// StreamTitle. Returns on the first title found; the caller closes the
// stream immediately afterwards.
func extractTitle(r io.Reader, metaInt int) (string, error) {
	var lengthByte [1]byte

	for {
		if _, err := io.CopyN(io.Discard, r, int64(metaInt)); err != nil {
			return "", fmt.Errorf("skip audio: %w", err)
		}

		if _, err := io.ReadFull(r, lengthByte[:]); err != nil {
			return "", fmt.Errorf("read metadata length: %w", err)
		}

		size := int(lengthByte[0]) * 16
		if size == 0 {
			continue
		}

		block := make([]byte, size)
		if _, err := io.ReadFull(r, block); err != nil {
			return "", fmt.Errorf("read metadata block: %w", err)
		}

		if m := streamTitleRe.FindSubmatch(block); m != nil {
			title := strings.TrimRight(string(m[1]), "\x00")
			title = strings.TrimSpace(title)
			if title != "" {
				return title, nil
			}
		}
	}
}
