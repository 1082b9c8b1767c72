/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/friendsincode/bragi_dj/internal/auth"
)

const (
	tokenRequestTimeout = 5 * time.Second
	tokenTTL            = 10 * time.Minute
)

// tokenSource produces a fresh join credential for every connection attempt.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// remoteTokenSource fetches join tokens from the room server's token
// endpoint, authenticated with the shared API secret.
type remoteTokenSource struct {
	url       string
	apiSecret string
	room      string
	identity  string
	client    *http.Client
}

func newRemoteTokenSource(url, apiSecret, room, identity string) *remoteTokenSource {
	return &remoteTokenSource{
		url:       url,
		apiSecret: apiSecret,
		room:      room,
		identity:  identity,
		client:    &http.Client{Timeout: tokenRequestTimeout},
	}
}

func (s *remoteTokenSource) Token(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"room":     s.room,
		"identity": s.identity,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiSecret != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return parsed.Token, nil
}

// localTokenSource self-issues join tokens with the shared API secret. Used
// when the deployment trusts the player to mint its own credentials.
type localTokenSource struct {
	secret   []byte
	room     string
	identity string
}

func newLocalTokenSource(secret []byte, room, identity string) *localTokenSource {
	return &localTokenSource{secret: secret, room: room, identity: identity}
}

func (s *localTokenSource) Token(_ context.Context) (string, error) {
	token, err := auth.Issue(s.secret, auth.JoinClaims{
		Identity:     s.identity,
		Room:         s.room,
		CanPublish:   true,
		CanSubscribe: false,
	}, tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue join token: %w", err)
	}
	return token, nil
}
