package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskwire/deskwire/internal/auth"
)

const authPath = "/broadcasting/auth"

// HTTPAuthorizer performs the private-channel authorization round-trip
// against the backend. Any non-2xx response is an authorization failure for
// that channel only.
type HTTPAuthorizer struct {
	origin string
	client *http.Client
	tokens auth.TokenSource
}

// NewHTTPAuthorizer creates an authorizer for the given API origin.
func NewHTTPAuthorizer(origin string, tokens auth.TokenSource) *HTTPAuthorizer {
	return &HTTPAuthorizer{
		origin: strings.TrimRight(strings.TrimSpace(origin), "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
	}
}

// Authorize posts the socket id and channel name to the auth endpoint and
// decodes the signed payload.
func (a *HTTPAuthorizer) Authorize(ctx context.Context, socketID, channel string) (AuthResponse, error) {
	body, err := json.Marshal(map[string]string{
		"socket_id":    socketID,
		"channel_name": channel,
	})
	if err != nil {
		return AuthResponse{}, fmt.Errorf("encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.origin+authPath, bytes.NewReader(body))
	if err != nil {
		return AuthResponse{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token, ok := auth.Bearer(a.tokens); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return AuthResponse{}, &AuthorizationError{Channel: channel, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return AuthResponse{}, &AuthorizationError{Channel: channel, Status: resp.StatusCode}
	}
	var decoded AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return AuthResponse{}, &AuthorizationError{Channel: channel, Err: fmt.Errorf("decode auth response: %w", err)}
	}
	return decoded, nil
}
