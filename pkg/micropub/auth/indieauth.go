package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-micropub/pkg/micropub"
)

// TokenEndpointVerifier verifies tokens against an IndieAuth token endpoint
type TokenEndpointVerifier struct {
	endpoint string
	me       string
	client   *http.Client
}

// TokenEndpointConfig configures a TokenEndpointVerifier
type TokenEndpointConfig struct {
	Endpoint string        // Token endpoint URL
	Me       string        // Optional: only accept tokens issued for this profile URL
	Timeout  time.Duration // HTTP timeout (default: 10s)
	Client   *http.Client  // Optional HTTP client
}

// NewTokenEndpointVerifier creates a verifier for the given token endpoint
func NewTokenEndpointVerifier(cfg TokenEndpointConfig) (*TokenEndpointVerifier, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("token endpoint is required")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid token endpoint: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TokenEndpointVerifier{
		endpoint: cfg.Endpoint,
		me:       cfg.Me,
		client:   client,
	}, nil
}

type tokenResponse struct {
	Me       string      `json:"me"`
	ClientID string      `json:"client_id"`
	Scope    string      `json:"scope"`
	IssuedAt json.Number `json:"issued_at"`
}

func (v *TokenEndpointVerifier) Verify(ctx context.Context, token string) (*micropub.AuthContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, micropub.ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	parsed, err := parseTokenResponse(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	if parsed.Me == "" {
		return nil, micropub.ErrInvalidToken
	}
	if v.me != "" && !sameProfile(parsed.Me, v.me) {
		return nil, fmt.Errorf("token issued for %s: %w", parsed.Me, micropub.ErrInvalidToken)
	}

	auth := &micropub.AuthContext{
		Me:       parsed.Me,
		ClientID: parsed.ClientID,
		Scopes:   micropub.ParseScopes(parsed.Scope),
	}
	if secs, err := strconv.ParseInt(parsed.IssuedAt.String(), 10, 64); err == nil && secs > 0 {
		auth.IssuedAt = time.Unix(secs, 0).UTC()
	}
	return auth, nil
}

func parseTokenResponse(contentType string, body []byte) (*tokenResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse token response: %w", err)
		}
		return &tokenResponse{
			Me:       values.Get("me"),
			ClientID: values.Get("client_id"),
			Scope:    values.Get("scope"),
			IssuedAt: json.Number(values.Get("issued_at")),
		}, nil
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &parsed, nil
}

// sameProfile compares profile URLs ignoring a trailing slash and host case
func sameProfile(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		ua.Scheme == ub.Scheme &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}
