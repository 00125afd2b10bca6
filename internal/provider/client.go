// Package provider is the HTTP client for the social-analytics upstream.
//
// FILES:
//   - client.go:      API client with credential-encoding fallback
//   - credentials.go: Credential strategy resolution
//   - errors.go:      Error taxonomy and message sanitization
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/utils"
)

// Client calls the upstream provider. It is stateless across invocations;
// the credential order is fixed at construction.
type Client struct {
	baseURL    string
	secret     string
	host       string
	variants   []CredentialVariant
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		secret:   cfg.APIKey,
		variants: Variants(cfg.AuthStyle, cfg.APIKey),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = config.DefaultProviderTimeout
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		c.host = u.Host
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call issues one upstream request, walking the credential variants in
// order. Only HTTP 401 advances to the next variant; every other non-2xx
// status is raised immediately so deterministic failures (not-found,
// bad-request, rate-limit) are never masked by blind retries. The returned
// payload is the parsed response body, or nil when the body is not JSON.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastUnauthorized error
	attempts := 0

	for _, variant := range c.variants {
		attempts++

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "creator-gateway/1.0")
		variant.Apply(req, c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("upstream transport failure")
			return nil, &UnavailableError{Err: err}
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return nil, &UnavailableError{Err: fmt.Errorf("reading response: %w", err)}
		}

		payload := respBody
		if !json.Valid(respBody) {
			// A non-parseable body yields a null payload, not a hard failure.
			payload = nil
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return payload, nil
		}

		if resp.StatusCode == http.StatusUnauthorized {
			log.Debug().
				Str("encoding", string(variant.Encoding)).
				Str("secret", utils.MaskKey(c.secret)).
				Msg("credential encoding rejected, trying next")
			lastUnauthorized = &RejectedError{
				Status:  resp.StatusCode,
				Message: c.sanitizedBodyMessage(payload),
			}
			continue
		}

		return nil, &RejectedError{
			Status:  resp.StatusCode,
			Message: c.sanitizedBodyMessage(payload),
		}
	}

	log.Warn().Int("attempts", attempts).Str("path", path).Msg("all credential encodings rejected")
	msg := "unauthorized"
	var rej *RejectedError
	if errors.As(lastUnauthorized, &rej) {
		msg = rej.Message
	}
	return nil, fmt.Errorf("%w: %s", &CredentialExhaustedError{Attempts: attempts}, msg)
}

// sanitizedBodyMessage extracts the upstream's error message from a parsed
// body and scrubs sensitive fragments, including the provider host.
func (c *Client) sanitizedBodyMessage(payload []byte) string {
	if payload == nil {
		return "upstream request failed"
	}
	for _, key := range []string{"error.message", "error", "message", "detail"} {
		v := gjson.GetBytes(payload, key)
		if v.Type == gjson.String && v.Str != "" {
			return sanitizeMessage(utils.Truncate(v.Str, 200), c.host)
		}
	}
	return "upstream request failed"
}
