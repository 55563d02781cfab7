// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/envitrace/envitrace/pkg/logging"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// TransportConfig configures the HTTP transport to a pathway server.
type TransportConfig struct {
	// BaseURL is the server root, e.g. https://envipath.org.
	BaseURL string

	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration

	// RateLimit caps outgoing requests per second. Zero disables the
	// limiter.
	RateLimit float64

	Logger *logging.Logger
}

// Transport is a session-scoped HTTP client for a pathway server. It
// holds the login cookie and throttles all calls through one limiter.
type Transport struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

// NewTransport builds a transport with a fresh cookie jar.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Transport{
		baseURL: strings.TrimRight(base.String(), "/"),
		client:  &http.Client{Jar: jar, Timeout: timeout},
		limiter: limiter,
		log:     log,
	}, nil
}

// BaseURL returns the server root the transport talks to.
func (t *Transport) BaseURL() string { return t.baseURL }

// Login authenticates the session. The server keeps the session in a
// cookie, which the jar carries on every later request.
func (t *Transport) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"hiddenMethod":  {"login"},
		"loginusername": {username},
		"loginpassword": {password},
	}
	resp, err := t.do(ctx, http.MethodPost, t.baseURL, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	t.log.Debug("session established", "base_url", t.baseURL, "username", username)
	return nil
}

// GetJSON fetches rawURL (absolute, or a path under the base URL) and
// decodes the JSON response into out.
func (t *Transport) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	full := t.absolute(rawURL)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + query.Encode()
	}
	resp, err := t.do(ctx, http.MethodGet, full, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("GET %s: %w", full, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", full, ErrTransient)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %v", full, err)
	}
	return nil
}

// GetRaw fetches rawURL and returns the body bytes. Used by the cache
// tier, which stores responses before decoding.
func (t *Transport) GetRaw(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	full := t.absolute(rawURL)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + query.Encode()
	}
	resp, err := t.do(ctx, http.MethodGet, full, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("GET %s: %w", full, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", full, ErrTransient)
	}
	return body, nil
}

// PostForm posts a form and returns the Location header, which the
// server uses to hand back the identifier of a created object.
func (t *Transport) PostForm(ctx context.Context, rawURL string, form url.Values) (string, error) {
	full := t.absolute(rawURL)
	resp, err := t.do(ctx, http.MethodPost, full, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", fmt.Errorf("POST %s: %w", full, err)
	}
	return resp.Header.Get("Location"), nil
}

// Delete removes a server object. The server models deletion as a form
// post with a hidden method marker.
func (t *Transport) Delete(ctx context.Context, rawURL string) error {
	form := url.Values{"hiddenMethod": {"DELETE"}}
	if _, err := t.PostForm(ctx, rawURL, form); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (t *Transport) absolute(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return t.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

func (t *Transport) do(ctx context.Context, method, fullURL string, body io.Reader, contentType string) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v", method, fullURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network-level failures are worth retrying.
		return nil, fmt.Errorf("%s %s: %v: %w", method, fullURL, err, ErrTransient)
	}
	return resp, nil
}

// classifyStatus maps an HTTP status onto the package error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

// IsRetryable reports whether an error should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
