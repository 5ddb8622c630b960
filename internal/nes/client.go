// Package nes talks to the NES e-invoice and e-archive REST API: paged
// invoice listings and document downloads.
package nes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"imeiledger/internal/logger"
	"imeiledger/pkg/services"
)

const (
	DefaultBaseURL   = "https://api.nes.com.tr"
	DefaultPageSize  = 50
	DefaultUserAgent = "IMEI-NES-Client/10.9"

	// maxErrorBody bounds the response excerpt kept in errors.
	maxErrorBody = 300
)

// ClientConfig holds everything the client needs; there is no package
// level state.
type ClientConfig struct {
	BaseURL        string
	Token          string
	PageSize       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retries        int           // extra attempts after the first one
	Backoff        time.Duration // first retry delay, doubled per attempt
	UserAgent      string
}

// DefaultClientConfig returns the production defaults without a token.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        DefaultBaseURL,
		PageSize:       DefaultPageSize,
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    90 * time.Second,
		Retries:        4,
		Backoff:        600 * time.Millisecond,
		UserAgent:      DefaultUserAgent,
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  zerolog.Logger
}

var (
	_ services.InvoiceSource = (*Client)(nil)
	_ services.URLFetcher    = (*Client)(nil)
)

// NewClient creates a client. A token is required for the invoice endpoints;
// FetchURL works without one.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		log: logger.WithComponent("nes"),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// HasToken reports whether the invoice endpoints can be called.
func (c *Client) HasToken() bool {
	return strings.TrimSpace(c.cfg.Token) != ""
}

func acceptFor(kind string) string {
	switch kind {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "pdf":
		return "application/pdf"
	}
	return "*/*"
}

// get performs a GET with bounded exponential retry on transient failures.
// Non-transient failures are returned at once.
func (c *Client) get(ctx context.Context, op, endpoint, kind string, params url.Values, auth bool) ([]byte, error) {
	if auth && c.cfg.Token == "" {
		return nil, &APIError{Op: op, URL: endpoint, Err: ErrMissingToken}
	}
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var body []byte
	attempts := 0
	operation := func() error {
		attempts++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", op, err))
		}
		req.Header.Set("Accept", acceptFor(kind))
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if auth {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(ctx, op, endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return transportError(ctx, op, endpoint, err)
		}
		if resp.StatusCode == http.StatusOK {
			body = data
			return nil
		}

		apiErr := &APIError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        classifyStatus(resp.StatusCode),
			Details:    excerpt(data),
		}
		if errors.Is(apiErr, ErrTransient) {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn().
			Err(err).
			Str("url", endpoint).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Transient NES API failure, retrying")
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		if errors.Is(err, ErrTransient) {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Retries)), ctx)
}

// transportError retries timeouts and gives up on every other transport failure.
func transportError(ctx context.Context, op, endpoint string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return backoff.Permanent(ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Op: op, URL: endpoint, Err: ErrTransient, Details: err.Error()}
	}
	return backoff.Permanent(&APIError{Op: op, URL: endpoint, Err: ErrUnavailable, Details: err.Error()})
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
