// Package transport issues single HTTP exchanges on behalf of the step
// executor. Timeout, retry, and URL-safety policy live here, not in the
// execution engine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/platform/env"
)

// Request describes one outgoing exchange. Templates are already resolved
// by the time a request reaches the transport.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is the raw outcome of a completed exchange.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client performs one HTTP exchange. A returned error means no response was
// obtained (connection failure, timeout); assertion evaluation never happens
// here.
type Client interface {
	Exchange(ctx context.Context, req Request) (Response, error)
}

type Config struct {
	Timeout         time.Duration
	MaxResponseSize int64
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("TRANSPORT_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxBody, err := env.Int("TRANSPORT_MAX_RESPONSE_BYTES", 4<<20)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Timeout: timeout, MaxResponseSize: int64(maxBody)}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("TRANSPORT_TIMEOUT must be positive")
	}
	if c.MaxResponseSize <= 0 {
		return errors.New("TRANSPORT_MAX_RESPONSE_BYTES must be positive")
	}
	return nil
}

// HTTPClient is the default Client backed by net/http.
type HTTPClient struct {
	client          *http.Client
	maxResponseSize int64
}

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(),
		},
		maxResponseSize: cfg.MaxResponseSize,
	}, nil
}

func (c *HTTPClient) Exchange(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.client == nil {
		return Response{}, errors.New("transport client not initialized")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		return Response{}, errors.New("method is required")
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return Response{}, errors.New("url is required")
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
