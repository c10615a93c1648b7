package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	DefaultHost              = "http://localhost:11434"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultConnectionTimeout = 5 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = time.Second

	defaultMaxConnections     = 10
	defaultMaxIdleConnections = 5
	defaultIdleConnTimeout    = 30 * time.Second

	// logged response bodies are cut to this many bytes
	responseLogPrefix = 200
	// error bodies larger than this are not parsed
	maxErrorBody = 1 << 20
)

// Config holds connection and retry settings for a Client.
type Config struct {
	Host               string
	RequestTimeout     time.Duration
	ConnectionTimeout  time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	MaxConnections     int
	MaxIdleConnections int
	IdleConnTimeout    time.Duration
	LogRequests        bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:               DefaultHost,
		RequestTimeout:     DefaultRequestTimeout,
		ConnectionTimeout:  DefaultConnectionTimeout,
		MaxRetries:         DefaultMaxRetries,
		RetryDelay:         DefaultRetryDelay,
		MaxConnections:     defaultMaxConnections,
		MaxIdleConnections: defaultMaxIdleConnections,
		IdleConnTimeout:    defaultIdleConnTimeout,
	}
}

// Client executes requests against an Ollama server with a pooled connection,
// per-attempt timeouts and exponential-backoff retries.
type Client struct {
	cfg    Config
	host   string
	logger zerolog.Logger

	mu        sync.Mutex
	http      *http.Client
	transport *http.Transport
}

// NewClient validates cfg and returns an unconnected Client.
// Zero-valued settings are replaced by their defaults.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = def.ConnectionTimeout
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("retry delay must be >= 0, got %s", cfg.RetryDelay)
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = def.MaxIdleConnections
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	u, err := parseHost(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	cfg.Host = strings.TrimRight(u.String(), "/")

	return &Client{
		cfg:    cfg,
		host:   cfg.Host,
		logger: logger.With().Str("component", "ollamaClient").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", host)
	}
	return u, nil
}

// Host returns the normalized base URL.
func (c *Client) Host() string {
	return c.host
}

// Config returns the effective settings.
func (c *Client) Config() Config {
	return c.cfg
}

// Connect creates the connection pool. Calling it again is a no-op.
func (c *Client) Connect() {
	c.connect()
}

func (c *Client) connect() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http != nil {
		return c.http
	}

	dialer := &net.Dialer{
		Timeout:   c.cfg.ConnectionTimeout,
		KeepAlive: 30 * time.Second,
	}
	c.transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       c.cfg.MaxConnections,
		MaxIdleConns:          c.cfg.MaxIdleConnections,
		MaxIdleConnsPerHost:   c.cfg.MaxIdleConnections,
		IdleConnTimeout:       c.cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   c.cfg.ConnectionTimeout,
		ResponseHeaderTimeout: c.cfg.RequestTimeout,
	}
	c.http = &http.Client{Transport: c.transport}

	c.logger.Info().
		Str("host", c.host).
		Int("maxConnections", c.cfg.MaxConnections).
		Int("maxIdleConnections", c.cfg.MaxIdleConnections).
		Msg("Ollama connection pool created")
	return c.http
}

// Close releases pooled connections. The pool is rebuilt by the next request.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	if c.http != nil {
		c.logger.Info().Msg("Ollama connection pool closed")
	}
	c.http = nil
	c.transport = nil
}

// HealthCheck performs a single GET / and reports whether it returned 200.
// It never returns an error; failures are logged.
func (c *Client) HealthCheck(ctx context.Context) bool {
	hc := c.connect()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(PathRoot), nil)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build health check request")
		return false
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("host", c.host).Msg("Ollama health check failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Ollama health check returned non-200 status")
		return false
	}
	return true
}

// Execute performs a non-streaming request and decodes the JSON response into out.
// out may be nil to discard the body. If out implements Validator it is
// validated after decoding. Transient transport failures and timeouts are retried;
// connection failures, API errors and decode failures are returned at once.
func (c *Client) Execute(ctx context.Context, req Request, out any) error {
	return c.send(ctx, req, false, func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return c.classify(ctx, err)
		}
		if c.cfg.LogRequests {
			c.logger.Debug().
				Str("path", req.Path).
				Int("status", resp.StatusCode).
				Str("body", truncate(string(data), responseLogPrefix)).
				Msg("Ollama response")
		}
		return decode(data, out)
	})
}

func decode(data []byte, out any) error {
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return NewValidationError("response is not valid JSON for the expected shape", err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return NewValidationError("response failed validation", err)
		}
	}
	return nil
}

// send runs one logical request under the retry policy. handle consumes a
// successful (status < 400) response and returns a classified error.
func (c *Client) send(ctx context.Context, req Request, streaming bool, handle func(*http.Response) error) error {
	hc := c.connect()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return NewValidationError("failed to encode request body", err)
		}
	}
	if c.cfg.LogRequests {
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.Path).
			Str("body", truncate(string(body), 500)).
			Msg("Ollama request")
	}

	attempts := 0
	op := func() error {
		attempts++
		start := time.Now()
		err := c.attempt(ctx, hc, req, body, streaming, handle)
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.Path).
			Int("attempt", attempts).
			Dur("elapsed", time.Since(start)).
			Bool("ok", err == nil).
			Msg("Ollama request attempt")
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var e *Error
		if !errors.As(err, &e) || !e.Retryable {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("path", req.Path).
			Int("attempt", attempts).
			Dur("retryIn", next).
			Msg("Ollama request failed, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err == nil {
		return nil
	}
	return c.finalError(ctx, err, attempts)
}

func (c *Client) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Duration(math.MaxInt64)
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries))
}

// finalError maps whatever the retry loop gave up with onto a terminal *Error.
func (c *Client) finalError(ctx context.Context, err error, attempts int) error {
	var e *Error
	if errors.As(err, &e) {
		if !e.Retryable {
			return err
		}
		if e.Kind == KindTimeout {
			return &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("request timeout after %d retries", c.cfg.MaxRetries),
				Err:     e.Err,
			}
		}
		return NewInternalError(fmt.Sprintf("request failed after %d attempts", attempts), e.Err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr, err)
	}
	return NewInternalError("request failed", err)
}

func contextError(ctxErr, cause error) *Error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", Err: cause}
	}
	return NewInternalError("request cancelled", cause)
}

func (c *Client) attempt(ctx context.Context, hc *http.Client, req Request, body []byte, streaming bool, handle func(*http.Response) error) error {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
		idle       *idleTimeout
	)
	if streaming {
		// A stream may run for minutes; only gaps between reads are bounded.
		attemptCtx, cancel = context.WithCancel(ctx)
		idle = newIdleTimeout(c.cfg.RequestTimeout, cancel)
		defer idle.Stop()
	} else {
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, c.url(req.Path), reader)
	if err != nil {
		return NewValidationError("invalid request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if streaming {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		if idle.Expired() && ctx.Err() == nil {
			return NewTimeoutError("request timeout", err)
		}
		return c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.apiError(resp)
	}
	if idle != nil {
		resp.Body = idle.Wrap(resp.Body)
	}
	err = handle(resp)
	if err != nil && idle.Expired() && ctx.Err() == nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		// Frames may already have reached the caller, so this is never retried.
		return backoff.Permanent(&Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("stream idle for more than %s", c.cfg.RequestTimeout),
			Err:     err,
		})
	}
	return err
}

// classify turns a transport error into a typed error. Only timeouts and
// unclassified transport failures are marked retryable.
func (c *Client) classify(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr, err)
	}
	if isTimeout(err) {
		return NewTimeoutError("request timeout", err)
	}
	if isConnectFailure(err) {
		return NewConnectionError(c.host, err)
	}
	e := NewInternalError("request failed", err)
	e.Retryable = true
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) apiError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := &APIErrorDetail{}
	if err := json.Unmarshal(data, detail); err != nil || detail.Error == "" {
		detail = nil
		if text := strings.TrimSpace(string(data)); text != "" {
			detail = &APIErrorDetail{Error: text}
		}
	}
	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("body", truncate(string(data), responseLogPrefix)).
		Msg("Ollama API error")
	return NewAPIError(resp.StatusCode, detail)
}

func (c *Client) url(path string) string {
	return c.host + "/" + strings.TrimLeft(path, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
