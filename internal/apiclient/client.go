// Package apiclient is the resilient HTTP client shared by every backend call.
// Each call gets a per-attempt timeout, bearer authentication, and retries
// with exponential backoff. Calls can be aborted through their context or a
// Pending handle.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fpang/dni-capture/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Defaults applied by DefaultConfig.
const (
	DefaultBaseURL    = "https://api.tudominio.com"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 200

// Config controls transport behavior.
type Config struct {
	BaseURL string

	// Timeout bounds a single attempt, not the whole call.
	Timeout time.Duration

	// MaxRetries is the number of attempts made after the first one fails.
	MaxRetries int

	// BaseDelay is the backoff unit. The delay before retry n is BaseDelay * 2^n.
	BaseDelay time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// TokenSource supplies the bearer token. An empty token means the request
// is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Request describes one call. The zero value is a GET with no body.
type Request struct {
	Method string

	// Body is JSON-encoded unless it is already a []byte or json.RawMessage.
	Body any

	// Form replaces Body with a multipart/form-data payload.
	Form *Form

	Query  map[string]string
	Header map[string]string

	// NoRetry makes a single attempt regardless of Config.MaxRetries.
	NoRetry bool
}

// Client issues requests against a base URL.
type Client struct {
	cfg    Config
	http   *resty.Client
	tokens TokenSource
	sleep  func(ctx context.Context, d time.Duration) error

	metrics bool

	noTokenOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = newResty(hc) }
}

// WithSleep replaces the backoff wait. The function must return the
// context error if ctx ends first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithMetrics enables an EMF record per call.
func WithMetrics() Option {
	return func(c *Client) { c.metrics = true }
}

// New creates a Client. Zero-valued Config fields fall back to defaults,
// except MaxRetries which is taken as given when non-negative.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:   cfg,
		http:  newResty(nil),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetBaseURL(cfg.BaseURL)
	return c
}

func newResty(hc *http.Client) *resty.Client {
	var r *resty.Client
	if hc != nil {
		r = resty.NewWithClient(hc)
	} else {
		r = resty.New()
	}
	// Retries and timeouts are driven per call; resty only moves bytes.
	return r.
		SetRetryCount(0).
		SetLogger(restyLogger{}).
		SetHeader("Accept", "application/json")
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Backoff returns the wait before retry n (n starts at 1).
func (c *Client) Backoff(n int) time.Duration {
	return c.cfg.BaseDelay * time.Duration(1<<n)
}

// Call performs the request with retries and returns the raw JSON response.
// An empty response body yields a nil RawMessage.
//
// When ctx ends the in-flight attempt is aborted and the error matches
// ErrCanceled. When every attempt fails the error is a *RequestError.
func (c *Client) Call(ctx context.Context, endpoint string, req Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if req.Form == nil && req.Body != nil {
		var err error
		if body, err = encodeBody(req.Body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	attempts := c.cfg.MaxRetries + 1
	if req.NoRetry {
		attempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.Backoff(attempt - 1)
			log.Warn().
				Err(lastErr).
				Str("method", method).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying request")
			if err := c.sleep(ctx, delay); err != nil {
				c.record(method, endpoint, attempt-1, start, "canceled")
				return nil, canceled(err)
			}
		}

		resp, err := c.attempt(ctx, method, endpoint, token, body, req)
		if err == nil {
			log.Debug().
				Str("method", method).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("Request succeeded")
			c.record(method, endpoint, attempt, start, "ok")
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Debug().Str("endpoint", endpoint).Msg("Request canceled by caller")
			c.record(method, endpoint, attempt, start, "canceled")
			return nil, canceled(ctxErr)
		}
		lastErr = err
	}

	log.Error().
		Err(lastErr).
		Str("method", method).
		Str("endpoint", endpoint).
		Int("attempts", attempts).
		Msg("Request failed after retries")
	c.record(method, endpoint, attempts, start, "failed")
	return nil, &RequestError{Method: method, Endpoint: endpoint, Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, method, endpoint, token string, body []byte, req Request) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	r := c.http.R().SetContext(attemptCtx)
	if token != "" {
		r.SetAuthToken(token)
	}
	if req.Form != nil {
		req.Form.apply(r)
	} else {
		r.SetHeader("Content-Type", "application/json")
		if body != nil {
			r.SetBody(body)
		}
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Header) > 0 {
		r.SetHeaders(req.Header)
	}

	resp, err := r.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       truncate(strings.TrimSpace(string(resp.Body())), maxErrorBody),
		}
	}

	data := resp.Body()
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON response (body: %s)", truncate(string(data), maxErrorBody))
	}
	return json.RawMessage(data), nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		c.warnNoToken()
		return "", nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("auth token: %w", err)
	}
	if tok == "" {
		c.warnNoToken()
	}
	return tok, nil
}

func (c *Client) warnNoToken() {
	c.noTokenOnce.Do(func() {
		log.Warn().Msg("No auth token configured; requests are sent without Authorization header")
	})
}

func (c *Client) record(method, endpoint string, attempts int, start time.Time, outcome string) {
	if !c.metrics || !metrics.Enabled() {
		return
	}
	metrics.New(metrics.Namespace).
		Dimension("Method", method).
		Dimension("Outcome", outcome).
		Metric("Attempts", float64(attempts), metrics.UnitCount).
		Duration("LatencyMs", time.Since(start)).
		Property("endpoint", endpoint).
		Flush()
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(v)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CallJSON performs the call and decodes the response into T.
func CallJSON[T any](ctx context.Context, c *Client, endpoint string, req Request) (T, error) {
	var out T
	raw, err := c.Call(ctx, endpoint, req)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return out, nil
}

// Pending is an in-flight call started with Start.
type Pending struct {
	cancel context.CancelFunc
	done   chan struct{}
	body   json.RawMessage
	err    error
}

// Start runs the call in the background and returns a handle for
// cancellation and the result.
func (c *Client) Start(ctx context.Context, endpoint string, req Request) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer cancel()
		p.body, p.err = c.Call(ctx, endpoint, req)
	}()
	return p
}

// Cancel aborts the call. Wait then returns an error matching ErrCanceled
// unless the call had already finished.
func (p *Pending) Cancel() { p.cancel() }

// Done is closed when the call has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the call finishes and returns its result.
func (p *Pending) Wait() (json.RawMessage, error) {
	<-p.done
	return p.body, p.err
}

// IsCanceled reports whether err came from an aborted call.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// restyLogger routes resty's internal messages through zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("component", "resty").Msgf(format, v...)
}
