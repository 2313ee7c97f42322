package civitai

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"civharvest/pkg/config"
	"civharvest/pkg/errors"
	"civharvest/pkg/logger"
	"civharvest/pkg/ratelimit"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "__Secure-civitai-token"

// Options configures a Client. Zero values fall back to the defaults of
// config.DefaultConfig.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	ClientVersion string
	Fingerprint   string
	// MaxRetries is handed to go-retryablehttp. Zero issues every request
	// exactly once.
	MaxRetries int
	// Limiter gates every request. Nil means no ceiling.
	Limiter ratelimit.Limiter
	// HTTPClient replaces the underlying transport client.
	HTTPClient *http.Client
	Logger     logger.Logger
}

// OptionsFromConfig maps the api section onto client options.
func OptionsFromConfig(cfg config.APIConfig) Options {
	return Options{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		UserAgent:     cfg.UserAgent,
		ClientVersion: cfg.ClientVersion,
		Fingerprint:   cfg.Fingerprint,
		MaxRetries:    cfg.MaxRetries,
		Limiter:       ratelimit.NewTokenBucket(cfg.RequestsPerMinute, 1),
	}
}

// Client issues tRPC GET calls. A Client is owned by its creator; callers
// share one instance for a run so pacing and credentials stay consistent.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	limiter ratelimit.Limiter
	logger  logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	headers map[string]string
	token   string
}

// NewClient creates a tRPC client.
func NewClient(opts Options) *Client {
	defaults := config.DefaultConfig().API
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = defaults.ClientVersion
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = opts.MaxRetries
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		// the caller's client is shared, so the timeout goes on a copy
		hc := *opts.HTTPClient
		rc.HTTPClient = &hc
	}
	rc.HTTPClient.Timeout = opts.Timeout

	headers := map[string]string{
		"User-Agent":       opts.UserAgent,
		"Accept":           "application/json",
		"Referer":          "https://civitai.com/",
		"x-client":         "web",
		"x-client-version": opts.ClientVersion,
	}
	if opts.Fingerprint != "" {
		headers["x-fingerprint"] = opts.Fingerprint
	}

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		limiter: opts.Limiter,
		logger:  opts.Logger,
		now:     time.Now,
		headers: headers,
	}
}

// SetToken sets the session token sent as a cookie on every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// ProcedureURL builds the GET URL for a procedure and encoded input.
func (c *Client) ProcedureURL(procedure, input string) string {
	params := url.Values{}
	params.Set("input", input)
	return fmt.Sprintf("%s/%s?%s", c.baseURL, procedure, params.Encode())
}

func (c *Client) applyHeaders(req *retryablehttp.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("x-client-date", strconv.FormatInt(c.now().UnixMilli(), 10))
	if c.token != "" {
		req.Header.Set("Cookie", SessionCookieName+"="+c.token)
	}
}

// Call invokes procedure with payload and returns the unwrapped result.
//
// Non-200 statuses map through errors.FromStatus, so 401/403 come back as
// auth errors. A tRPC error envelope is a transport error even when the
// status is 200.
func (c *Client) Call(ctx context.Context, procedure string, payload Payload) (gjson.Result, error) {
	input, err := Encode(payload)
	if err != nil {
		return gjson.Result{}, err
	}

	body, status, err := c.get(ctx, procedure, c.ProcedureURL(procedure, input))
	if err != nil {
		return gjson.Result{}, err
	}

	if status != http.StatusOK {
		msg := fmt.Sprintf("%s returned status %d", procedure, status)
		if detail, ok := EnvelopeError(body); ok {
			msg += ": " + detail
		}
		return gjson.Result{}, errors.FromStatus(status, msg)
	}

	if detail, ok := EnvelopeError(body); ok {
		return gjson.Result{}, errors.NewTransportError(
			fmt.Sprintf("%s: tRPC error: %s", procedure, detail), status, nil)
	}

	result, err := Decode(body)
	if err != nil {
		c.logger.ErrorWithFields("failed to parse tRPC response", map[string]interface{}{
			"procedure":    procedure,
			"status":       status,
			"body_preview": preview(body),
		})
		return gjson.Result{}, fmt.Errorf("%s: %w", procedure, err)
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, procedure, target string) ([]byte, int, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
		if waited := time.Since(waitStart); waited > 10*time.Millisecond {
			logger.LogRateLimit(c.logger, procedure, waited)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, &errors.Error{
			Type:    errors.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Err:     err,
		}
	}
	c.applyHeaders(req)

	c.logger.DebugWithFields("sending tRPC request", map[string]interface{}{
		"procedure": procedure,
	})

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		c.logger.ErrorWithFields("tRPC request failed", map[string]interface{}{
			"procedure": procedure,
			"error":     err.Error(),
			"duration":  duration,
		})
		return nil, 0, errors.NewTransportError(
			fmt.Sprintf("%s: network error: %v", procedure, err), 0, err)
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, procedure, resp.StatusCode, duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.NewTransportError(
			fmt.Sprintf("%s: failed to read response body: %v", procedure, err), resp.StatusCode, err)
	}
	return body, resp.StatusCode, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
