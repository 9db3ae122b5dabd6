package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/credential"
	"github.com/famigo/famigo/internal/metrics"
)

const (
	defaultUserAgent = "famigo/0.1"
	requestTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
	requestIDHeader  = "X-Request-ID"
)

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil. GET and DELETE normally leave it nil.
	Body any
	// RequireAuth refuses the call locally when no credential is stored.
	// Without it a stored credential is still attached.
	RequireAuth bool
}

// Client is the authenticated request gateway. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	creds     credential.Store
	log       zerolog.Logger
	userAgent string

	mu            sync.RWMutex
	authObservers []func(string, *apierr.Error)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client for baseURL. An empty or unparsable base URL is
// an error so a misconfigured build never talks to the wrong host.
func NewClient(baseURL string, creds credential.Store, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is nil")
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		creds:     creds,
		log:       zerolog.Nop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnAuthRequired registers fn to run whenever an authenticated call ends in
// AuthRequired, after the caller's error has been built. token is the
// credential the request carried, empty when it was refused locally.
func (c *Client) OnAuthRequired(fn func(token string, err *apierr.Error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authObservers = append(c.authObservers, fn)
}

// Do issues req and decodes a successful JSON body into dest. dest may be
// nil. A 204/205 or empty body leaves dest untouched. Every non-nil error is
// an *apierr.Error.
func (c *Client) Do(ctx context.Context, req Request, dest any) error {
	_, err := c.exec(ctx, req, dest)
	return err
}

// Fetch is the typed form of Client.Do. ok is false when the server
// answered with no content.
func Fetch[T any](ctx context.Context, c *Client, req Request) (value T, ok bool, err error) {
	var dest T
	hasContent, err := c.exec(ctx, req, &dest)
	if err != nil {
		return value, false, err
	}
	return dest, hasContent, nil
}

func (c *Client) exec(ctx context.Context, req Request, dest any) (bool, error) {
	if c == nil {
		return false, apierr.ClassifyInternal(fmt.Errorf("client is nil"))
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	token, hasToken := c.creds.Get()
	if req.RequireAuth && !hasToken {
		metrics.ShortCircuitsTotal.Inc()
		derr := apierr.MissingCredential()
		c.log.Debug().Str("method", method).Str("path", req.Path).Msg("no credential, request not sent")
		c.notifyAuthRequired("", derr)
		return false, derr
	}

	hasContent, derr := c.roundTrip(ctx, method, req, token, dest)
	outcome := "ok"
	if derr != nil {
		outcome = string(derr.Kind())
		if derr.Kind() == apierr.AuthRequired && (hasToken || req.RequireAuth) {
			c.notifyAuthRequired(token, derr)
		}
	}
	metrics.RequestsTotal.WithLabelValues(method, outcome).Inc()
	if derr != nil {
		return false, derr
	}
	return hasContent, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, req Request, token string, dest any) (bool, *apierr.Error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return false, apierr.ClassifyInternal(fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	reqURL := c.resolve(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return false, apierr.ClassifyInternal(fmt.Errorf("create request: %w", err))
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(requestIDHeader, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}

	logger := c.log.With().Str("method", method).Str("path", reqURL.Path).Str("request_id", requestID).Logger()
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		derr := apierr.ClassifyTransport(fmt.Errorf("execute request: %w", err))
		logger.Warn().Err(err).Msg("request failed")
		return false, derr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("read response")
		return false, apierr.ClassifyTransport(fmt.Errorf("read response: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	if derr := apierr.Classify(resp.StatusCode, contentType, raw); derr != nil {
		logger.Warn().Int("status", resp.StatusCode).Str("kind", string(derr.Kind())).Str("code", derr.Code()).Msg("request rejected")
		return false, derr
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("request ok")

	if noContent(resp.StatusCode, raw) {
		return false, nil
	}
	if dest == nil {
		return true, nil
	}
	if !isJSON(contentType) {
		if rawDest, ok := dest.(*[]byte); ok {
			*rawDest = raw
			return true, nil
		}
		return false, apierr.ClassifyTransport(fmt.Errorf("decode response: unexpected content type %q", contentType))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, apierr.ClassifyTransport(fmt.Errorf("decode response: %w", err))
	}
	return true, nil
}

func (c *Client) notifyAuthRequired(token string, derr *apierr.Error) {
	c.mu.RLock()
	observers := append([]func(string, *apierr.Error){}, c.authObservers...)
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(token, derr)
	}
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	rel, _, _ := strings.Cut(path, "?")
	u := c.baseURL.JoinPath(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

func noContent(status int, raw []byte) bool {
	if status == http.StatusNoContent || status == http.StatusResetContent {
		return true
	}
	return len(bytes.TrimSpace(raw)) == 0
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("api base url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api base url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
