// Package nga is the HTTP gateway to the NGA forum. It implements
// forum.Gateway on top of the forum's JSON output mode (__output=11).
package nga

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/textutil"
)

const (
	DefaultBaseURL = "https://bbs.nga.cn"

	userAgent      = "NGA_WP_JW(;WINDOWS)"
	defaultTimeout = 30 * time.Second
	maxRetries     = 2
	maxBackoff     = 8 * time.Second
	maxBodySize    = 16 << 20
)

// Config holds what the client needs to reach the forum.
type Config struct {
	BaseURL      string
	Cookie       string // raw Cookie header value
	HTTPProxy    string
	HTTPSProxy   string
	Timeout      time.Duration
	RateLimitQPS float64 // 0 disables pacing

	// Favorites is the board list shown at the root.
	Favorites []forum.Board
}

// Client implements forum.Gateway.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	favorites  []forum.Board
	backoff    func(attempt int) time.Duration

	mu   sync.Mutex
	last forum.Exchange
}

// Compile-time check.
var _ forum.Gateway = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBackoff replaces the retry delay function.
func WithBackoff(f func(attempt int) time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = f
	}
}

// New creates a client. The cookie is loaded into a jar scoped to the base
// URL so cookies the forum refreshes are kept for the rest of the session.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got: %s", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL must include a host")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if cookies := parseCookieHeader(cfg.Cookie); len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}

	proxy, err := proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		logger:    slog.Default(),
		favorites: cfg.Favorites,
		backoff:   jitterBackoff,
	}
	if cfg.RateLimitQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitQPS), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LastExchange returns the most recent request/response pair.
func (c *Client) LastExchange() forum.Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// get performs a GET with pacing and limited retries on network errors and
// 5xx/429 responses. The returned body is decoded to UTF-8.
func (c *Client) get(ctx context.Context, path string, params url.Values) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	reqURL := *c.baseURL
	reqURL.Path = c.baseURL.Path + path
	reqURL.RawQuery = params.Encode()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "path", path)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, status, err := c.do(ctx, reqURL.String(), params)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return body, nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = &StatusError{Code: status, Body: textutil.FirstLine(body)}
			continue
		default:
			return "", &StatusError{Code: status, Body: textutil.FirstLine(body)}
		}
	}
	return "", eris.Wrapf(lastErr, "giving up on %s after %d attempts", path, maxRetries+1)
}

// do sends one request and records it as the last exchange.
func (c *Client) do(ctx context.Context, reqURL string, params url.Values) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.baseURL.String()+"/")

	recorded := &forum.Request{
		Method: req.Method,
		URL:    reqURL,
		Params: params,
		Header: redactHeader(req.Header),
		SentAt: time.Now(),
	}
	c.setLast(forum.Exchange{Request: recorded})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setLast(forum.Exchange{Request: recorded, Err: err.Error()})
		return "", 0, eris.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.setLast(forum.Exchange{Request: recorded, Err: err.Error()})
		return "", 0, eris.Wrap(err, "read response")
	}
	body := textutil.DecodeBody(raw)
	c.setLast(forum.Exchange{
		Request: recorded,
		Response: &forum.Response{
			Status:     resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
			ReceivedAt: time.Now(),
		},
	})
	c.logger.Debug("http", "url", reqURL, "status", resp.StatusCode, "bytes", len(raw))
	return body, resp.StatusCode, nil
}

func (c *Client) setLast(e forum.Exchange) {
	c.mu.Lock()
	c.last = e
	c.mu.Unlock()
}

// noteError attaches a failure that happened after the response arrived
// (API or parse errors) to the recorded exchange.
func (c *Client) noteError(err error) {
	c.mu.Lock()
	c.last.Err = err.Error()
	c.mu.Unlock()
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed (%d)", e.Code)
	}
	return fmt.Sprintf("request failed (%d): %s", e.Code, e.Body)
}

// jitterBackoff is exponential backoff with full jitter: 0-1s, 0-2s, 0-4s...
func jitterBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}
	return time.Duration(rand.Int63n(int64(base)) + 1)
}

func redactHeader(h http.Header) http.Header {
	out := h.Clone()
	out.Del("Cookie")
	return out
}

func parseCookieHeader(raw string) []*http.Cookie {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	req := http.Request{Header: http.Header{"Cookie": {raw}}}
	return req.Cookies()
}

func proxyFunc(httpProxy, httpsProxy string) (func(*http.Request) (*url.URL, error), error) {
	var httpURL, httpsURL *url.URL
	var err error
	if httpProxy != "" {
		if httpURL, err = url.Parse(httpProxy); err != nil {
			return nil, fmt.Errorf("invalid http proxy: %w", err)
		}
	}
	if httpsProxy != "" {
		if httpsURL, err = url.Parse(httpsProxy); err != nil {
			return nil, fmt.Errorf("invalid https proxy: %w", err)
		}
	}
	return func(req *http.Request) (*url.URL, error) {
		switch {
		case req.URL.Scheme == "https" && httpsURL != nil:
			return httpsURL, nil
		case req.URL.Scheme == "http" && httpURL != nil:
			return httpURL, nil
		default:
			return http.ProxyFromEnvironment(req)
		}
	}, nil
}
