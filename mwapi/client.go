// Package mwapi is a small MediaWiki Action API client: bot-password login,
// page reads, edits, transclusion lists and namespace names.
package mwapi

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/internal/httpclient"
	"github.com/sdzerobot/sdzerobot/logger"
)

const (
	maxlagAttempts   = 3
	defaultRetryWait = 5 * time.Second
)

// Options configures a Client
type Options struct {
	APIURL         string
	Username       string
	Password       string
	UserAgent      string
	MaxLag         int     // seconds; 0 disables the maxlag parameter
	EditsPerMinute float64 // 0 disables edit throttling
	Timeout        time.Duration
	// AllowPrivateIPs permits API URLs on private networks (a local MediaWiki)
	AllowPrivateIPs bool
}

// Client talks to one wiki's api.php
type Client struct {
	apiURL   string
	username string
	password string
	maxLag   int

	http    *httpclient.SaferClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	csrfToken  string
	namespaces Namespaces

	// sleep waits between maxlag retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. Call Login before editing.
func New(opts Options) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	hc := httpclient.New(timeout, httpclient.Options{
		UserAgent:      opts.UserAgent,
		Jar:            jar,
		AllowPrivateIP: opts.AllowPrivateIPs,
	})
	return newClient(opts, hc)
}

// NewWithHTTPClient creates a client on an existing HTTP client. Used by
// tests that run against httptest servers.
func NewWithHTTPClient(opts Options, hc *httpclient.SaferClient) (*Client, error) {
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "create cookie jar")
		}
		hc.Jar = jar
	}
	return newClient(opts, hc)
}

func newClient(opts Options, hc *httpclient.SaferClient) (*Client, error) {
	if _, err := hc.ValidateURL(opts.APIURL); err != nil {
		return nil, errors.Wrapf(err, "api url %q", opts.APIURL)
	}
	c := &Client{
		apiURL:   opts.APIURL,
		username: opts.Username,
		password: opts.Password,
		maxLag:   opts.MaxLag,
		http:     hc,
		logger:   logger.ComponentLogger("mwapi"),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		sleep:    sleepContext,
	}
	if opts.EditsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.EditsPerMinute/60), 1)
	}
	return c, nil
}

// SetLogger replaces the component logger
func (c *Client) SetLogger(l *zap.SugaredLogger) {
	c.logger = l
}

// envelope holds the parts common to every response
type envelope struct {
	Error    *APIError       `json:"error"`
	Continue json.RawMessage `json:"continue"`
}

// get performs a read request and decodes the response into out
func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	return c.call(ctx, http.MethodGet, params, out)
}

// post performs a write request and decodes the response into out
func (c *Client) post(ctx context.Context, params url.Values, out interface{}) error {
	return c.call(ctx, http.MethodPost, params, out)
}

// call sends the request, retrying maxlag errors
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	if c.maxLag > 0 {
		params.Set("maxlag", strconv.Itoa(c.maxLag))
	}

	var lastErr error
	for attempt := 1; attempt <= maxlagAttempts; attempt++ {
		body, retryAfter, err := c.roundTrip(ctx, method, params)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return errors.Wrapf(err, "decode %s response", params.Get("action"))
		}
		if env.Error == nil {
			if out == nil {
				return nil
			}
			return errors.Wrapf(json.Unmarshal(body, out), "decode %s response", params.Get("action"))
		}

		lastErr = env.Error
		if env.Error.Code != "maxlag" {
			return env.Error
		}

		c.logger.Infow("Replication lag too high, waiting",
			logger.FieldOperation, params.Get("action"),
			"attempt", attempt,
			"retry_after", retryAfter)
		if attempt < maxlagAttempts {
			if err := c.sleep(ctx, retryAfter*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	return errors.Wrapf(lastErr, "giving up after %d attempts", maxlagAttempts)
}

func (c *Client) roundTrip(ctx context.Context, method string, params url.Values) ([]byte, time.Duration, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, c.apiURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.apiURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s %s", method, params.Get("action"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, errors.Newf("%s %s: HTTP %d", method, params.Get("action"), resp.StatusCode)
	}

	retryAfter := defaultRetryWait
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			retryAfter = time.Duration(n) * time.Second
		}
	}
	return body, retryAfter, nil
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
