package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 16 << 20
)

// FetchError is returned for any failed fetch: transport failure, timeout,
// non-2xx status or an empty body. Callers treat it as "no items this cycle".
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	// UserAgent overrides the built-in browser UA pool when set.
	UserAgent string
	// Proxy is an optional proxy URL (http, https or socks5).
	Proxy   string
	Timeout time.Duration
}

// Client retrieves raw source documents. It performs exactly one attempt
// per Get; there is no retry layer.
type Client struct {
	http *http.Client
	ua   string
}

func New(opt Options) (*Client, error) {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	if p := strings.TrimSpace(opt.Proxy); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy: invalid url %q", p)
		}
		base.Proxy = http.ProxyURL(u)
	}
	return &Client{
		http: &http.Client{Transport: base, Timeout: timeout},
		ua:   strings.TrimSpace(opt.UserAgent),
	}, nil
}

// NewWithHTTPClient wraps an existing http.Client (tests, custom transports).
func NewWithHTTPClient(c *http.Client, userAgent string) *Client {
	if c == nil {
		c = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: c, ua: strings.TrimSpace(userAgent)}
}

// Get fetches u and returns the response body.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	ua := c.ua
	if ua == "" {
		ua = globalUA.random()
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	if len(b) == 0 {
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}
	return b, nil
}

// ExpandURL fills the "{date}" placeholder with day formatted as YYYYMMDD.
func ExpandURL(tmpl string, day time.Time) string {
	return strings.ReplaceAll(strings.TrimSpace(tmpl), "{date}", day.Format("20060102"))
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = &uaPool{
	rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	uas: []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	},
}
