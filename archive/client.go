package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"
)

const (
	defaultTimeout = 10 * time.Second

	// maxBody caps any single download; scandata bundles are the largest
	// thing the probes read and stay well below this.
	maxBody = 32 << 20
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// Options configures a Client.
type Options struct {
	// BaseURL is the archive host, e.g. "https://archive.org".
	BaseURL string

	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds each individual request. Default: 10s.
	Timeout time.Duration

	// ChromeTLS dials https targets with a Chrome TLS fingerprint.
	ChromeTLS bool

	// StripTokens are trailing identifier segments dropped from name variants.
	StripTokens []string

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
}

// Client fetches documents from the archive. Every call is bounded by the
// configured timeout and is never retried. It is safe for concurrent use.
type Client struct {
	http        *http.Client
	baseURL     string
	userAgent   string
	timeout     time.Duration
	stripTokens []string
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: newTransport(opts.ChromeTLS)}
	}
	return &Client{
		http:        hc,
		baseURL:     opts.BaseURL,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		stripTokens: opts.StripTokens,
	}
}

// newTransport returns an http/1.1 transport, optionally with a Chrome
// ClientHello for https hosts. Plain http targets are dialed normally.
func newTransport(chromeTLS bool) *http.Transport {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     false,
	}
	if !chromeTLS {
		return transport
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("archive: apply tls spec: %w", err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return transport
}

// BaseURL returns the archive host the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// UserAgentString returns the user agent sent on every request.
func (c *Client) UserAgentString() string { return c.userAgent }

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Item normalizes identifier against the client's base URL.
func (c *Client) Item(identifier string) Item {
	return NewItem(c.baseURL, identifier, c.stripTokens)
}

// Get fetches targetURL and returns the body. Non-2xx responses are
// reported as *StatusError.
func (c *Client) Get(ctx context.Context, targetURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("archive: read body: %w", err)
	}
	return body, nil
}
