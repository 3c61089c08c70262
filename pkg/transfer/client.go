package transfer

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const maxRedirects = 10

// ClientFactory builds the HTTP client of a task. It is called again after
// every pause so that a stalled connection is never reused.
type ClientFactory func(p *ProxyOptions) (*http.Client, error)

// URL renders the proxy as scheme://[user[:pass]@]host:port.
func (p *ProxyOptions) URL() *url.URL {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{Scheme: scheme, Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// NewHTTPClient is the default ClientFactory. It uses a fresh transport,
// routes through p when set and applies the redirect policy.
func NewHTTPClient(p *ProxyOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   DefaultSegments,
	}
	if p != nil {
		pu := p.URL()
		switch pu.Scheme {
		case "socks5":
			var auth *proxy.Auth
			if p.User != "" {
				auth = &proxy.Auth{User: p.User, Password: p.Password}
			}
			dialer, err := proxy.SOCKS5("tcp", pu.Host, auth, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
			}
			transport.Proxy = nil
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.Dial = dialer.Dial //nolint:staticcheck
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(pu)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, pu.Scheme)
		}
	}
	return &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy(maxRedirects),
	}, nil
}

// redirectPolicy caps the hop count, refuses to leave http(s) and drops
// credentials and custom headers when the host changes.
func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("%w: exceeded %d hops (last URL: %s)",
				ErrTooManyHops, max, via[len(via)-1].URL)
		}
		if len(via) == 0 {
			return nil
		}
		prev := via[len(via)-1]
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("%w: %s -> %s", ErrCrossProtocol, prev.URL.Scheme, req.URL.Scheme)
		}
		if prev.URL.Host != req.URL.Host {
			for key := range req.Header {
				if !redirectSafe[http.CanonicalHeaderKey(key)] {
					req.Header.Del(key)
				}
			}
		}
		return nil
	}
}

var redirectSafe = map[string]bool{
	"User-Agent":      true,
	"Accept":          true,
	"Accept-Language": true,
	"Accept-Encoding": true,
	"Range":           true,
	"If-Range":        true,
}

// applyNetwork sets the user agent, cookie, basic auth and custom headers.
func applyNetwork(req *http.Request, n *NetworkOptions, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	if n == nil {
		return
	}
	if n.Cookie != "" {
		req.Header.Set("Cookie", n.Cookie)
	}
	if n.AuthUser != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(n.AuthUser + ":" + n.AuthPassword))
		req.Header.Set("Authorization", "Basic "+cred)
	}
	for k, v := range n.Headers {
		switch http.CanonicalHeaderKey(k) {
		case "Range", "If-Range":
			continue
		}
		req.Header.Set(k, v)
	}
}
