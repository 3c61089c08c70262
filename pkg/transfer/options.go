package transfer

import (
	"fmt"
	"net/url"
	"strings"
)

// Options is the typed per-task configuration.
type Options struct {
	// Segments is the requested connection count; 0 selects DefaultSegments.
	Segments int
	// Mirrors are alternate URLs tried in order after the primary one fails.
	Mirrors []string
	// MaxSpeed is the task's own cap in bytes per second, 0 for none.
	MaxSpeed int64

	Network  NetworkOptions
	Checksum ChecksumOptions
	Retry    RetryOptions
	Post     PostActions
}

// DefaultOptions returns Options that inherit every manager default.
func DefaultOptions() Options {
	return Options{Retry: InheritRetry}
}

// NetworkOptions are attached to every request of a task.
type NetworkOptions struct {
	Headers      map[string]string
	Cookie       string
	AuthUser     string
	AuthPassword string
	Proxy        *ProxyOptions
}

// ProxyOptions describes an outgoing proxy. Scheme is "http" (default),
// "https" or "socks5".
type ProxyOptions struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
}

// ChecksumOptions describes the expected digest of the finished file.
type ChecksumOptions struct {
	Algorithm        string
	Expected         string
	VerifyOnComplete bool
}

// RetryOptions override the manager defaults; -1 inherits.
type RetryOptions struct {
	Max      int
	DelaySec int
}

// InheritRetry is the RetryOptions value that defers to the manager.
var InheritRetry = RetryOptions{Max: -1, DelaySec: -1}

// PostActions run after a successful download.
type PostActions struct {
	OpenFile     bool
	RevealFolder bool
	Extract      bool
	Script       string
}

// Any reports whether at least one post action is configured.
func (p PostActions) Any() bool {
	return p.OpenFile || p.RevealFolder || p.Extract || strings.TrimSpace(p.Script) != ""
}

// Validate checks option values at the boundary. Range and If-Range headers
// are rejected since the engine owns them.
func (o *Options) Validate() error {
	if o.Segments < 0 {
		return ErrInvalidSegments
	}
	if o.MaxSpeed < 0 {
		return fmt.Errorf("max speed %d: must not be negative", o.MaxSpeed)
	}
	if o.Retry.Max < -1 || o.Retry.DelaySec < -1 {
		return ErrInvalidRetry
	}
	for _, m := range o.Mirrors {
		if err := ValidateURL(m); err != nil {
			return fmt.Errorf("mirror %q: %w", m, err)
		}
	}
	for k := range o.Network.Headers {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "range", "if-range":
			return fmt.Errorf("%w: %s", ErrReservedHeader, k)
		case "":
			return fmt.Errorf("empty header name")
		}
	}
	if p := o.Network.Proxy; p != nil {
		if p.Host == "" || p.Port <= 0 || p.Port > 65535 {
			return ErrInvalidProxy
		}
		switch p.Scheme {
		case "", "http", "https", "socks5":
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedScheme, p.Scheme)
		}
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// ParseHeaderLines turns "Key: Value" lines into a header map. Lines without
// a colon and engine owned headers are skipped.
func ParseHeaderLines(lines []string) map[string]string {
	headers := make(map[string]string)
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "range", "if-range":
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
