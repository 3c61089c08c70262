package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ProbeResult is what a HEAD request tells about a resource.
type ProbeResult struct {
	// Length is the Content-Length, -1 when the server did not send one.
	Length       int64
	ETag         string
	LastModified string
	AcceptRanges bool
	ContentType  string
	Disposition  string
	// FinalURL is the URL after redirects.
	FinalURL string
	Status   int
}

// Validator returns the If-Range value: ETag when present, else Last-Modified.
func (p *ProbeResult) Validator() string {
	if p.ETag != "" {
		return p.ETag
	}
	return p.LastModified
}

// Probe issues a HEAD request against rawURL. Statuses of 400 and above are
// returned as errors wrapping ErrStatus.
func Probe(ctx context.Context, client *http.Client, rawURL string, n *NetworkOptions, userAgent string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	applyNetwork(req, n, userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	res := &ProbeResult{
		Length:       -1,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		AcceptRanges: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		ContentType:  resp.Header.Get("Content-Type"),
		Disposition:  resp.Header.Get("Content-Disposition"),
		FinalURL:     resp.Request.URL.String(),
		Status:       resp.StatusCode,
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil && v >= 0 {
			res.Length = v
		}
	}
	return res, nil
}
