package pathutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// NormalizePath converts file:// URLs to local paths and cleans the result.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "file://") {
		if u, err := url.Parse(p); err == nil && u.Path != "" {
			p = u.Path
		}
	}
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// taken reports whether p or its single-stream temp file exists.
func taken(fs afero.Fs, p string) bool {
	for _, c := range []string{p, p + ".part", p + ".part0"} {
		if ok, _ := afero.Exists(fs, c); ok {
			return true
		}
	}
	return false
}

// UniquePath returns p when neither it nor its temp files exist, else the
// first free "base (N).ext" in the same directory. reserved lists paths
// already claimed by tasks that have not written anything yet.
func UniquePath(fs afero.Fs, p string, reserved map[string]bool) string {
	p = NormalizePath(p)
	if p == "" || (!taken(fs, p) && !reserved[p]) {
		return p
	}
	dir, file := filepath.Split(p)
	base, ext := splitExt(file)
	for i := 1; i < 10000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if !taken(fs, candidate) && !reserved[candidate] {
			return candidate
		}
	}
	return p
}

// splitExt keeps compound extensions such as ".tar.gz" together.
func splitExt(name string) (base, ext string) {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// NormalizeHost lowercases a host and strips any scheme and path, so
// "HTTPS://Example.com/x" becomes "example.com".
func NormalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return ""
	}
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil {
			h = u.Host
		}
	}
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	return h
}

// HostOf returns the normalized host of a URL.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
