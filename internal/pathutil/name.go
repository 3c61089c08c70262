// Package pathutil resolves download file names and destinations.
package pathutil

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var dispositionRe = regexp.MustCompile(`filename\*?=(?:UTF-8''|"?)([^";]+)`)

// decodeQuery undoes form encoding ('+' for space, percent escapes).
func decodeQuery(v string) string {
	if d, err := url.QueryUnescape(v); err == nil {
		return d
	}
	return strings.ReplaceAll(v, "+", " ")
}

// FileNameFromDisposition extracts the file name from a Content-Disposition
// value, falling back to a lenient pattern for malformed headers.
func FileNameFromDisposition(value string) string {
	if value == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(value); err == nil {
		if fn := params["filename"]; fn != "" {
			return strings.TrimSpace(fn)
		}
	}
	if m := dispositionRe.FindStringSubmatch(decodeQuery(value)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// FileNameFromURL infers a name from signed-URL query parameters
// (response-content-disposition, content-disposition, rscd, filename) and
// otherwise from the last path element.
func FileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"response-content-disposition", "content-disposition", "rscd"} {
		if v := q.Get(key); v != "" {
			if fn := FileNameFromDisposition(v); fn != "" {
				return fn
			}
		}
	}
	if fn := q.Get("filename"); fn != "" {
		return fn
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if d, err := url.PathUnescape(base); err == nil {
		base = d
	}
	return base
}

// LooksLikeGUID reports whether name, without extension, is a UUID such as
// the opaque names some CDNs serve.
func LooksLikeGUID(name string) bool {
	base := strings.TrimSuffix(name, path.Ext(name))
	if len(base) != 36 {
		return false
	}
	_, err := uuid.Parse(base)
	return err == nil
}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename replaces characters that are invalid on common file
// systems, drops control characters and escapes reserved device names.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 32:
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.TrimRight(name, ". ")
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}
	if reservedNames[strings.ToUpper(base)] {
		base = "_" + base
	}
	return base + ext
}
