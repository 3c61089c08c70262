// Package checksum computes and compares file digests for finished downloads.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
	"unicode"

	"github.com/spf13/afero"
)

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

const chunkSize = 1 << 20

var ErrUnsupported = errors.New("unsupported checksum algorithm")

// ParseAlgorithm accepts the usual spellings ("sha-256", "SHA256", "md5").
// The empty string yields "".
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	switch Algorithm(norm) {
	case "":
		return "", nil
	case MD5, SHA1, SHA256, SHA512:
		return Algorithm(norm), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, s)
}

// Infer picks the algorithm for an expected digest. An explicit algorithm
// wins; otherwise the hex length decides (32 MD5, 40 SHA1, 64 SHA256,
// 128 SHA512) and anything else falls back to SHA256.
func Infer(expected string, explicit Algorithm) Algorithm {
	if explicit != "" {
		return explicit
	}
	switch len(Normalize(expected)) {
	case 32:
		return MD5
	case 40:
		return SHA1
	case 128:
		return SHA512
	default:
		return SHA256
	}
}

// Normalize lowercases a hex digest and strips all whitespace.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// Equal compares two digests after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// NewHasher creates a hash.Hash for algo.
func NewHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algo)
	}
}

// Sum hashes the file at path in 1 MiB chunks and returns the lowercase hex
// digest. It stops early when ctx is canceled.
func Sum(ctx context.Context, fs afero.Fs, path string, algo Algorithm) (string, error) {
	h, err := NewHasher(algo)
	if err != nil {
		return "", err
	}
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", rerr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
