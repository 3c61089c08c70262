package transfer

import "errors"

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrInvalidSegments   = errors.New("segment count must not be negative")
	ErrInvalidRetry      = errors.New("retry values below -1 are not allowed")
	ErrReservedHeader    = errors.New("range headers are managed by the engine")
	ErrInvalidProxy      = errors.New("invalid proxy")
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

	ErrStatus        = errors.New("unexpected http status")
	ErrShortBody     = errors.New("response body ended before the expected length")
	ErrMergeSize     = errors.New("segment file size does not match its range")
	ErrTooManyHops   = errors.New("redirect loop detected")
	ErrCrossProtocol = errors.New("cross-protocol redirect not supported")
)
