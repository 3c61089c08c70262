package transfer

import "time"

// Size unit constants for byte conversions.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
)

const (
	DefaultUserAgent = "raad/1.0"
	DefaultSegments  = 8

	// readChunk is the network read size of one segment or stream.
	readChunk = 32 * KB
	// highWater is the buffered byte count at which a reader stops reading
	// until the throttle drains its buffer.
	highWater = 1 * MB
	// mergeChunk is the copy size used when concatenating segment files.
	mergeChunk = 1 * MB

	throttleRetry  = 50 * time.Millisecond
	throttleWindow = time.Second
	speedInterval  = 500 * time.Millisecond

	speedHistory = 64
	logHistory   = 200
)

// Staircase thresholds for SegmentCount.
const (
	singleSegmentBelow = 4 * MB
	twoSegmentsBelow   = 32 * MB
	fourSegmentsBelow  = 128 * MB
)
