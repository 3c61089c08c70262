package transfer

// Range is an inclusive byte range [Start, End].
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

// SegmentCount applies the size staircase to a requested count:
// below 4 MiB one segment, below 32 MiB at most two, below 128 MiB at most
// four, otherwise the requested count. requested <= 0 means DefaultSegments.
func SegmentCount(size int64, requested int) int {
	if requested <= 0 {
		requested = DefaultSegments
	}
	switch {
	case size < singleSegmentBelow:
		return 1
	case size < twoSegmentsBelow:
		return min(2, requested)
	case size < fourSegmentsBelow:
		return min(4, requested)
	default:
		return requested
	}
}

// PlanSegments partitions [0, size) into n even ranges; the last one absorbs
// the remainder.
func PlanSegments(size int64, n int) []Range {
	if size <= 0 || n <= 0 {
		return nil
	}
	if int64(n) > size {
		n = int(size)
	}
	each := size / int64(n)
	ranges := make([]Range, n)
	for i := range ranges {
		ranges[i].Start = int64(i) * each
		ranges[i].End = ranges[i].Start + each - 1
	}
	ranges[n-1].End = size - 1
	return ranges
}
