package httpapi

import (
	"strconv"
	"strings"

	"github.com/rustic-rs/rustic-server/internal/apierr"
)

// parseRange parses a single RFC 7233 byte-range-spec (e.g.
// "bytes=2-5" or "bytes=-3") against an object of the given size and
// returns the (offset, length) pair the Storage Engine expects.
// Multipart ranges ("bytes=0-1,3-4") are rejected with 416, per
// spec.md §4.6.
func parseRange(header string, size int64) (offset, length int64, err *apierr.Error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, rangeNotSatisfiable("unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, rangeNotSatisfiable("multipart ranges not supported")
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, rangeNotSatisfiable("malformed range")
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// suffix range: "bytes=-N" means the last N bytes.
		n, perr := strconv.ParseInt(endStr, 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, rangeNotSatisfiable("malformed suffix range")
		}
		if n > size {
			n = size
		}
		return size - n, n, nil
	}

	start, perr := strconv.ParseInt(startStr, 10, 64)
	if perr != nil || start < 0 {
		return 0, 0, rangeNotSatisfiable("malformed range start")
	}
	if start >= size {
		return 0, 0, rangeNotSatisfiable("range start beyond object size")
	}

	if endStr == "" {
		return start, size - start, nil
	}

	end, perr := strconv.ParseInt(endStr, 10, 64)
	if perr != nil || end < start {
		return 0, 0, rangeNotSatisfiable("malformed range end")
	}
	if end >= size {
		end = size - 1
	}
	return start, end - start + 1, nil
}

func contentRange(start, end, size int64) string {
	return "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(size, 10)
}

func rangeNotSatisfiable(msg string) *apierr.Error {
	return apierr.RangeNotSatisfiable(msg)
}
