package core

// convert.go parses the text cells of the list into typed values.
//
// Cells are untrusted text. None of these functions fail: malformed input
// yields the zero value so one bad cell never aborts a pass.

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseInt parses a base-10 integer. Surrounding whitespace is ignored;
// non-numeric or out-of-range input yields 0.
func ParseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseInt32 is ParseInt for cells stored in 32-bit columns. Values outside
// the int32 range yield 0.
func ParseInt32(s string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

// ParseDuration converts "H:M:S", "M:S" or "S" into seconds.
// Each component is trimmed and must be a complete integer; any malformed
// component, more than three components, or a total outside 0..MaxInt32
// yields 0.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	if total < 0 || total > math.MaxInt32 {
		return 0
	}
	return int(total)
}

// ParseFlag interprets a boolean cell. Only the literals "false", "FALSE"
// and "0" are false; everything else, including an empty cell, is true.
func ParseFlag(s string) bool {
	switch s {
	case "false", "FALSE", "0":
		return false
	default:
		return true
	}
}

// DeriveURL expands a compact URL variant against the primary URL.
//
// A cell of the form "<offset>|<suffix>" means the first offset bytes of the
// primary URL followed by suffix. The offset is clamped to the primary URL.
// A cell without a separator is already a complete URL.
func DeriveURL(primary, cell string) string {
	if cell == "" {
		return ""
	}
	sep := strings.IndexByte(cell, '|')
	if sep < 0 {
		return cell
	}

	offset := ParseInt(cell[:sep])
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(primary)) {
		offset = int64(len(primary))
	}
	return primary[:offset] + cell[sep+1:]
}

// parseTimestamp parses value with layout in loc and returns unix seconds,
// or 0 when the value does not match the layout.
func parseTimestamp(layout, value string, loc *time.Location) int64 {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), loc)
	if err != nil {
		return 0
	}
	return t.Unix()
}
