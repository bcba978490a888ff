package firmware

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion parses a firmware version. Dotted versions pack one byte per
// part from the most significant byte down, so "2.0.1" is 0x02000100.
// Anything else is read as an integer with Go prefix rules ("0x00010000",
// "65536").
func ParseVersion(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty version")
	}

	if !strings.Contains(s, ".") {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		return uint32(v), nil
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("invalid version %q: at most 4 parts", s)
	}

	var v uint32
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: part %d: %w", s, i+1, err)
		}
		v |= uint32(n) << (24 - 8*i)
	}
	return v, nil
}

// FormatVersion renders v as major.minor.patch.build.
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
