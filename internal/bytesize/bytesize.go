// Package bytesize parses human-readable size strings such as the
// querysync config file's "256MiB" MaxCacheSize fields into a plain
// byte count.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a count of bytes that unmarshals from strings like "1Gi",
// "500Mi", "100MB", or a bare integer.
//
// Supported units:
//   - no suffix or "b": bytes
//   - decimal (×1000): k/kb, m/mb, g/gb, t/tb
//   - binary (×1024): ki/kib, mi/mib, gi/gib, ti/tib
//
// Matching is case-insensitive, so "1gi" and "1Gi" parse identically.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000 * B
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024 * B
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"t":   TB,
	"tb":  TB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
	"ti":  TiB,
	"tib": TiB,
}

// ParseByteSize parses strings like "1Gi", "500Mi", "100MB", or "1024"
// into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("bytesize: empty size string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	numStr, unit := m[1], strings.ToLower(m[2])
	multiplier, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q in %q", m[2], s)
	}

	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("bytesize: invalid number %q: %w", numStr, err)
		}
		return ByteSize(num * float64(multiplier)), nil
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", numStr, err)
	}
	return ByteSize(num) * multiplier, nil
}

// UnmarshalText implements encoding.TextUnmarshaler, letting pkg/config's
// mapstructure decode hook turn a YAML/env string straight into a
// ByteSize field.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the largest binary unit that keeps the value >= 1, two
// decimal places, e.g. "256.00MiB".
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Uint64 returns the size as a uint64; pkg/fetchers/badger converts it to
// the int64 that badger.Options' block cache size takes.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the size as an int64. Values above math.MaxInt64 wrap;
// no config field in this repo approaches that range.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
