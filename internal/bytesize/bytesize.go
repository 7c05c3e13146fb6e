// Package bytesize parses and formats human-readable byte sizes used in the
// server configuration ("64Ki", "16MiB", "128KB", "65536").
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ByteSize is a size in bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

var units = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
}

// Parse parses s as a number with an optional binary (Ki, Mi, Gi) or
// decimal (K, M, G) suffix. Fractions are allowed when a suffix is present.
func Parse(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	num, unit := s, ""
	if split >= 0 {
		num, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	mult, ok := units[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", unit)
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n) * mult, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText renders exact binary multiples with their suffix so that a
// saved configuration parses back to the same value.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range []struct {
		size ByteSize
		name string
	}{{GiB, "Gi"}, {MiB, "Mi"}, {KiB, "Ki"}} {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.name), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

func (b ByteSize) String() string {
	text, _ := b.MarshalText()
	return string(text)
}

// Int returns the size as an int, saturating on overflow.
func (b ByteSize) Int() int {
	const maxInt = int(^uint(0) >> 1)
	if uint64(b) > uint64(maxInt) {
		return maxInt
	}
	return int(b)
}
