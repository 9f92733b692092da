package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing.
// It extends raw byte counts with support for binary units.
//
// Examples:
//   - "4GB" = 4 * 1024^3 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "500KB" = 500 * 1024 bytes
//   - "5242880" = 5242880 bytes (raw number still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type ByteSize int64

// Common size constants using binary (1024) base.
const (
	Byte     ByteSize = 1
	Kibibyte ByteSize = 1024
	Mebibyte ByteSize = 1024 * Kibibyte
	Gibibyte ByteSize = 1024 * Mebibyte
	Tebibyte ByteSize = 1024 * Gibibyte
)

// unitMultipliers maps unit names (lowercased) to their byte multiplier.
var unitMultipliers = map[string]ByteSize{
	"b": Byte, "byte": Byte, "bytes": Byte,
	"k": Kibibyte, "kb": Kibibyte, "kib": Kibibyte,
	"m": Mebibyte, "mb": Mebibyte, "mib": Mebibyte,
	"g": Gibibyte, "gb": Gibibyte, "gib": Gibibyte,
	"t": Tebibyte, "tb": Tebibyte, "tib": Tebibyte,
}

// sizePattern matches a number (int or float) followed by an optional unit.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string. If no unit is
// specified, bytes are assumed.
func ParseByteSize(s string) (ByteSize, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier := Byte
	if unit := strings.ToLower(matches[2]); unit != "" {
		var ok bool
		multiplier, ok = unitMultipliers[unit]
		if !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", matches[2])
		}
	}

	return ByteSize(value * float64(multiplier)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a raw number of bytes for backwards compatibility.
		var raw int64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*b = ByteSize(raw)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String returns a human-readable string representation, using the
// largest unit that divides the size evenly, otherwise a decimal value.
func (b ByteSize) String() string {
	switch {
	case b == 0:
		return "0B"
	case b%Tebibyte == 0:
		return fmt.Sprintf("%dTB", b/Tebibyte)
	case b%Gibibyte == 0:
		return fmt.Sprintf("%dGB", b/Gibibyte)
	case b%Mebibyte == 0:
		return fmt.Sprintf("%dMB", b/Mebibyte)
	case b%Kibibyte == 0:
		return fmt.Sprintf("%dKB", b/Kibibyte)
	default:
		return strconv.FormatInt(int64(b), 10)
	}
}
