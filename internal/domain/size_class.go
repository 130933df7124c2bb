package domain

import (
	"fmt"
	"strings"
)

// SizeClass is an ordered runner capacity tier
type SizeClass int

// Runner size classes, smallest first
const (
	SizeSmall SizeClass = iota + 1
	SizeMedium
	SizeLarge
	SizeXLarge
)

// ParseSizeClass parses a size class name (case-insensitive)
func ParseSizeClass(value string) (SizeClass, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "small":
		return SizeSmall, nil
	case "medium":
		return SizeMedium, nil
	case "large":
		return SizeLarge, nil
	case "xlarge":
		return SizeXLarge, nil
	default:
		return 0, fmt.Errorf("invalid size class %q: must be small, medium, large, or xlarge", value)
	}
}

// Valid reports whether c is one of the defined classes
func (c SizeClass) Valid() bool {
	return c >= SizeSmall && c <= SizeXLarge
}

// Compare returns -1, 0 or 1 as c is smaller than, equal to or larger than other
func (c SizeClass) Compare(other SizeClass) int {
	switch {
	case c < other:
		return -1
	case c > other:
		return 1
	default:
		return 0
	}
}

// String returns the lowercase name
func (c SizeClass) String() string {
	switch c {
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	case SizeXLarge:
		return "xlarge"
	default:
		return "unknown"
	}
}

// MarshalText encodes the class by name
func (c SizeClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid size class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name
func (c *SizeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseSizeClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
