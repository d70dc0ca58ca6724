package bmqt

import (
	"fmt"
	"strings"
)

// CompressionType selects the payload compression applied on post.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionZlib
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionZlib:
		return "ZLIB"
	default:
		return fmt.Sprintf("CompressionType(%d)", int(c))
	}
}

func (c CompressionType) Valid() bool {
	return c == CompressionNone || c == CompressionZlib
}

// ParseCompressionType accepts the case-insensitive names "none" and "zlib".
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression type %q", s)
	}
}

// Decode implements envconfig.Decoder.
func (c *CompressionType) Decode(value string) error {
	parsed, err := ParseCompressionType(value)
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}
