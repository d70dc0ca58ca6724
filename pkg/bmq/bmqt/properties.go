package bmqt

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const (
	MaxPropertyNameLength = 4095
	MaxProperties         = 255
)

var (
	ErrEmptyPropertyName   = errors.New("property name is empty")
	ErrPropertyNameTooLong = errors.New("property name too long")
	ErrTooManyProperties   = errors.New("too many properties")
	ErrInvalidProperty     = errors.New("property value has no type")
	ErrInvalidUTF8         = errors.New("property text is not valid UTF-8")
)

// PropertyType tags the variant held by a PropertyValue.
type PropertyType int

const (
	PropertyTypeUndefined PropertyType = iota
	PropertyTypeBool
	PropertyTypeChar
	PropertyTypeShort
	PropertyTypeInt32
	PropertyTypeInt64
	PropertyTypeString
	PropertyTypeBinary
)

var propertyTypeNames = map[PropertyType]string{
	PropertyTypeUndefined: "UNDEFINED",
	PropertyTypeBool:      "BOOL",
	PropertyTypeChar:      "CHAR",
	PropertyTypeShort:     "SHORT",
	PropertyTypeInt32:     "INT32",
	PropertyTypeInt64:     "INT64",
	PropertyTypeString:    "STRING",
	PropertyTypeBinary:    "BINARY",
}

func (t PropertyType) String() string {
	if name, ok := propertyTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("PropertyType(%d)", int(t))
}

// ParsePropertyType is the inverse of PropertyType.String.
func ParsePropertyType(s string) (PropertyType, bool) {
	for t, name := range propertyTypeNames {
		if name == s && t != PropertyTypeUndefined {
			return t, true
		}
	}

	return PropertyTypeUndefined, false
}

// PropertyValue is a closed tagged union of the value kinds a message property can carry.
// The zero value is undefined and rejected on post.
type PropertyValue struct {
	kind PropertyType
	num  int64
	str  string
	bin  []byte
}

func BoolProperty(v bool) PropertyValue {
	var n int64
	if v {
		n = 1
	}

	return PropertyValue{kind: PropertyTypeBool, num: n}
}

func CharProperty(v int8) PropertyValue {
	return PropertyValue{kind: PropertyTypeChar, num: int64(v)}
}

func ShortProperty(v int16) PropertyValue {
	return PropertyValue{kind: PropertyTypeShort, num: int64(v)}
}

func Int32Property(v int32) PropertyValue {
	return PropertyValue{kind: PropertyTypeInt32, num: int64(v)}
}

func Int64Property(v int64) PropertyValue {
	return PropertyValue{kind: PropertyTypeInt64, num: v}
}

func StringProperty(v string) PropertyValue {
	return PropertyValue{kind: PropertyTypeString, str: v}
}

// BinaryProperty copies v.
func BinaryProperty(v []byte) PropertyValue {
	return PropertyValue{kind: PropertyTypeBinary, bin: bytes.Clone(v)}
}

func (v PropertyValue) Type() PropertyType { return v.kind }

func (v PropertyValue) Bool() (bool, bool) {
	return v.num != 0, v.kind == PropertyTypeBool
}

func (v PropertyValue) Char() (int8, bool) {
	return int8(v.num), v.kind == PropertyTypeChar
}

func (v PropertyValue) Short() (int16, bool) {
	return int16(v.num), v.kind == PropertyTypeShort
}

func (v PropertyValue) Int32() (int32, bool) {
	return int32(v.num), v.kind == PropertyTypeInt32
}

func (v PropertyValue) Int64() (int64, bool) {
	return v.num, v.kind == PropertyTypeInt64
}

func (v PropertyValue) Str() (string, bool) {
	return v.str, v.kind == PropertyTypeString
}

func (v PropertyValue) Binary() ([]byte, bool) {
	return v.bin, v.kind == PropertyTypeBinary
}

// Text renders the value without its type tag; binary values are rendered as hex.
func (v PropertyValue) Text() string {
	switch v.kind {
	case PropertyTypeBool:
		return strconv.FormatBool(v.num != 0)
	case PropertyTypeChar, PropertyTypeShort, PropertyTypeInt32, PropertyTypeInt64:
		return strconv.FormatInt(v.num, 10)
	case PropertyTypeString:
		return v.str
	case PropertyTypeBinary:
		return fmt.Sprintf("%x", v.bin)
	default:
		return ""
	}
}

func (v PropertyValue) String() string {
	return v.kind.String() + ":" + v.Text()
}

func (v PropertyValue) Equal(o PropertyValue) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str && bytes.Equal(v.bin, o.bin)
}

// MessageProperties is the opaque key/value bag attached to a message.
type MessageProperties map[string]PropertyValue

// Validate checks property count and names, and rejects undefined values. Names and
// string values must be valid UTF-8.
func (p MessageProperties) Validate() error {
	if len(p) > MaxProperties {
		return fmt.Errorf("%w: %d > %d", ErrTooManyProperties, len(p), MaxProperties)
	}

	for name, value := range p {
		switch {
		case name == "":
			return ErrEmptyPropertyName
		case len(name) > MaxPropertyNameLength:
			return fmt.Errorf("%w: %d > %d", ErrPropertyNameTooLong, len(name), MaxPropertyNameLength)
		case !utf8.ValidString(name):
			return fmt.Errorf("%w: name %q", ErrInvalidUTF8, name)
		case value.kind == PropertyTypeUndefined:
			return fmt.Errorf("%w: %q", ErrInvalidProperty, name)
		case value.kind == PropertyTypeString && !utf8.ValidString(value.str):
			return fmt.Errorf("%w: value of %q", ErrInvalidUTF8, name)
		}
	}

	return nil
}

// Clone returns a deep copy. Binary values are copied.
func (p MessageProperties) Clone() MessageProperties {
	if p == nil {
		return MessageProperties{}
	}

	out := make(MessageProperties, len(p))
	for k, v := range p {
		if v.kind == PropertyTypeBinary {
			v.bin = bytes.Clone(v.bin)
		}
		out[k] = v
	}

	return out
}
