// Package wire holds the message envelope shared by the network drivers: header
// names and the portable encoding of typed message properties.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

const (
	HeaderProperties  = "Bmq-Properties"
	HeaderCompression = "Bmq-Compression"
	HeaderGUID        = "Bmq-Guid"
)

var ErrMalformedProperties = errors.New("malformed message properties")

type property struct {
	Name  string          `json:"n"`
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

// MarshalProperties encodes p so that every value keeps its exact type across the
// wire. Names are sorted for stable output. Empty sets encode to nil. Text that is
// not valid UTF-8 is rejected, since JSON would rewrite it.
func MarshalProperties(p bmqt.MessageProperties) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}

	slices.Sort(names)

	out := make([]property, 0, len(p))

	for _, name := range names {
		raw, err := marshalValue(p[name])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}

		out = append(out, property{Name: name, Type: p[name].Type().String(), Value: raw})
	}

	return json.Marshal(out)
}

// UnmarshalProperties is the inverse of MarshalProperties.
func UnmarshalProperties(data []byte) (bmqt.MessageProperties, error) {
	if len(data) == 0 {
		return bmqt.MessageProperties{}, nil
	}

	var in []property
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProperties, err)
	}

	out := make(bmqt.MessageProperties, len(in))

	for _, prop := range in {
		typ, ok := bmqt.ParsePropertyType(prop.Type)
		if !ok {
			return nil, fmt.Errorf("%w: property %q has unknown type %q", ErrMalformedProperties, prop.Name, prop.Type)
		}

		v, err := unmarshalValue(typ, prop.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: property %q: %w", ErrMalformedProperties, prop.Name, err)
		}

		out[prop.Name] = v
	}

	return out, nil
}

func marshalValue(v bmqt.PropertyValue) (json.RawMessage, error) {
	var x any

	switch v.Type() {
	case bmqt.PropertyTypeBool:
		x, _ = v.Bool()
	case bmqt.PropertyTypeChar:
		x, _ = v.Char()
	case bmqt.PropertyTypeShort:
		x, _ = v.Short()
	case bmqt.PropertyTypeInt32:
		x, _ = v.Int32()
	case bmqt.PropertyTypeInt64:
		x, _ = v.Int64()
	case bmqt.PropertyTypeString:
		x, _ = v.Str()
	case bmqt.PropertyTypeBinary:
		x, _ = v.Binary()
	default:
		return nil, bmqt.ErrInvalidProperty
	}

	return json.Marshal(x)
}

func unmarshalValue(typ bmqt.PropertyType, raw json.RawMessage) (bmqt.PropertyValue, error) {
	switch typ {
	case bmqt.PropertyTypeBool:
		var b bool
		err := json.Unmarshal(raw, &b)

		return bmqt.BoolProperty(b), err
	case bmqt.PropertyTypeChar:
		var c int8
		err := json.Unmarshal(raw, &c)

		return bmqt.CharProperty(c), err
	case bmqt.PropertyTypeShort:
		var s int16
		err := json.Unmarshal(raw, &s)

		return bmqt.ShortProperty(s), err
	case bmqt.PropertyTypeInt32:
		var i int32
		err := json.Unmarshal(raw, &i)

		return bmqt.Int32Property(i), err
	case bmqt.PropertyTypeInt64:
		var i int64
		err := json.Unmarshal(raw, &i)

		return bmqt.Int64Property(i), err
	case bmqt.PropertyTypeString:
		var s string
		err := json.Unmarshal(raw, &s)

		return bmqt.StringProperty(s), err
	case bmqt.PropertyTypeBinary:
		var b []byte
		err := json.Unmarshal(raw, &b)

		return bmqt.BinaryProperty(b), err
	default:
		return bmqt.PropertyValue{}, bmqt.ErrInvalidProperty
	}
}
