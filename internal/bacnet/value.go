package bacnet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the Value tagged union.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindUint
	KindInt
	KindReal
	KindString
	KindEnum
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Value is the tagged union carried between the wire codec, the JSON
// payload builders, and the write encoder. Exactly one field matching Kind
// is meaningful.
type Value struct {
	Kind Kind

	Bool   bool
	Uint   uint64
	Int    int64
	Real   float64
	String string
	Enum   uint32
}

// Constructors for each kind.

// NullValue returns the Null value (used for write-release).
func NullValue() Value { return Value{Kind: KindNull} }

// BoolValue wraps a boolean.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// UintValue wraps an unsigned integer.
func UintValue(v uint64) Value { return Value{Kind: KindUint, Uint: v} }

// IntValue wraps a signed integer.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// RealValue wraps a float.
func RealValue(v float64) Value { return Value{Kind: KindReal, Real: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{Kind: KindString, String: v} }

// EnumValue wraps an enumerated value.
func EnumValue(v uint32) Value { return Value{Kind: KindEnum, Enum: v} }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float returns the value as a float64 where that conversion is lossless
// in spirit (numeric and boolean kinds). ok is false for strings and Null.
func (v Value) Float() (f float64, ok bool) {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindUint:
		return float64(v.Uint), true
	case KindInt:
		return float64(v.Int), true
	case KindReal:
		return v.Real, true
	case KindEnum:
		return float64(v.Enum), true
	default:
		return 0, false
	}
}

// DisplayString renders the value for the Point.lastValue column.
func (v Value) DisplayString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindUint:
		return strconv.FormatUint(v.Uint, 10)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindString:
		return v.String
	case KindEnum:
		return strconv.FormatUint(uint64(v.Enum), 10)
	default:
		return ""
	}
}

// MarshalJSON emits the host-native JSON form: numbers for numeric kinds,
// booleans, strings, and null. Non-finite floats are not JSON-safe and
// marshal as null; callers downgrade quality separately.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindUint:
		return json.Marshal(v.Uint)
	case KindInt:
		return json.Marshal(v.Int)
	case KindReal:
		if math.IsNaN(v.Real) || math.IsInf(v.Real, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Real)
	case KindString:
		return json.Marshal(v.String)
	case KindEnum:
		return json.Marshal(v.Enum)
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", ErrEncode, v.Kind)
	}
}

// IsJSONSafe reports whether the value marshals without coercion.
// Non-finite floats are coerced to null and flagged unsafe so the poller
// can downgrade quality to "uncertain".
func (v Value) IsJSONSafe() bool {
	if v.Kind == KindReal {
		return !math.IsNaN(v.Real) && !math.IsInf(v.Real, 0)
	}
	return true
}

// Tag is one application tag of a property value payload.
type Tag struct {
	Number uint8
	Data   []byte
}

// maxDecodedStringLength bounds the plain strings extractFromString passes
// through; a string of this length or longer is treated as a decode failure.
const maxDecodedStringLength = 100

// DecodeTags decodes a tagged payload into a host value.
//
// The first tag carrying non-empty data determines the value:
//
//	1 Boolean, 2 Unsigned, 3 Signed, 4 Real, 5 Double,
//	7 CharacterString, 9 Enumerated
//
// Any other tag number fails with an unknown-tag error; a payload with only
// empty tags fails with an empty-tag error.
func DecodeTags(tags []Tag) (Value, error) {
	var chosen *Tag
	for i := range tags {
		if len(tags[i].Data) > 0 {
			chosen = &tags[i]
			break
		}
	}
	if chosen == nil && len(tags) > 0 {
		chosen = &tags[0]
	}
	if chosen == nil || len(chosen.Data) == 0 {
		return Value{}, fmt.Errorf("%w: empty tag", ErrDecode)
	}

	data := chosen.Data
	switch chosen.Number {
	case tagBoolean:
		return BoolValue(data[0] != 0), nil
	case tagUnsigned:
		switch len(data) {
		case 1:
			return UintValue(uint64(data[0])), nil
		case 2:
			return UintValue(uint64(binary.BigEndian.Uint16(data))), nil
		case 4:
			return UintValue(uint64(binary.BigEndian.Uint32(data))), nil
		default:
			return UintValue(decodeUnsignedBytes(data)), nil
		}
	case tagSigned:
		switch len(data) {
		case 1:
			return IntValue(int64(int8(data[0]))), nil
		case 2:
			return IntValue(int64(int16(binary.BigEndian.Uint16(data)))), nil
		case 4:
			return IntValue(int64(int32(binary.BigEndian.Uint32(data)))), nil
		default:
			return IntValue(decodeSignedBytes(data)), nil
		}
	case tagReal:
		if len(data) != 4 {
			return Value{}, fmt.Errorf("%w: real needs 4 bytes, got %d", ErrDecode, len(data))
		}
		return RealValue(float64(math.Float32frombits(binary.BigEndian.Uint32(data)))), nil
	case tagDouble:
		if len(data) != 8 {
			return Value{}, fmt.Errorf("%w: double needs 8 bytes, got %d", ErrDecode, len(data))
		}
		return RealValue(math.Float64frombits(binary.BigEndian.Uint64(data))), nil
	case tagCharacterString:
		return StringValue(string(data)), nil
	case tagEnumerated:
		return EnumValue(uint32(decodeUnsignedBytes(data))), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown tag %d", ErrDecode, chosen.Number)
	}
}

// ExtractValue converts an arbitrary host representation into a Value.
//
// Host primitives pass through. A string that looks like an opaque object
// representation ("...object at...") cannot be recovered here and fails;
// other strings get a numeric parse, falling back to the string itself when
// shorter than 100 characters.
func ExtractValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return v, nil
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint32:
		return UintValue(uint64(v)), nil
	case uint64:
		return UintValue(v), nil
	case float32:
		return RealValue(float64(v)), nil
	case float64:
		return RealValue(v), nil
	case string:
		return extractFromString(v)
	default:
		return extractFromString(fmt.Sprint(raw))
	}
}

// extractFromString applies the string heuristics: opaque object
// representations are unrecoverable, numbers parse to numbers, and short
// strings pass through.
func extractFromString(s string) (Value, error) {
	trimmed := strings.TrimSpace(s)
	if strings.Contains(trimmed, "object at") {
		return Value{}, fmt.Errorf("%w: opaque object representation", ErrDecode)
	}
	if strings.Contains(trimmed, ".") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return RealValue(f), nil
		}
	} else if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IntValue(n), nil
	}
	if len(trimmed) < maxDecodedStringLength {
		return StringValue(trimmed), nil
	}
	return Value{}, fmt.Errorf("%w: string too long (%d chars)", ErrDecode, len(trimmed))
}

// EncodeWriteValue maps a host value onto the wire type the target object
// family expects:
//
//	analog*     → Real
//	binary*     → Unsigned 1|0
//	multiState* → Unsigned
//	release     → Null (erases any previous write at the target)
//
// Unconvertible host values fail with an encode error.
func EncodeWriteValue(objectType ObjectType, raw any, release bool) (Value, error) {
	if release {
		return NullValue(), nil
	}

	switch {
	case objectType.IsBinary():
		on, err := coerceBool(raw)
		if err != nil {
			return Value{}, err
		}
		if on {
			return UintValue(1), nil
		}
		return UintValue(0), nil
	case objectType.IsMultiState():
		f, err := coerceFloat(raw)
		if err != nil {
			return Value{}, err
		}
		if f < 0 {
			return Value{}, fmt.Errorf("%w: multi-state value must not be negative", ErrEncode)
		}
		return UintValue(uint64(f)), nil
	default:
		// Analog objects, and anything unrecognised, take a Real.
		f, err := coerceFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return RealValue(f), nil
	}
}

// coerceFloat converts JSON-decoded host values to float64.
func coerceFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrEncode, v)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, fmt.Errorf("%w: value is required when release is false", ErrEncode)
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrEncode, raw)
	}
}

// coerceBool converts JSON-decoded host values to a binary state.
func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "on", "active":
			return true, nil
		case "0", "false", "off", "inactive":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a binary state", ErrEncode, v)
	case nil:
		return false, fmt.Errorf("%w: value is required when release is false", ErrEncode)
	default:
		f, err := coerceFloat(raw)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}

// encodeApplication renders the value as application-tagged bytes for a
// WriteProperty payload.
func (v Value) encodeApplication() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return encodeAppNull(), nil
	case KindBool:
		return encodeAppBoolean(v.Bool), nil
	case KindUint:
		if v.Uint > math.MaxUint32 {
			return nil, fmt.Errorf("%w: unsigned value %d overflows wire form", ErrEncode, v.Uint)
		}
		return encodeAppUnsigned(uint32(v.Uint)), nil
	case KindInt:
		if v.Int > math.MaxInt32 || v.Int < math.MinInt32 {
			return nil, fmt.Errorf("%w: signed value %d overflows wire form", ErrEncode, v.Int)
		}
		return encodeAppSigned(int32(v.Int)), nil
	case KindReal:
		return encodeAppReal(float32(v.Real)), nil
	case KindString:
		return encodeAppCharacterString(v.String), nil
	case KindEnum:
		return encodeAppEnumerated(v.Enum), nil
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", ErrEncode, v.Kind)
	}
}

// ParseApplicationTags splits an application-tagged payload into its tags.
//
// Character strings drop their leading character-set byte so Tag.Data is
// the raw UTF-8 text; booleans synthesise a one-byte payload from the
// header's value nibble. Constructed data (opening/closing tags) is
// skipped; context tags are passed through by number for callers that
// need them.
func ParseApplicationTags(data []byte) ([]Tag, error) {
	var tags []Tag
	offset := 0
	for offset < len(data) {
		tagNumber, contextSpecific, length, headerLen, err := decodeTag(data[offset:])
		if err != nil {
			return nil, err
		}

		switch {
		case length == lengthOpening || length == lengthClosing:
			offset += headerLen
			continue
		case !contextSpecific && tagNumber == tagBoolean:
			value := byte(0)
			if length != 0 {
				value = 1
			}
			tags = append(tags, Tag{Number: tagBoolean, Data: []byte{value}})
			offset += headerLen
			continue
		}

		payload := data[offset+headerLen : offset+headerLen+length]
		if !contextSpecific && tagNumber == tagCharacterString && len(payload) > 0 {
			// First byte is the character set; 0 = UTF-8.
			payload = payload[1:]
		}
		copied := make([]byte, len(payload))
		copy(copied, payload)
		tags = append(tags, Tag{Number: tagNumber, Data: copied})
		offset += headerLen + length
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: empty tag", ErrDecode)
	}
	return tags, nil
}

// DecodeApplicationValue parses an application-tagged payload straight into
// a host value. Null payloads decode to the Null value.
func DecodeApplicationValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	// A lone Null tag is a legitimate value (e.g. an unset priority slot).
	if tagNumber, contextSpecific, length, _, err := decodeTag(data); err == nil &&
		!contextSpecific && tagNumber == tagNull && length == 0 {
		return NullValue(), nil
	}

	tags, err := ParseApplicationTags(data)
	if err != nil {
		return Value{}, err
	}

	// Object identifiers appear in objectList reads; surface them as their
	// textual form rather than failing the whole payload.
	if tags[0].Number == tagObjectID && len(tags[0].Data) == 4 {
		oid := decodeObjectIdentifier(binary.BigEndian.Uint32(tags[0].Data))
		return StringValue(oid.String()), nil
	}

	return DecodeTags(tags)
}
