package bacnet

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDecodeTagsTable(t *testing.T) {
	tests := []struct {
		name string
		tags []Tag
		want Value
	}{
		{
			name: "boolean true",
			tags: []Tag{{Number: 1, Data: []byte{0x01}}},
			want: BoolValue(true),
		},
		{
			name: "boolean false",
			tags: []Tag{{Number: 1, Data: []byte{0x00}}},
			want: BoolValue(false),
		},
		{
			name: "unsigned 1 byte",
			tags: []Tag{{Number: 2, Data: []byte{0x2A}}},
			want: UintValue(42),
		},
		{
			name: "unsigned 2 bytes",
			tags: []Tag{{Number: 2, Data: []byte{0x01, 0x00}}},
			want: UintValue(256),
		},
		{
			name: "unsigned 4 bytes",
			tags: []Tag{{Number: 2, Data: []byte{0x00, 0x01, 0x00, 0x00}}},
			want: UintValue(65536),
		},
		{
			name: "unsigned 3 bytes falls back to big-endian",
			tags: []Tag{{Number: 2, Data: []byte{0x01, 0x00, 0x00}}},
			want: UintValue(65536),
		},
		{
			name: "signed negative",
			tags: []Tag{{Number: 3, Data: []byte{0xFF}}},
			want: IntValue(-1),
		},
		{
			name: "signed 2 bytes",
			tags: []Tag{{Number: 3, Data: []byte{0xFF, 0x00}}},
			want: IntValue(-256),
		},
		{
			name: "real 123.0",
			tags: []Tag{{Number: 4, Data: []byte{0x42, 0xF6, 0x00, 0x00}}},
			want: RealValue(123.0),
		},
		{
			name: "double 1.5",
			tags: []Tag{{Number: 5, Data: []byte{0x3F, 0xF8, 0, 0, 0, 0, 0, 0}}},
			want: RealValue(1.5),
		},
		{
			name: "character string",
			tags: []Tag{{Number: 7, Data: []byte("Supply Temp")}},
			want: StringValue("Supply Temp"),
		},
		{
			name: "enumerated",
			tags: []Tag{{Number: 9, Data: []byte{0x3E}}},
			want: EnumValue(62),
		},
		{
			name: "first empty tag is skipped",
			tags: []Tag{{Number: 4, Data: nil}, {Number: 2, Data: []byte{0x07}}},
			want: UintValue(7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTags(tt.tags)
			if err != nil {
				t.Fatalf("DecodeTags() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeTags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeTagsErrors(t *testing.T) {
	tests := []struct {
		name    string
		tags    []Tag
		wantMsg string
	}{
		{"no tags", nil, "empty tag"},
		{"only empty tags", []Tag{{Number: 4, Data: nil}}, "empty tag"},
		{"unknown tag", []Tag{{Number: 6, Data: []byte{0x01}}}, "unknown tag 6"},
		{"real wrong size", []Tag{{Number: 4, Data: []byte{0x01, 0x02}}}, "real needs 4 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTags(tt.tags)
			if err == nil {
				t.Fatal("DecodeTags() = nil error")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error = %v, want ErrDecode", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestExtractValue(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Value
	}{
		{"bool passthrough", true, BoolValue(true)},
		{"int passthrough", 42, IntValue(42)},
		{"float passthrough", 21.5, RealValue(21.5)},
		{"numeric string", "123", IntValue(123)},
		{"float string", "21.5", RealValue(21.5)},
		{"plain string", "active", StringValue("active")},
		{"nil is null", nil, NullValue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractValue(tt.raw)
			if err != nil {
				t.Fatalf("ExtractValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractValue() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractValueFailures(t *testing.T) {
	if _, err := ExtractValue("<bacpypes3.primitivedata.Real object at 0x7f>"); !errors.Is(err, ErrDecode) {
		t.Errorf("opaque representation error = %v, want ErrDecode", err)
	}

	long := strings.Repeat("x", 150)
	if _, err := ExtractValue(long); !errors.Is(err, ErrDecode) {
		t.Errorf("long string error = %v, want ErrDecode", err)
	}
}

func TestEncodeWriteValue(t *testing.T) {
	tests := []struct {
		name       string
		objectType ObjectType
		raw        any
		release    bool
		want       Value
	}{
		{"analog output real", ObjectAnalogOutput, 21.5, false, RealValue(21.5)},
		{"analog value from int", ObjectAnalogValue, 18, false, RealValue(18)},
		{"binary on", ObjectBinaryOutput, true, false, UintValue(1)},
		{"binary off", ObjectBinaryValue, false, false, UintValue(0)},
		{"binary from number", ObjectBinaryOutput, 1.0, false, UintValue(1)},
		{"multi-state", ObjectMultiStateValue, 3.0, false, UintValue(3)},
		{"release is null", ObjectAnalogOutput, nil, true, NullValue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeWriteValue(tt.objectType, tt.raw, tt.release)
			if err != nil {
				t.Fatalf("EncodeWriteValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeWriteValue() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeWriteValueErrors(t *testing.T) {
	if _, err := EncodeWriteValue(ObjectAnalogOutput, "not a number", false); !errors.Is(err, ErrEncode) {
		t.Errorf("non-numeric analog error = %v, want ErrEncode", err)
	}
	if _, err := EncodeWriteValue(ObjectAnalogOutput, nil, false); !errors.Is(err, ErrEncode) {
		t.Errorf("nil value without release error = %v, want ErrEncode", err)
	}
	if _, err := EncodeWriteValue(ObjectMultiStateValue, -2.0, false); !errors.Is(err, ErrEncode) {
		t.Errorf("negative multi-state error = %v, want ErrEncode", err)
	}
}

func TestValueRoundTrip(t *testing.T) {
	// decode(encode(v)) == v across every encodable primitive kind.
	values := []Value{
		BoolValue(true),
		BoolValue(false),
		UintValue(0),
		UintValue(1),
		UintValue(65535),
		UintValue(1 << 20),
		IntValue(-40),
		IntValue(32767),
		RealValue(123.0),
		RealValue(-0.5),
		StringValue("Supply Temp"),
		EnumValue(62),
		NullValue(),
	}

	for _, v := range values {
		encoded, err := v.encodeApplication()
		if err != nil {
			t.Fatalf("encodeApplication(%+v) error = %v", v, err)
		}
		got, err := DecodeApplicationValue(encoded)
		if err != nil {
			t.Fatalf("DecodeApplicationValue(%+v) error = %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %+v = %+v", v, got)
		}
	}
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"real", RealValue(21.5), "21.5"},
		{"bool", BoolValue(true), "true"},
		{"string", StringValue("ok"), `"ok"`},
		{"null", NullValue(), "null"},
		{"enum", EnumValue(4), "4"},
		{"nan coerced to null", RealValue(math.NaN()), "null"},
		{"inf coerced to null", RealValue(math.Inf(1)), "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValueIsJSONSafe(t *testing.T) {
	if !RealValue(1.0).IsJSONSafe() {
		t.Error("finite real should be JSON safe")
	}
	if RealValue(math.NaN()).IsJSONSafe() {
		t.Error("NaN should not be JSON safe")
	}
	if RealValue(math.Inf(-1)).IsJSONSafe() {
		t.Error("-Inf should not be JSON safe")
	}
	if !StringValue("x").IsJSONSafe() {
		t.Error("string should be JSON safe")
	}
}

func TestValueDisplayString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{RealValue(21.5), "21.5"},
		{BoolValue(true), "true"},
		{UintValue(3), "3"},
		{StringValue("active"), "active"},
		{NullValue(), ""},
	}
	for _, tt := range tests {
		if got := tt.v.DisplayString(); got != tt.want {
			t.Errorf("DisplayString(%+v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestParseApplicationTagsCharacterString(t *testing.T) {
	// Wire form carries the charset byte; the parsed tag must not.
	encoded := encodeAppCharacterString("AHU-1")
	tags, err := ParseApplicationTags(encoded)
	if err != nil {
		t.Fatalf("ParseApplicationTags() error = %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("got %d tags, want 1", len(tags))
	}
	if string(tags[0].Data) != "AHU-1" {
		t.Errorf("tag data = %q, want AHU-1", tags[0].Data)
	}
}

func TestDecodeApplicationValueObjectIdentifier(t *testing.T) {
	encoded := encodeAppObjectID(NewObjectIdentifier(ObjectAnalogInput, 7))
	v, err := DecodeApplicationValue(encoded)
	if err != nil {
		t.Fatalf("DecodeApplicationValue() error = %v", err)
	}
	if v.Kind != KindString || v.String != "analog-input:7" {
		t.Errorf("decoded = %+v, want string analog-input:7", v)
	}
}
