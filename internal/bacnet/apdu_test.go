package bacnet

import (
	"bytes"
	"errors"
	"testing"
)

// buildReadPropertyAck assembles a ReadProperty complex-ack service payload
// carrying the given application-encoded value.
func buildReadPropertyAck(t *testing.T, oid ObjectIdentifier, property PropertyIdentifier, value Value) []byte {
	t.Helper()
	encoded, err := value.encodeApplication()
	if err != nil {
		t.Fatalf("encodeApplication() error = %v", err)
	}

	data := make([]byte, 0, 32)
	data = append(data, encodeContextObjectID(0, oid)...)
	data = append(data, encodeContextEnumerated(1, uint32(property))...)
	data = append(data, encodeOpeningTag(3)...)
	data = append(data, encoded...)
	data = append(data, encodeClosingTag(3)...)
	return data
}

func TestFrameRoundTrip(t *testing.T) {
	payload := buildReadPropertyRequest(NewObjectIdentifier(ObjectAnalogInput, 7), PropPresentValue, nil)
	apdu := encodeConfirmedRequest(42, serviceConfirmedReadProperty, payload)
	frame := buildFrame(bvlcOriginalUnicastNPDU, true, apdu)

	// BVLC header sanity
	if frame[0] != bvlcTypeBACnetIP {
		t.Errorf("frame[0] = 0x%02x, want 0x81", frame[0])
	}
	if frame[1] != bvlcOriginalUnicastNPDU {
		t.Errorf("frame[1] = 0x%02x, want 0x0A", frame[1])
	}
	declared := int(frame[2])<<8 | int(frame[3])
	if declared != len(frame) {
		t.Errorf("BVLC length = %d, frame is %d bytes", declared, len(frame))
	}

	parsed, err := parseFrame(frame)
	if err != nil {
		t.Fatalf("parseFrame() error = %v", err)
	}
	if parsed.Type != pduTypeConfirmedRequest {
		t.Errorf("Type = 0x%02x, want confirmed request", parsed.Type)
	}
	if parsed.InvokeID != 42 {
		t.Errorf("InvokeID = %d, want 42", parsed.InvokeID)
	}
	if parsed.Service != serviceConfirmedReadProperty {
		t.Errorf("Service = %d, want %d", parsed.Service, serviceConfirmedReadProperty)
	}
	if !bytes.Equal(parsed.Data, payload) {
		t.Errorf("Data = % x, want % x", parsed.Data, payload)
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	if _, err := parseFrame([]byte{0x00, 0x0A, 0x00, 0x04}); err == nil {
		t.Error("parseFrame(non-BACnet type) = nil error")
	}
	if _, err := parseFrame([]byte{0x81}); err == nil {
		t.Error("parseFrame(short packet) = nil error")
	}
}

func TestParseReadPropertyAck(t *testing.T) {
	ack := buildReadPropertyAck(t, NewObjectIdentifier(ObjectAnalogInput, 7), PropPresentValue, RealValue(123.0))

	valueData, err := parseReadPropertyAck(ack)
	if err != nil {
		t.Fatalf("parseReadPropertyAck() error = %v", err)
	}

	v, err := DecodeApplicationValue(valueData)
	if err != nil {
		t.Fatalf("DecodeApplicationValue() error = %v", err)
	}
	if v != RealValue(123.0) {
		t.Errorf("value = %+v, want 123.0", v)
	}
}

func TestParseErrorPDU(t *testing.T) {
	// class 5 (services), code 25 (operational-problem)
	data := make([]byte, 0, 8)
	data = append(data, encodeAppEnumerated(5)...)
	data = append(data, encodeAppEnumerated(25)...)

	err := parseErrorPDU(data)
	var svc *ServiceError
	if !errors.As(err, &svc) {
		t.Fatalf("parseErrorPDU() = %v, want ServiceError", err)
	}
	if svc.Class != 5 || svc.Code != 25 {
		t.Errorf("ServiceError = %+v, want class 5 code 25", svc)
	}
}

func TestIAmRoundTrip(t *testing.T) {
	identity := NewDeviceIdentity(3056496, "BacPipes", 842)
	payload := buildIAmPayload(identity)

	parsed, err := parseIAm(payload)
	if err != nil {
		t.Fatalf("parseIAm() error = %v", err)
	}
	if parsed.DeviceID != 3056496 {
		t.Errorf("DeviceID = %d, want 3056496", parsed.DeviceID)
	}
	if parsed.MaxAPDU != 1024 {
		t.Errorf("MaxAPDU = %d, want 1024", parsed.MaxAPDU)
	}
	if parsed.VendorID != 842 {
		t.Errorf("VendorID = %d, want 842", parsed.VendorID)
	}
}

func TestBuildWhoIsRequest(t *testing.T) {
	if got := buildWhoIsRequest(nil, nil); got != nil {
		t.Errorf("open Who-Is should have no parameters, got % x", got)
	}

	low, high := uint32(3000), uint32(3100)
	data := buildWhoIsRequest(&low, &high)
	if len(data) == 0 {
		t.Fatal("limited Who-Is has empty payload")
	}

	// Low limit in context tag 0, high limit in context tag 1.
	tagNumber, contextSpecific, length, headerLen, err := decodeTag(data)
	if err != nil || tagNumber != 0 || !contextSpecific {
		t.Fatalf("first tag = (%d, %v), err %v", tagNumber, contextSpecific, err)
	}
	if got := decodeUnsignedBytes(data[headerLen : headerLen+length]); got != 3000 {
		t.Errorf("low limit = %d, want 3000", got)
	}
}

func TestParseReadPropertyMultipleAck(t *testing.T) {
	oid := NewObjectIdentifier(ObjectAnalogInput, 7)

	// objectName answers a string, units answers an enum, description
	// answers a property-access error which must be skipped.
	ack := make([]byte, 0, 64)
	ack = append(ack, encodeContextObjectID(0, oid)...)
	ack = append(ack, encodeOpeningTag(1)...)

	ack = append(ack, encodeContextEnumerated(2, uint32(PropObjectName))...)
	ack = append(ack, encodeOpeningTag(4)...)
	ack = append(ack, encodeAppCharacterString("SupplyTemp")...)
	ack = append(ack, encodeClosingTag(4)...)

	ack = append(ack, encodeContextEnumerated(2, uint32(PropUnits))...)
	ack = append(ack, encodeOpeningTag(4)...)
	ack = append(ack, encodeAppEnumerated(62)...)
	ack = append(ack, encodeClosingTag(4)...)

	ack = append(ack, encodeContextEnumerated(2, uint32(PropDescription))...)
	ack = append(ack, encodeOpeningTag(5)...)
	ack = append(ack, encodeAppEnumerated(2)...) // error class
	ack = append(ack, encodeAppEnumerated(32)...) // error code
	ack = append(ack, encodeClosingTag(5)...)

	ack = append(ack, encodeClosingTag(1)...)

	results, err := parseReadPropertyMultipleAck(ack)
	if err != nil {
		t.Fatalf("parseReadPropertyMultipleAck() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (error property skipped)", len(results))
	}
	name, err := DecodeApplicationValue(results[PropObjectName])
	if err != nil || name != StringValue("SupplyTemp") {
		t.Errorf("objectName = %+v (err %v), want SupplyTemp", name, err)
	}
	units, err := DecodeApplicationValue(results[PropUnits])
	if err != nil || units != EnumValue(62) {
		t.Errorf("units = %+v (err %v), want enum 62", units, err)
	}
	if _, ok := results[PropDescription]; ok {
		t.Error("description should have been skipped (access error)")
	}
}
