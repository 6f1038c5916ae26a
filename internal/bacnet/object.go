package bacnet

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ObjectType identifies a BACnet object class.
type ObjectType uint16

// Standard object types used by the worker.
const (
	ObjectAnalogInput      ObjectType = 0
	ObjectAnalogOutput     ObjectType = 1
	ObjectAnalogValue      ObjectType = 2
	ObjectBinaryInput      ObjectType = 3
	ObjectBinaryOutput     ObjectType = 4
	ObjectBinaryValue      ObjectType = 5
	ObjectDevice           ObjectType = 8
	ObjectMultiStateInput  ObjectType = 13
	ObjectMultiStateOutput ObjectType = 14
	ObjectMultiStateValue  ObjectType = 19
	ObjectDateValue        ObjectType = 42
)

// objectTypeNames maps object types to the hyphenated names the
// configuration store and MQTT payloads use.
var objectTypeNames = map[ObjectType]string{
	ObjectAnalogInput:      "analog-input",
	ObjectAnalogOutput:     "analog-output",
	ObjectAnalogValue:      "analog-value",
	ObjectBinaryInput:      "binary-input",
	ObjectBinaryOutput:     "binary-output",
	ObjectBinaryValue:      "binary-value",
	ObjectDevice:           "device",
	ObjectMultiStateInput:  "multi-state-input",
	ObjectMultiStateOutput: "multi-state-output",
	ObjectMultiStateValue:  "multi-state-value",
	ObjectDateValue:        "date-value",
}

// String returns the hyphenated object type name (e.g. "analog-input").
func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("object-type-%d", uint16(t))
}

// ParseObjectType resolves an object type from its textual form.
// Both the hyphenated store form ("analog-input") and the camelCase wire
// form ("analogInput") are accepted.
func ParseObjectType(s string) (ObjectType, error) {
	normalised := normaliseObjectTypeName(s)
	for t, name := range objectTypeNames {
		if name == normalised {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown object type %q", s)
}

// normaliseObjectTypeName converts camelCase names to the hyphenated form.
func normaliseObjectTypeName(s string) string {
	if strings.Contains(s, "-") {
		return strings.ToLower(s)
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsAnalog reports whether the type carries a Real present value.
func (t ObjectType) IsAnalog() bool {
	return t == ObjectAnalogInput || t == ObjectAnalogOutput || t == ObjectAnalogValue
}

// IsBinary reports whether the type carries a 0/1 present value.
func (t ObjectType) IsBinary() bool {
	return t == ObjectBinaryInput || t == ObjectBinaryOutput || t == ObjectBinaryValue
}

// IsMultiState reports whether the type carries a state-index present value.
func (t ObjectType) IsMultiState() bool {
	return t == ObjectMultiStateInput || t == ObjectMultiStateOutput || t == ObjectMultiStateValue
}

// ObjectIdentifier addresses one object on a device.
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier builds an object identifier.
func NewObjectIdentifier(t ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{Type: t, Instance: instance}
}

// String returns "type:instance" (e.g. "analog-input:7").
func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.Instance)
}

// objectInstanceBits is the width of the instance field in the packed
// 32-bit wire form (type in the top 10 bits, instance in the low 22).
const objectInstanceBits = 22

// encode packs the identifier into its 32-bit wire form.
func (o ObjectIdentifier) encode() uint32 {
	return uint32(o.Type)<<objectInstanceBits | (o.Instance & (1<<objectInstanceBits - 1))
}

// decodeObjectIdentifier unpacks the 32-bit wire form.
func decodeObjectIdentifier(raw uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType(raw >> objectInstanceBits),
		Instance: raw & (1<<objectInstanceBits - 1),
	}
}

// encodeBytes returns the identifier's 4-byte big-endian wire form.
func (o ObjectIdentifier) encodeBytes() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, o.encode())
	return buf
}

// PropertyIdentifier identifies a property of a BACnet object.
type PropertyIdentifier uint32

// Properties the worker reads and writes.
const (
	PropActiveText     PropertyIdentifier = 4
	PropCOVIncrement   PropertyIdentifier = 22
	PropDescription    PropertyIdentifier = 28
	PropEventState     PropertyIdentifier = 36
	PropInactiveText   PropertyIdentifier = 46
	PropMaxPresValue   PropertyIdentifier = 65
	PropMinPresValue   PropertyIdentifier = 69
	PropNumberOfStates PropertyIdentifier = 74
	PropObjectList     PropertyIdentifier = 76
	PropObjectName     PropertyIdentifier = 77
	PropOutOfService   PropertyIdentifier = 81
	PropPresentValue   PropertyIdentifier = 85
	PropPriorityArray  PropertyIdentifier = 87
	PropReliability    PropertyIdentifier = 103
	PropResolution     PropertyIdentifier = 106
	PropStateText      PropertyIdentifier = 110
	PropStatusFlags    PropertyIdentifier = 111
	PropTimeDelay      PropertyIdentifier = 113
	PropUnits          PropertyIdentifier = 117
)

// propertyNames maps property identifiers to their camelCase names,
// matching the columns the discovery worker persists.
var propertyNames = map[PropertyIdentifier]string{
	PropActiveText:     "activeText",
	PropCOVIncrement:   "covIncrement",
	PropDescription:    "description",
	PropEventState:     "eventState",
	PropInactiveText:   "inactiveText",
	PropMaxPresValue:   "maxPresValue",
	PropMinPresValue:   "minPresValue",
	PropNumberOfStates: "numberOfStates",
	PropObjectList:     "objectList",
	PropObjectName:     "objectName",
	PropOutOfService:   "outOfService",
	PropPresentValue:   "presentValue",
	PropPriorityArray:  "priorityArray",
	PropReliability:    "reliability",
	PropResolution:     "resolution",
	PropStateText:      "stateText",
	PropStatusFlags:    "statusFlags",
	PropTimeDelay:      "timeDelay",
	PropUnits:          "units",
}

// String returns the camelCase property name.
func (p PropertyIdentifier) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property-%d", uint32(p))
}

// DeviceIdentity describes the worker's local device object, announced in
// outgoing requests and available to peers.
type DeviceIdentity struct {
	// ObjectID is the local device object (type device, configured instance).
	ObjectID ObjectIdentifier

	// Name is the device object-name.
	Name string

	// VendorID is the BACnet vendor identifier.
	VendorID uint16

	// MaxAPDU is the largest APDU the endpoint accepts.
	MaxAPDU uint16

	// SegmentationSupported is the segmentation capability announced in
	// I-Am (0 = segmented-both).
	SegmentationSupported uint8
}

// NewDeviceIdentity builds the worker's device identity with the standard
// announcement values (max APDU 1024, segmented-both).
func NewDeviceIdentity(deviceID uint32, name string, vendorID uint16) DeviceIdentity {
	return DeviceIdentity{
		ObjectID:              NewObjectIdentifier(ObjectDevice, deviceID),
		Name:                  name,
		VendorID:              vendorID,
		MaxAPDU:               1024,
		SegmentationSupported: segmentedBoth,
	}
}

// segmentedBoth is the BACnet segmentation-supported enumeration value for
// "segmented-both".
const segmentedBoth = 0
