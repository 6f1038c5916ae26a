package bacnet

import (
	"encoding/binary"
	"fmt"
)

// BVLC (BACnet Virtual Link Control) constants for BACnet/IP.
const (
	bvlcTypeBACnetIP byte = 0x81

	bvlcResult               byte = 0x00
	bvlcForwardedNPDU        byte = 0x04
	bvlcOriginalUnicastNPDU  byte = 0x0A
	bvlcOriginalBroadcastNPDU byte = 0x0B

	// bvlcHeaderSize is type + function + 2-byte length.
	bvlcHeaderSize = 4

	// bvlcForwardedAddrSize is the source address prefix in forwarded NPDUs.
	bvlcForwardedAddrSize = 6
)

// NPDU constants.
const (
	npduVersion byte = 0x01

	npduControlExpectingReply       byte = 0x04
	npduControlSourceSpecifier      byte = 0x08
	npduControlDestinationSpecifier byte = 0x20
	npduControlNetworkLayerMessage  byte = 0x80
)

// APDU PDU types (upper nibble of the first APDU byte).
const (
	pduTypeConfirmedRequest   byte = 0x00
	pduTypeUnconfirmedRequest byte = 0x10
	pduTypeSimpleAck          byte = 0x20
	pduTypeComplexAck         byte = 0x30
	pduTypeSegmentAck         byte = 0x40
	pduTypeError              byte = 0x50
	pduTypeReject             byte = 0x60
	pduTypeAbort              byte = 0x70
)

// Confirmed service choices.
const (
	serviceConfirmedReadProperty         byte = 12
	serviceConfirmedReadPropertyMultiple byte = 14
	serviceConfirmedWriteProperty        byte = 15
)

// Unconfirmed service choices.
const (
	serviceUnconfirmedIAm   byte = 0
	serviceUnconfirmedWhoIs byte = 8
)

// maxAPDUCode1024 is the max-APDU-length-accepted code for 1024 octets in
// the confirmed-request header (codes 0-5 map to 50/128/206/480/1024/1476).
const maxAPDUCode1024 byte = 4

// maxSegmentsCode7 is max-segments-accepted code 7 (more than 64 segments).
const maxSegmentsCode7 byte = 0x70

// APDU is a parsed application PDU.
type APDU struct {
	// Type is the PDU type (pduType* constants, upper nibble normalised).
	Type byte

	// InvokeID correlates confirmed requests and their replies.
	// Zero for unconfirmed PDUs.
	InvokeID uint8

	// Service is the service choice, or the reject/abort reason for those
	// PDU types.
	Service byte

	// Data is the service-specific payload.
	Data []byte
}

// encodeBVLC builds a BVLC header for a payload of the given length.
func encodeBVLC(function byte, payloadLen int) []byte {
	buf := make([]byte, bvlcHeaderSize)
	buf[0] = bvlcTypeBACnetIP
	buf[1] = function
	binary.BigEndian.PutUint16(buf[2:], uint16(bvlcHeaderSize+payloadLen))
	return buf
}

// encodeNPDU builds a two-byte NPDU header.
func encodeNPDU(expectingReply bool) []byte {
	control := byte(0)
	if expectingReply {
		control = npduControlExpectingReply
	}
	return []byte{npduVersion, control}
}

// encodeConfirmedRequest frames a confirmed service request APDU.
func encodeConfirmedRequest(invokeID uint8, service byte, data []byte) []byte {
	apdu := make([]byte, 0, 4+len(data))
	apdu = append(apdu, pduTypeConfirmedRequest|0x02) // segmented-response-accepted
	apdu = append(apdu, maxSegmentsCode7|maxAPDUCode1024)
	apdu = append(apdu, invokeID)
	apdu = append(apdu, service)
	return append(apdu, data...)
}

// encodeUnconfirmedRequest frames an unconfirmed service request APDU.
func encodeUnconfirmedRequest(service byte, data []byte) []byte {
	apdu := make([]byte, 0, 2+len(data))
	apdu = append(apdu, pduTypeUnconfirmedRequest)
	apdu = append(apdu, service)
	return append(apdu, data...)
}

// buildFrame wraps an APDU in NPDU and BVLC headers.
func buildFrame(bvlcFunction byte, expectingReply bool, apdu []byte) []byte {
	npdu := encodeNPDU(expectingReply)
	frame := make([]byte, 0, bvlcHeaderSize+len(npdu)+len(apdu))
	frame = append(frame, encodeBVLC(bvlcFunction, len(npdu)+len(apdu))...)
	frame = append(frame, npdu...)
	return append(frame, apdu...)
}

// parseFrame strips the BVLC and NPDU layers from an incoming packet and
// returns the parsed APDU. Network-layer messages return a nil APDU.
func parseFrame(packet []byte) (*APDU, error) {
	if len(packet) < bvlcHeaderSize {
		return nil, fmt.Errorf("%w: packet shorter than BVLC header", ErrInvalidResponse)
	}
	if packet[0] != bvlcTypeBACnetIP {
		return nil, fmt.Errorf("%w: not a BACnet/IP frame (type 0x%02x)", ErrInvalidResponse, packet[0])
	}

	function := packet[1]
	body := packet[bvlcHeaderSize:]

	switch function {
	case bvlcOriginalUnicastNPDU, bvlcOriginalBroadcastNPDU:
	case bvlcForwardedNPDU:
		if len(body) < bvlcForwardedAddrSize {
			return nil, fmt.Errorf("%w: forwarded NPDU truncated", ErrInvalidResponse)
		}
		body = body[bvlcForwardedAddrSize:]
	case bvlcResult:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported BVLC function 0x%02x", ErrInvalidResponse, function)
	}

	return parseNPDU(body)
}

// parseNPDU skips the network layer and returns the parsed APDU.
func parseNPDU(data []byte) (*APDU, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: NPDU truncated", ErrInvalidResponse)
	}
	if data[0] != npduVersion {
		return nil, fmt.Errorf("%w: NPDU version 0x%02x", ErrInvalidResponse, data[0])
	}

	control := data[1]
	if control&npduControlNetworkLayerMessage != 0 {
		// Network-layer management traffic is none of our business.
		return nil, nil
	}

	offset := 2
	// Optional destination specifier: DNET(2) + DLEN(1) + DADR(DLEN).
	if control&npduControlDestinationSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, fmt.Errorf("%w: NPDU destination truncated", ErrInvalidResponse)
		}
		dlen := int(data[offset+2])
		offset += 3 + dlen
	}
	// Optional source specifier: SNET(2) + SLEN(1) + SADR(SLEN).
	if control&npduControlSourceSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, fmt.Errorf("%w: NPDU source truncated", ErrInvalidResponse)
		}
		slen := int(data[offset+2])
		offset += 3 + slen
	}
	// Hop count trails the destination specifier.
	if control&npduControlDestinationSpecifier != 0 {
		offset++
	}

	if len(data) <= offset {
		return nil, fmt.Errorf("%w: NPDU carries no APDU", ErrInvalidResponse)
	}
	return parseAPDU(data[offset:])
}

// parseAPDU parses the application PDU header and payload.
func parseAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty APDU", ErrInvalidResponse)
	}

	pduType := data[0] & 0xF0
	switch pduType {
	case pduTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: unconfirmed APDU truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, Service: data[1], Data: data[2:]}, nil

	case pduTypeSimpleAck:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: simple ack truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, InvokeID: data[1], Service: data[2], Data: nil}, nil

	case pduTypeComplexAck:
		// Segmented acks carry extra header bytes; this client does not
		// reassemble segments, so only unsegmented acks are accepted here.
		if data[0]&0x08 != 0 {
			return nil, fmt.Errorf("%w: segmented complex ack not supported", ErrInvalidResponse)
		}
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: complex ack truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, InvokeID: data[1], Service: data[2], Data: data[3:]}, nil

	case pduTypeError:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: error PDU truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, InvokeID: data[1], Service: data[2], Data: data[3:]}, nil

	case pduTypeReject, pduTypeAbort:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: reject/abort PDU truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, InvokeID: data[1], Service: data[2], Data: nil}, nil

	case pduTypeConfirmedRequest:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: confirmed request truncated", ErrInvalidResponse)
		}
		return &APDU{Type: pduType, InvokeID: data[2], Service: data[3], Data: data[4:]}, nil

	case pduTypeSegmentAck:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown PDU type 0x%02x", ErrInvalidResponse, pduType)
	}
}

// buildReadPropertyRequest encodes the ReadProperty service payload.
func buildReadPropertyRequest(oid ObjectIdentifier, property PropertyIdentifier, arrayIndex *uint32) []byte {
	data := make([]byte, 0, 16)
	data = append(data, encodeContextObjectID(0, oid)...)
	data = append(data, encodeContextEnumerated(1, uint32(property))...)
	if arrayIndex != nil {
		data = append(data, encodeContextUnsigned(2, *arrayIndex)...)
	}
	return data
}

// buildWritePropertyRequest encodes the WriteProperty service payload.
// Priority 0 omits the optional priority parameter.
func buildWritePropertyRequest(oid ObjectIdentifier, property PropertyIdentifier, value Value, priority uint8) ([]byte, error) {
	encoded, err := value.encodeApplication()
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 32)
	data = append(data, encodeContextObjectID(0, oid)...)
	data = append(data, encodeContextEnumerated(1, uint32(property))...)
	data = append(data, encodeOpeningTag(3)...)
	data = append(data, encoded...)
	data = append(data, encodeClosingTag(3)...)
	if priority > 0 {
		data = append(data, encodeContextUnsigned(4, uint32(priority))...)
	}
	return data, nil
}

// buildWhoIsRequest encodes the Who-Is service payload. Nil limits send an
// open request.
func buildWhoIsRequest(lowLimit, highLimit *uint32) []byte {
	if lowLimit == nil || highLimit == nil {
		return nil
	}
	data := make([]byte, 0, 12)
	data = append(data, encodeContextUnsigned(0, *lowLimit)...)
	data = append(data, encodeContextUnsigned(1, *highLimit)...)
	return data
}

// buildReadPropertyMultipleRequest encodes one read-access-spec covering
// several properties of one object.
func buildReadPropertyMultipleRequest(oid ObjectIdentifier, properties []PropertyIdentifier) []byte {
	data := make([]byte, 0, 8+4*len(properties))
	data = append(data, encodeContextObjectID(0, oid)...)
	data = append(data, encodeOpeningTag(1)...)
	for _, p := range properties {
		data = append(data, encodeContextEnumerated(0, uint32(p))...)
	}
	return append(data, encodeClosingTag(1)...)
}

// parseReadPropertyAck extracts the property value payload from a
// ReadProperty complex ack.
func parseReadPropertyAck(data []byte) ([]byte, error) {
	offset := 0

	// Object identifier [0]
	tagNumber, contextSpecific, length, headerLen, err := decodeTag(data)
	if err != nil || tagNumber != 0 || !contextSpecific {
		return nil, fmt.Errorf("%w: malformed ReadProperty ack", ErrInvalidResponse)
	}
	offset += headerLen + length

	// Property identifier [1]
	tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != 1 || !contextSpecific {
		return nil, fmt.Errorf("%w: malformed ReadProperty ack", ErrInvalidResponse)
	}
	offset += headerLen + length

	// Optional array index [2]
	tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
	if err == nil && tagNumber == 2 && contextSpecific && length >= 0 {
		offset += headerLen + length
		tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
	}

	// Opening tag [3] wraps the value.
	if err != nil || tagNumber != 3 || !contextSpecific || length != lengthOpening {
		return nil, fmt.Errorf("%w: ReadProperty ack missing value", ErrInvalidResponse)
	}
	offset += headerLen

	end := findMatchingClosingTag(data, offset, 3)
	if end < 0 {
		return nil, fmt.Errorf("%w: ReadProperty ack missing closing tag", ErrInvalidResponse)
	}
	return data[offset:end], nil
}

// findMatchingClosingTag scans from offset for the closing tag matching
// tagNumber at the current nesting depth. Returns the closing tag's offset,
// or -1 when missing.
func findMatchingClosingTag(data []byte, offset int, tagNumber uint8) int {
	depth := 0
	for offset < len(data) {
		num, contextSpecific, length, headerLen, err := decodeTag(data[offset:])
		if err != nil {
			return -1
		}
		switch {
		case contextSpecific && length == lengthOpening:
			depth++
			offset += headerLen
		case contextSpecific && length == lengthClosing:
			if depth == 0 && num == tagNumber {
				return offset
			}
			depth--
			offset += headerLen
		case !contextSpecific && num == tagBoolean:
			offset += headerLen
		default:
			offset += headerLen + length
		}
	}
	return -1
}

// parseErrorPDU decodes the error-class/error-code pair from an Error PDU.
func parseErrorPDU(data []byte) error {
	offset := 0

	// Some services wrap the error sequence in an opening tag.
	if len(data) > 0 {
		if _, contextSpecific, length, headerLen, err := decodeTag(data); err == nil &&
			contextSpecific && length == lengthOpening {
			offset += headerLen
		}
	}

	tagNumber, _, length, headerLen, err := decodeTag(data[offset:])
	if err != nil || tagNumber != tagEnumerated {
		return fmt.Errorf("%w: malformed error PDU", ErrInvalidResponse)
	}
	class := uint32(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	tagNumber, _, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != tagEnumerated {
		return fmt.Errorf("%w: malformed error PDU", ErrInvalidResponse)
	}
	code := uint32(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))

	return &ServiceError{Class: class, Code: code}
}

// iAm is a parsed I-Am announcement.
type iAm struct {
	DeviceID     uint32
	MaxAPDU      uint16
	Segmentation uint8
	VendorID     uint16
}

// parseIAm decodes an I-Am service payload.
func parseIAm(data []byte) (*iAm, error) {
	offset := 0

	tagNumber, contextSpecific, length, headerLen, err := decodeTag(data)
	if err != nil || contextSpecific || tagNumber != tagObjectID || length != 4 {
		return nil, fmt.Errorf("%w: I-Am missing device identifier", ErrInvalidResponse)
	}
	oid := decodeObjectIdentifier(binary.BigEndian.Uint32(data[offset+headerLen:]))
	if oid.Type != ObjectDevice {
		return nil, fmt.Errorf("%w: I-Am identifier is not a device object", ErrInvalidResponse)
	}
	offset += headerLen + length

	result := &iAm{DeviceID: oid.Instance}

	tagNumber, _, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != tagUnsigned {
		return nil, fmt.Errorf("%w: I-Am missing max APDU", ErrInvalidResponse)
	}
	result.MaxAPDU = uint16(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	tagNumber, _, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != tagEnumerated {
		return nil, fmt.Errorf("%w: I-Am missing segmentation", ErrInvalidResponse)
	}
	result.Segmentation = uint8(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))
	offset += headerLen + length

	tagNumber, _, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != tagUnsigned {
		return nil, fmt.Errorf("%w: I-Am missing vendor id", ErrInvalidResponse)
	}
	result.VendorID = uint16(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))

	return result, nil
}

// buildIAmPayload encodes an I-Am announcement for the local device.
// Used by tests and kept symmetrical with parseIAm.
func buildIAmPayload(identity DeviceIdentity) []byte {
	data := make([]byte, 0, 16)
	data = append(data, encodeAppObjectID(identity.ObjectID)...)
	data = append(data, encodeAppUnsigned(uint32(identity.MaxAPDU))...)
	data = append(data, encodeAppEnumerated(uint32(identity.SegmentationSupported))...)
	data = append(data, encodeAppUnsigned(uint32(identity.VendorID))...)
	return data
}

// parseReadPropertyMultipleAck walks a ReadPropertyMultiple complex ack for
// a single object and returns the per-property value payloads. Properties
// that answered with an access error are omitted.
func parseReadPropertyMultipleAck(data []byte) (map[PropertyIdentifier][]byte, error) {
	results := make(map[PropertyIdentifier][]byte)
	offset := 0

	// Object identifier [0]
	tagNumber, contextSpecific, length, headerLen, err := decodeTag(data)
	if err != nil || tagNumber != 0 || !contextSpecific || length != 4 {
		return nil, fmt.Errorf("%w: malformed ReadPropertyMultiple ack", ErrInvalidResponse)
	}
	offset += headerLen + length

	// List of results [1]
	tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
	if err != nil || tagNumber != 1 || !contextSpecific || length != lengthOpening {
		return nil, fmt.Errorf("%w: malformed ReadPropertyMultiple ack", ErrInvalidResponse)
	}
	offset += headerLen

	for offset < len(data) {
		tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
		if err != nil {
			return nil, err
		}

		// Closing tag [1] ends the result list.
		if contextSpecific && length == lengthClosing && tagNumber == 1 {
			break
		}

		// Property identifier [2]
		if tagNumber != 2 || !contextSpecific {
			return nil, fmt.Errorf("%w: expected property identifier in ack", ErrInvalidResponse)
		}
		property := PropertyIdentifier(decodeUnsignedBytes(data[offset+headerLen : offset+headerLen+length]))
		offset += headerLen + length

		// Optional array index [3]
		tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
		if err == nil && tagNumber == 3 && contextSpecific && length >= 0 {
			offset += headerLen + length
			tagNumber, contextSpecific, length, headerLen, err = decodeTag(data[offset:])
		}
		if err != nil {
			return nil, err
		}

		switch {
		case tagNumber == 4 && contextSpecific && length == lengthOpening:
			// Property value [4]
			offset += headerLen
			end := findMatchingClosingTag(data, offset, 4)
			if end < 0 {
				return nil, fmt.Errorf("%w: property value missing closing tag", ErrInvalidResponse)
			}
			payload := make([]byte, end-offset)
			copy(payload, data[offset:end])
			results[property] = payload
			offset = end + 1

		case tagNumber == 5 && contextSpecific && length == lengthOpening:
			// Property access error [5]: the device does not have this
			// property. Skip it; missing properties are tolerated.
			offset += headerLen
			end := findMatchingClosingTag(data, offset, 5)
			if end < 0 {
				return nil, fmt.Errorf("%w: property error missing closing tag", ErrInvalidResponse)
			}
			offset = end + 1

		default:
			return nil, fmt.Errorf("%w: unexpected tag %d in ack", ErrInvalidResponse, tagNumber)
		}
	}

	return results, nil
}
