package bacnet

import (
	"errors"
	"fmt"
)

// Domain errors for the bacnet package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, bacnet.ErrTimeout) {
//	    // device did not answer within the retry budget
//	}
var (
	// ErrTimeout is returned when all attempts of a request expire.
	ErrTimeout = errors.New("bacnet: request timed out")

	// ErrNotConnected is returned when the client socket is not open.
	ErrNotConnected = errors.New("bacnet: client not connected")

	// ErrConnectionClosed is returned when the socket closes mid-request.
	ErrConnectionClosed = errors.New("bacnet: connection closed")

	// ErrInvalidResponse is returned when a reply cannot be parsed.
	ErrInvalidResponse = errors.New("bacnet: invalid response")

	// ErrDecode is returned when a property value cannot be decoded.
	ErrDecode = errors.New("bacnet: decode failed")

	// ErrEncode is returned when a host value cannot be encoded for a write.
	ErrEncode = errors.New("bacnet: encode failed")

	// ErrTransport is returned on socket-level failures.
	ErrTransport = errors.New("bacnet: transport error")
)

// TimeoutError reports an expired request together with the number of
// attempts made. It unwraps to ErrTimeout.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bacnet: request timed out after %d attempts", e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// RejectError is returned when a peer rejects a confirmed request.
type RejectError struct {
	InvokeID uint8
	Reason   uint8
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacnet: request %d rejected (reason %d)", e.InvokeID, e.Reason)
}

// AbortError is returned when a peer aborts a confirmed request.
type AbortError struct {
	InvokeID uint8
	Reason   uint8
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("bacnet: request %d aborted (reason %d)", e.InvokeID, e.Reason)
}

// ServiceError is returned when a peer answers with a BACnet Error PDU
// (error-class and error-code pair).
type ServiceError struct {
	Class uint32
	Code  uint32
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("bacnet: service error (class %d, code %d)", e.Class, e.Code)
}

// IsPeerRefusal reports whether err is a reject, abort, or service error —
// the peer answered but refused the request. These are protocol errors, not
// transport timeouts, and retrying them is pointless.
func IsPeerRefusal(err error) bool {
	var rej *RejectError
	var ab *AbortError
	var svc *ServiceError
	return errors.As(err, &rej) || errors.As(err, &ab) || errors.As(err, &svc)
}
