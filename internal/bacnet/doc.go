// Package bacnet implements the BACnet/IP client for the BacPipes worker.
//
// This package owns the local UDP endpoint and provides confirmed
// request/reply services with timeout and retry against field devices.
//
// # Architecture
//
// The client is a translator between the worker's polling engine and the
// BACnet/IP network:
//
//	┌─────────────────┐            ┌─────────────────┐
//	│  BacPipes       │  request   │  BACnet Client  │   UDP 47808
//	│  engine         │◄──────────►│   (this pkg)    │◄──────────► field devices
//	└─────────────────┘            └─────────────────┘
//
// # Key Responsibilities
//
//   - Own the BACnet/IP UDP socket and the invoke-id transaction table
//   - Frame requests as BVLC + NPDU + APDU and parse replies
//   - ReadProperty with per-attempt timeout and exponential backoff
//   - WriteProperty with a hard deadline and no retry
//   - Who-Is broadcast with asynchronous I-Am delivery
//   - ReadPropertyMultiple for discovery enumeration
//   - Application-tag value decoding/encoding (value.go)
//
// # Services
//
// Only the services the worker needs are implemented: Who-Is, I-Am,
// ReadProperty, ReadPropertyMultiple, and WriteProperty. This is not a
// general BACnet stack.
//
// # Values
//
// Property values are represented by the Value tagged union
// (Null/Bool/Uint/Int/Real/String/Enum). JSON emission and wire encoding
// both switch on Value.Kind.
//
// Example:
//
//	v, err := client.ReadProperty(ctx, addr,
//	    bacnet.NewObjectIdentifier(bacnet.ObjectAnalogInput, 7),
//	    bacnet.PropPresentValue)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(v.Float())
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Outgoing requests are
// keyed by invoke id; duplicate invoke-ids on the wire are dropped.
package bacnet
