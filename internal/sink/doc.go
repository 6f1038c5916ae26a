// Package sink implements the MQTT to time-series bridge.
//
// The bridge is an independent MQTT subscriber: it consumes every
// individual point reading the worker (or any compatible publisher)
// emits, de-duplicates, and historises each surviving reading in the
// time-series store.
//
// # Flow
//
//  1. Subscribe to the point-value wildcards (+/+/+/presentValue and
//     +/+/+/+/presentValue).
//  2. JSON-decode each message; invalid payloads are counted and dropped.
//  3. Parse the reading's timestamp (ISO-8601, Z or offset); a missing
//     timestamp is stamped with the current UTC time.
//  4. De-duplicate on (haystackName, timestamp truncated to seconds)
//     within a bounded in-memory window.
//  5. Insert one row into the sensor_readings measurement, timestamped at
//     the reading's own time.
//
// # De-duplication
//
// Rapid MQTT reconnects can replay messages; the dedup window suppresses
// re-inserts. The window holds 1000 keys and evicts the 100 oldest (FIFO)
// on overflow.
//
// The bridge never blocks the MQTT dispatcher on store failures: inserts
// are non-blocking and failed batches surface through the store client's
// error callback.
package sink
