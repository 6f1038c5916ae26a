// Package engine implements the BacPipes polling/publishing/write engine.
//
// The engine is the worker's main loop. Every tick (5 s by default) it:
//
//  1. Drains the write-command queue, executing BACnet writes in MQTT
//     arrival order and publishing correlated results.
//  2. Asks the scheduler which points are due.
//  3. Reads due points over BACnet (bounded fan-out per device), publishes
//     each reading on its individual topic, accumulates equipment batches,
//     and writes the last value back to the configuration store.
//  4. Publishes equipment batches when batch publishing is enabled.
//
// # Scheduling
//
// Each point polls at its own interval. A point's first observation aligns
// its schedule to the next minute boundary, which produces predictable
// series in the time-series store; from then on the schedule advances by
// the point's interval on every successful read, with catch-up suppression
// when the engine falls behind by more than one interval.
//
// # Write pipeline
//
// The MQTT network callback only parses and enqueues commands; the engine
// loop drains the queue before each scheduler tick. This keeps a single
// writer driving the BACnet client and preserves invoke-id discipline.
//
// # Collaborators
//
// The engine depends on narrow interfaces (PointReader, PointWriter,
// Publisher, PointStore) so tests run against in-process fakes rather than
// live networks.
package engine
