// Package discovery implements the BACnet network discovery worker.
//
// The worker is a job-queue consumer: it polls the configuration store for
// claimable discovery jobs, sweeps the network each job describes, and
// persists what it finds.
//
// # Job Execution
//
// For each claimed job the worker:
//
//  1. Derives the directed broadcast address from the job's interface IP
//     and the configured subnet mask.
//  2. Opens an ephemeral BACnet endpoint with the job's local device id.
//  3. Broadcasts Who-Is and collects I-Am responses for the job's timeout.
//  4. Enumerates each responder's object list and reads a fixed property
//     set per object, several objects concurrently per device.
//  5. Upserts Device and Point rows; a point is writable when its
//     priorityArray property answered.
//  6. Closes the job as complete with counts, or error with a message.
//
// Missing properties and unreadable objects are tolerated: they are logged
// and skipped without aborting the device or the job.
package discovery
