// Package configstore provides read-mostly access to the PostgreSQL
// configuration database that drives the BacPipes worker.
//
// The store answers five questions:
//
//   - which points are enabled for polling, and how (ListEnabledPoints)
//   - where to publish (LoadMqttSettings)
//   - which timezone to stamp readings with (LoadSystemSettings)
//   - which discovery job to run next (ClaimRunningDiscoveryJob)
//   - what discovery found (UpsertDevice, UpsertPoint, CloseDiscoveryJob)
//
// It also writes back each point's last value and poll time, best effort:
// a failed write-back is logged and never fails a poll cycle.
//
// # Schema
//
// Column names are camelCase and double-quoted ("ipAddress", "deviceId"),
// matching the schema the admin application owns. The worker never
// migrates or deletes these tables; the migrations shipped with this
// repository only create them when absent.
//
// # Error Handling
//
// Individual operation failures surface as recoverable errors wrapped with
// context; the engine retries on its next tick. Only the initial
// connection (owned by the database package) is fatal.
package configstore
