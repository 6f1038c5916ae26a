// Package influxdb provides InfluxDB connectivity for the BacPipes worker.
//
// It wraps the official influxdb-client-go v2 library with BacPipes-specific
// patterns for connection management, reading historisation, and health
// monitoring.
//
// # Purpose
//
// This package is the insert path of the time-series sink bridge: every
// de-duplicated point reading consumed from MQTT becomes one point in the
// sensor_readings measurement, timestamped at the reading's own time.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "bacpipes",
//	    Bucket: "sensor_readings",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSensorReading(influxdb.SensorReading{
//	    Time:         readingTime,
//	    SiteID:       "klcc",
//	    HaystackName: "klcc.ahu12.supplyTemp",
//	    ValueKind:    "number",
//	    NumericValue: 21.5,
//	    Quality:      "good",
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
