package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// sensorReadingsMeasurement is the measurement every de-duplicated point
// reading lands in.
const sensorReadingsMeasurement = "sensor_readings"

// SensorReading is one historised point reading destined for the
// sensor_readings measurement.
//
// Tags carry the low-cardinality identity of the series; fields carry the
// sampled data. Value arrives pre-normalised: exactly one of NumericValue,
// BoolValue, or StringValue is meaningful, selected by ValueKind.
type SensorReading struct {
	// Time is the reading's own timestamp (not the insert time).
	Time time.Time

	SiteID        string
	EquipmentType string
	EquipmentID   string
	DeviceID      int64
	DeviceName    string
	DeviceIP      string
	ObjectType    string
	ObjectInstance int64
	PointID       string
	PointName     string
	HaystackName  string

	// ValueKind selects which value field is populated: "number", "bool",
	// or "string".
	ValueKind    string
	NumericValue float64
	BoolValue    bool
	StringValue  string

	Units        string
	Quality      string
	PollDuration float64
	PollCycle    uint64
}

// WriteSensorReading writes one reading to the sensor_readings measurement.
//
// The write is non-blocking; data is batched and sent asynchronously by the
// underlying WriteAPI. Errors surface via the SetOnError callback.
func (c *Client) WriteSensorReading(r SensorReading) {
	if !c.IsOpen() {
		return
	}

	tags := map[string]string{
		"site_id":          r.SiteID,
		"equipment_type":   r.EquipmentType,
		"equipment_id":     r.EquipmentID,
		"device_bacnet_id": strconv.FormatInt(r.DeviceID, 10),
		"object_type":      r.ObjectType,
		"haystack_name":    r.HaystackName,
	}

	fields := map[string]interface{}{
		"object_instance":  r.ObjectInstance,
		"device_name":      r.DeviceName,
		"device_ip":        r.DeviceIP,
		"point_id":         r.PointID,
		"point_name":       r.PointName,
		"units":            r.Units,
		"quality":          r.Quality,
		"poll_duration_ms": r.PollDuration,
		"poll_cycle":       int64(r.PollCycle),
	}

	switch r.ValueKind {
	case "bool":
		fields["value_bool"] = r.BoolValue
	case "string":
		fields["value_str"] = r.StringValue
	default:
		fields["value"] = r.NumericValue
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	c.writeAPI.WritePoint(write.NewPoint(sensorReadingsMeasurement, tags, fields, ts))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the sensor reading shape.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsOpen() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed or replayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsOpen() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
