package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ak085/bacpipes/internal/infrastructure/influxdb"
	"github.com/ak085/bacpipes/internal/infrastructure/mqtt"
)

// ReadingWriter is the time-series insert surface.
// Satisfied by *influxdb.Client.
type ReadingWriter interface {
	WriteSensorReading(r influxdb.SensorReading)
}

// Subscriber registers MQTT message handlers.
// Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the structured logging interface the bridge uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stats counts bridge activity.
type Stats struct {
	Received   uint64
	Written    uint64
	Duplicates uint64
	Errors     uint64
}

// Bridge consumes point readings from MQTT and inserts them into the
// time-series store.
type Bridge struct {
	writer ReadingWriter

	// mu serialises the dedup window and stats; MQTT handlers run on
	// separate goroutines.
	mu    sync.Mutex
	dedup *dedupWindow
	stats Stats

	logger Logger
}

// NewBridge creates a bridge over a time-series writer.
func NewBridge(writer ReadingWriter, logger Logger) *Bridge {
	return &Bridge{
		writer: writer,
		dedup:  newDedupWindow(),
		logger: logger,
	}
}

// Subscribe registers the bridge on both point-value wildcard depths.
func (b *Bridge) Subscribe(subscriber Subscriber) error {
	for _, pattern := range (mqtt.Topics{}).PointValueWildcards() {
		if err := subscriber.Subscribe(pattern, 1, b.HandleMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", pattern, err)
		}
		b.logInfo("subscribed to point stream", "pattern", pattern)
	}
	return nil
}

// readingPayload mirrors the individual point topic schema, with the
// optional enrichment fields some publishers add.
type readingPayload struct {
	Value          any     `json:"value"`
	Timestamp      string  `json:"timestamp"`
	Units          string  `json:"units"`
	Quality        string  `json:"quality"`
	Dis            string  `json:"dis"`
	HaystackName   string  `json:"haystackName"`
	DeviceIP       string  `json:"deviceIp"`
	DeviceID       int64   `json:"deviceId"`
	DeviceName     string  `json:"deviceName"`
	ObjectType     string  `json:"objectType"`
	ObjectInstance int64   `json:"objectInstance"`
	SiteID         string  `json:"siteId"`
	EquipmentType  string  `json:"equipmentType"`
	EquipmentID    string  `json:"equipmentId"`
	PointID        string  `json:"pointId"`
	PointName      string  `json:"pointName"`
	PollDuration   float64 `json:"pollDuration"`
	PollCycle      uint64  `json:"pollCycle"`
}

// HandleMessage processes one MQTT message end to end.
// The returned error is informational; the MQTT layer logs it.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.mu.Lock()
	b.stats.Received++
	b.mu.Unlock()

	var reading readingPayload
	if err := json.Unmarshal(payload, &reading); err != nil {
		b.countError()
		return fmt.Errorf("invalid reading JSON on %s: %w", topic, err)
	}

	ts, err := parseTimestamp(reading.Timestamp)
	if err != nil {
		b.countError()
		return fmt.Errorf("invalid timestamp on %s: %w", topic, err)
	}

	key := newDedupKey(reading.HaystackName, ts)
	b.mu.Lock()
	duplicate := b.dedup.Observe(key)
	if duplicate {
		b.stats.Duplicates++
	}
	b.mu.Unlock()
	if duplicate {
		b.logDebug("dropping duplicate reading",
			"haystack_name", reading.HaystackName,
			"second", ts.Truncate(time.Second).Format(time.RFC3339))
		return nil
	}

	b.writer.WriteSensorReading(toSensorReading(reading, ts))

	b.mu.Lock()
	b.stats.Written++
	written := b.stats.Written
	received := b.stats.Received
	errors := b.stats.Errors
	b.mu.Unlock()

	if received%10 == 0 {
		b.logInfo("sink stats", "received", received, "written", written, "errors", errors)
	}
	return nil
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// parseTimestamp parses an ISO-8601 timestamp, tolerating a trailing Z or
// an explicit offset. A missing timestamp stamps the reading with the
// current UTC time.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts, nil
	}
	// Offset without a colon ("+0800") appears in some producers.
	if ts, err2 := time.Parse("2006-01-02T15:04:05.999999999Z0700", value); err2 == nil {
		return ts, nil
	}
	return time.Time{}, err
}

// toSensorReading maps a payload onto the store's insert schema.
func toSensorReading(reading readingPayload, ts time.Time) influxdb.SensorReading {
	quality := reading.Quality
	if quality == "" {
		quality = "good"
	}

	r := influxdb.SensorReading{
		Time:           ts,
		SiteID:         reading.SiteID,
		EquipmentType:  reading.EquipmentType,
		EquipmentID:    reading.EquipmentID,
		DeviceID:       reading.DeviceID,
		DeviceName:     reading.DeviceName,
		DeviceIP:       reading.DeviceIP,
		ObjectType:     reading.ObjectType,
		ObjectInstance: reading.ObjectInstance,
		PointID:        reading.PointID,
		PointName:      reading.PointName,
		HaystackName:   reading.HaystackName,
		Units:          reading.Units,
		Quality:        quality,
		PollDuration:   reading.PollDuration,
		PollCycle:      reading.PollCycle,
	}

	switch v := reading.Value.(type) {
	case bool:
		r.ValueKind = "bool"
		r.BoolValue = v
	case float64:
		r.ValueKind = "number"
		r.NumericValue = v
	case string:
		r.ValueKind = "string"
		r.StringValue = v
	case nil:
		// Coerced non-finite numbers arrive as null with quality
		// "uncertain"; store them as a NaN-free zero with the quality
		// field carrying the signal.
		r.ValueKind = "number"
		r.NumericValue = 0
	default:
		r.ValueKind = "string"
		r.StringValue = strings.TrimSpace(fmt.Sprint(v))
	}
	return r
}

func (b *Bridge) countError() {
	b.mu.Lock()
	b.stats.Errors++
	b.mu.Unlock()
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}
