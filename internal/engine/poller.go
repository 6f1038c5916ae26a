package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
	"github.com/ak085/bacpipes/internal/infrastructure/mqtt"
)

// Reading qualities.
const (
	qualityGood      = "good"
	qualityUncertain = "uncertain"
)

// Poller reads due points, publishes their values, and persists last-value
// state.
type Poller struct {
	reader PointReader
	mqtt   Publisher
	store  PointStore

	// location stamps every emitted timestamp with the site timezone.
	location *time.Location

	// deviceFanout bounds concurrent in-flight reads per device.
	deviceFanout int

	logger Logger
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Reader       PointReader
	Publisher    Publisher
	Store        PointStore
	Location     *time.Location
	DeviceFanout int
	Logger       Logger
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) *Poller {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	fanout := opts.DeviceFanout
	if fanout <= 0 {
		fanout = 8
	}
	return &Poller{
		reader:       opts.Reader,
		mqtt:         opts.Publisher,
		store:        opts.Store,
		location:     loc,
		deviceFanout: fanout,
		logger:       opts.Logger,
	}
}

// SetLocation updates the timestamp timezone (system settings reload).
func (p *Poller) SetLocation(loc *time.Location) {
	if loc != nil {
		p.location = loc
	}
}

// readOutcome is one point's result within a tick.
type readOutcome struct {
	point configstore.PointView
	value bacnet.Value
	ok    bool
}

// Poll reads every due point, publishes individual topics as readings
// arrive, and returns the per-equipment groups for batch publication.
//
// Reads fan out per device up to the configured bound; a point is read at
// most once per tick. The scheduler is advanced (via advance) only for
// successful reads, so failed points stay on schedule.
func (p *Poller) Poll(ctx context.Context, due []configstore.PointView, timestamp string, advance func(pointID int64)) (map[equipmentKey][]batchPoint, TickStats) {
	stats := TickStats{Polled: len(due)}
	groups := make(map[equipmentKey][]batchPoint)

	if len(due) == 0 {
		return groups, stats
	}

	// Group due points by device; each device gets its own worker pool so
	// one slow controller cannot starve the rest of the network.
	byDevice := make(map[int64][]configstore.PointView)
	for _, point := range due {
		byDevice[point.DeviceDBID] = append(byDevice[point.DeviceDBID], point)
	}

	outcomes := make(chan readOutcome, len(due))
	var wg sync.WaitGroup
	for _, points := range byDevice {
		wg.Add(1)
		go func(points []configstore.PointView) {
			defer wg.Done()
			p.pollDevice(ctx, points, outcomes)
		}(points)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	now := time.Now().In(p.location)
	for outcome := range outcomes {
		if !outcome.ok {
			stats.Failed++
			continue
		}
		stats.Successful++
		advance(outcome.point.ID)

		if p.publishIndividual(outcome.point, outcome.value, timestamp) {
			stats.IndividualPublishes++
		}

		if key, ok := equipmentKeyFor(outcome.point); ok {
			groups[key] = append(groups[key], batchPoint{
				Name:         fmt.Sprintf("%s%d", outcome.point.ObjectType, outcome.point.ObjectInstance),
				Dis:          outcome.point.Dis,
				HaystackName: outcome.point.HaystackName,
				Value:        outcome.value,
				Units:        outcome.point.Units,
				Quality:      readingQuality(outcome.value),
				ObjectType:   outcome.point.ObjectType,
				ObjectInstance: outcome.point.ObjectInstance,
			})
		}

		// Best effort: a failed write-back never fails the cycle.
		p.store.UpdatePointLastValue(ctx, outcome.point.ID, outcome.value.DisplayString(), now)
	}

	return groups, stats
}

// pollDevice reads one device's due points with bounded concurrency.
func (p *Poller) pollDevice(ctx context.Context, points []configstore.PointView, outcomes chan<- readOutcome) {
	sem := make(chan struct{}, p.deviceFanout)
	var wg sync.WaitGroup

	for _, point := range points {
		if ctx.Err() != nil {
			outcomes <- readOutcome{point: point}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(point configstore.PointView) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes <- p.readPoint(ctx, point)
		}(point)
	}
	wg.Wait()
}

// readPoint performs one ReadProperty for a point.
func (p *Poller) readPoint(ctx context.Context, point configstore.PointView) readOutcome {
	objectType, err := bacnet.ParseObjectType(point.ObjectType)
	if err != nil {
		p.logError("point has unknown object type", point, err)
		return readOutcome{point: point}
	}

	addr, err := bacnet.ResolveAddress(fmt.Sprintf("%s:%d", point.DeviceIP, point.DevicePort))
	if err != nil {
		p.logError("point has unresolvable device address", point, err)
		return readOutcome{point: point}
	}

	oid := bacnet.NewObjectIdentifier(objectType, point.ObjectInstance)
	value, err := p.reader.ReadProperty(ctx, addr, oid, bacnet.PropPresentValue)
	if err != nil {
		p.logDebug("read failed", "point", point.PointName, "object", oid.String(),
			"device", point.DeviceBACnetID, "error", err)
		return readOutcome{point: point}
	}
	if value.IsNull() {
		p.logDebug("read returned null", "point", point.PointName, "object", oid.String())
		return readOutcome{point: point}
	}

	return readOutcome{point: point, value: value, ok: true}
}

// publishIndividual publishes one reading on the point's configured topic.
// Returns false (and publishes nothing) for unpublishable values.
func (p *Poller) publishIndividual(point configstore.PointView, value bacnet.Value, timestamp string) bool {
	if point.MQTTTopic == "" || !p.mqtt.IsConnected() {
		return false
	}

	// A decoded value must be a number, bool, or string by now. An opaque
	// object representation sneaking through is a codec failure and must
	// not reach the broker.
	if value.Kind == bacnet.KindString && strings.Contains(value.String, "object at") {
		p.logError("refusing to publish opaque object representation", point, nil)
		return false
	}

	payload := pointPayload{
		Value:          value,
		Timestamp:      timestamp,
		Units:          point.Units,
		Quality:        readingQuality(value),
		Dis:            point.Dis,
		HaystackName:   point.HaystackName,
		DeviceIP:       point.DeviceIP,
		DeviceID:       point.DeviceBACnetID,
		ObjectType:     point.ObjectType,
		ObjectInstance: point.ObjectInstance,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		p.logError("failed to marshal reading", point, err)
		return false
	}

	if err := p.mqtt.Publish(point.MQTTTopic, encoded, byte(point.QoS), false); err != nil {
		p.logError("failed to publish reading", point, err)
		return false
	}
	return true
}

// PublishBatches publishes one batch message per equipment group.
func (p *Poller) PublishBatches(groups map[equipmentKey][]batchPoint, timestamp string, pollCycle uint64, duration float64) int {
	published := 0
	for key, points := range groups {
		topic := mqtt.Topics{}.EquipmentBatch(key.SiteID, key.EquipmentType, key.EquipmentID)

		payload := batchPayload{
			Timestamp:     timestamp,
			Site:          key.SiteID,
			Equipment:     fmt.Sprintf("%s_%s", mqtt.NormaliseSegment(key.EquipmentType), mqtt.NormaliseSegment(key.EquipmentID)),
			EquipmentType: key.EquipmentType,
			EquipmentID:   key.EquipmentID,
			Points:        points,
			Metadata: batchMetadata{
				PollCycle:       pollCycle,
				TotalPoints:     len(points),
				SuccessfulReads: len(points),
				FailedReads:     0,
				PollDuration:    duration,
			},
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			p.logBatchError("failed to marshal batch", topic, err)
			continue
		}
		if err := p.mqtt.Publish(topic, encoded, 1, false); err != nil {
			p.logBatchError("failed to publish batch", topic, err)
			continue
		}
		published++
	}
	return published
}

// equipmentKeyFor returns the point's batch group; ok is false when any of
// the three tags is missing.
func equipmentKeyFor(point configstore.PointView) (equipmentKey, bool) {
	if point.SiteID == "" || point.EquipmentType == "" || point.EquipmentID == "" {
		return equipmentKey{}, false
	}
	return equipmentKey{
		SiteID:        point.SiteID,
		EquipmentType: point.EquipmentType,
		EquipmentID:   point.EquipmentID,
	}, true
}

// readingQuality downgrades non-JSON-safe numbers to "uncertain"; their
// value marshals as null.
func readingQuality(value bacnet.Value) string {
	if !value.IsJSONSafe() {
		return qualityUncertain
	}
	return qualityGood
}

// Timestamp renders now in the configured timezone, ISO-8601 with offset.
func (p *Poller) Timestamp(now time.Time) string {
	return now.In(p.location).Format(time.RFC3339Nano)
}

func (p *Poller) logError(msg string, point configstore.PointView, err error) {
	if p.logger == nil {
		return
	}
	args := []any{"point", point.PointName, "topic", point.MQTTTopic}
	if err != nil {
		args = append(args, "error", err)
	}
	p.logger.Error(msg, args...)
}

func (p *Poller) logBatchError(msg, topic string, err error) {
	if p.logger != nil {
		p.logger.Error(msg, "topic", topic, "error", err)
	}
}

func (p *Poller) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
