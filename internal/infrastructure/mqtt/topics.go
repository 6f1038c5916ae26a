package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the BacPipes MQTT plane.
//
// Point data flows on site-rooted topics so downstream consumers can
// subscribe per site or per equipment; the write pipeline and system
// status live under the fixed "bacnet/" prefix.
const (
	// TopicWriteCommand receives BACnet write commands from external systems.
	TopicWriteCommand = "bacnet/write/command"

	// TopicWriteResult carries correlated write outcomes back to requesters.
	TopicWriteResult = "bacnet/write/result"

	// TopicSystemStatus carries the worker's online/offline status (retained).
	TopicSystemStatus = "bacnet/system/status"

	// presentValueSuffix terminates every individual point topic.
	presentValueSuffix = "presentValue"
)

// Topics provides builders for BacPipes MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.PointValue("KLCC", "AHU", "12", "SupplyTemp")
//	// Returns: "klcc/ahu_12/SupplyTemp/presentValue"
type Topics struct{}

// PointValue returns the individual point topic for a reading.
//
// Shape: <site>/<equipmentType>_<equipmentId>/<pointName>/presentValue
// Site and equipment segments are normalised to lowercase with underscores,
// matching the batch topic shape so one wildcard covers both.
//
// Example: klcc/ahu_12/SupplyTemp/presentValue
func (Topics) PointValue(siteID, equipmentType, equipmentID, pointName string) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		NormaliseSegment(siteID),
		equipmentSegment(equipmentType, equipmentID),
		pointName,
		presentValueSuffix,
	)
}

// EquipmentBatch returns the per-equipment batch topic.
//
// Shape: <site_lower>/<equipmentTypeLower>_<equipmentId>/batch
//
// Example: klcc/ahu_12/batch
func (Topics) EquipmentBatch(siteID, equipmentType, equipmentID string) string {
	return fmt.Sprintf("%s/%s/batch",
		NormaliseSegment(siteID),
		equipmentSegment(equipmentType, equipmentID),
	)
}

// WriteCommand returns the write command topic.
func (Topics) WriteCommand() string {
	return TopicWriteCommand
}

// WriteResult returns the write result topic.
func (Topics) WriteResult() string {
	return TopicWriteResult
}

// SystemStatus returns the worker status topic.
func (Topics) SystemStatus() string {
	return TopicSystemStatus
}

// PointValueWildcards returns the subscription patterns matching every
// individual point topic. Two depths are tolerated: the canonical
// four-segment shape and a deeper five-segment layout some deployments
// publish.
//
// Patterns: +/+/+/presentValue and +/+/+/+/presentValue
func (Topics) PointValueWildcards() []string {
	return []string{
		"+/+/+/" + presentValueSuffix,
		"+/+/+/+/" + presentValueSuffix,
	}
}

// NormaliseSegment lowercases a topic segment and replaces spaces with
// underscores. MQTT treats topics as case-sensitive byte strings, so a
// single canonical form keeps publishers and subscribers aligned.
func NormaliseSegment(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// equipmentSegment builds the <type>_<id> equipment topic segment.
func equipmentSegment(equipmentType, equipmentID string) string {
	return fmt.Sprintf("%s_%s", NormaliseSegment(equipmentType), NormaliseSegment(equipmentID))
}
