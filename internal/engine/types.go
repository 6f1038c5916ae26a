package engine

import (
	"context"
	"net"
	"time"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
)

// PointReader reads a property from a field device.
// Satisfied by *bacnet.Client.
type PointReader interface {
	ReadProperty(ctx context.Context, addr *net.UDPAddr, oid bacnet.ObjectIdentifier, property bacnet.PropertyIdentifier) (bacnet.Value, error)
}

// PointWriter writes a property on a field device.
// Satisfied by *bacnet.Client.
type PointWriter interface {
	WriteProperty(ctx context.Context, addr *net.UDPAddr, oid bacnet.ObjectIdentifier, property bacnet.PropertyIdentifier, value bacnet.Value, priority uint8) error
}

// Publisher sends MQTT messages.
// Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// PointStore supplies enabled points and receives last-value write-backs.
// Satisfied by *configstore.Store.
type PointStore interface {
	ListEnabledPoints(ctx context.Context) ([]configstore.PointView, error)
	UpdatePointLastValue(ctx context.Context, pointID int64, value string, pollTime time.Time)
}

// Logger is the structured logging interface the engine uses.
// Satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WriteCommand is an MQTT-initiated BACnet write request.
type WriteCommand struct {
	JobID          string `json:"jobId"`
	DeviceIP       string `json:"deviceIp"`
	DeviceID       int64  `json:"deviceId"`
	ObjectType     string `json:"objectType"`
	ObjectInstance int64  `json:"objectInstance"`
	Value          any    `json:"value"`
	Priority       int    `json:"priority,omitempty"`
	Release        bool   `json:"release,omitempty"`
	PointName      string `json:"pointName,omitempty"`
}

// WriteResult is the correlated outcome published for each command.
type WriteResult struct {
	JobID     string `json:"jobId"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
	DeviceID  int64  `json:"deviceId"`
	PointName string `json:"pointName"`
	Value     any    `json:"value"`
	Priority  int    `json:"priority"`
	Release   bool   `json:"release"`
}

// pointPayload is the individual-topic JSON schema.
type pointPayload struct {
	Value          bacnet.Value `json:"value"`
	Timestamp      string       `json:"timestamp"`
	Units          string       `json:"units"`
	Quality        string       `json:"quality"`
	Dis            string       `json:"dis"`
	HaystackName   string       `json:"haystackName"`
	DeviceIP       string       `json:"deviceIp"`
	DeviceID       int64        `json:"deviceId"`
	ObjectType     string       `json:"objectType"`
	ObjectInstance uint32       `json:"objectInstance"`
}

// batchPoint is one entry of an equipment batch payload.
type batchPoint struct {
	Name           string       `json:"name"`
	Dis            string       `json:"dis"`
	HaystackName   string       `json:"haystackName"`
	Value          bacnet.Value `json:"value"`
	Units          string       `json:"units"`
	Quality        string       `json:"quality"`
	ObjectType     string       `json:"objectType"`
	ObjectInstance uint32       `json:"objectInstance"`
}

// batchPayload is the per-equipment batch JSON schema.
type batchPayload struct {
	Timestamp     string        `json:"timestamp"`
	Site          string        `json:"site"`
	Equipment     string        `json:"equipment"`
	EquipmentType string        `json:"equipmentType"`
	EquipmentID   string        `json:"equipmentId"`
	Points        []batchPoint  `json:"points"`
	Metadata      batchMetadata `json:"metadata"`
}

// batchMetadata carries per-cycle statistics in each batch message.
type batchMetadata struct {
	PollCycle       uint64  `json:"pollCycle"`
	TotalPoints     int     `json:"totalPoints"`
	SuccessfulReads int     `json:"successfulReads"`
	FailedReads     int     `json:"failedReads"`
	PollDuration    float64 `json:"pollDuration"`
}

// equipmentKey groups batch points by site and equipment.
type equipmentKey struct {
	SiteID        string
	EquipmentType string
	EquipmentID   string
}

// TickStats summarises one poll cycle.
type TickStats struct {
	PointsChecked       int
	Polled              int
	Skipped             int
	Successful          int
	Failed              int
	IndividualPublishes int
	BatchPublishes      int
	Duration            float64
}
