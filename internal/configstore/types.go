package configstore

import "time"

// PointView is one enabled point joined with its device, carrying
// everything the poller needs: the network endpoint, the object address,
// the MQTT topic and QoS, and the site/equipment tags for batching.
type PointView struct {
	ID             int64
	ObjectType     string
	ObjectInstance uint32
	PointName      string
	Dis            string
	Units          string
	MQTTTopic      string
	PollInterval   int
	QoS            int
	HaystackName   string
	SiteID         string
	EquipmentType  string
	EquipmentID    string
	IsReadable     bool
	IsWritable     bool

	// Device fields from the join.
	DeviceDBID     int64
	DeviceBACnetID int64
	DeviceName     string
	DeviceIP       string
	DevicePort     int
}

// MqttSettings is the externally-authored MQTT configuration row.
type MqttSettings struct {
	Broker                string
	Port                  int
	ClientID              string
	EnableBatchPublishing bool
}

// SystemSettings holds system-wide settings; currently the IANA timezone
// readings are stamped with.
type SystemSettings struct {
	Timezone string
}

// JobStatus is the lifecycle state of a discovery job.
// Transitions are pending → running → {complete, error}; terminal states
// are final.
type JobStatus string

// Discovery job statuses.
const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobError    JobStatus = "error"
)

// DiscoveryJob is one queued network sweep.
type DiscoveryJob struct {
	ID        string
	IPAddress string
	Port      int
	Timeout   int
	DeviceID  uint32
	Status    JobStatus
	StartedAt time.Time
}

// JobOutcome closes out a discovery job.
type JobOutcome struct {
	Status       JobStatus
	DevicesFound int
	PointsFound  int
	ErrorMessage string
}

// DeviceUpsert carries the fields discovery persists for a responder.
type DeviceUpsert struct {
	BACnetID uint32
	Name     string
	IP       string
	Port     int
}

// PointUpsert carries the fields discovery persists for one object.
type PointUpsert struct {
	DeviceDBID     int64
	ObjectType     string
	ObjectInstance uint32
	PointName      string
	Description    string
	Units          string
	IsWritable     bool
	LastValue      string
}
