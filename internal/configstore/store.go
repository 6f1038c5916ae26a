package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ak085/bacpipes/internal/infrastructure/database"
)

// Store is the configuration database adapter.
//
// Thread Safety: safe for concurrent use; the underlying *sql.DB pools
// connections.
type Store struct {
	db     *database.DB
	logger Logger
}

// Logger is the minimal logging interface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates a store over an open database connection.
func New(db *database.DB, logger Logger) *Store {
	return &Store{db: db, logger: logger}
}

// ListEnabledPoints returns every point with mqttPublish and enabled set,
// joined with its device, ordered by device and object instance.
func (s *Store) ListEnabledPoints(ctx context.Context) ([]PointView, error) {
	const query = `
		SELECT
			p.id, p."objectType", p."objectInstance", p."pointName",
			COALESCE(p.dis, ''), COALESCE(p.units, ''), COALESCE(p."mqttTopic", ''),
			p."pollInterval", p.qos,
			COALESCE(p."haystackPointName", ''), COALESCE(p."siteId", ''),
			COALESCE(p."equipmentType", ''), COALESCE(p."equipmentId", ''),
			p."isReadable", p."isWritable",
			d.id, d."deviceId", COALESCE(d."deviceName", ''), d."ipAddress", d.port
		FROM "Point" p
		JOIN "Device" d ON p."deviceId" = d.id
		WHERE p."mqttPublish" = true AND p.enabled = true
		ORDER BY d.id, p."objectInstance"`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying enabled points: %w", err)
	}
	defer rows.Close()

	var points []PointView
	for rows.Next() {
		var p PointView
		if err := rows.Scan(
			&p.ID, &p.ObjectType, &p.ObjectInstance, &p.PointName,
			&p.Dis, &p.Units, &p.MQTTTopic,
			&p.PollInterval, &p.QoS,
			&p.HaystackName, &p.SiteID,
			&p.EquipmentType, &p.EquipmentID,
			&p.IsReadable, &p.IsWritable,
			&p.DeviceDBID, &p.DeviceBACnetID, &p.DeviceName, &p.DeviceIP, &p.DevicePort,
		); err != nil {
			return nil, fmt.Errorf("scanning point row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating point rows: %w", err)
	}
	return points, nil
}

// LoadMqttSettings returns the effective MQTT configuration row.
// Returns ErrNotFound when no enabled row exists; the caller falls back to
// environment defaults.
func (s *Store) LoadMqttSettings(ctx context.Context) (*MqttSettings, error) {
	const query = `
		SELECT broker, port, COALESCE("clientId", ''), "enableBatchPublishing"
		FROM "MqttConfig"
		WHERE enabled = true
		LIMIT 1`

	var settings MqttSettings
	err := s.db.QueryRowContext(ctx, query).Scan(
		&settings.Broker, &settings.Port, &settings.ClientID, &settings.EnableBatchPublishing,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mqtt config: %w", err)
	}
	return &settings, nil
}

// LoadSystemSettings returns the system settings row.
// Returns ErrNotFound when absent; the caller keeps its configured default.
func (s *Store) LoadSystemSettings(ctx context.Context) (*SystemSettings, error) {
	const query = `SELECT timezone FROM "SystemSettings" LIMIT 1`

	var settings SystemSettings
	err := s.db.QueryRowContext(ctx, query).Scan(&settings.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying system settings: %w", err)
	}
	return &settings, nil
}

// UpdatePointLastValue writes back a point's last value and poll time.
// Best effort: failures are logged at debug level and swallowed — a
// write-back must never fail a poll cycle.
func (s *Store) UpdatePointLastValue(ctx context.Context, pointID int64, value string, pollTime time.Time) {
	const query = `
		UPDATE "Point"
		SET "lastValue" = $1, "lastPollTime" = $2
		WHERE id = $3`

	if _, err := s.db.ExecContext(ctx, query, value, pollTime, pointID); err != nil {
		if s.logger != nil {
			s.logger.Debug("last-value write-back failed", "point_id", pointID, "error", err)
		}
	}
}
