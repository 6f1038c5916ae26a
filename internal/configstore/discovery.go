package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimRunningDiscoveryJob returns the oldest job with status "running"
// (FIFO by startedAt). The API marks jobs running when it accepts them;
// the worker owns them from there to a terminal state.
// Returns ErrNoJob when the queue is empty.
func (s *Store) ClaimRunningDiscoveryJob(ctx context.Context) (*DiscoveryJob, error) {
	const query = `
		SELECT id, "ipAddress", port, timeout, "deviceId", status, "startedAt"
		FROM "DiscoveryJob"
		WHERE status = 'running'
		ORDER BY "startedAt" ASC
		LIMIT 1`

	var job DiscoveryJob
	var startedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&job.ID, &job.IPAddress, &job.Port, &job.Timeout, &job.DeviceID, &job.Status, &startedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("querying discovery jobs: %w", err)
	}
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	return &job, nil
}

// CloseDiscoveryJob moves a job to its terminal state with counts or an
// error message. Terminal states are final: the update only applies while
// the job is still running.
func (s *Store) CloseDiscoveryJob(ctx context.Context, jobID string, outcome JobOutcome) error {
	const query = `
		UPDATE "DiscoveryJob"
		SET status = $1,
		    "devicesFound" = $2,
		    "pointsFound" = $3,
		    "errorMessage" = NULLIF($4, ''),
		    "completedAt" = $5
		WHERE id = $6 AND status = 'running'`

	result, err := s.db.ExecContext(ctx, query,
		string(outcome.Status), outcome.DevicesFound, outcome.PointsFound,
		outcome.ErrorMessage, time.Now().UTC(), jobID,
	)
	if err != nil {
		return fmt.Errorf("closing discovery job %s: %w", jobID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("closing discovery job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// UpsertDevice inserts or refreshes a device row keyed by its BACnet
// device id and returns the row's database id.
func (s *Store) UpsertDevice(ctx context.Context, device DeviceUpsert) (int64, error) {
	const query = `
		INSERT INTO "Device"
			("deviceId", "deviceName", "ipAddress", port, enabled, "discoveredAt", "lastSeenAt")
		VALUES ($1, $2, $3, $4, true, $5, $5)
		ON CONFLICT ("deviceId")
		DO UPDATE SET
			"deviceName" = EXCLUDED."deviceName",
			"ipAddress" = EXCLUDED."ipAddress",
			"lastSeenAt" = EXCLUDED."lastSeenAt"
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		int64(device.BACnetID), device.Name, device.IP, device.Port, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting device %d: %w", device.BACnetID, err)
	}
	return id, nil
}

// UpsertPoint inserts or refreshes a point row keyed by
// (device, objectType, objectInstance).
func (s *Store) UpsertPoint(ctx context.Context, point PointUpsert) error {
	const query = `
		INSERT INTO "Point"
			("deviceId", "objectType", "objectInstance", "pointName",
			 description, units, enabled, "isReadable", "isWritable",
			 "lastValue", "lastPollTime", "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), true, true, $7, NULLIF($8, ''), $9, $9, $9)
		ON CONFLICT ("deviceId", "objectType", "objectInstance")
		DO UPDATE SET
			"pointName" = EXCLUDED."pointName",
			description = EXCLUDED.description,
			units = EXCLUDED.units,
			"isWritable" = EXCLUDED."isWritable",
			"lastValue" = EXCLUDED."lastValue",
			"lastPollTime" = EXCLUDED."lastPollTime",
			"updatedAt" = EXCLUDED."updatedAt"`

	_, err := s.db.ExecContext(ctx, query,
		point.DeviceDBID, point.ObjectType, int64(point.ObjectInstance), point.PointName,
		point.Description, point.Units, point.IsWritable, point.LastValue, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting point %s:%d: %w", point.ObjectType, point.ObjectInstance, err)
	}
	return nil
}
