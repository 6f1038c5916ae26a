package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/infrastructure/mqtt"
)

// Write priority bounds per the BACnet priority array.
const (
	minWritePriority = 1
	maxWritePriority = 16
)

// CommandQueue is the in-memory FIFO between the MQTT network callback and
// the engine loop. The callback only parses and enqueues; the loop drains.
//
// Thread Safety: safe for concurrent enqueue; draining happens from the
// engine loop only.
type CommandQueue struct {
	mu    sync.Mutex
	items []WriteCommand
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Enqueue appends a command in arrival order.
func (q *CommandQueue) Enqueue(cmd WriteCommand) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// Drain removes and returns all queued commands in FIFO order.
func (q *CommandQueue) Drain() []WriteCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WriteExecutor validates queued commands, performs the BACnet writes, and
// publishes correlated results.
type WriteExecutor struct {
	writer   PointWriter
	mqtt     Publisher
	location *time.Location
	logger   Logger
}

// NewWriteExecutor creates an executor.
func NewWriteExecutor(writer PointWriter, publisher Publisher, location *time.Location, logger Logger) *WriteExecutor {
	if location == nil {
		location = time.UTC
	}
	return &WriteExecutor{writer: writer, mqtt: publisher, location: location, logger: logger}
}

// SetLocation updates the result timestamp timezone.
func (e *WriteExecutor) SetLocation(loc *time.Location) {
	if loc != nil {
		e.location = loc
	}
}

// Execute runs one write command end to end and publishes its result.
// The returned error mirrors what the result message carries; callers use
// it only for counters.
func (e *WriteExecutor) Execute(ctx context.Context, cmd WriteCommand) error {
	// A command without a job id still gets a correlatable result.
	if cmd.JobID == "" {
		cmd.JobID = uuid.NewString()
	}

	e.logInfo("executing write command",
		"job_id", cmd.JobID,
		"device", cmd.DeviceID,
		"device_ip", cmd.DeviceIP,
		"point", cmd.PointName,
		"object", fmt.Sprintf("%s:%d", cmd.ObjectType, cmd.ObjectInstance),
		"release", cmd.Release,
	)

	err := e.execute(ctx, cmd)
	e.publishResult(cmd, err)

	if err != nil {
		e.logError("write command failed", cmd, err)
		return err
	}
	e.logInfo("write command complete", "job_id", cmd.JobID)
	return nil
}

// execute validates, encodes, and performs the BACnet write.
func (e *WriteExecutor) execute(ctx context.Context, cmd WriteCommand) error {
	if err := validateCommand(cmd); err != nil {
		return err
	}

	objectType, err := bacnet.ParseObjectType(cmd.ObjectType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	value, err := bacnet.EncodeWriteValue(objectType, cmd.Value, cmd.Release)
	if err != nil {
		return err
	}

	// Writes address the standard BACnet port regardless of the polling
	// endpoint configuration.
	addr, err := bacnet.ResolveAddress(cmd.DeviceIP)
	if err != nil {
		return err
	}

	oid := bacnet.NewObjectIdentifier(objectType, uint32(cmd.ObjectInstance))

	// presentValue is written directly; the command's priority is
	// advisory and not mapped to a priority-array slot.
	return e.writer.WriteProperty(ctx, addr, oid, bacnet.PropPresentValue, value, 0)
}

// validateCommand checks required fields and ranges.
func validateCommand(cmd WriteCommand) error {
	if cmd.DeviceIP == "" {
		return fmt.Errorf("%w: deviceIp is required", ErrInvalidCommand)
	}
	if cmd.ObjectType == "" {
		return fmt.Errorf("%w: objectType is required", ErrInvalidCommand)
	}
	if cmd.ObjectInstance < 0 {
		return fmt.Errorf("%w: objectInstance must not be negative", ErrInvalidCommand)
	}
	if cmd.Priority != 0 && (cmd.Priority < minWritePriority || cmd.Priority > maxWritePriority) {
		return fmt.Errorf("%w: priority must be 1..16", ErrInvalidCommand)
	}
	if !cmd.Release && cmd.Value == nil {
		return fmt.Errorf("%w: value is required when release is false", ErrInvalidCommand)
	}
	return nil
}

// publishResult sends the correlated WriteResult at QoS 1.
func (e *WriteExecutor) publishResult(cmd WriteCommand, execErr error) {
	result := WriteResult{
		JobID:     cmd.JobID,
		Success:   execErr == nil,
		Timestamp: time.Now().In(e.location).Format(time.RFC3339Nano),
		DeviceID:  cmd.DeviceID,
		PointName: cmd.PointName,
		Value:     cmd.Value,
		Priority:  cmd.Priority,
		Release:   cmd.Release,
	}
	if execErr != nil {
		result.Error = execErr.Error()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		e.logError("failed to marshal write result", cmd, err)
		return
	}

	if err := e.mqtt.Publish(mqtt.Topics{}.WriteResult(), payload, 1, false); err != nil {
		e.logError("failed to publish write result", cmd, err)
	}
}

func (e *WriteExecutor) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *WriteExecutor) logError(msg string, cmd WriteCommand, err error) {
	if e.logger != nil {
		e.logger.Error(msg, "job_id", cmd.JobID, "error", err)
	}
}
