package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
)

// Worker operation constants.
const (
	// defaultPollInterval is how often the job table is checked.
	defaultPollInterval = 5 * time.Second

	// defaultSubnetMaskBits assumes a /24 when not configured.
	defaultSubnetMaskBits = 24

	// objectFanout bounds concurrent property enumeration per device.
	objectFanout = 4

	// enumerationTimeoutPerObject budgets the per-device enumeration
	// deadline: timeout scales with the object count.
	enumerationTimeoutPerObject = 10 * time.Second
)

// enumerationProperties is the fixed property set read for every object.
var enumerationProperties = []bacnet.PropertyIdentifier{
	bacnet.PropObjectName,
	bacnet.PropDescription,
	bacnet.PropPresentValue,
	bacnet.PropUnits,
	bacnet.PropStatusFlags,
	bacnet.PropReliability,
	bacnet.PropOutOfService,
	bacnet.PropEventState,
	bacnet.PropPriorityArray,
	bacnet.PropCOVIncrement,
	bacnet.PropTimeDelay,
	bacnet.PropActiveText,
	bacnet.PropInactiveText,
	bacnet.PropStateText,
	bacnet.PropNumberOfStates,
	bacnet.PropMinPresValue,
	bacnet.PropMaxPresValue,
	bacnet.PropResolution,
}

// Client is the BACnet surface a discovery sweep needs.
// Satisfied by *bacnet.Client.
type Client interface {
	SetOnIAm(handler bacnet.IAmHandler)
	WhoIs(broadcast *net.UDPAddr, lowLimit, highLimit *uint32) error
	ReadProperty(ctx context.Context, addr *net.UDPAddr, oid bacnet.ObjectIdentifier, property bacnet.PropertyIdentifier) (bacnet.Value, error)
	ReadObjectList(ctx context.Context, addr *net.UDPAddr, deviceID uint32) ([]bacnet.ObjectIdentifier, error)
	ReadPropertyMultiple(ctx context.Context, addr *net.UDPAddr, oid bacnet.ObjectIdentifier, properties []bacnet.PropertyIdentifier) (map[bacnet.PropertyIdentifier]bacnet.Value, error)
	Close() error
}

// ClientFactory opens an ephemeral BACnet endpoint for one job.
type ClientFactory func(localAddress string, deviceID uint32) (Client, error)

// JobStore is the configuration-store surface the worker needs.
// Satisfied by *configstore.Store.
type JobStore interface {
	ClaimRunningDiscoveryJob(ctx context.Context) (*configstore.DiscoveryJob, error)
	CloseDiscoveryJob(ctx context.Context, jobID string, outcome configstore.JobOutcome) error
	UpsertDevice(ctx context.Context, device configstore.DeviceUpsert) (int64, error)
	UpsertPoint(ctx context.Context, point configstore.PointUpsert) error
}

// Logger is the structured logging interface the worker uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Worker consumes discovery jobs.
type Worker struct {
	store     JobStore
	newClient ClientFactory

	pollInterval   time.Duration
	subnetMaskBits int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger Logger
}

// Options configures a Worker.
type Options struct {
	Store          JobStore
	ClientFactory  ClientFactory
	PollInterval   time.Duration
	SubnetMaskBits int
	Logger         Logger
}

// NewWorker creates a discovery worker. Call Start to begin consuming.
func NewWorker(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if opts.ClientFactory == nil {
		return nil, fmt.Errorf("client factory is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maskBits := opts.SubnetMaskBits
	if maskBits <= 0 {
		maskBits = defaultSubnetMaskBits
	}

	return &Worker{
		store:          opts.Store,
		newClient:      opts.ClientFactory,
		pollInterval:   pollInterval,
		subnetMaskBits: maskBits,
		done:           make(chan struct{}),
		logger:         opts.Logger,
	}, nil
}

// Start launches the job polling loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	w.logInfo("discovery worker started", "poll_interval", w.pollInterval.String())
}

// Stop shuts the loop down between jobs.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.logInfo("discovery worker stopped")
	})
}

// loop polls for claimable jobs until cancelled.
func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce claims at most one job and runs it to a terminal state.
func (w *Worker) pollOnce(ctx context.Context) {
	job, err := w.store.ClaimRunningDiscoveryJob(ctx)
	if err != nil {
		if !errors.Is(err, configstore.ErrNoJob) {
			w.logWarn("claiming discovery job failed", "error", err)
		}
		return
	}

	w.logInfo("running discovery job",
		"job_id", job.ID,
		"interface", job.IPAddress,
		"port", job.Port,
		"timeout_s", job.Timeout,
	)

	outcome := w.RunJob(ctx, job)
	if err := w.store.CloseDiscoveryJob(ctx, job.ID, outcome); err != nil {
		w.logError("closing discovery job failed", err)
		return
	}

	w.logInfo("discovery job finished",
		"job_id", job.ID,
		"status", string(outcome.Status),
		"devices_found", outcome.DevicesFound,
		"points_found", outcome.PointsFound,
	)
}

// responder is one device that answered the Who-Is sweep.
type responder struct {
	addr     *net.UDPAddr
	deviceID uint32
}

// RunJob executes one discovery sweep and returns the job outcome.
// Exported for tests driving jobs synchronously.
func (w *Worker) RunJob(ctx context.Context, job *configstore.DiscoveryJob) configstore.JobOutcome {
	broadcast, err := bacnet.BroadcastAddress(job.IPAddress, w.subnetMaskBits, job.Port)
	if err != nil {
		return errorOutcome(fmt.Errorf("deriving broadcast address: %w", err))
	}

	client, err := w.newClient(fmt.Sprintf("%s:%d", job.IPAddress, job.Port), job.DeviceID)
	if err != nil {
		return errorOutcome(fmt.Errorf("opening discovery endpoint: %w", err))
	}
	defer client.Close() //nolint:errcheck // Endpoint is ephemeral

	// Collect I-Am responders for the job's timeout window. Duplicate
	// announcements from one device collapse onto its id.
	var mu sync.Mutex
	responders := make(map[uint32]responder)
	client.SetOnIAm(func(source *net.UDPAddr, deviceID uint32) {
		mu.Lock()
		defer mu.Unlock()
		if _, seen := responders[deviceID]; !seen {
			responders[deviceID] = responder{addr: source, deviceID: deviceID}
			w.logInfo("device responded", "device_id", deviceID, "address", source.String())
		}
	})

	if err := client.WhoIs(broadcast, nil, nil); err != nil {
		return errorOutcome(fmt.Errorf("broadcasting Who-Is: %w", err))
	}

	if err := waitOrCancel(ctx, time.Duration(job.Timeout)*time.Second); err != nil {
		return errorOutcome(err)
	}

	mu.Lock()
	found := make([]responder, 0, len(responders))
	for _, r := range responders {
		found = append(found, r)
	}
	mu.Unlock()

	w.logInfo("who-is sweep complete", "job_id", job.ID, "responders", len(found))

	devicesSaved := 0
	pointsSaved := 0
	for _, r := range found {
		points, err := w.enumerateDevice(ctx, client, r)
		if err != nil {
			w.logWarn("device enumeration failed", "device_id", r.deviceID, "error", err)
			continue
		}
		saved, err := w.persistDevice(ctx, r, points)
		if err != nil {
			w.logWarn("persisting device failed", "device_id", r.deviceID, "error", err)
			continue
		}
		devicesSaved++
		pointsSaved += saved
	}

	return configstore.JobOutcome{
		Status:       configstore.JobComplete,
		DevicesFound: devicesSaved,
		PointsFound:  pointsSaved,
	}
}

// discoveredPoint is one enumerated object with its device name attached.
type discoveredPoint struct {
	deviceName string
	point      configstore.PointUpsert
}

// enumerateDevice reads a responder's name and object list, then its
// objects' properties with bounded concurrency. Per-object failures are
// logged and skipped — they never abort the device.
func (w *Worker) enumerateDevice(ctx context.Context, client Client, r responder) ([]discoveredPoint, error) {
	deviceOID := bacnet.NewObjectIdentifier(bacnet.ObjectDevice, r.deviceID)

	deviceName := fmt.Sprintf("Device_%d", r.deviceID)
	if nameValue, err := client.ReadProperty(ctx, r.addr, deviceOID, bacnet.PropObjectName); err == nil {
		if nameValue.Kind == bacnet.KindString && nameValue.String != "" {
			deviceName = nameValue.String
		}
	}

	objects, err := client.ReadObjectList(ctx, r.addr, r.deviceID)
	if err != nil {
		return nil, fmt.Errorf("reading object list: %w", err)
	}
	w.logInfo("enumerating device", "device_id", r.deviceID, "name", deviceName, "objects", len(objects))

	enumCtx := ctx
	if len(objects) > 0 {
		var cancel context.CancelFunc
		enumCtx, cancel = context.WithTimeout(ctx, time.Duration(len(objects))*enumerationTimeoutPerObject)
		defer cancel()
	}

	var mu sync.Mutex
	var points []discoveredPoint

	// Bounded fan-out over the device's objects. Per-object errors are
	// logged and skipped, not propagated: one bad object must not cancel
	// the rest.
	group, groupCtx := errgroup.WithContext(enumCtx)
	group.SetLimit(objectFanout)
	for _, oid := range objects {
		oid := oid
		if oid.Type == bacnet.ObjectDevice {
			continue
		}
		group.Go(func() error {
			point, err := w.readObject(groupCtx, client, r, oid)
			if err != nil {
				w.logDebug("skipping object", "device_id", r.deviceID, "object", oid.String(), "error", err)
				return nil
			}
			mu.Lock()
			points = append(points, discoveredPoint{deviceName: deviceName, point: point})
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return points, nil
}

// readObject reads the fixed property set for one object.
func (w *Worker) readObject(ctx context.Context, client Client, r responder, oid bacnet.ObjectIdentifier) (configstore.PointUpsert, error) {
	values, err := client.ReadPropertyMultiple(ctx, r.addr, oid, enumerationProperties)
	if err != nil {
		return configstore.PointUpsert{}, err
	}

	point := configstore.PointUpsert{
		ObjectType:     oid.Type.String(),
		ObjectInstance: oid.Instance,
		PointName:      stringProperty(values, bacnet.PropObjectName, "Unknown"),
		Description:    stringProperty(values, bacnet.PropDescription, ""),
		Units:          stringProperty(values, bacnet.PropUnits, ""),
		LastValue:      stringProperty(values, bacnet.PropPresentValue, ""),
	}

	// A present priority array marks the point commandable.
	_, point.IsWritable = values[bacnet.PropPriorityArray]

	return point, nil
}

// persistDevice upserts the device row and its points.
func (w *Worker) persistDevice(ctx context.Context, r responder, points []discoveredPoint) (int, error) {
	deviceName := fmt.Sprintf("Device_%d", r.deviceID)
	if len(points) > 0 {
		deviceName = points[0].deviceName
	}

	deviceDBID, err := w.store.UpsertDevice(ctx, configstore.DeviceUpsert{
		BACnetID: r.deviceID,
		Name:     deviceName,
		IP:       r.addr.IP.String(),
		Port:     r.addr.Port,
	})
	if err != nil {
		return 0, err
	}

	saved := 0
	for _, dp := range points {
		dp.point.DeviceDBID = deviceDBID
		if err := w.store.UpsertPoint(ctx, dp.point); err != nil {
			w.logWarn("persisting point failed",
				"device_id", r.deviceID,
				"object", fmt.Sprintf("%s:%d", dp.point.ObjectType, dp.point.ObjectInstance),
				"error", err)
			continue
		}
		saved++
	}
	return saved, nil
}

// stringProperty renders a property value for persistence.
func stringProperty(values map[bacnet.PropertyIdentifier]bacnet.Value, property bacnet.PropertyIdentifier, fallback string) string {
	v, ok := values[property]
	if !ok {
		return fallback
	}
	s := v.DisplayString()
	if s == "" {
		return fallback
	}
	return s
}

// errorOutcome wraps a failure into a terminal job outcome.
func errorOutcome(err error) configstore.JobOutcome {
	return configstore.JobOutcome{
		Status:       configstore.JobError,
		ErrorMessage: err.Error(),
	}
}

// waitOrCancel sleeps for d, returning the context error when cancelled.
func waitOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Worker) logDebug(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Worker) logWarn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

func (w *Worker) logError(msg string, err error) {
	if w.logger != nil {
		w.logger.Error(msg, "error", err)
	}
}
