package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ak085/bacpipes/internal/configstore"
	"github.com/ak085/bacpipes/internal/infrastructure/mqtt"
)

// Subscriber registers MQTT message handlers.
// Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Engine drives the poll/publish/write loop.
//
// Thread Safety: Start and Stop are safe for concurrent use; the loop owns
// the scheduler and counters exclusively.
type Engine struct {
	scheduler *Scheduler
	poller    *Poller
	executor  *WriteExecutor
	queue     *CommandQueue
	store     PointStore

	tickInterval time.Duration

	// batchEnabled mirrors MqttConfig.enableBatchPublishing.
	batchEnabled bool

	// pollCycle counts completed cycles that polled at least one point.
	pollCycle uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger Logger
}

// Options wires the engine's collaborators.
type Options struct {
	Scheduler    *Scheduler
	Poller       *Poller
	Executor     *WriteExecutor
	Queue        *CommandQueue
	Store        PointStore
	TickInterval time.Duration
	BatchEnabled bool
	Logger       Logger
}

// New creates an engine. Call Start to begin operation.
func New(opts Options) (*Engine, error) {
	if opts.Poller == nil {
		return nil, fmt.Errorf("poller is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("write executor is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("point store is required")
	}

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	queue := opts.Queue
	if queue == nil {
		queue = NewCommandQueue()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 5 * time.Second
	}

	return &Engine{
		scheduler:    scheduler,
		poller:       opts.Poller,
		executor:     opts.Executor,
		queue:        queue,
		store:        opts.Store,
		tickInterval: tick,
		batchEnabled: opts.BatchEnabled,
		done:         make(chan struct{}),
		logger:       opts.Logger,
	}, nil
}

// Queue exposes the write-command FIFO for the MQTT subscription handler.
func (e *Engine) Queue() *CommandQueue {
	return e.queue
}

// CommandHandler returns the MQTT message handler for the write-command
// topic. It only parses JSON and enqueues — never dispatches work from the
// network callback.
func (e *Engine) CommandHandler() mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var cmd WriteCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("invalid write command JSON: %w", err)
		}
		e.queue.Enqueue(cmd)
		e.logDebug("write command queued", "job_id", cmd.JobID, "queue_len", e.queue.Len())
		return nil
	}
}

// SubscribeCommands registers the command handler on the write topic.
func (e *Engine) SubscribeCommands(subscriber Subscriber) error {
	topic := mqtt.Topics{}.WriteCommand()
	if err := subscriber.Subscribe(topic, 1, e.CommandHandler()); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	e.logInfo("subscribed to write commands", "topic", topic)
	return nil
}

// SetBatchEnabled toggles equipment batch publication (config reload).
func (e *Engine) SetBatchEnabled(enabled bool) {
	e.batchEnabled = enabled
}

// Start launches the engine loop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(ctx)
	}()
	e.logInfo("engine started", "tick_interval", e.tickInterval.String())
}

// Stop shuts the loop down and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.logInfo("engine stopped")
	})
}

// loop runs ticks until cancelled. Each outer iteration recovers from
// panics so one failing point or command cannot stop the engine.
func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.safeTick(ctx)
		}
	}
}

// safeTick runs one tick inside a recovery block.
func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logError("tick panicked", fmt.Errorf("%v", r))
		}
	}()
	e.Tick(ctx)
}

// Tick executes one engine cycle: drain writes, then poll due points.
// Exported for tests driving the engine synchronously.
func (e *Engine) Tick(ctx context.Context) TickStats {
	// Write commands execute before polling, in MQTT arrival order.
	for _, cmd := range e.queue.Drain() {
		if ctx.Err() != nil {
			return TickStats{}
		}
		e.executor.Execute(ctx, cmd) //nolint:errcheck // Outcome already published and logged
	}

	points, err := e.store.ListEnabledPoints(ctx)
	if err != nil {
		e.logError("listing enabled points failed", err)
		return TickStats{}
	}
	if len(points) == 0 {
		return TickStats{}
	}

	start := time.Now()
	now := start
	timestamp := e.poller.Timestamp(now)

	e.scheduler.Prune(points)
	due, skipped := e.scheduler.Due(points, now)

	groups, stats := e.poller.Poll(ctx, due, timestamp, func(pointID int64) {
		interval := pollIntervalFor(points, pointID)
		e.scheduler.Advance(pointID, interval, now)
	})
	stats.PointsChecked = len(points)
	stats.Skipped = skipped
	stats.Duration = time.Since(start).Seconds()

	if e.batchEnabled && len(groups) > 0 {
		stats.BatchPublishes = e.poller.PublishBatches(groups, timestamp, e.pollCycle+1, stats.Duration)
	}

	if stats.Polled > 0 {
		e.pollCycle++
		e.logInfo("poll cycle complete",
			"cycle", e.pollCycle,
			"checked", stats.PointsChecked,
			"polled", stats.Polled,
			"skipped", stats.Skipped,
			"successful", stats.Successful,
			"failed", stats.Failed,
			"individual_publishes", stats.IndividualPublishes,
			"batch_publishes", stats.BatchPublishes,
			"duration_s", stats.Duration,
		)
	}
	return stats
}

// PollCycle returns the completed cycle count.
func (e *Engine) PollCycle() uint64 {
	return e.pollCycle
}

// pollIntervalFor looks up a point's configured interval.
func pollIntervalFor(points []configstore.PointView, pointID int64) time.Duration {
	for _, p := range points {
		if p.ID == pointID {
			if p.PollInterval > 0 {
				return time.Duration(p.PollInterval) * time.Second
			}
			break
		}
	}
	return time.Minute
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logError(msg string, err error) {
	if e.logger != nil {
		e.logger.Error(msg, "error", err)
	}
}
