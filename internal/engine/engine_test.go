package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
)

// newTestEngine wires an engine over fakes. The scheduler is seeded so the
// supplied points are already past their minute boundary and due.
func newTestEngine(t *testing.T, reader *fakeReader, writer *fakeWriter, pub *fakePublisher, store *fakeStore) *Engine {
	t.Helper()

	scheduler := NewScheduler()
	// Register every point two minutes in the past so the boundary has
	// already elapsed by the time the test ticks.
	scheduler.Due(store.points, time.Now().Add(-2*time.Minute))

	poller := &Poller{
		reader:       reader,
		mqtt:         pub,
		store:        store,
		location:     time.UTC,
		deviceFanout: 8,
	}
	executor := NewWriteExecutor(writer, pub, time.UTC, nil)

	engine, err := New(Options{
		Scheduler:    scheduler,
		Poller:       poller,
		Executor:     executor,
		Store:        store,
		TickInterval: time.Second,
		BatchEnabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return engine
}

func TestTickPollsDuePoints(t *testing.T) {
	reader := newFakeReader()
	reader.values["analog-input:7"] = bacnet.RealValue(123.0)
	pub := &fakePublisher{}
	store := &fakeStore{points: []configstore.PointView{pollablePoint(1)}}

	engine := newTestEngine(t, reader, &fakeWriter{}, pub, store)

	stats := engine.Tick(context.Background())
	if stats.Polled != 1 || stats.Successful != 1 {
		t.Fatalf("stats = %+v, want 1 polled 1 successful", stats)
	}
	if len(pub.onTopic("klcc/ahu_12/SupplyTemp/presentValue")) != 1 {
		t.Error("individual topic not published")
	}
	// Batch publishing enabled and the point carries full equipment tags.
	if len(pub.onTopic("klcc/ahu_12/batch")) != 1 {
		t.Error("batch topic not published")
	}
	if engine.PollCycle() != 1 {
		t.Errorf("pollCycle = %d, want 1", engine.PollCycle())
	}
}

func TestTickIndividualPrecedesBatch(t *testing.T) {
	reader := newFakeReader()
	reader.values["analog-input:7"] = bacnet.RealValue(1)
	pub := &fakePublisher{}
	store := &fakeStore{points: []configstore.PointView{pollablePoint(1)}}

	engine := newTestEngine(t, reader, &fakeWriter{}, pub, store)
	engine.Tick(context.Background())

	msgs := pub.all()
	individualIdx, batchIdx := -1, -1
	for i, m := range msgs {
		switch m.Topic {
		case "klcc/ahu_12/SupplyTemp/presentValue":
			individualIdx = i
		case "klcc/ahu_12/batch":
			batchIdx = i
		}
	}
	if individualIdx < 0 || batchIdx < 0 {
		t.Fatalf("missing publications: individual=%d batch=%d", individualIdx, batchIdx)
	}
	if individualIdx > batchIdx {
		t.Error("batch published before the individual topic")
	}
}

func TestTickDrainsWritesBeforePolling(t *testing.T) {
	reader := newFakeReader()
	reader.values["analog-input:7"] = bacnet.RealValue(1)
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	store := &fakeStore{points: []configstore.PointView{pollablePoint(1)}}

	engine := newTestEngine(t, reader, writer, pub, store)

	// Two commands queued in MQTT arrival order.
	first := validCommand()
	first.JobID = "first"
	second := validCommand()
	second.JobID = "second"
	second.Value = 22.0
	engine.Queue().Enqueue(first)
	engine.Queue().Enqueue(second)

	engine.Tick(context.Background())

	calls := writer.calls()
	if len(calls) != 2 {
		t.Fatalf("writer saw %d calls, want 2", len(calls))
	}
	// FIFO: first's 21.5 before second's 22.0.
	if calls[0].Value != bacnet.RealValue(21.5) || calls[1].Value != bacnet.RealValue(22.0) {
		t.Errorf("write order = %+v", calls)
	}

	results := pub.onTopic("bacnet/write/result")
	if len(results) != 2 {
		t.Fatalf("result topic got %d messages, want 2", len(results))
	}
	var r0, r1 WriteResult
	if err := json.Unmarshal(results[0].Payload, &r0); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(results[1].Payload, &r1); err != nil {
		t.Fatal(err)
	}
	if r0.JobID != "first" || r1.JobID != "second" {
		t.Errorf("result order = %s, %s", r0.JobID, r1.JobID)
	}
}

func TestTickSkipsNewPoints(t *testing.T) {
	reader := newFakeReader()
	pub := &fakePublisher{}
	store := &fakeStore{points: []configstore.PointView{pollablePoint(1)}}

	poller := &Poller{reader: reader, mqtt: pub, store: store, location: time.UTC, deviceFanout: 8}
	engine, err := New(Options{
		Poller:   poller,
		Executor: NewWriteExecutor(&fakeWriter{}, pub, time.UTC, nil),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Fresh scheduler: the point's first observation aligns it to the next
	// minute and skips it.
	stats := engine.Tick(context.Background())
	if stats.Skipped != 1 || stats.Polled != 0 {
		t.Errorf("stats = %+v, want 1 skipped 0 polled", stats)
	}
	if len(pub.all()) != 0 {
		t.Error("new point published before its minute boundary")
	}
}

func TestCommandHandlerParsesAndQueues(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{}
	poller := &Poller{reader: newFakeReader(), mqtt: pub, store: store, location: time.UTC, deviceFanout: 8}
	engine, err := New(Options{
		Poller:   poller,
		Executor: NewWriteExecutor(&fakeWriter{}, pub, time.UTC, nil),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	handler := engine.CommandHandler()

	body := `{"jobId":"j1","deviceIp":"192.168.1.50","deviceId":3056496,` +
		`"objectType":"analog-output","objectInstance":2,"value":null,"release":true,"priority":8}`
	if err := handler("bacnet/write/command", []byte(body)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if engine.Queue().Len() != 1 {
		t.Fatalf("queue len = %d, want 1", engine.Queue().Len())
	}

	cmd := engine.Queue().Drain()[0]
	if cmd.JobID != "j1" || !cmd.Release || cmd.Priority != 8 {
		t.Errorf("parsed command = %+v", cmd)
	}

	// Invalid JSON is rejected by the handler, never enqueued.
	if err := handler("bacnet/write/command", []byte("{not json")); err == nil {
		t.Error("handler accepted invalid JSON")
	}
	if engine.Queue().Len() != 0 {
		t.Error("invalid JSON was enqueued")
	}
}

func TestEngineStartStop(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{}
	poller := &Poller{reader: newFakeReader(), mqtt: pub, store: store, location: time.UTC, deviceFanout: 8}
	engine, err := New(Options{
		Poller:       poller,
		Executor:     NewWriteExecutor(&fakeWriter{}, pub, time.UTC, nil),
		Store:        store,
		TickInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	engine.Stop()

	// Stop is idempotent.
	engine.Stop()
}

func TestTickSurvivesStoreFailure(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{listErr: context.DeadlineExceeded}
	poller := &Poller{reader: newFakeReader(), mqtt: pub, store: store, location: time.UTC, deviceFanout: 8}
	engine, err := New(Options{
		Poller:   poller,
		Executor: NewWriteExecutor(&fakeWriter{}, pub, time.UTC, nil),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A failed point query yields an empty tick, not a crash.
	stats := engine.Tick(context.Background())
	if stats.Polled != 0 {
		t.Errorf("stats = %+v, want empty tick", stats)
	}
}
