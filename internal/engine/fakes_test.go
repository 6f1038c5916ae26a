package engine

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
)

// fakeReader answers ReadProperty from a value table keyed by object
// identifier string.
type fakeReader struct {
	mu     sync.Mutex
	values map[string]bacnet.Value
	errs   map[string]error
	calls  []string
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		values: make(map[string]bacnet.Value),
		errs:   make(map[string]error),
	}
}

func (f *fakeReader) ReadProperty(_ context.Context, _ *net.UDPAddr, oid bacnet.ObjectIdentifier, _ bacnet.PropertyIdentifier) (bacnet.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := oid.String()
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return bacnet.Value{}, err
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return bacnet.Value{}, bacnet.ErrTimeout
}

func (f *fakeReader) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

// fakeWriter records WriteProperty calls.
type writeCall struct {
	Addr     string
	OID      bacnet.ObjectIdentifier
	Value    bacnet.Value
	Priority uint8
}

type fakeWriter struct {
	mu     sync.Mutex
	err    error
	writes []writeCall
}

func (f *fakeWriter) WriteProperty(_ context.Context, addr *net.UDPAddr, oid bacnet.ObjectIdentifier, _ bacnet.PropertyIdentifier, value bacnet.Value, priority uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{Addr: addr.String(), OID: oid, Value: value, Priority: priority})
	return f.err
}

func (f *fakeWriter) calls() []writeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]writeCall, len(f.writes))
	copy(out, f.writes)
	return out
}

// fakePublisher records published messages.
type published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type fakePublisher struct {
	mu           sync.Mutex
	messages     []published
	disconnected bool
	err          error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakePublisher) onTopic(topic string) []published {
	var out []published
	for _, m := range f.all() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeStore serves a fixed point list and records write-backs.
type writeback struct {
	PointID int64
	Value   string
	Time    time.Time
}

type fakeStore struct {
	mu         sync.Mutex
	points     []configstore.PointView
	listErr    error
	writebacks []writeback
}

func (f *fakeStore) ListEnabledPoints(context.Context) ([]configstore.PointView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]configstore.PointView, len(f.points))
	copy(out, f.points)
	return out, nil
}

func (f *fakeStore) UpdatePointLastValue(_ context.Context, pointID int64, value string, pollTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writebacks = append(f.writebacks, writeback{PointID: pointID, Value: value, Time: pollTime})
}

func (f *fakeStore) writebackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writebacks)
}
