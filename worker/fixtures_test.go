package worker

import "sync"

// testBus is a WorkerBus[string, float64] test double: it records every
// signal and status handed to it instead of routing them anywhere.
type testBus struct {
	mutex    sync.Mutex
	signals  []Signal[string, float64]
	statuses []WorkerStatus
}

func (obj *testBus) SendSignal(s Signal[string, float64]) error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.signals = append(obj.signals, s)
	return nil
}

func (obj *testBus) SendToCoordinator(status WorkerStatus) error {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	obj.statuses = append(obj.statuses, status)
	return nil
}

func (obj *testBus) MessagesSent() uint64 {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	return uint64(len(obj.signals))
}

func (obj *testBus) lastStatus() (WorkerStatus, bool) {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	if len(obj.statuses) == 0 {
		return WorkerStatus{}, false
	}
	return obj.statuses[len(obj.statuses)-1], true
}

func (obj *testBus) allStatuses() []WorkerStatus {
	obj.mutex.Lock()
	defer obj.mutex.Unlock()
	out := make([]WorkerStatus, len(obj.statuses))
	copy(out, obj.statuses)
	return out
}

// testVertex is a minimal, fully inspectable Vertex[string, float64].
// signalScore and collectScore are fixed scores a test sets directly; the
// onSignal/onCollect hooks, when set, let a test observe or react to
// execution.
type testVertex struct {
	id    string
	edges map[string]Edge[string]

	signalScore  float64
	collectScore float64

	afterInitCalled bool
	signalCalls     int
	collectCalls    int
	collected       [][]Signal[string, float64]

	onSignal  func(bus SignalBus[string, float64])
	onCollect func(uncollected []Signal[string, float64], bus SignalBus[string, float64])
}

func newTestVertex(id string) *testVertex {
	return &testVertex{id: id, edges: make(map[string]Edge[string])}
}

func (obj *testVertex) ID() string { return obj.id }

func (obj *testVertex) ScoreSignal() float64 { return obj.signalScore }

func (obj *testVertex) ScoreCollect([]Signal[string, float64]) float64 { return obj.collectScore }

func (obj *testVertex) ExecuteSignal(bus SignalBus[string, float64]) {
	obj.signalCalls++
	if obj.onSignal != nil {
		obj.onSignal(bus)
	}
}

func (obj *testVertex) ExecuteCollect(uncollected []Signal[string, float64], bus SignalBus[string, float64]) {
	obj.collectCalls++
	obj.collected = append(obj.collected, uncollected)
	if obj.onCollect != nil {
		obj.onCollect(uncollected, bus)
	}
}

func (obj *testVertex) AfterInitialization(SignalBus[string, float64]) {
	obj.afterInitCalled = true
}

func (obj *testVertex) AddOutgoingEdge(e Edge[string]) bool {
	if _, ok := obj.edges[e.Target]; ok {
		return false
	}
	obj.edges[e.Target] = e
	return true
}

func (obj *testVertex) RemoveOutgoingEdge(id string) bool {
	if _, ok := obj.edges[id]; !ok {
		return false
	}
	delete(obj.edges, id)
	return true
}

func (obj *testVertex) RemoveAllOutgoingEdges() int {
	n := len(obj.edges)
	obj.edges = make(map[string]Edge[string])
	return n
}

func (obj *testVertex) OutgoingEdgeCount() int { return len(obj.edges) }

// newTestWorker builds an Init'd Worker[string, float64] wired to a fresh
// testBus, with both thresholds defaulted unless overridden by the caller.
func newTestWorker(t interface {
	Fatalf(string, ...interface{})
}, configure func(*Config[string, float64])) (*Worker[string, float64], *testBus) {
	bus := &testBus{}
	cfg := Config[string, float64]{
		WorkerID:        1,
		NumberOfWorkers: 1,
		MessageBusFactory: func(uint32, func(string) uint32) WorkerBus[string, float64] {
			return bus
		},
		StorageFactory: func() Store[string, float64] {
			return NewMemoryStore[string, float64]()
		},
		Logf: func(string, ...interface{}) {},
	}
	if configure != nil {
		configure(&cfg)
	}
	w := NewWorker(cfg)
	if err := w.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return w, bus
}
