package worker

import "github.com/google/uuid"

// WorkerStatus is emitted to the coordinator on every transition of
// (isIdle, isPaused) — never on an unchanged pair, per the idempotent status
// emission invariant.
type WorkerStatus struct {
	WorkerID         uint32
	IsIdle           bool
	IsPaused         bool
	MessagesSent     uint64
	MessagesReceived uint64
}

// WorkerStatistics is returned on demand via Worker.Statistics: message-bus
// counters plus store size plus summed outgoing-edge counts, per §4.F.
type WorkerStatistics struct {
	WorkerID             uint32
	MessagesSent         uint64
	MessagesReceived     uint64
	VerticesAdded        uint64
	VerticesRemoved      uint64
	OutgoingEdgesAdded   uint64
	OutgoingEdgesRemoved uint64
	SignalOperations     uint64
	CollectOperations    uint64
	SignalSteps          uint64
	CollectSteps         uint64
	StoreSize            int
	TotalOutgoingEdges   int
}

// StatusSink is the worker-facing slice of the worker-to-coordinator
// boundary: the subset of a MessageBus a worker needs to report its status.
// It's kept separate from the fuller MessageBus interface (see package bus)
// so the worker package itself never needs to import the bus package.
type StatusSink interface {
	SendToCoordinator(WorkerStatus) error
}

// newRequestID returns a fresh random UUID string, usable as a log/trace
// correlation id, grounded on the teacher's use of google/uuid for request
// identifiers (lib/deploy.go). WorkerRequest values carry no id of their
// own, and nothing in this module calls newRequestID.
func newRequestID() string {
	return uuid.NewString()
}

// UndeliverableSignalHandler is invoked once per signal whose target vertex
// is absent from the local store at collect time (component G). The
// GraphApi parameter lets the handler look up vertices and read the worker's
// statistics without the dispatch code needing to know what a handler wants
// to do with the signal.
type UndeliverableSignalHandler[I Id, S any] func(Signal[I, S], GraphApi[I, S])

// GraphApi is the restricted view of a Worker handed to an
// UndeliverableSignalHandler. It exposes vertex lookup and statistics only,
// without exposing the event-loop internals.
type GraphApi[I Id, S any] interface {
	ForVertexWithID(id I, f func(Vertex[I, S]))
	Statistics() WorkerStatistics
}

func defaultUndeliverableSignalHandler[I Id, S any](Signal[I, S], GraphApi[I, S]) {
	// no-op by default, per §6.
}
