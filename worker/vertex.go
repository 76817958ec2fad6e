// Package worker implements the per-worker compute core of a distributed
// Signal/Collect graph-processing engine. A graph computation is sharded
// across many workers; each Worker owns a subset of the vertex set and
// cooperatively drives those vertices through alternating signal and collect
// phases until the shard converges. The coordinator, the message-bus
// transport, and the application's own vertex logic are external
// collaborators — this package only implements the local runtime: the event
// loop, the vertex store, the pending-work indices, and the control
// protocol that the coordinator drives it with.
package worker

// Id is the constraint on vertex identities. Identities must be comparable so
// they can key the vertex store and the pending-work indices.
type Id interface {
	comparable
}

// Vertex is implemented by application code. The core is polymorphic over
// the identity type I and the signal payload type S, chosen once per
// deployment.
type Vertex[I Id, S any] interface {
	// ID returns this vertex's stable identity.
	ID() I

	// ScoreSignal returns a measure of how much this vertex "wants" to
	// run ExecuteSignal right now. It is compared against the worker's
	// signal threshold; only a score strictly greater than the threshold
	// triggers execution.
	ScoreSignal() float64

	// ScoreCollect returns a measure of how much this vertex "wants" to
	// run ExecuteCollect given the batch of signals that have
	// accumulated for it since the last collect. Compared against the
	// worker's collect threshold the same way as ScoreSignal.
	ScoreCollect(uncollected []Signal[I, S]) float64

	// ExecuteSignal runs the signal operation, optionally emitting new
	// signals to other vertices via bus.
	ExecuteSignal(bus SignalBus[I, S])

	// ExecuteCollect runs the collect operation over the given batch of
	// uncollected signals, mutating this vertex's state and optionally
	// emitting new signals via bus.
	ExecuteCollect(uncollected []Signal[I, S], bus SignalBus[I, S])

	// AfterInitialization is a one-shot hook invoked exactly once, right
	// after this vertex is successfully inserted into the store.
	AfterInitialization(bus SignalBus[I, S])

	// AddOutgoingEdge adds e to this vertex's outgoing edge collection
	// and reports whether it was newly added.
	AddOutgoingEdge(e Edge[I]) bool

	// RemoveOutgoingEdge removes the outgoing edge to id, if any, and
	// reports whether one was removed.
	RemoveOutgoingEdge(id I) bool

	// RemoveAllOutgoingEdges drops every outgoing edge and returns how
	// many were removed.
	RemoveAllOutgoingEdges() int

	// OutgoingEdgeCount returns the number of outgoing edges currently
	// held by this vertex.
	OutgoingEdgeCount() int
}

// Edge is a directed edge owned by its source vertex. Kind is an
// application-defined tag (e.g. distinguishing edge types in a typed graph).
type Edge[I Id] struct {
	Source I
	Target I
	Kind   string
}

// Signal is a value emitted from one vertex to another during a signal
// phase, to be consumed by the target's next collect.
type Signal[I Id, S any] struct {
	Payload S
	Source  I
	Target  I
}

// SignalBus is the narrow interface vertex logic uses to emit signals while
// running ExecuteSignal/ExecuteCollect/AfterInitialization. It is the
// vertex-facing slice of the worker-to-message-bus boundary described in
// the package's external interfaces; a concrete bus implementation lives in
// the sibling bus package.
type SignalBus[I Id, S any] interface {
	SendSignal(Signal[I, S]) error
}
