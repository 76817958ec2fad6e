package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalcollect/sigcollect/util/errwrap"
)

// Default thresholds and timeout, per §4.E.
const (
	DefaultSignalThreshold  = 0.001
	DefaultCollectThreshold = 0.0
	DefaultIdleTimeout      = 5 * time.Millisecond
)

// WorkerBus is the worker-facing slice of the message bus a Worker needs at
// runtime: sending signals, reporting status, and reading the bus's own
// sent-message counter (§6). Registration with the bus (RegisterWorker,
// RegisterCoordinator) is wiring-time plumbing that happens outside the
// worker, so it isn't part of this interface.
type WorkerBus[I Id, S any] interface {
	SignalBus[I, S]
	StatusSink
	MessagesSent() uint64
}

// Config holds everything a Worker needs at construction time (§6
// Configuration). StorageFactory is deliberately not invoked until Init, per
// the Design Notes' lazy-store-creation guidance: that way a bad
// configuration is reported by Init before the event loop ever starts.
type Config[I Id, S any] struct {
	WorkerID        uint32
	NumberOfWorkers uint32

	// MessageBusFactory produces the bus this worker will use, bound to
	// the cluster size and the vertex-to-worker mapping. The factory
	// itself, and the mapper, are out-of-scope collaborators — only
	// their shape is specified here.
	MessageBusFactory func(numberOfWorkers uint32, mapper func(I) uint32) WorkerBus[I, S]

	// VertexToWorkerMapper is the pure routing function passed through
	// to MessageBusFactory.
	VertexToWorkerMapper func(I) uint32

	// StorageFactory produces the vertex store (component A). The
	// pending-work indices (component B) are built by Init itself,
	// independently of this factory.
	StorageFactory func() Store[I, S]

	SignalThreshold  float64
	CollectThreshold float64
	IdleTimeout      time.Duration

	// InboxCapacity bounds the inbox's internal buffer. Zero picks a
	// generous default; the spec itself describes the inbox as
	// unbounded unless the transport chooses to cap it.
	InboxCapacity int

	// SignalRateLimit and SignalRateBurst, if SignalRateLimit > 0,
	// install a token-bucket limiter around each ExecuteSignal
	// invocation, grounded on the teacher's use of golang.org/x/time/rate
	// around CheckApply (engine/graph/actions.go) — here throttling how
	// often a single worker runs signal operations. Individual signals
	// emitted by vertex code are not counted against it.
	SignalRateLimit rate.Limit
	SignalRateBurst int

	UndeliverableSignalHandler UndeliverableSignalHandler[I, S]

	Logf func(format string, v ...interface{})
}

// workerMode pins a Worker to either the asynchronous event-loop driver or
// the synchronous BSP-style step driver, per the Design Notes resolution of
// that open question: a single instance must not mix the two.
type workerMode int

const (
	modeUnset workerMode = iota
	modeAsync
	modeBSP
)

// Worker is the per-worker compute core (components A through G). Every
// field is single-threaded state: only the goroutine running Run (or making
// the SignalStep/CollectStep calls) may read or write it. External code
// reaches in only by enqueueing a Signal or WorkerRequest through the inbox.
type Worker[I Id, S any] struct {
	cfg Config[I, S]

	store     Store[I, S]
	toSignal  *toSignal[I]
	toCollect *toCollect[I, S]
	inbox     *inbox[I, S]

	bus           WorkerBus[I, S]
	undeliverable UndeliverableSignalHandler[I, S]
	limiter       *rate.Limiter

	counters counters
	metrics  *metrics

	signalThreshold  float64
	collectThreshold float64
	idleTimeout      time.Duration

	isIdle         bool
	isPaused       bool
	shouldStart    bool
	shouldPause    bool
	shouldShutdown bool

	mode workerMode

	Logf func(format string, v ...interface{})
}

// NewWorker allocates a Worker from cfg. No construction-time work that can
// fail happens here — see Init.
func NewWorker[I Id, S any](cfg Config[I, S]) *Worker[I, S] {
	return &Worker[I, S]{cfg: cfg}
}

// Init validates the configuration, lazily builds the vertex store, and
// prepares the event-loop state. It must be called exactly once, before Run
// or any *Step method.
func (obj *Worker[I, S]) Init() error {
	if obj.cfg.StorageFactory == nil {
		return fmt.Errorf("storage factory is missing")
	}
	if obj.cfg.MessageBusFactory == nil {
		return fmt.Errorf("message bus factory is missing")
	}
	if obj.cfg.Logf == nil {
		return fmt.Errorf("the Logf function is missing")
	}

	obj.Logf = obj.cfg.Logf
	obj.signalThreshold = obj.cfg.SignalThreshold
	if obj.signalThreshold == 0 {
		obj.signalThreshold = DefaultSignalThreshold
	}
	obj.collectThreshold = obj.cfg.CollectThreshold // zero is a valid default

	obj.idleTimeout = obj.cfg.IdleTimeout
	if obj.idleTimeout <= 0 {
		obj.idleTimeout = DefaultIdleTimeout
	}

	obj.undeliverable = obj.cfg.UndeliverableSignalHandler
	if obj.undeliverable == nil {
		obj.undeliverable = defaultUndeliverableSignalHandler[I, S]
	}

	if obj.cfg.SignalRateLimit > 0 {
		obj.limiter = rate.NewLimiter(obj.cfg.SignalRateLimit, obj.cfg.SignalRateBurst)
	}

	// lazy store creation: this is where a bad StorageFactory surfaces,
	// before the loop in Run ever begins.
	obj.store = obj.cfg.StorageFactory()
	if obj.store == nil {
		return fmt.Errorf("storage factory returned a nil store")
	}
	obj.toSignal = newToSignal[I]()
	obj.toCollect = newToCollect[I, S]()
	obj.inbox = newInbox[I, S](obj.cfg.InboxCapacity)
	obj.metrics = newMetrics(obj.cfg.WorkerID)

	obj.bus = obj.cfg.MessageBusFactory(obj.cfg.NumberOfWorkers, obj.cfg.VertexToWorkerMapper)
	if obj.bus == nil {
		return fmt.Errorf("message bus factory returned a nil bus")
	}

	obj.isPaused = true // initially true, per §4.E

	return nil
}

// SetSignalThreshold changes the signal threshold at runtime (§6).
func (obj *Worker[I, S]) SetSignalThreshold(threshold float64) {
	obj.signalThreshold = threshold
}

// SetCollectThreshold changes the collect threshold at runtime (§6).
func (obj *Worker[I, S]) SetCollectThreshold(threshold float64) {
	obj.collectThreshold = threshold
}

// SendSignal enqueues an inbound signal for later processing. This is how
// other workers' message-bus deliveries reach this worker.
func (obj *Worker[I, S]) SendSignal(s Signal[I, S]) {
	obj.inbox.sendSignal(s)
}

// SendRequest enqueues a control-plane WorkerRequest for later processing.
// This is how the coordinator drives this worker's control-plane operations.
func (obj *Worker[I, S]) SendRequest(r WorkerRequest[I, S]) {
	obj.inbox.sendRequest(r)
}

// IsConverged reports whether this worker's shard has no pending signal or
// collect work (invariant 2).
func (obj *Worker[I, S]) IsConverged() bool {
	return obj.toSignal.IsEmpty() && obj.toCollect.IsEmpty()
}

// Statistics returns a snapshot of this worker's operation counters (§4.F).
func (obj *Worker[I, S]) Statistics() WorkerStatistics {
	total := 0
	obj.store.Foreach(func(v Vertex[I, S]) {
		total += v.OutgoingEdgeCount()
	})
	return WorkerStatistics{
		WorkerID:             obj.cfg.WorkerID,
		MessagesSent:         obj.bus.MessagesSent(),
		MessagesReceived:     obj.counters.messagesReceived,
		VerticesAdded:        obj.counters.verticesAdded,
		VerticesRemoved:      obj.counters.verticesRemoved,
		OutgoingEdgesAdded:   obj.counters.outgoingEdgesAdded,
		OutgoingEdgesRemoved: obj.counters.outgoingEdgesRemoved,
		SignalOperations:     obj.counters.signalOperations,
		CollectOperations:    obj.counters.collectOperations,
		SignalSteps:          obj.counters.signalSteps,
		CollectSteps:         obj.counters.collectSteps,
		StoreSize:            obj.store.Size(),
		TotalOutgoingEdges:   total,
	}
}

// ForVertexWithID runs f against the vertex with the given id, if present.
// This is the supported way for external callers (e.g. an
// UndeliverableSignalHandler) to observe a vertex. No downcast happens here:
// f receives the stored value as a Vertex, and any conversion to a concrete
// type is up to f. A missing id means f is not called.
func (obj *Worker[I, S]) ForVertexWithID(id I, f func(Vertex[I, S])) {
	if v, ok := obj.store.Get(id); ok {
		f(v)
	}
}

// ------------------------------------------------------------------
// control-plane mutation operations (§4.E "Edge/vertex mutation
// operations"), invoked from inside a WorkerRequest closure.
// ------------------------------------------------------------------

// AddVertex inserts v into the store. A no-op insert (v.ID() already
// present) changes no counters and does not call AfterInitialization.
func (obj *Worker[I, S]) AddVertex(v Vertex[I, S]) {
	if !obj.store.Insert(v) {
		return
	}
	obj.counters.verticesAdded++
	obj.metrics.verticesAdded.Inc()
	v.AfterInitialization(obj.bus)
}

// AddEdge adds e to its source vertex's outgoing edges, if that vertex
// exists, and marks the source for a fresh signal/collect round. A missing
// source is logged as a warning and otherwise ignored (§7).
func (obj *Worker[I, S]) AddEdge(e Edge[I]) {
	if err := obj.addEdge(e); err != nil {
		obj.Logf("%s", errwrap.String(err))
	}
}

// addEdge is AddEdge's error-returning core, so bulk callers (AddPatternEdge)
// can aggregate failures across many edges instead of only logging each one.
func (obj *Worker[I, S]) addEdge(e Edge[I]) error {
	v, ok := obj.store.Get(e.Source)
	if !ok {
		return fmt.Errorf("add-edge: source vertex %v not found", e.Source)
	}
	if !v.AddOutgoingEdge(e) {
		return nil
	}
	obj.counters.outgoingEdgesAdded++
	obj.toCollect.AddVertex(v.ID())
	obj.toSignal.Add(v.ID())
	obj.store.UpdateStateOfVertex(v)
	return nil
}

// RemoveVertex deletes the vertex with the given id, if present, after
// tallying its outgoing edges as removed.
func (obj *Worker[I, S]) RemoveVertex(id I) {
	if err := obj.removeVertex(id); err != nil {
		obj.Logf("%s", errwrap.String(err))
	}
}

// removeVertex is RemoveVertex's error-returning core, so bulk callers
// (RemoveVertices) can aggregate failures across many vertices instead of
// only logging each one.
func (obj *Worker[I, S]) removeVertex(id I) error {
	v, ok := obj.store.Get(id)
	if !ok {
		return fmt.Errorf("remove-vertex: vertex %v not found", id)
	}
	obj.counters.outgoingEdgesRemoved += uint64(v.RemoveAllOutgoingEdges())
	obj.counters.verticesRemoved++
	obj.metrics.verticesRemoved.Inc()
	obj.store.Remove(id)
	return nil
}

// RemoveOutgoingEdge removes the outgoing edge (src -> dst) from src, if src
// exists. A missing source vertex is logged as a warning and ignored.
func (obj *Worker[I, S]) RemoveOutgoingEdge(src, dst I) {
	v, ok := obj.store.Get(src)
	if !ok {
		obj.Logf("remove-edge: source vertex %v not found", src)
		return
	}
	if !v.RemoveOutgoingEdge(dst) {
		return
	}
	obj.counters.outgoingEdgesRemoved++
	obj.store.UpdateStateOfVertex(v)
}

// AddPatternEdge iterates the store and, for every vertex matching pred,
// adds the edge produced by factory. Per-edge failures (a factory producing
// an edge whose source vertex doesn't exist) are aggregated rather than
// stopping the iteration, since one bad match shouldn't hide the rest.
func (obj *Worker[I, S]) AddPatternEdge(pred func(Vertex[I, S]) bool, factory func(Vertex[I, S]) Edge[I]) error {
	var matches []Vertex[I, S]
	obj.store.Foreach(func(v Vertex[I, S]) {
		if pred(v) {
			matches = append(matches, v)
		}
	})
	var reterr error
	for _, v := range matches {
		reterr = errwrap.Append(reterr, obj.addEdge(factory(v)))
	}
	return reterr
}

// RemoveVertices iterates the store and removes every vertex matching pred,
// aggregating any per-vertex failures the same way AddPatternEdge does.
func (obj *Worker[I, S]) RemoveVertices(pred func(Vertex[I, S]) bool) error {
	var matches []I
	obj.store.Foreach(func(v Vertex[I, S]) {
		if pred(v) {
			matches = append(matches, v.ID())
		}
	})
	var reterr error
	for _, id := range matches {
		reterr = errwrap.Append(reterr, obj.removeVertex(id))
	}
	return reterr
}

// RecalculateScores marks every vertex currently in the store for a fresh
// signal and collect round.
func (obj *Worker[I, S]) RecalculateScores() {
	obj.store.Foreach(func(v Vertex[I, S]) {
		obj.toCollect.AddVertex(v.ID())
		obj.toSignal.Add(v.ID())
	})
}

// RecalculateScoresFor marks a single vertex for a fresh signal and collect
// round.
func (obj *Worker[I, S]) RecalculateScoresFor(id I) {
	obj.toCollect.AddVertex(id)
	obj.toSignal.Add(id)
}

// Aggregate folds over the vertex store in unspecified order: combine must
// be associative-commutative if callers require a reproducible result (the
// spec does not enforce this; see the Design Notes open question).
func (obj *Worker[I, S]) Aggregate(neutral interface{}, combine func(acc interface{}, v Vertex[I, S]) interface{}) interface{} {
	acc := neutral
	obj.store.Foreach(func(v Vertex[I, S]) {
		acc = combine(acc, v)
	})
	return acc
}

// RequestShutdown asks the worker to exit its main loop at the next
// boundary. It's the control-flag a `shutdown` WorkerRequest sets.
func (obj *Worker[I, S]) RequestShutdown() {
	obj.shouldShutdown = true
}

// RequestStart asks the worker to resume vertex processing at the next
// handleIdling check.
func (obj *Worker[I, S]) RequestStart() {
	obj.shouldStart = true
}

// RequestPause asks the worker to suspend vertex processing at the next
// handleIdling check, while continuing to accept control messages.
func (obj *Worker[I, S]) RequestPause() {
	obj.shouldPause = true
}

// ------------------------------------------------------------------
// signal dispatch (component G) and the execute_* gates (§4.E)
// ------------------------------------------------------------------

// executeSignalOfVertex looks up id and, if present and its score clears the
// signal threshold, runs ExecuteSignal. It reports whether execution
// happened.
func (obj *Worker[I, S]) executeSignalOfVertex(id I) bool {
	v, ok := obj.store.Get(id)
	if !ok {
		return false
	}
	if v.ScoreSignal() <= obj.signalThreshold {
		return false
	}
	obj.counters.signalOperations++
	obj.metrics.signalOperations.Inc()
	if obj.limiter != nil {
		_ = obj.limiter.Wait(context.Background())
	}
	v.ExecuteSignal(obj.boundedBus())
	obj.store.UpdateStateOfVertex(v)
	return true
}

// executeCollectOfVertex looks up id; if absent, every queued signal is
// routed to the undeliverable-signal handler and false is returned.
// Otherwise, if the score clears the collect threshold, ExecuteCollect runs.
func (obj *Worker[I, S]) executeCollectOfVertex(id I, uncollected []Signal[I, S]) bool {
	v, ok := obj.store.Get(id)
	if !ok {
		for _, s := range uncollected {
			obj.undeliverable(s, obj)
		}
		return false
	}
	if v.ScoreCollect(uncollected) <= obj.collectThreshold {
		return false
	}
	obj.counters.collectOperations++
	obj.metrics.collectOperations.Inc()
	v.ExecuteCollect(uncollected, obj.boundedBus())
	obj.store.UpdateStateOfVertex(v)
	return true
}

// boundedBus returns the bus vertex code emits through during
// ExecuteSignal/ExecuteCollect. It is obj.bus itself, unwrapped: the rate
// limiter is applied once per executeSignalOfVertex call, and individual
// emitted signals (from any vertex operation) pass straight through.
func (obj *Worker[I, S]) boundedBus() SignalBus[I, S] {
	return obj.bus
}

// ------------------------------------------------------------------
// the worker event loop (component E) — asynchronous driver
// ------------------------------------------------------------------

// Run drives the asynchronous main loop until should_shutdown is set or ctx
// is cancelled. It pins this Worker to asynchronous mode: calling
// SignalStep or CollectStep on the same instance either before or after Run
// is a programming error.
func (obj *Worker[I, S]) Run(ctx context.Context) error {
	if obj.mode == modeBSP {
		return fmt.Errorf("worker already pinned to synchronous step mode")
	}
	obj.mode = modeAsync

	for !obj.shouldShutdown {
		select {
		case <-ctx.Done():
			obj.shouldShutdown = true
		default:
		}
		if obj.shouldShutdown {
			break
		}

		obj.handleIdling(ctx)

		if obj.isPaused {
			continue
		}

		obj.toSignal.Foreach(func(id I) {
			obj.executeSignalOfVertex(id)
		})

		obj.toCollect.Foreach(func(id I, uncollected []Signal[I, S]) {
			obj.processInbox()
			collected := obj.executeCollectOfVertex(id, uncollected)
			obj.toCollect.Remove(id)
			if collected {
				obj.executeSignalOfVertex(id)
			}
		})
	}

	if err := obj.store.Cleanup(); err != nil {
		return errwrap.Wrapf(err, "store cleanup failed")
	}
	return nil
}

// handleIdling implements §4.E's handle_idling contract.
func (obj *Worker[I, S]) handleIdling(ctx context.Context) {
	if obj.shouldStart {
		obj.shouldStart = false
		if obj.isPaused {
			obj.isPaused = false
			obj.emitStatus()
		}
	} else if obj.shouldPause {
		obj.shouldPause = false
		if !obj.isPaused {
			obj.isPaused = true
			obj.emitStatus()
		}
	}

	if obj.IsConverged() || obj.isPaused {
		obj.processInboxOrIdle(ctx, obj.idleTimeout)
		return
	}
	obj.processInbox()
}

// processInbox drains every message currently available, without blocking.
func (obj *Worker[I, S]) processInbox() {
	for _, m := range obj.inbox.drain() {
		obj.process(m)
	}
}

// processInboxOrIdle implements §4.E's process_inbox_or_idle contract.
func (obj *Worker[I, S]) processInboxOrIdle(ctx context.Context, timeout time.Duration) {
	m, ok := obj.inbox.poll(timeout)
	if ok {
		obj.process(m)
		obj.processInbox()
		return
	}

	wasIdle := obj.isIdle
	obj.isIdle = true
	if !wasIdle {
		obj.emitStatus()
	}

	select {
	case <-ctx.Done():
		obj.shouldShutdown = true
	case m := <-obj.inbox.queue:
		obj.process(m)
	}

	if obj.shouldShutdown {
		// the message that woke us was (or caused) a shutdown: the
		// worker never did any real work, so it's still idle, and the
		// is_idle=true status already emitted above is the correct
		// final one. Flipping is_idle back to false here would emit a
		// spurious transition right before Run exits.
		return
	}

	obj.isIdle = false
	if !wasIdle {
		obj.emitStatus()
	}
}

// process dispatches a single message per §4.E's process contract.
func (obj *Worker[I, S]) process(m message[I, S]) {
	obj.counters.messagesReceived++
	obj.metrics.messagesReceived.Inc()
	obj.metrics.storeSize.Set(float64(obj.store.Size()))

	switch {
	case m.signal != nil:
		obj.toCollect.AddSignal(*m.signal)
	case m.request != nil:
		if err := m.request(obj); err != nil {
			obj.Logf("worker request failed: %v", err)
		}
	default:
		obj.Logf("unhandled message kind, dropping")
	}
}

// emitStatus sends the current (isIdle, isPaused) pair to the coordinator.
// Callers are responsible for only invoking this on a genuine transition,
// per the idempotent-status-emission invariant.
func (obj *Worker[I, S]) emitStatus() {
	status := WorkerStatus{
		WorkerID:         obj.cfg.WorkerID,
		IsIdle:           obj.isIdle,
		IsPaused:         obj.isPaused,
		MessagesSent:     obj.bus.MessagesSent(),
		MessagesReceived: obj.counters.messagesReceived,
	}
	if err := obj.bus.SendToCoordinator(status); err != nil {
		obj.Logf("status emission failed: %v", err)
	}
}

// ------------------------------------------------------------------
// the synchronous BSP-style step driver, coexisting with Run per the
// Design Notes resolution: a given Worker instance uses exactly one.
// ------------------------------------------------------------------

// SignalStep drains ToSignal, running executeSignalOfVertex for each id.
// After it returns, ToSignal is empty (invariant 3).
func (obj *Worker[I, S]) SignalStep() error {
	if obj.mode == modeAsync {
		return fmt.Errorf("worker already pinned to asynchronous Run mode")
	}
	obj.mode = modeBSP

	obj.counters.signalSteps++
	obj.toSignal.Foreach(func(id I) {
		obj.executeSignalOfVertex(id)
	})
	return nil
}

// CollectStep drains ToCollect, running executeCollectOfVertex for each
// pending entry, then re-arms ToSignal for every id it visited, whether or
// not that vertex's collect actually ran. After it returns, ToCollect is
// empty (invariant 4). The
// returned bool reports whether the resulting ToSignal set is empty, i.e.
// whether the shard is now converged with respect to this collect pass.
func (obj *Worker[I, S]) CollectStep() (bool, error) {
	if obj.mode == modeAsync {
		return false, fmt.Errorf("worker already pinned to asynchronous Run mode")
	}
	obj.mode = modeBSP

	obj.counters.collectSteps++
	obj.toCollect.Foreach(func(id I, uncollected []Signal[I, S]) {
		obj.executeCollectOfVertex(id, uncollected)
		obj.toSignal.Add(id)
	})
	obj.toCollect.Clear()
	return obj.toSignal.IsEmpty(), nil
}
