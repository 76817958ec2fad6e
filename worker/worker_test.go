package worker

import (
	"context"
	"testing"
	"time"
)

// scenario: adding an edge whose source vertex is missing is logged and
// otherwise ignored, not a crash, and never touches the pending indices.
func TestAddEdgeMissingSource(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	w.AddEdge(Edge[string]{Source: "missing", Target: "also-missing"})

	if !w.toSignal.IsEmpty() {
		t.Fatalf("expected ToSignal to stay empty, got entries")
	}
	if !w.toCollect.IsEmpty() {
		t.Fatalf("expected ToCollect to stay empty, got entries")
	}
}

// AddPatternEdge aggregates one failure per non-matching factory result
// instead of stopping at the first one, so a single bad edge doesn't hide
// problems with the rest of the batch.
func TestAddPatternEdgeAggregatesFailures(t *testing.T) {
	w, _ := newTestWorker(t, nil)
	w.AddVertex(newTestVertex("a"))
	w.AddVertex(newTestVertex("b"))

	// factory always points the edge's source at a vertex that was never
	// added, so every match fails to add its edge.
	err := w.AddPatternEdge(
		func(Vertex[string, float64]) bool { return true },
		func(v Vertex[string, float64]) Edge[string] {
			return Edge[string]{Source: "ghost-" + v.ID(), Target: v.ID()}
		},
	)
	if err == nil {
		t.Fatalf("expected an aggregated error, got nil")
	}
}

// RemoveVertices removes every vertex its predicate matches and returns a
// nil aggregate error when every removal succeeds.
func TestRemoveVerticesRemovesMatches(t *testing.T) {
	w, _ := newTestWorker(t, nil)
	w.AddVertex(newTestVertex("a"))

	err := w.RemoveVertices(func(v Vertex[string, float64]) bool {
		return v.ID() == "a"
	})
	if err != nil {
		t.Fatalf("expected no error removing a vertex that actually exists, got %v", err)
	}
	if _, ok := w.store.Get("a"); ok {
		t.Fatalf("expected vertex a to be removed")
	}
}

// scenario: a vertex whose ScoreSignal sits at or below the signal threshold
// never runs ExecuteSignal.
func TestExecuteSignalBelowThreshold(t *testing.T) {
	w, _ := newTestWorker(t, nil)
	v := newTestVertex("a")
	v.signalScore = w.signalThreshold // exactly at threshold, not above it
	w.AddVertex(v)

	w.toSignal.Add("a")
	w.toSignal.Foreach(func(id string) { w.executeSignalOfVertex(id) })

	if v.signalCalls != 0 {
		t.Fatalf("expected ExecuteSignal not to run, ran %d times", v.signalCalls)
	}
}

// scenario: three signals arriving for the same vertex before its next
// collect are all delivered together, in arrival order, in one
// ExecuteCollect call.
func TestCollectThenSignalLoop(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	target := newTestVertex("target")
	w.AddVertex(target)

	for i := 0; i < 3; i++ {
		w.toCollect.AddSignal(Signal[string, float64]{
			Payload: float64(i),
			Source:  "source",
			Target:  "target",
		})
	}
	target.collectScore = 1.0 // clears the default collect threshold of 0.0

	w.toCollect.Foreach(func(id string, uncollected []Signal[string, float64]) {
		w.executeCollectOfVertex(id, uncollected)
		w.toCollect.Remove(id)
	})

	if target.collectCalls != 1 {
		t.Fatalf("expected exactly one ExecuteCollect call, got %d", target.collectCalls)
	}
	got := target.collected[0]
	if len(got) != 3 {
		t.Fatalf("expected 3 uncollected signals, got %d", len(got))
	}
	for i, s := range got {
		if s.Payload != float64(i) {
			t.Fatalf("signal %d: expected payload %d, got %v", i, i, s.Payload)
		}
	}
	if !w.toCollect.IsEmpty() {
		t.Fatalf("expected ToCollect to be empty after the pass")
	}

	// the vertex itself now owes a signal (invariant: collect re-arms
	// signal eligibility).
	target.signalScore = 1.0
	w.toSignal.Add("target")
	w.toSignal.Foreach(func(id string) { w.executeSignalOfVertex(id) })
	if target.signalCalls != 1 {
		t.Fatalf("expected ExecuteSignal to run once after collect, got %d", target.signalCalls)
	}
}

// scenario: a signal whose target vertex is absent at collect time is
// handed to the undeliverable handler exactly once, and no ExecuteCollect
// runs.
func TestUndeliverableSignalHandlerRunsExactlyOnce(t *testing.T) {
	var calls int
	var seen Signal[string, float64]

	w, _ := newTestWorker(t, func(cfg *Config[string, float64]) {
		cfg.UndeliverableSignalHandler = func(s Signal[string, float64], api GraphApi[string, float64]) {
			calls++
			seen = s
		}
	})

	sig := Signal[string, float64]{Payload: 42, Source: "ghost", Target: "nobody"}
	w.toCollect.AddSignal(sig)

	w.toCollect.Foreach(func(id string, uncollected []Signal[string, float64]) {
		w.executeCollectOfVertex(id, uncollected)
	})

	if calls != 1 {
		t.Fatalf("expected the undeliverable handler to run exactly once, ran %d times", calls)
	}
	if seen.Payload != 42 || seen.Source != "ghost" || seen.Target != "nobody" {
		t.Fatalf("undeliverable handler received the wrong signal: %+v", seen)
	}
}

// scenario: a worker started via Run, converged and still in its initial
// paused state, goes idle; a shutdown WorkerRequest delivered while it's
// blocked waiting on the idle poll makes Run return with a final status of
// is_idle=true, is_paused=true, and no status after it.
func TestRunShutdownFromIdleReportsFinalStatus(t *testing.T) {
	w, bus := newTestWorker(t, func(cfg *Config[string, float64]) {
		cfg.IdleTimeout = time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- w.Run(ctx)
	}()

	// give the loop a few idle_timeout cycles to actually reach its idle
	// wait before the shutdown request arrives.
	time.Sleep(20 * time.Millisecond)

	w.SendRequest(func(w *Worker[string, float64]) error {
		w.RequestShutdown()
		return nil
	})

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after a shutdown request")
	}

	statuses := bus.allStatuses()
	if len(statuses) == 0 {
		t.Fatalf("expected at least one status report")
	}
	last := statuses[len(statuses)-1]
	if !last.IsIdle || !last.IsPaused {
		t.Fatalf("expected final status idle=true paused=true, got idle=%v paused=%v", last.IsIdle, last.IsPaused)
	}
	for _, status := range statuses {
		if !status.IsPaused {
			t.Fatalf("worker was never unpaused in this scenario, but saw paused=false: %+v", status)
		}
	}
}

// scenario: RecalculateScores marks every vertex currently in the store in
// both ToSignal and ToCollect.
func TestRecalculateScoresMarksEveryVertex(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		w.AddVertex(newTestVertex(id))
	}

	w.RecalculateScores()

	signalled := make(map[string]bool)
	w.toSignal.Foreach(func(seen string) {
		signalled[seen] = true
	})
	for _, id := range ids {
		if !signalled[id] {
			t.Fatalf("expected %q to be marked in ToSignal", id)
		}
	}

	for _, id := range ids {
		if _, ok := w.toCollect.pending[id]; !ok {
			t.Fatalf("expected %q to be marked in ToCollect", id)
		}
	}
}
