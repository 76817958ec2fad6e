package main

import (
	"github.com/signalcollect/sigcollect/worker"
)

// counterVertex is a minimal demo Vertex: it sums every signal payload it
// receives into total and, once its score clears the signal threshold,
// forwards total to every outgoing edge. It exists purely to give
// sigcollectd something to run; real deployments supply their own Vertex
// implementation.
type counterVertex struct {
	id    int
	total float64
	dirty bool
	edges map[int]worker.Edge[int]
}

func newCounterVertex(id int) *counterVertex {
	return &counterVertex{
		id:    id,
		edges: make(map[int]worker.Edge[int]),
	}
}

func (obj *counterVertex) ID() int { return obj.id }

func (obj *counterVertex) ScoreSignal() float64 {
	if obj.dirty {
		return 1.0
	}
	return 0.0
}

func (obj *counterVertex) ScoreCollect(uncollected []worker.Signal[int, float64]) float64 {
	return float64(len(uncollected))
}

func (obj *counterVertex) ExecuteSignal(bus worker.SignalBus[int, float64]) {
	obj.dirty = false
	for _, e := range obj.edges {
		_ = bus.SendSignal(worker.Signal[int, float64]{
			Payload: obj.total,
			Source:  obj.id,
			Target:  e.Target,
		})
	}
}

func (obj *counterVertex) ExecuteCollect(uncollected []worker.Signal[int, float64], bus worker.SignalBus[int, float64]) {
	for _, s := range uncollected {
		obj.total += s.Payload
	}
	obj.dirty = true
}

func (obj *counterVertex) AfterInitialization(bus worker.SignalBus[int, float64]) {
	obj.total = 1.0
}

func (obj *counterVertex) AddOutgoingEdge(e worker.Edge[int]) bool {
	if _, ok := obj.edges[e.Target]; ok {
		return false
	}
	obj.edges[e.Target] = e
	return true
}

func (obj *counterVertex) RemoveOutgoingEdge(id int) bool {
	if _, ok := obj.edges[id]; !ok {
		return false
	}
	delete(obj.edges, id)
	return true
}

func (obj *counterVertex) RemoveAllOutgoingEdges() int {
	n := len(obj.edges)
	obj.edges = make(map[int]worker.Edge[int])
	return n
}

func (obj *counterVertex) OutgoingEdgeCount() int {
	return len(obj.edges)
}
