// Command sigcollectd runs a local, single-process demonstration cluster of
// the worker package's compute core: it partitions a small generated graph
// across several workers, wires them to a shared in-process bus, and runs
// them until the cluster converges.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/alexflint/go-arg"

	"github.com/signalcollect/sigcollect/bus"
	"github.com/signalcollect/sigcollect/worker"
)

// Args is the command's CLI surface, parsed with go-arg the way the teacher
// parses its own top-level flags.
type Args struct {
	Workers          int     `arg:"--workers" default:"4" help:"number of workers to partition the demo graph across"`
	Vertices         int     `arg:"--vertices" default:"100" help:"number of vertices in the generated demo graph"`
	SignalThreshold  float64 `arg:"--signal-threshold" help:"score that must be exceeded to trigger ExecuteSignal"`
	CollectThreshold float64 `arg:"--collect-threshold" help:"score that must be exceeded to trigger ExecuteCollect"`
}

func (Args) Version() string {
	return "sigcollectd 0.0.1"
}

func (Args) Description() string {
	return "runs a local demonstration Signal/Collect worker cluster"
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sigcollectd: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := &Args{}
	arg.MustParse(args)

	if args.Workers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}
	if args.Vertices <= 0 {
		return fmt.Errorf("--vertices must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	numberOfWorkers := uint32(args.Workers)
	mapper := func(id int) uint32 {
		return uint32(id) % numberOfWorkers
	}

	localBus := bus.NewLocalBus[int, float64](mapper)
	coordinator := bus.NewCoordinator(args.Workers)
	localBus.RegisterCoordinator(coordinator)

	logf := func(format string, v ...interface{}) {
		fmt.Printf("[sigcollectd] "+format+"\n", v...)
	}

	workers := make([]*worker.Worker[int, float64], args.Workers)
	for i := 0; i < args.Workers; i++ {
		id := uint32(i)
		cfg := worker.Config[int, float64]{
			WorkerID:        id,
			NumberOfWorkers: numberOfWorkers,
			MessageBusFactory: func(uint32, func(int) uint32) worker.WorkerBus[int, float64] {
				return localBus
			},
			VertexToWorkerMapper: mapper,
			StorageFactory: func() worker.Store[int, float64] {
				return worker.NewMemoryStore[int, float64]()
			},
			SignalThreshold:  args.SignalThreshold,
			CollectThreshold: args.CollectThreshold,
			Logf:             logf,
		}
		w := worker.NewWorker(cfg)
		if err := w.Init(); err != nil {
			return fmt.Errorf("worker %d: %w", id, err)
		}
		localBus.RegisterWorker(id, w)
		workers[i] = w
	}

	seedDemoGraph(workers, mapper, args.Vertices)

	var group sync.WaitGroup
	for _, w := range workers {
		group.Add(1)
		go func(w *worker.Worker[int, float64]) {
			defer group.Done()
			if err := w.Run(ctx); err != nil {
				logf("worker exited with error: %v", err)
			}
		}(w)
	}

	group.Wait()
	logf("cluster converged or shut down")
	return nil
}

// seedDemoGraph builds a small ring graph: vertex i has an edge to (i+1)%n,
// so a signal injected anywhere eventually reaches every vertex. Each vertex
// is handed to whichever worker owns it per mapper by calling that worker's
// AddVertex/AddEdge directly, which is safe because Run has not started on
// any worker yet.
func seedDemoGraph(workers []*worker.Worker[int, float64], mapper func(int) uint32, n int) {
	owner := func(id int) *worker.Worker[int, float64] {
		return workers[mapper(id)]
	}

	for i := 0; i < n; i++ {
		v := newCounterVertex(i)
		owner(i).AddVertex(v)
	}
	for i := 0; i < n; i++ {
		e := worker.Edge[int]{Source: i, Target: (i + 1) % n, Kind: "ring"}
		owner(i).AddEdge(e)
	}
	owner(0).RecalculateScoresFor(0)
}
