package directory

import (
	"context"
	"math/rand"
	"sync/atomic"

	"actorsub/internal/errs"
	"actorsub/internal/iface"

	"actorsub/pkg/lib/factory"
)

// Placements is the process-wide registry of named Placer constructors,
// the teacher's pkg/lib/factory pattern turned to picking an actor
// placement strategy by config name instead of hard-coding one into the
// directory. NewFromConfig looks a name up here; a deployment that wants
// its own scheduler registers it under a new name before calling
// NewFromConfig.
var Placements = factory.New[Placer]()

func init() {
	Placements.Register("round-robin", newRoundRobinPlacer)
	Placements.Register("random", newRandomPlacer)
}

// workerArgs pulls the []iface.Address a built-in placer constructor
// expects out of the variadic args New's caller passed through.
func workerArgs(args []any) ([]iface.Address, bool) {
	if len(args) != 1 {
		return nil, false
	}
	workers, ok := args[0].([]iface.Address)
	return workers, ok
}

func newRoundRobinPlacer(args ...any) (Placer, error) {
	workers, ok := workerArgs(args)
	if !ok || len(workers) == 0 {
		return nil, errs.ErrPlacerConfigInvalid("round-robin requires a non-empty worker address list")
	}
	var next atomic.Uint64
	return func(ctx context.Context, spec iface.TaskSpec) (iface.Address, error) {
		i := next.Add(1) - 1
		return workers[i%uint64(len(workers))], nil
	}, nil
}

func newRandomPlacer(args ...any) (Placer, error) {
	workers, ok := workerArgs(args)
	if !ok || len(workers) == 0 {
		return nil, errs.ErrPlacerConfigInvalid("random requires a non-empty worker address list")
	}
	return func(ctx context.Context, spec iface.TaskSpec) (iface.Address, error) {
		return workers[rand.Intn(len(workers))], nil
	}, nil
}

// NewFromConfig resolves strategyName in Placements and builds a Directory
// backed by it. An empty strategyName leaves the directory with the
// always-fails placer New uses for nil; an unknown name, or a built-in
// strategy given an empty worker list, returns an error instead.
func NewFromConfig(cfg Config, strategyName string, workers []iface.Address) (*Directory, error) {
	if strategyName == "" {
		return New(cfg, nil), nil
	}
	ctor, ok := Placements.Get(strategyName)
	if !ok {
		return nil, errs.ErrPlacementStrategyNotFound(strategyName)
	}
	placer, err := ctor(workers)
	if err != nil {
		return nil, err
	}
	return New(cfg, placer), nil
}
