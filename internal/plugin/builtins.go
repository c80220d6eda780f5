package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/mattjoyce/taskengine/internal/log"
)

// Builtin plugin refs.
const (
	RefAddNoise   = "builtins.add_noise"
	RefPrintStats = "builtins.print_stats"
	RefScale      = "builtins.scale"
	RefConcat     = "builtins.concat"
	RefIdentity   = "builtins.identity"
	RefFail       = "builtins.fail"
	RefSleep      = "builtins.sleep"
)

// Builtins returns the builtin plugin set.
func Builtins() []*Plugin {
	return []*Plugin{
		{
			Ref:         RefAddNoise,
			Description: "Adds seeded Gaussian noise to a list of numbers.",
			Inputs: []Param{
				{Name: "array", Type: "list"},
				{Name: "scale", Type: "float", Optional: true, Default: 0.1},
				{Name: "seed", Type: "integer", Optional: true},
			},
			Outputs: []Output{{Name: "noisy", Type: "list"}},
			Fn:      addNoise,
		},
		{
			Ref:         RefPrintStats,
			Description: "Logs and returns count, mean, min, max and standard deviation of a list.",
			Inputs:      []Param{{Name: "array", Type: "list"}},
			Outputs:     []Output{{Name: "stats", Type: "mapping"}},
			Fn:          printStats,
		},
		{
			Ref:         RefScale,
			Description: "Multiplies every element of a list by a factor.",
			Inputs: []Param{
				{Name: "array", Type: "list"},
				{Name: "factor", Type: "float"},
			},
			Outputs: []Output{{Name: "scaled", Type: "list"}},
			Fn:      scale,
		},
		{
			Ref:         RefConcat,
			Description: "Concatenates two lists.",
			Inputs: []Param{
				{Name: "first", Type: "list"},
				{Name: "second", Type: "list"},
			},
			Outputs: []Output{{Name: "joined", Type: "list"}},
			Fn:      concat,
		},
		{
			Ref:         RefIdentity,
			Description: "Returns its input unchanged.",
			Inputs:      []Param{{Name: "value", Type: "string"}},
			Outputs:     []Output{{Name: "value", Type: "string"}},
			Fn:          identity,
		},
		{
			Ref:         RefFail,
			Description: "Always fails with the given message.",
			Inputs:      []Param{{Name: "message", Type: "string", Optional: true, Default: "requested failure"}},
			Fn:          fail,
		},
		{
			Ref:         RefSleep,
			Description: "Sleeps for the given number of seconds, honouring cancellation.",
			Inputs:      []Param{{Name: "seconds", Type: "float"}},
			Outputs:     []Output{{Name: "slept", Type: "float"}},
			Fn:          sleep,
		},
	}
}

// RegisterBuiltins adds the builtin plugin set to r.
func RegisterBuiltins(r *Registry) error {
	for _, p := range Builtins() {
		if err := r.Add(p); err != nil {
			return err
		}
	}
	return nil
}

func addNoise(_ context.Context, args Args) (any, error) {
	values, err := args.Floats("array")
	if err != nil {
		return nil, err
	}
	sigma, err := args.Float("scale", 0.1)
	if err != nil {
		return nil, err
	}
	seed, err := args.Int("seed", 0)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v + sigma*rng.NormFloat64()
	}
	return out, nil
}

func printStats(_ context.Context, args Args) (any, error) {
	values, err := args.Floats("array")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("cannot compute statistics of an empty list")
	}

	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	stats := map[string]any{
		"count": len(values),
		"mean":  mean,
		"min":   lo,
		"max":   hi,
		"std":   math.Sqrt(sq / float64(len(values))),
	}
	log.WithComponent("plugin").Info("array statistics",
		slog.Int("count", len(values)),
		slog.Float64("mean", mean),
		slog.Float64("min", lo),
		slog.Float64("max", hi),
	)
	return stats, nil
}

func scale(_ context.Context, args Args) (any, error) {
	values, err := args.Floats("array")
	if err != nil {
		return nil, err
	}
	factor, err := args.Float("factor", 1)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out, nil
}

func concat(_ context.Context, args Args) (any, error) {
	first, err := args.List("first")
	if err != nil {
		return nil, err
	}
	second, err := args.List("second")
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(first)+len(second))
	return append(append(out, first...), second...), nil
}

func identity(_ context.Context, args Args) (any, error) {
	return args.String("value")
}

func fail(_ context.Context, args Args) (any, error) {
	msg, err := args.String("message")
	if err != nil {
		msg = "requested failure"
	}
	return nil, errors.New(msg)
}

func sleep(ctx context.Context, args Args) (any, error) {
	seconds, err := args.Float("seconds", 0)
	if err != nil {
		return nil, err
	}
	if seconds < 0 {
		return nil, fmt.Errorf("seconds must not be negative, got %v", seconds)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return seconds, nil
	}
}
