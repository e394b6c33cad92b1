package reduce

import (
	"math"
	"sort"

	"github.com/climidx/climidx/internal/models"
)

// Kind identifies a reduction variant
type Kind string

const (
	KindMax                  Kind = "max"
	KindMin                  Kind = "min"
	KindCountAbove           Kind = "count_above"
	KindCountBelow           Kind = "count_below"
	KindPercentileExceedance Kind = "percentile_exceedance"
	KindRunEvents            Kind = "run_events"
	KindTrend                Kind = "trend"
	KindComposite            Kind = "composite"
)

// Params carries the scalar parameters of a reduction.
// Fields not used by a kind are ignored.
type Params struct {
	Name         string  // output grid name; defaults to the kind
	Threshold    float64 // count_above, count_below, run_events
	Percentile   float64 // percentile_exceedance, in [0,100]
	MinRunLength int     // run_events
	RunMode      RunMode // run_events
	Trusted      float64 // trend: |Z| cutoff for the significant grid
}

// Reducer reduces one time series to one value per output.
// Reduce must write exactly len(Outputs()) values into out; NaN is "missing".
// Implementations hold no per-call state and are safe for concurrent use.
type Reducer interface {
	Kind() Kind
	Outputs() []string
	Reduce(series []float64, out []float64)
}

// Merger is implemented by reducers whose result over a series equals the
// merge of their results over consecutive pieces of it. The planner may split
// the time axis for them. Merge folds part into acc in place.
type Merger interface {
	Reducer
	Merge(acc, part []float64)
}

// Factory builds a reducer from parameters
type Factory func(p Params) (Reducer, error)

var registry = make(map[Kind]Factory)

// Register adds a reducer factory to the registry
func Register(kind Kind, factory Factory) {
	registry[kind] = factory
}

// New builds a registered reducer
func New(kind Kind, p Params) (Reducer, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, models.NewValidationError("unknown reduction kind: %s", kind)
	}
	return factory(p)
}

// Kinds returns the registered kinds in sorted order
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}

func init() {
	Register(KindMax, func(p Params) (Reducer, error) {
		return &extremum{name: nameOr(p.Name, KindMax), kind: KindMax}, nil
	})
	Register(KindMin, func(p Params) (Reducer, error) {
		return &extremum{name: nameOr(p.Name, KindMin), kind: KindMin}, nil
	})
	Register(KindCountAbove, func(p Params) (Reducer, error) {
		return &thresholdCount{name: nameOr(p.Name, KindCountAbove), kind: KindCountAbove, threshold: p.Threshold}, nil
	})
	Register(KindCountBelow, func(p Params) (Reducer, error) {
		return &thresholdCount{name: nameOr(p.Name, KindCountBelow), kind: KindCountBelow, threshold: p.Threshold}, nil
	})
	Register(KindPercentileExceedance, func(p Params) (Reducer, error) {
		if p.Percentile < 0 || p.Percentile > 100 || math.IsNaN(p.Percentile) {
			return nil, models.NewValidationError("percentile must be in [0,100], got %v", p.Percentile)
		}
		return &percentileExceedance{name: nameOr(p.Name, KindPercentileExceedance), percentile: p.Percentile}, nil
	})
	Register(KindRunEvents, func(p Params) (Reducer, error) {
		if p.MinRunLength < 1 {
			return nil, models.NewValidationError("minimum run length must be at least 1, got %d", p.MinRunLength)
		}
		mode := p.RunMode
		if mode == "" {
			mode = RunCountEveryMultiple
		}
		if mode != RunCountOnce && mode != RunCountEveryMultiple {
			return nil, models.NewValidationError("unknown run mode: %s", mode)
		}
		return &runEvents{
			name:      nameOr(p.Name, KindRunEvents),
			threshold: p.Threshold,
			minRun:    p.MinRunLength,
			mode:      mode,
		}, nil
	})
	Register(KindTrend, func(p Params) (Reducer, error) {
		trusted := p.Trusted
		if trusted <= 0 || math.IsNaN(trusted) {
			trusted = DefaultTrusted
		}
		return &trend{trusted: trusted}, nil
	})
}

func nameOr(name string, kind Kind) string {
	if name != "" {
		return name
	}
	return string(kind)
}

// extremum: max or min with NaN propagation
type extremum struct {
	name string
	kind Kind
}

func (r *extremum) Kind() Kind        { return r.kind }
func (r *extremum) Outputs() []string { return []string{r.name} }

func (r *extremum) Reduce(series []float64, out []float64) {
	if r.kind == KindMax {
		out[0] = Max(series)
	} else {
		out[0] = Min(series)
	}
}

func (r *extremum) Merge(acc, part []float64) {
	a, b := acc[0], part[0]
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		acc[0] = math.NaN()
	case r.kind == KindMax:
		acc[0] = math.Max(a, b)
	default:
		acc[0] = math.Min(a, b)
	}
}

// thresholdCount: strict count above or below a threshold
type thresholdCount struct {
	name      string
	kind      Kind
	threshold float64
}

func (r *thresholdCount) Kind() Kind        { return r.kind }
func (r *thresholdCount) Outputs() []string { return []string{r.name} }

func (r *thresholdCount) Reduce(series []float64, out []float64) {
	if r.kind == KindCountAbove {
		out[0] = CountAbove(series, r.threshold)
	} else {
		out[0] = CountBelow(series, r.threshold)
	}
}

// Merge sums partial counts; NaN + x stays NaN
func (r *thresholdCount) Merge(acc, part []float64) {
	acc[0] += part[0]
}

type percentileExceedance struct {
	name       string
	percentile float64
}

func (r *percentileExceedance) Kind() Kind        { return KindPercentileExceedance }
func (r *percentileExceedance) Outputs() []string { return []string{r.name} }

func (r *percentileExceedance) Reduce(series []float64, out []float64) {
	out[0] = PercentileExceedanceCount(series, r.percentile)
}

type runEvents struct {
	name      string
	threshold float64
	minRun    int
	mode      RunMode
}

func (r *runEvents) Kind() Kind        { return KindRunEvents }
func (r *runEvents) Outputs() []string { return []string{r.name} }

func (r *runEvents) Reduce(series []float64, out []float64) {
	out[0] = ConsecutiveRunEventCount(series, r.threshold, r.minRun, r.mode)
}

// trend produces slope, Z score and significant slope in one pass
type trend struct {
	trusted float64
}

func (r *trend) Kind() Kind { return KindTrend }

func (r *trend) Outputs() []string {
	return []string{models.TrendSlope, models.TrendZScore, models.TrendSignificant}
}

func (r *trend) Reduce(series []float64, out []float64) {
	res := Trend(series, r.trusted)
	out[0], out[1], out[2] = res.Slope, res.Z, res.Significant
}

// Trusted returns the |Z| cutoff used for the significant output
func (r *trend) Trusted() float64 { return r.trusted }

// Compose bundles several reducers so a single pass over each series fills all
// of their outputs. The result is a Merger when every part is.
func Compose(parts ...Reducer) Reducer {
	c := &composite{parts: parts}
	for _, p := range parts {
		c.outputs = append(c.outputs, p.Outputs()...)
		c.offsets = append(c.offsets, len(c.outputs))
	}
	for _, p := range parts {
		if _, ok := p.(Merger); !ok {
			return c
		}
	}
	return &mergeableComposite{composite: c}
}

type composite struct {
	parts   []Reducer
	outputs []string
	offsets []int // end offset of each part's outputs
}

func (c *composite) Kind() Kind        { return KindComposite }
func (c *composite) Outputs() []string { return c.outputs }

func (c *composite) Reduce(series []float64, out []float64) {
	start := 0
	for i, p := range c.parts {
		end := c.offsets[i]
		p.Reduce(series, out[start:end])
		start = end
	}
}

type mergeableComposite struct {
	*composite
}

func (c *mergeableComposite) Merge(acc, part []float64) {
	start := 0
	for i, p := range c.parts {
		end := c.offsets[i]
		p.(Merger).Merge(acc[start:end], part[start:end])
		start = end
	}
}
