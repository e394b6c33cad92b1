package reduce

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climidx/climidx/internal/models"
)

func TestNew_RegisteredKinds(t *testing.T) {
	kinds := Kinds()
	for _, k := range []Kind{KindMax, KindMin, KindCountAbove, KindCountBelow, KindPercentileExceedance, KindRunEvents, KindTrend} {
		assert.Contains(t, kinds, string(k))
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		p    Params
	}{
		{"unknown kind", Kind("median"), Params{}},
		{"percentile above range", KindPercentileExceedance, Params{Percentile: 120}},
		{"percentile below range", KindPercentileExceedance, Params{Percentile: -1}},
		{"zero run length", KindRunEvents, Params{MinRunLength: 0}},
		{"unknown run mode", KindRunEvents, Params{MinRunLength: 3, RunMode: "twice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.p)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestReducer_OutputNames(t *testing.T) {
	r, err := New(KindMax, Params{Name: "TXx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TXx"}, r.Outputs())

	r, err = New(KindCountAbove, Params{Threshold: 250})
	require.NoError(t, err)
	assert.Equal(t, []string{string(KindCountAbove)}, r.Outputs())

	r, err = New(KindTrend, Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{models.TrendSlope, models.TrendZScore, models.TrendSignificant}, r.Outputs())
}

func TestTrendReducer_DefaultTrusted(t *testing.T) {
	r, err := New(KindTrend, Params{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTrusted, r.(interface{ Trusted() float64 }).Trusted())

	r, err = New(KindTrend, Params{Trusted: 2.58})
	require.NoError(t, err)
	assert.Equal(t, 2.58, r.(interface{ Trusted() float64 }).Trusted())
}

func TestRunEventsReducer_Modes(t *testing.T) {
	streak := repeat(36, 12)

	byDefault, err := New(KindRunEvents, Params{Threshold: 35, MinRunLength: 6})
	require.NoError(t, err)
	once, err := New(KindRunEvents, Params{Threshold: 35, MinRunLength: 6, RunMode: RunCountOnce})
	require.NoError(t, err)

	out := make([]float64, 1)
	byDefault.Reduce(streak, out)
	assert.Equal(t, 2.0, out[0], "a 12 day streak at min run 6 is two events")
	once.Reduce(streak, out)
	assert.Equal(t, 1.0, out[0])
}

func TestMergers(t *testing.T) {
	_, ok := mustNew(t, KindMax, Params{}).(Merger)
	assert.True(t, ok, "max should merge")
	_, ok = mustNew(t, KindCountBelow, Params{}).(Merger)
	assert.True(t, ok, "count_below should merge")
	_, ok = mustNew(t, KindTrend, Params{}).(Merger)
	assert.False(t, ok, "trend needs the whole series")
	_, ok = mustNew(t, KindRunEvents, Params{MinRunLength: 2}).(Merger)
	assert.False(t, ok, "runs may cross a split")
	_, ok = mustNew(t, KindPercentileExceedance, Params{Percentile: 90}).(Merger)
	assert.False(t, ok, "percentile needs the whole series")
}

func mustNew(t *testing.T, kind Kind, p Params) Reducer {
	t.Helper()
	r, err := New(kind, p)
	require.NoError(t, err)
	return r
}

// reduceSplit reduces each piece and folds the partials the way the planner does
func reduceSplit(r Reducer, series []float64, cut int) []float64 {
	m := r.(Merger)
	acc := make([]float64, len(r.Outputs()))
	part := make([]float64, len(r.Outputs()))
	r.Reduce(series[:cut], acc)
	r.Reduce(series[cut:], part)
	m.Merge(acc, part)
	return acc
}

func TestMerge_EqualsWholeSeries(t *testing.T) {
	etccdi := Compose(
		mustNew(t, KindMax, Params{Name: "TXx"}),
		mustNew(t, KindMin, Params{Name: "TXn"}),
		mustNew(t, KindCountBelow, Params{Name: "ID", Threshold: 0}),
		mustNew(t, KindCountAbove, Params{Name: "SU", Threshold: 250}),
	)
	_, ok := etccdi.(Merger)
	require.True(t, ok, "composite of mergers should merge")

	series := []float64{-12, 40, 260, 301, -3, 0, 251, 180, 90}
	whole := make([]float64, 4)
	etccdi.Reduce(series, whole)

	for cut := 1; cut < len(series); cut++ {
		assert.Equal(t, whole, reduceSplit(etccdi, series, cut), "cut at %d", cut)
	}
}

func TestMerge_MissingPropagates(t *testing.T) {
	r := Compose(mustNew(t, KindMax, Params{}), mustNew(t, KindCountAbove, Params{}))
	got := reduceSplit(r, []float64{1, 2, math.NaN(), 4}, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
}

func TestCompose_MixedIsNotMerger(t *testing.T) {
	r := Compose(mustNew(t, KindMax, Params{}), mustNew(t, KindTrend, Params{}))
	_, ok := r.(Merger)
	assert.False(t, ok)
	assert.Equal(t, KindComposite, r.Kind())
	assert.Equal(t, []string{"max", models.TrendSlope, models.TrendZScore, models.TrendSignificant}, r.Outputs())

	out := make([]float64, 4)
	r.Reduce([]float64{1, 2, 3, 4, 5}, out)
	assert.Equal(t, 5.0, out[0])
	assert.Equal(t, 1.0, out[1])
}
