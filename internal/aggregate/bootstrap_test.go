package aggregate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsim/adaptr/internal/batch"
	"github.com/trialsim/adaptr/internal/engine"
)

func TestMetricsOrderIsStable(t *testing.T) {
	res := fakeBatch(t,
		fakeRep(0, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 100}),
		fakeRep(1, repSpec{status: engine.TrialMax, size: 500}),
	)
	s, err := Summarize(res, Config{})
	require.NoError(t, err)

	var names []string
	for _, m := range s.Metrics() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"size_mean", "size_sd", "size_median", "size_q25", "size_q75", "size_min", "size_max",
		"sum_mean", "sum_sd", "sum_median", "sum_q25", "sum_q75", "sum_min", "sum_max",
		"prob_superiority", "prob_equivalence", "prob_futility", "prob_max",
		"select_ctrl", "select_dose_a", "select_dose_b", "select_none",
		"rmse", "mae", "rmse_te", "mae_te", "idp",
	}, names)
}

func TestMetricsMarkExtremals(t *testing.T) {
	res := fakeBatch(t, fakeRep(0, repSpec{status: engine.TrialMax, size: 100}))
	s, err := Summarize(res, Config{})
	require.NoError(t, err)

	extremal := map[string]bool{"size_min": true, "size_max": true, "sum_min": true, "sum_max": true}
	for _, m := range s.Metrics() {
		assert.Equal(t, extremal[m.Name], m.Extremal, m.Name)
	}
}

func mixedBatch(t *testing.T) *batch.Result {
	t.Helper()
	return fakeBatch(t,
		fakeRep(0, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 100,
			post: map[string]float64{"dose_b": 0.38}}),
		fakeRep(1, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 200,
			post: map[string]float64{"dose_b": 0.33}}),
		fakeRep(2, repSpec{status: engine.TrialSuperiority, superior: "dose_a", size: 300,
			post: map[string]float64{"dose_a": 0.27}}),
		fakeRep(3, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 400,
			post: map[string]float64{"dose_b": 0.36}}),
	)
}

func TestBootstrapValidation(t *testing.T) {
	res := mixedBatch(t)

	_, err := Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1 resample")

	_, err = Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 10, CIWidth: 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside (0,1)")
}

func TestBootstrapIsDeterministic(t *testing.T) {
	res := mixedBatch(t)
	opts := BootstrapOptions{N: 50, Seed: 77}

	first, err := Bootstrap(context.Background(), res, Config{}, opts)
	require.NoError(t, err)
	second, err := Bootstrap(context.Background(), res, Config{}, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Worker count never changes which stream a resample consumes.
	opts.Pool = batch.NewPool(4)
	defer opts.Pool.Close()
	parallel, err := Bootstrap(context.Background(), res, Config{}, opts)
	require.NoError(t, err)
	assert.Equal(t, first, parallel)
}

func TestBootstrapReportShape(t *testing.T) {
	res := mixedBatch(t)
	s, err := Summarize(res, Config{})
	require.NoError(t, err)
	base := s.Metrics()

	report, err := Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 200, Seed: 9})
	require.NoError(t, err)

	assert.Equal(t, 200, report.NBoot)
	assert.Equal(t, uint64(9), report.Seed)
	assert.InDelta(t, 0.95, report.CIWidth, 1e-12)
	require.Len(t, report.Metrics, len(base))

	for i, bm := range report.Metrics {
		assert.Equal(t, base[i].Name, bm.Name)
		if math.IsNaN(base[i].Value) {
			assert.True(t, math.IsNaN(bm.Estimate))
		} else {
			assert.Equal(t, base[i].Value, bm.Estimate)
		}
		if bm.Estimable {
			assert.LessOrEqual(t, bm.Lo, bm.Hi, bm.Name)
			assert.GreaterOrEqual(t, bm.SD, 0.0, bm.Name)
			assert.GreaterOrEqual(t, bm.RobustSD, 0.0, bm.Name)
		} else {
			assert.True(t, math.IsNaN(bm.SD), bm.Name)
			assert.True(t, math.IsNaN(bm.Lo), bm.Name)
			assert.True(t, math.IsNaN(bm.Hi), bm.Name)
		}
	}
}

func TestBootstrapExtremalsAreNotEstimable(t *testing.T) {
	res := mixedBatch(t)
	report, err := Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 20, Seed: 1})
	require.NoError(t, err)

	byName := make(map[string]BootMetric)
	for _, bm := range report.Metrics {
		byName[bm.Name] = bm
	}
	for _, name := range []string{"size_min", "size_max", "sum_min", "sum_max"} {
		assert.False(t, byName[name].Estimable, name)
	}
	assert.True(t, byName["size_mean"].Estimable)
	assert.True(t, byName["prob_superiority"].Estimable)
}

func TestBootstrapIdenticalReplicatesHaveZeroSpread(t *testing.T) {
	res := fakeBatch(t,
		fakeRep(0, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 100}),
		fakeRep(1, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 100}),
		fakeRep(2, repSpec{status: engine.TrialSuperiority, superior: "dose_b", size: 100}),
	)

	report, err := Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 30, Seed: 2})
	require.NoError(t, err)

	for _, bm := range report.Metrics {
		if !bm.Estimable {
			continue
		}
		assert.InDelta(t, 0, bm.SD, 1e-12, bm.Name)
		assert.InDelta(t, bm.Estimate, bm.Lo, 1e-12, bm.Name)
		assert.InDelta(t, bm.Estimate, bm.Hi, 1e-12, bm.Name)
	}
}

// A metric undefined on even one resample reports no uncertainty at all
// rather than a spread over a silently shrunken sample.
func TestBootstrapUndefinedMetricsAreNotEstimable(t *testing.T) {
	// No replicate ever selects, so rmse is undefined on every resample.
	res := fakeBatch(t,
		fakeRep(0, repSpec{status: engine.TrialMax, size: 100}),
		fakeRep(1, repSpec{status: engine.TrialMax, size: 200}),
	)

	report, err := Bootstrap(context.Background(), res, Config{}, BootstrapOptions{N: 20, Seed: 3})
	require.NoError(t, err)

	byName := make(map[string]BootMetric)
	for _, bm := range report.Metrics {
		byName[bm.Name] = bm
	}
	for _, name := range []string{"rmse", "mae", "rmse_te", "mae_te", "idp"} {
		assert.False(t, byName[name].Estimable, name)
		assert.True(t, math.IsNaN(byName[name].Estimate), name)
	}
	assert.True(t, byName["size_mean"].Estimable)
}

func TestMadOf(t *testing.T) {
	assert.InDelta(t, 2, madOf([]float64{1, 3, 5, 7, 9}), 1e-12)
	assert.InDelta(t, 0, madOf([]float64{4, 4, 4}), 1e-12)
}
