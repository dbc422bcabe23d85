package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/trialsim/adaptr/internal/batch"
	"github.com/trialsim/adaptr/internal/engine"
	"github.com/trialsim/adaptr/internal/rng"
)

// madScale makes the MAD a normal-consistent estimator of the SD.
const madScale = 1.4826

// Metric is one flattened summary value. Extremal metrics (min/max) are
// never bootstrapped.
type Metric struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Extremal bool    `json:"-"`
}

// Metrics flattens the summary into a deterministic metric sequence: the
// order depends only on the specification, never on map iteration.
func (s *Summary) Metrics() []Metric {
	m := []Metric{
		{Name: "size_mean", Value: s.SampleSize.Mean},
		{Name: "size_sd", Value: s.SampleSize.SD},
		{Name: "size_median", Value: s.SampleSize.Median},
		{Name: "size_q25", Value: s.SampleSize.Q25},
		{Name: "size_q75", Value: s.SampleSize.Q75},
		{Name: "size_min", Value: s.SampleSize.Min, Extremal: true},
		{Name: "size_max", Value: s.SampleSize.Max, Extremal: true},
		{Name: "sum_mean", Value: s.OutcomeSum.Mean},
		{Name: "sum_sd", Value: s.OutcomeSum.SD},
		{Name: "sum_median", Value: s.OutcomeSum.Median},
		{Name: "sum_q25", Value: s.OutcomeSum.Q25},
		{Name: "sum_q75", Value: s.OutcomeSum.Q75},
		{Name: "sum_min", Value: s.OutcomeSum.Min, Extremal: true},
		{Name: "sum_max", Value: s.OutcomeSum.Max, Extremal: true},
	}
	for _, status := range []engine.TrialStatus{
		engine.TrialSuperiority, engine.TrialEquivalence, engine.TrialFutility, engine.TrialMax,
	} {
		m = append(m, Metric{Name: "prob_" + string(status), Value: s.StatusProbs[status]})
	}
	for _, arm := range s.arms {
		m = append(m, Metric{Name: "select_" + arm, Value: s.SelectProbs[arm]})
	}
	m = append(m,
		Metric{Name: "select_none", Value: s.NoSelection},
		Metric{Name: "rmse", Value: s.RMSE},
		Metric{Name: "mae", Value: s.MAE},
		Metric{Name: "rmse_te", Value: s.RMSETE},
		Metric{Name: "mae_te", Value: s.MAETE},
		Metric{Name: "idp", Value: s.IDP},
	)
	return m
}

// BootstrapOptions configures the non-parametric bootstrap.
type BootstrapOptions struct {
	// N is the number of resamples (n_boot), >= 1.
	N int
	// Seed is the base seed of the bootstrap stream family, independent of
	// the batch's replicate streams.
	Seed uint64
	// CIWidth is the percentile confidence interval width, (0,1);
	// 0 defaults to 0.95.
	CIWidth float64
	// Pool bounds parallel resampling; nil runs sequentially.
	Pool *batch.Pool
}

// BootMetric is one metric's bootstrap uncertainty report.
type BootMetric struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"` // from the full batch, not a resample
	SD       float64 `json:"sd"`
	RobustSD float64 `json:"robust_sd"` // normal-consistent MAD
	Lo       float64 `json:"lo"`        // percentile CI
	Hi       float64 `json:"hi"`
	// Estimable is false for extremal metrics and for metrics undefined on
	// one or more resamples; their uncertainty fields are NaN.
	Estimable bool `json:"estimable"`
}

// BootstrapReport is the bootstrap uncertainty of every summary metric.
type BootstrapReport struct {
	NBoot   int          `json:"n_boot"`
	Seed    uint64       `json:"seed"`
	CIWidth float64      `json:"ci_width"`
	Metrics []BootMetric `json:"metrics"`
}

// Bootstrap resamples replicate indices with replacement opts.N times, each
// resample drawn from its own derived stream, recomputes all summary
// metrics per resample, and reports their spread. Resample order matches
// the deterministic stream index, not completion order.
func Bootstrap(ctx context.Context, res *batch.Result, cfg Config, opts BootstrapOptions) (*BootstrapReport, error) {
	if opts.N < 1 {
		return nil, fmt.Errorf("bootstrap: need at least 1 resample, got %d", opts.N)
	}
	width := opts.CIWidth
	if width == 0 {
		width = 0.95
	}
	if width <= 0 || width >= 1 {
		return nil, fmt.Errorf("bootstrap: confidence width %g outside (0,1)", width)
	}

	base, err := Summarize(res, cfg)
	if err != nil {
		return nil, err
	}
	baseMetrics := base.Metrics()

	family := rng.NewFamily(opts.Seed)
	resampled := make([][]Metric, opts.N)
	err = opts.Pool.Each(ctx, opts.N, func(j int) error {
		r := family.Bootstrap(j)
		picked := make([]*engine.Result, len(res.Replicates))
		for i := range picked {
			picked[i] = res.Replicates[r.IntN(len(res.Replicates))]
		}
		sub := &batch.Result{Replicates: picked, Spec: res.Spec}
		s, err := Summarize(sub, cfg)
		if err != nil {
			return fmt.Errorf("resample %d: %w", j, err)
		}
		resampled[j] = s.Metrics()
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &BootstrapReport{NBoot: opts.N, Seed: opts.Seed, CIWidth: width}
	for k, bm := range baseMetrics {
		out := BootMetric{Name: bm.Name, Estimate: bm.Value}
		vals := make([]float64, opts.N)
		estimable := !bm.Extremal
		for j := range resampled {
			v := resampled[j][k].Value
			if math.IsNaN(v) {
				estimable = false
			}
			vals[j] = v
		}
		if estimable {
			sort.Float64s(vals)
			out.SD = sdOrNaN(vals)
			out.RobustSD = madScale * madOf(vals)
			tail := (1 - width) / 2
			out.Lo = stat.Quantile(tail, stat.Empirical, vals, nil)
			out.Hi = stat.Quantile(1-tail, stat.Empirical, vals, nil)
			out.Estimable = true
		} else {
			out.SD, out.RobustSD, out.Lo, out.Hi = nan, nan, nan, nan
		}
		report.Metrics = append(report.Metrics, out)
	}
	return report, nil
}

// madOf is the median absolute deviation of sorted values.
func madOf(sorted []float64) float64 {
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return stat.Quantile(0.5, stat.Empirical, dev, nil)
}
