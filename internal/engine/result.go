package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// madScale makes the median absolute deviation a consistent estimator of
// the standard deviation under normality.
const madScale = 1.4826

// ArmResult records one arm's final state in a replicate.
type ArmResult struct {
	Arm       string    `json:"arm"`
	Status    ArmStatus `json:"status"`
	TrueValue float64   `json:"true_value"`

	Randomised  int     `json:"randomised"`   // patients randomised to the arm
	SumAll      float64 `json:"sum_all"`      // outcome sum over all randomised patients
	Followed    int     `json:"followed"`     // patients with observed follow-up at the final look
	SumFollowed float64 `json:"sum_followed"` // outcome sum over followed patients

	RawEstimate  float64 `json:"raw_estimate"`  // raw_estimate_fn over followed outcomes
	PostEstimate float64 `json:"post_estimate"` // posterior point estimate (mean, or median when robust)
	PostError    float64 `json:"post_error"`    // posterior SD, or scaled MAD when robust
	Lo           float64 `json:"lo"`            // credible interval bounds from the final draws
	Hi           float64 `json:"hi"`
}

// LookRecord captures the allocation and status trajectory at one look, for
// full-history mode.
type LookRecord struct {
	Look       int                  `json:"look"` // 1-based
	Followed   int                  `json:"followed"`
	Randomised int                  `json:"randomised"`
	Alloc      map[string]float64   `json:"alloc"`
	Status     map[string]ArmStatus `json:"status"`
}

// Result is one replicate's terminal record.
type Result struct {
	Index  int         `json:"index"` // 0-based replicate index within the batch
	Status TrialStatus `json:"status"`

	LooksRun   int    `json:"looks_run"`   // looks evaluated before termination
	Followed   int    `json:"followed"`    // patients with follow-up at termination
	Randomised int    `json:"randomised"`  // final sample size (randomised patients)
	MaxSize    int    `json:"max_size"`    // the schedule's maximum sample size
	Superior   string `json:"superior,omitempty"`

	Arms []ArmResult `json:"arms"` // ordered per the specification

	History []LookRecord `json:"history,omitempty"` // full-history mode only
}

// Arm returns the result record for the named arm, or nil.
func (r *Result) Arm(name string) *ArmResult {
	for i := range r.Arms {
		if r.Arms[i].Arm == name {
			return &r.Arms[i]
		}
	}
	return nil
}

// posteriorSummary reduces final-look draws to a point estimate, a spread,
// and a central credible interval of the given width. Robust selects
// median/MAD over mean/SD.
func posteriorSummary(draws []float64, width float64, robust bool) (est, spread, lo, hi float64) {
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)

	if robust {
		est = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		dev := make([]float64, len(sorted))
		for i, v := range sorted {
			dev[i] = math.Abs(v - est)
		}
		sort.Float64s(dev)
		spread = madScale * stat.Quantile(0.5, stat.Empirical, dev, nil)
	} else {
		est = stat.Mean(sorted, nil)
		spread = stat.StdDev(sorted, nil)
	}

	tail := (1 - width) / 2
	lo = stat.Quantile(tail, stat.Empirical, sorted, nil)
	hi = stat.Quantile(1-tail, stat.Empirical, sorted, nil)
	return est, spread, lo, hi
}
