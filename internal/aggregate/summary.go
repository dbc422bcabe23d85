package aggregate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/trialsim/adaptr/internal/batch"
	"github.com/trialsim/adaptr/internal/engine"
)

// Restrict narrows the summarised subset of replicates.
type Restrict string

const (
	// RestrictNone summarises every replicate.
	RestrictNone Restrict = "all"
	// RestrictSuperiority summarises only superiority-ending replicates.
	RestrictSuperiority Restrict = "superiority"
	// RestrictSelected summarises only replicates that selected an arm.
	RestrictSelected Restrict = "selected"
)

// Config configures the aggregation.
type Config struct {
	Selection Selection
	Restrict  Restrict
}

// Distribution summarises one per-replicate quantity.
type Distribution struct {
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Median float64 `json:"median"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary is the reduced view of a batch.
type Summary struct {
	N        int `json:"n"`         // replicates after restriction
	NOfTotal int `json:"n_total"`   // replicates in the batch
	Selected int `json:"n_selected"` // replicates with a selection

	SampleSize  Distribution `json:"sample_size"`  // final randomised patients
	OutcomeSum  Distribution `json:"outcome_sum"`  // total outcome sum per replicate

	StatusProbs map[engine.TrialStatus]float64 `json:"status_probs"`

	SelectProbs map[string]float64 `json:"select_probs"` // per arm, over summarised subset
	NoSelection float64            `json:"no_selection"`

	// Error metrics of the selected arm's posterior estimate against its
	// ground truth, and of the treatment-effect estimate (selected minus
	// control) against the true effect. NaN marks not-estimable.
	RMSE    float64 `json:"rmse"`
	MAE     float64 `json:"mae"`
	RMSETE  float64 `json:"rmse_te"`
	MAETE   float64 `json:"mae_te"`

	// IDP is the Ideal Design Percentage.
	IDP float64 `json:"idp"`

	arms []string // spec arm order, for deterministic metric flattening
}

// Summarize reduces a batch to its summary metrics.
func Summarize(res *batch.Result, cfg Config) (*Summary, error) {
	spec := res.Spec
	if cfg.Selection.Strategy == "" {
		cfg.Selection.Strategy = StrategyNone
	}
	if err := cfg.Selection.Validate(spec); err != nil {
		return nil, err
	}
	if cfg.Restrict == "" {
		cfg.Restrict = RestrictNone
	}

	type pick struct {
		rep *engine.Result
		arm string
		ok  bool
	}
	picks := make([]pick, 0, len(res.Replicates))
	for _, rep := range res.Replicates {
		arm, ok := selectArm(spec, rep, cfg.Selection)
		switch cfg.Restrict {
		case RestrictSuperiority:
			if rep.Status != engine.TrialSuperiority {
				continue
			}
		case RestrictSelected:
			if !ok {
				continue
			}
		case RestrictNone:
		default:
			return nil, fmt.Errorf("unknown restriction %q", cfg.Restrict)
		}
		picks = append(picks, pick{rep: rep, arm: arm, ok: ok})
	}

	s := &Summary{
		N:           len(picks),
		NOfTotal:    len(res.Replicates),
		StatusProbs: make(map[engine.TrialStatus]float64),
		SelectProbs: make(map[string]float64),
		arms:        append([]string(nil), spec.Arms...),
	}
	for _, arm := range spec.Arms {
		s.SelectProbs[arm] = 0
	}
	if len(picks) == 0 {
		s.SampleSize = emptyDistribution()
		s.OutcomeSum = emptyDistribution()
		s.RMSE, s.MAE, s.RMSETE, s.MAETE, s.IDP = nan, nan, nan, nan, nan
		s.NoSelection = nan
		return s, nil
	}

	sizes := make([]float64, len(picks))
	sums := make([]float64, len(picks))
	var sqErr, sqErrTE []float64
	var absErr, absErrTE []float64
	selCount := make(map[string]int)

	for i, p := range picks {
		sizes[i] = float64(p.rep.Randomised)
		total := 0.0
		for _, ar := range p.rep.Arms {
			total += ar.SumAll
		}
		sums[i] = total
		s.StatusProbs[p.rep.Status] += 1 / float64(len(picks))

		if !p.ok {
			continue
		}
		s.Selected++
		selCount[p.arm]++

		sel := p.rep.Arm(p.arm)
		err := sel.PostEstimate - sel.TrueValue
		sqErr = append(sqErr, err*err)
		absErr = append(absErr, math.Abs(err))

		if spec.HasControl() && p.arm != spec.Control {
			ctl := p.rep.Arm(spec.Control)
			te := (sel.PostEstimate - ctl.PostEstimate) - (sel.TrueValue - ctl.TrueValue)
			sqErrTE = append(sqErrTE, te*te)
			absErrTE = append(absErrTE, math.Abs(te))
		}
	}

	s.SampleSize = summarizeDistribution(sizes)
	s.OutcomeSum = summarizeDistribution(sums)

	for arm, c := range selCount {
		s.SelectProbs[arm] = float64(c) / float64(len(picks))
	}
	s.NoSelection = float64(len(picks)-s.Selected) / float64(len(picks))

	s.RMSE = rootMean(sqErr)
	s.MAE = medianOf(absErr)
	s.RMSETE = rootMean(sqErrTE)
	s.MAETE = medianOf(absErrTE)
	s.IDP = idealDesignPercentage(spec.TrueValues, spec.Arms, selCount, s.Selected, spec.HighestIsBest)
	return s, nil
}

// idealDesignPercentage normalises the expected ground-truth outcome of the
// selected arms between the worst and best arm. Selection probabilities are
// conditional on a selection having been made.
func idealDesignPercentage(trueValues []float64, arms []string, selCount map[string]int, selected int, highestBest bool) float64 {
	if selected == 0 {
		return nan
	}
	lo, hi := trueValues[0], trueValues[0]
	for _, v := range trueValues[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return nan
	}
	var expected float64
	for i, arm := range arms {
		expected += float64(selCount[arm]) / float64(selected) * trueValues[i]
	}
	idp := 100 * (expected - lo) / (hi - lo)
	if !highestBest {
		idp = 100 - idp
	}
	return idp
}

var nan = math.NaN()

// Estimable reports whether a metric value carries information; the
// not-estimable marker is NaN.
func Estimable(v float64) bool { return !math.IsNaN(v) }

func summarizeDistribution(vals []float64) Distribution {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return Distribution{
		Mean:   stat.Mean(sorted, nil),
		SD:     sdOrNaN(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Q75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func emptyDistribution() Distribution {
	return Distribution{Mean: nan, SD: nan, Median: nan, Q25: nan, Q75: nan, Min: nan, Max: nan}
}

func sdOrNaN(vals []float64) float64 {
	if len(vals) < 2 {
		return nan
	}
	return stat.StdDev(vals, nil)
}

func rootMean(vals []float64) float64 {
	if len(vals) == 0 {
		return nan
	}
	return math.Sqrt(stat.Mean(vals, nil))
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return nan
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
