package trial

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOutcome struct{}

func (stubOutcome) Outcomes(_ *rand.Rand, assignments []string) ([]float64, error) {
	return make([]float64, len(assignments)), nil
}

type stubDraws struct{}

func (stubDraws) Draws(_ *rand.Rand, active []string, _ []string, _ []float64, _ string, n int) (map[string][]float64, error) {
	m := make(map[string][]float64, len(active))
	for _, a := range active {
		m[a] = make([]float64, n)
	}
	return m, nil
}

func testHooks() Hooks {
	return Hooks{
		Outcome:     stubOutcome{},
		Draws:       stubDraws{},
		RawEstimate: func([]float64) float64 { return 0 },
	}
}

func validConfig() Config {
	return Config{
		Arms:        []string{"ctrl", "a", "b"},
		TrueValues:  []float64{0.2, 0.3, 0.4},
		Control:     "ctrl",
		Looks:       []int{100, 200},
		Superiority: PerLook{0.99},
		Inferiority: PerLook{0.01},
	}
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

// issueCodes extracts the stable error codes from a construction failure.
func issueCodes(t *testing.T, err error) []string {
	t.Helper()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	codes := make([]string, len(cerr.Issues))
	for i, issue := range cerr.Issues {
		codes[i] = issue.Code
	}
	return codes
}

func TestNewAppliesDefaults(t *testing.T) {
	spec, err := New(validConfig(), testHooks())
	require.NoError(t, err)

	assert.True(t, spec.HighestIsBest)
	assert.Equal(t, []int{100, 200}, spec.Randomised)
	assert.Equal(t, []float64{0.99, 0.99}, spec.Superiority)
	assert.Equal(t, []float64{0.01, 0.01}, spec.Inferiority)
	assert.Nil(t, spec.EquivProb)
	assert.Nil(t, spec.FutilProb)
	assert.Equal(t, []float64{1, 1}, spec.Soften)
	assert.Equal(t, 0.95, spec.CIWidth)
	assert.Equal(t, 5000, spec.NDraws)
	assert.Equal(t, ControlNone, spec.ControlPolicy)
	assert.Equal(t, RescaleNone, spec.Rescale)
	assert.Equal(t, 200, spec.MaxSize())
	assert.NotEmpty(t, spec.Hash())
	assert.Equal(t, Hash(validConfig()), spec.Hash())
}

func TestNewExpandsPerLookSequences(t *testing.T) {
	cfg := validConfig()
	cfg.Superiority = PerLook{0.99, 0.95}
	cfg.Inferiority = PerLook{0.01, 0.05}
	cfg.EquivProb = PerLook{0.9}
	cfg.EquivDiff = 0.05
	cfg.Soften = PerLook{0.25, 0.75}
	cfg.Randomised = []int{120, 200}

	spec, err := New(cfg, testHooks())
	require.NoError(t, err)

	assert.Equal(t, []float64{0.99, 0.95}, spec.Superiority)
	assert.Equal(t, []float64{0.01, 0.05}, spec.Inferiority)
	assert.Equal(t, []float64{0.9, 0.9}, spec.EquivProb)
	assert.Equal(t, []float64{0.25, 0.75}, spec.Soften)
	assert.Equal(t, []int{120, 200}, spec.Randomised)
}

func TestNewCollectsAllIssues(t *testing.T) {
	cfg := Config{
		Arms:        []string{"a", "a"},
		TrueValues:  []float64{0.1},
		Control:     "z",
		Looks:       []int{100, 50},
		Superiority: PerLook{0.8, 0.9},
		Inferiority: PerLook{0.01},
		Soften:      PerLook{1.5},
	}
	_, err := New(cfg, testHooks())
	require.Error(t, err)

	assert.Equal(t, []string{
		ErrArms, ErrTrueValues, ErrControl, ErrLooks, ErrRandomised, ErrThresholds, ErrSoften,
	}, issueCodes(t, err))
}

func TestNewFieldValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{"single arm", func(c *Config) {
			c.Arms = []string{"only"}
			c.TrueValues = []float64{0.1}
			c.Control = ""
		}, ErrArms},
		{"empty arm name", func(c *Config) { c.Arms[1] = "" }, ErrArms},
		{"true values misaligned", func(c *Config) { c.TrueValues = []float64{0.1} }, ErrTrueValues},
		{"unknown control", func(c *Config) { c.Control = "nope" }, ErrControl},
		{"fixed with min", func(c *Config) {
			c.Constraints = map[string]Constraint{"a": {Fixed: fptr(0.3), Min: fptr(0.1)}}
		}, ErrConstraint},
		{"probability out of range", func(c *Config) {
			c.Constraints = map[string]Constraint{"a": {Max: fptr(1.5)}}
		}, ErrConstraint},
		{"min above max", func(c *Config) {
			c.Constraints = map[string]Constraint{"a": {Min: fptr(0.6), Max: fptr(0.4)}}
		}, ErrConstraint},
		{"constraint on unknown arm", func(c *Config) {
			c.Constraints = map[string]Constraint{"ghost": {Min: fptr(0.1)}}
		}, ErrConstraint},
		{"fixed plus min mass over 1", func(c *Config) {
			c.Constraints = map[string]Constraint{
				"ctrl": {Fixed: fptr(0.6)},
				"a":    {Min: fptr(0.3)},
				"b":    {Min: fptr(0.3)},
			}
		}, ErrInfeasible},
		{"maxima cannot absorb mass", func(c *Config) {
			c.Constraints = map[string]Constraint{
				"ctrl": {Max: fptr(0.2)},
				"a":    {Max: fptr(0.2)},
				"b":    {Max: fptr(0.2)},
			}
		}, ErrInfeasible},
		{"unknown policy", func(c *Config) { c.ControlPolicy = "sideways" }, ErrPolicy},
		{"policy without control", func(c *Config) {
			c.Control = ""
			c.ControlPolicy = "sqrt-based"
		}, ErrPolicy},
		{"fixed policy without fixed constraint", func(c *Config) {
			c.ControlPolicy = "fixed"
		}, ErrPolicy},
		{"unknown rescale", func(c *Config) { c.Rescale = "sometimes" }, ErrRescale},
		{"empty looks", func(c *Config) { c.Looks = nil }, ErrLooks},
		{"non-positive look", func(c *Config) { c.Looks = []int{0, 100} }, ErrLooks},
		{"non-increasing looks", func(c *Config) { c.Looks = []int{100, 100} }, ErrLooks},
		{"randomised misaligned", func(c *Config) { c.Randomised = []int{100} }, ErrRandomised},
		{"randomised below follow-up", func(c *Config) { c.Randomised = []int{90, 200} }, ErrRandomised},
		{"superiority missing", func(c *Config) { c.Superiority = nil }, ErrThresholds},
		{"superiority out of range", func(c *Config) { c.Superiority = PerLook{1.2} }, ErrThresholds},
		{"superiority stricter later", func(c *Config) { c.Superiority = PerLook{0.9, 0.95} }, ErrThresholds},
		{"inferiority stricter later", func(c *Config) { c.Inferiority = PerLook{0.05, 0.01} }, ErrThresholds},
		{"threshold wrong length", func(c *Config) { c.Superiority = PerLook{0.9, 0.9, 0.9} }, ErrThresholds},
		{"soften out of range", func(c *Config) { c.Soften = PerLook{-0.5} }, ErrSoften},
		{"soften wrong length", func(c *Config) { c.Soften = PerLook{0.5, 0.5, 0.5} }, ErrSoften},
		{"equivalence without margin", func(c *Config) { c.EquivProb = PerLook{0.9} }, ErrDiffMargins},
		{"futility without control", func(c *Config) {
			c.Control = ""
			c.FutilProb = PerLook{0.6}
		}, ErrDiffMargins},
		{"negative futility margin", func(c *Config) {
			c.FutilProb = PerLook{0.6}
			c.FutilDiff = -0.1
		}, ErrDiffMargins},
		{"ci width out of range", func(c *Config) { c.CIWidth = 1.5 }, ErrPosterior},
		{"too few draws", func(c *Config) { c.NDraws = 50 }, ErrPosterior},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, testHooks())
			require.Error(t, err)
			assert.Contains(t, issueCodes(t, err), tt.wantCode)
		})
	}
}

func TestNewRequiresHooks(t *testing.T) {
	_, err := New(validConfig(), Hooks{})
	require.Error(t, err)

	codes := issueCodes(t, err)
	assert.Equal(t, []string{ErrHooks, ErrHooks, ErrHooks}, codes)
}

// Monotonic thresholds that relax over time are legal in both directions.
func TestThresholdsMayRelax(t *testing.T) {
	cfg := validConfig()
	cfg.Superiority = PerLook{0.99, 0.95}
	cfg.Inferiority = PerLook{0.01, 0.05}
	_, err := New(cfg, testHooks())
	require.NoError(t, err)
}

func TestSpecAccessors(t *testing.T) {
	cfg := validConfig()
	cfg.Constraints = map[string]Constraint{"a": {Min: fptr(0.1), Max: fptr(0.5)}}
	cfg.HighestIsBest = bptr(false)

	spec, err := New(cfg, testHooks())
	require.NoError(t, err)

	assert.True(t, spec.HasControl())
	assert.Equal(t, 1, spec.Index("a"))
	assert.Equal(t, -1, spec.Index("ghost"))
	assert.Equal(t, 0.3, spec.TrueValue("a"))
	assert.False(t, spec.HighestIsBest)

	c := spec.Constraint("a")
	require.NotNil(t, c.Min)
	assert.Equal(t, 0.1, *c.Min)
	assert.Equal(t, Constraint{}, spec.Constraint("ctrl"))
	assert.Equal(t, Constraint{}, spec.Constraint("ghost"))
}
