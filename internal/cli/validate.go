package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trialsim/adaptr/internal/outcome"
	"github.com/trialsim/adaptr/internal/trial"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <trial.yaml>",
		Short: "Validate a trial definition",
		Long: `Validate a YAML trial definition against the schema and the full set of
specification invariants, then print the expanded specification.

Example:
  adaptr validate designs/three-arm.yaml
  adaptr validate designs/three-arm.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid trial definition", err)
			}
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"valid":     true,
					"spec_hash": spec.Hash(),
					"arms":      spec.Arms,
					"looks":     len(spec.Looks),
					"max_size":  spec.MaxSize(),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), spec.Describe())
			return nil
		},
	}
	return cmd
}

// loadSpec loads, schema-checks, and fully validates a trial definition,
// wiring the built-in generator pair named by its model field.
func loadSpec(path string) (*trial.Spec, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	hooks, err := outcome.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return trial.New(cfg, hooks)
}
