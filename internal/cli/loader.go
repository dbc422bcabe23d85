package cli

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/trialsim/adaptr/internal/trial"
)

//go:embed schema.cue
var trialSchema string

// Loader error codes.
const (
	ErrCodeNotFound   = "L101" // definition file not found or unreadable
	ErrCodeBadYAML    = "L102" // file is not valid YAML
	ErrCodeBadSchema  = "L103" // document rejected by the CUE schema
	ErrCodeBadDecode  = "L104" // document does not decode into a trial config
)

// LoadError represents an error that occurred while loading a trial
// definition file.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// LoadConfig reads a YAML trial definition, checks it against the embedded
// CUE schema, and decodes it into a raw trial configuration. Cross-field
// invariants are left to trial.New.
func LoadConfig(path string) (trial.Config, error) {
	var cfg trial.Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}

	// YAML first, into a generic document for the schema check.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, &LoadError{Code: ErrCodeBadYAML, Path: path, Message: err.Error()}
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(trialSchema).LookupPath(cue.ParsePath("#Trial"))
	if err := schema.Err(); err != nil {
		// The schema is embedded; failing to compile it is a build defect.
		return cfg, &LoadError{Code: ErrCodeBadSchema, Path: path, Message: "internal schema error: " + err.Error()}
	}
	value := schema.Unify(cuectx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return cfg, &LoadError{
			Code:    ErrCodeBadSchema,
			Path:    path,
			Message: cueerrors.Details(err, nil),
		}
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, &LoadError{Code: ErrCodeBadDecode, Path: path, Message: err.Error()}
	}
	return cfg, nil
}
