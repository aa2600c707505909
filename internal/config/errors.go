package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// validateTags runs the package-wide validator instance over v's
// `validate:"..."` struct tags (e.g. `required`) and folds every
// resulting field error into errs, alongside the hand-written
// structural checks each Validate method adds afterwards.
func validateTags(v any, errs *ValidationError) {
	if err := structValidator.Struct(v); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			errs.Add("%s: failed %q validation", fe.Namespace(), fe.Tag())
		}
	}
}

// ValidationError aggregates every structural violation found while
// validating a config tree into one human-readable report, combining
// every violation found rather than failing on the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "config: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Add(format string, args ...any) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

func (e *ValidationError) AddAll(other *ValidationError) {
	if other == nil {
		return
	}
	e.Violations = append(e.Violations, other.Violations...)
}

func (e *ValidationError) HasErrors() bool { return len(e.Violations) > 0 }

// ErrOrNil returns e as an error if it carries any violation, nil
// otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
