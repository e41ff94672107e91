// Package stage defines the contract every pipeline stage implements and
// the error taxonomy the per-FOV runner translates failures into.
package stage

import (
	"errors"
	"fmt"

	"cytopipe/internal/cancel"
)

// Stage is one step of the per-FOV pipeline. Implementations are pure
// functions over on-disk artifacts for a single FOV: idempotent, individually
// cancellable, and owning exactly one output artifact kind.
type Stage interface {
	// Name identifies the stage in logs and progress messages.
	Name() string
	// Done reports whether the stage's output already exists for fov.
	// The runner skips Run when Done returns true; this predicate is the
	// single source of truth for resumability.
	Done(fov int) (bool, error)
	// Run produces the stage's output artifact for fov. Observing a set
	// cancellation token is not an error: Run cleans up partial output
	// where the artifact contract requires it and returns nil.
	Run(tok *cancel.Token, fov int) error
}

// ErrMissingInput marks failures caused by an absent upstream artifact.
// They fail the one FOV without aborting its batch.
var ErrMissingInput = errors.New("missing upstream artifact")

// MissingInput builds an ErrMissingInput for the given artifact path.
func MissingInput(stageName, path string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMissingInput, stageName, path)
}
