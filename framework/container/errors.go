package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/km-arc/go-ioc/framework/config"
)

var (
	// ErrNotFound is returned by lookups when no active declaration matches.
	ErrNotFound = errors.New("container: no matching component")

	// ErrClosedContainer is returned once Close has begun.
	ErrClosedContainer = errors.New("container: closed")

	// ErrNotReady is returned by lookups before Start has completed.
	ErrNotReady = errors.New("container: not started")

	// ErrAlreadyStarted is returned when registering after Start or starting twice.
	ErrAlreadyStarted = errors.New("container: already started")
)

// PropertyResolutionError reports a property key that could not be resolved.
type PropertyResolutionError = config.PropertyResolutionError

// DuplicateComponentIDError reports two active declarations sharing an id or alias.
type DuplicateComponentIDError struct {
	ID string
}

func (e *DuplicateComponentIDError) Error() string {
	return fmt.Sprintf("container: duplicate component id %q", e.ID)
}

// MissingDependencyError reports a required slot with no candidate.
type MissingDependencyError struct {
	Declaration string
	Slot        string
	Capability  Capability
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("container: %s.%s: no component provides %s", e.Declaration, e.Slot, e.Capability)
}

// AmbiguousDependencyError reports a slot that qualifier and name hints
// could not narrow to one candidate.
type AmbiguousDependencyError struct {
	Declaration string
	Slot        string
	Capability  Capability
	Candidates  []string
}

func (e *AmbiguousDependencyError) Error() string {
	return fmt.Sprintf("container: %s.%s: %d candidates for %s: %s",
		e.Declaration, e.Slot, len(e.Candidates), e.Capability, strings.Join(e.Candidates, ", "))
}

// CyclicDependencyError reports a dependency cycle that cannot be broken.
// Path starts and ends with the same id.
type CyclicDependencyError struct {
	Path   []string
	Reason string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("container: dependency cycle %s (%s)", strings.Join(e.Path, " -> "), e.Reason)
}

// InvalidLifecycleHookError reports a declaration that is structurally unusable.
type InvalidLifecycleHookError struct {
	Declaration string
	Reason      string
}

func (e *InvalidLifecycleHookError) Error() string {
	return fmt.Sprintf("container: invalid declaration %q: %s", e.Declaration, e.Reason)
}

// CreationFailureError wraps a failing recipe, setter or init hook.
type CreationFailureError struct {
	Declaration string
	Cause       error
}

func (e *CreationFailureError) Error() string {
	return fmt.Sprintf("container: create %q: %v", e.Declaration, e.Cause)
}

func (e *CreationFailureError) Unwrap() error { return e.Cause }

// ActivationEvaluationError reports a profile predicate that does not parse.
type ActivationEvaluationError struct {
	Declaration string
	Expression  string
	Cause       error
}

func (e *ActivationEvaluationError) Error() string {
	return fmt.Sprintf("container: profile %q of %q: %v", e.Expression, e.Declaration, e.Cause)
}

func (e *ActivationEvaluationError) Unwrap() error { return e.Cause }

// AmbiguousError is returned by a lookup matching more than one component.
type AmbiguousError struct {
	Capability Capability
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("container: %s is provided by %s", e.Capability, strings.Join(e.Candidates, ", "))
}

// StartupError is returned by Start. Cleanup holds destroy-hook failures
// from the rollback of components that had already been created.
type StartupError struct {
	Phase   Phase
	Cause   error
	Cleanup []error
}

func (e *StartupError) Error() string {
	msg := fmt.Sprintf("container: start failed while %s: %v", e.Phase, e.Cause)
	if len(e.Cleanup) > 0 {
		msg += fmt.Sprintf(" (%d cleanup failures)", len(e.Cleanup))
	}
	return msg
}

func (e *StartupError) Unwrap() error { return e.Cause }

// ── Shutdown report ───────────────────────────────────────────────────────────

// HookFailure records one destroy hook that failed.
type HookFailure struct {
	Declaration string
	Hook        string
	Err         error
}

func (f HookFailure) Error() string {
	return fmt.Sprintf("destroy %s (%s): %v", f.Declaration, f.Hook, f.Err)
}

func (f HookFailure) Unwrap() error { return f.Err }

// ShutdownReport lists what a destroy pass did. Destroyed is in the order
// components were torn down.
type ShutdownReport struct {
	Destroyed []string
	Failures  []HookFailure
}

// Err joins the hook failures, or returns nil.
func (r ShutdownReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
