package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToolchain means the build tool is not available to the invoking user.
	ErrMissingToolchain = errors.New("build toolchain not found")
	// ErrTargetInstall means the compilation target is missing and could not be installed.
	ErrTargetInstall = errors.New("compilation target could not be installed")
	// ErrMissingSystemCompiler means the static-linking system compiler is not installed.
	ErrMissingSystemCompiler = errors.New("system compiler not found")
	// ErrBuildFailed means the build exited with a non-zero status.
	ErrBuildFailed = errors.New("build failed")
	// ErrArtifactMissing means no artifact exists where the build should have put it.
	ErrArtifactMissing = errors.New("build artifact not found")
	// ErrPrivilegeRequired means the operation needs root and the process does not have it.
	ErrPrivilegeRequired = errors.New("root privileges required")
	// ErrLocked means another installer run holds the transition lock.
	ErrLocked = errors.New("another installer run is in progress")
	// ErrStaleBackup means a backup exists without a target and install would orphan it.
	ErrStaleBackup = errors.New("backup exists without an installed target")
)

// Error is a classified failure carrying the next manual action.
type Error struct {
	// Kind is one of the sentinel errors of this package.
	Kind error
	// Cause is the underlying error, if any.
	Cause error
	// Remediation tells the operator what to run next.
	Remediation string
}

// New classifies cause under kind with the given remediation.
func New(kind, cause error, remediation string) *Error {
	return &Error{
		Kind:        kind,
		Cause:       cause,
		Remediation: remediation,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}

	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// Remediation returns the remediation attached to err, or "".
func Remediation(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Remediation
	}

	return ""
}

// IsBuildFailure reports whether err is a BuildFailure in either of its forms.
func IsBuildFailure(err error) bool {
	return errors.Is(err, ErrBuildFailed) || errors.Is(err, ErrArtifactMissing)
}
