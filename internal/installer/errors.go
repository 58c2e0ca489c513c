package installer

import "fmt"

// FilesystemConflictError reports an unexpected file or directory in the
// way of a symlink target that the installer is not permitted to
// replace (§7 FilesystemConflict).
type FilesystemConflictError struct {
	Path  string
	Cause error
}

func (e *FilesystemConflictError) Error() string {
	return fmt.Sprintf("filesystem conflict at %s: %v", e.Path, e.Cause)
}

func (e *FilesystemConflictError) Unwrap() error { return e.Cause }

// ScriptFailureError wraps a non-zero exit from a user-defined script
// (§7 ScriptFailure); run/test/start propagate its ExitCode verbatim.
type ScriptFailureError struct {
	Script   string
	ExitCode int
	Cause    error
}

func (e *ScriptFailureError) Error() string {
	return fmt.Sprintf("script %q exited with code %d: %v", e.Script, e.ExitCode, e.Cause)
}

func (e *ScriptFailureError) Unwrap() error { return e.Cause }

// ScriptNotFoundError is returned by Run when script-name has no entry
// in the manifest's scripts map and if-present was not requested.
type ScriptNotFoundError struct {
	Script string
}

func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("script %q not found in package.json", e.Script)
}
