// Package turbopath teaches the Go type system about the different kinds
// of paths pacquet juggles:
//   - AbsoluteSystemPath: absolute, OS-native separators
//   - AnchoredSystemPath: relative to some known root (a project, the
//     store), OS-native separators, stored without a leading separator
//   - AnchoredUnixPath: the same, but with forward slashes — this is the
//     form pnpm-lock.yaml keys and tar entry names use, and it must stay
//     stable across platforms
//   - RelativeSystemPath: an arbitrary relative path segment
//
// Keeping these as distinct types (rather than raw strings) means the
// compiler catches "joined a Unix-style lockfile key onto a Windows path
// without converting separators first" instead of a human having to.
package turbopath

// RelativeSystemPathArray enables ergonomic operations on slices of
// RelativeSystemPath.
type RelativeSystemPathArray []RelativeSystemPath

// ToStringArray converts a RelativeSystemPathArray to a plain []string.
func (source RelativeSystemPathArray) ToStringArray() []string {
	output := make([]string, len(source))
	for i, p := range source {
		output[i] = p.ToString()
	}
	return output
}

// AbsoluteSystemPathFromUpstream casts a string known to already be an
// absolute, OS-native path. Unchecked — the name marks the trust boundary.
func AbsoluteSystemPathFromUpstream(path string) AbsoluteSystemPath {
	return AbsoluteSystemPath(path)
}

// AnchoredSystemPathFromUpstream casts a string known to already be an
// anchored, OS-native path. Unchecked — the name marks the trust boundary.
func AnchoredSystemPathFromUpstream(path string) AnchoredSystemPath {
	return AnchoredSystemPath(path)
}

// UnsafeToAbsolutePath casts an arbitrary string to an AbsoluteSystemPath
// without validation. Used at the handful of boundaries (CLI flags, env
// vars) where we've already decided the string is meant to be absolute.
func UnsafeToAbsolutePath(path string) AbsoluteSystemPath {
	return AbsoluteSystemPath(path)
}
