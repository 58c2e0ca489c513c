package turbopath

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// dirPermissions are the default permission bits applied to directories
// pacquet creates (the store, the virtual store, .pnpm anchors).
const dirPermissions = os.ModeDir | 0775

// AbsoluteSystemPath is an absolute path using OS-native separators. It is
// the root currency of every filesystem operation in pacquet: the store
// root, a project root, a package's extracted tree all pass around as one
// of these rather than a raw string.
type AbsoluteSystemPath string

// ToString returns the string representation of this path.
func (p AbsoluteSystemPath) ToString() string {
	return string(p)
}

// RelativeTo calculates the relative path between two AbsoluteSystemPaths.
func (p AbsoluteSystemPath) RelativeTo(basePath AbsoluteSystemPath) (AnchoredSystemPath, error) {
	processed, err := filepath.Rel(basePath.ToString(), p.ToString())
	return AnchoredSystemPath(processed), err
}

// Join appends relative path segments to this AbsoluteSystemPath.
func (p AbsoluteSystemPath) Join(additional ...RelativeSystemPath) AbsoluteSystemPath {
	cast := RelativeSystemPathArray(additional)
	return AbsoluteSystemPath(filepath.Join(p.ToString(), filepath.Join(cast.ToStringArray()...)))
}

// UntypedJoin appends arbitrary string segments to this AbsoluteSystemPath.
// Used at boundaries (store encoding, config defaults) where the segments
// aren't themselves typed paths.
func (p AbsoluteSystemPath) UntypedJoin(additional ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(p.ToString(), filepath.Join(additional...)))
}

// Dir returns the parent directory of this path.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(p.ToString()))
}

// Base returns the last element of this path.
func (p AbsoluteSystemPath) Base() string {
	return filepath.Base(p.ToString())
}

// MkdirAll implements os.MkdirAll(p, dirPermissions|0644).
func (p AbsoluteSystemPath) MkdirAll() error {
	return os.MkdirAll(p.ToString(), dirPermissions|0644)
}

// EnsureDir ensures the directory containing this path exists.
func (p AbsoluteSystemPath) EnsureDir() error {
	dir := p.Dir()
	err := dir.MkdirAll()
	if err != nil && dir.FileExists() {
		log.Printf("removing file %s; a directory is required", dir)
		if rmErr := os.Remove(dir.ToString()); rmErr == nil {
			return dir.MkdirAll()
		}
		return err
	}
	return err
}

// Open implements os.Open for an absolute path.
func (p AbsoluteSystemPath) Open() (*os.File, error) {
	return os.Open(p.ToString())
}

// OpenFile implements os.OpenFile for an absolute path.
func (p AbsoluteSystemPath) OpenFile(flags int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(p.ToString(), flags, mode)
}

// Create implements os.Create for an absolute path.
func (p AbsoluteSystemPath) Create() (*os.File, error) {
	return os.Create(p.ToString())
}

// Lstat implements os.Lstat for an absolute path.
func (p AbsoluteSystemPath) Lstat() (os.FileInfo, error) {
	return os.Lstat(p.ToString())
}

// Stat implements os.Stat for an absolute path.
func (p AbsoluteSystemPath) Stat() (os.FileInfo, error) {
	return os.Stat(p.ToString())
}

// FileExists returns true if the path exists and is not a directory.
func (p AbsoluteSystemPath) FileExists() bool {
	info, err := p.Lstat()
	return err == nil && !info.IsDir()
}

// DirExists returns true if the path exists and is a directory.
func (p AbsoluteSystemPath) DirExists() bool {
	info, err := p.Lstat()
	return err == nil && info.IsDir()
}

// Exists returns true if the path exists at all (file, dir, or symlink).
func (p AbsoluteSystemPath) Exists() bool {
	_, err := p.Lstat()
	return err == nil
}

// ReadFile reads the contents of this path.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return os.ReadFile(p.ToString())
}

// WriteFile writes contents to this path.
func (p AbsoluteSystemPath) WriteFile(contents []byte, mode fs.FileMode) error {
	return os.WriteFile(p.ToString(), contents, mode)
}

// Symlink implements os.Symlink(target, p).
func (p AbsoluteSystemPath) Symlink(target string) error {
	return os.Symlink(target, p.ToString())
}

// Readlink implements os.Readlink(p).
func (p AbsoluteSystemPath) Readlink() (string, error) {
	return os.Readlink(p.ToString())
}

// Link implements os.Link(p, to) — hardlinks this path to `to`.
func (p AbsoluteSystemPath) Link(to string) error {
	return os.Link(p.ToString(), to)
}

// Remove removes the file or empty directory at this path.
func (p AbsoluteSystemPath) Remove() error {
	return os.Remove(p.ToString())
}

// RemoveAll implements os.RemoveAll for an absolute path.
func (p AbsoluteSystemPath) RemoveAll() error {
	return os.RemoveAll(p.ToString())
}

// Rename implements os.Rename(p, dest).
func (p AbsoluteSystemPath) Rename(dest AbsoluteSystemPath) error {
	return os.Rename(p.ToString(), dest.ToString())
}

// EvalSymlinks resolves every symlink in this path.
func (p AbsoluteSystemPath) EvalSymlinks() (AbsoluteSystemPath, error) {
	resolved, err := filepath.EvalSymlinks(p.ToString())
	if err != nil {
		return "", err
	}
	return AbsoluteSystemPath(resolved), nil
}

// ContainsPath returns true if this absolute path is a parent of other.
func (p AbsoluteSystemPath) ContainsPath(other AbsoluteSystemPath) (bool, error) {
	rel, err := filepath.Rel(p.ToString(), other.ToString())
	if err != nil {
		return false, err
	}
	nonRelativeSentinel := ".." + string(filepath.Separator)
	return !strings.HasPrefix(rel, nonRelativeSentinel), nil
}

// SameFile returns true if p and other refer to the same inode, without
// requiring either to exist via a clean string comparison first.
func (p AbsoluteSystemPath) SameFile(other AbsoluteSystemPath) (bool, error) {
	if p == other {
		return true, nil
	}
	pInfo, err := p.Lstat()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	otherInfo, err := other.Lstat()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(pInfo, otherInfo), nil
}

// CheckedToAbsoluteSystemPath validates that s is an absolute path before
// casting it.
func CheckedToAbsoluteSystemPath(s string) (AbsoluteSystemPath, error) {
	if filepath.IsAbs(s) {
		return AbsoluteSystemPath(s), nil
	}
	return "", &os.PathError{Op: "CheckedToAbsoluteSystemPath", Path: s, Err: os.ErrInvalid}
}

// ResolveUnknownPath returns unknown as-is if absolute, else resolves it
// relative to root.
func ResolveUnknownPath(root AbsoluteSystemPath, unknown string) AbsoluteSystemPath {
	if filepath.IsAbs(unknown) {
		return AbsoluteSystemPath(unknown)
	}
	return root.UntypedJoin(unknown)
}
