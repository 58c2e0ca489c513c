package installer

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// createOrReplaceSymlink makes path a symlink pointing at target.
// Idempotent: an existing symlink already pointing at target is left
// alone. Anything else in the way is only replaced when it is itself a
// symlink (to some other, stale target) or, when ownedDir is true, a
// directory this installer is known to own (a virtual-store package
// directory, never an arbitrary project directory) — otherwise the
// conflict is surfaced per §7's FilesystemConflict kind, never silently
// clobbered.
func createOrReplaceSymlink(path turbopath.AbsoluteSystemPath, target string, ownedDir bool) error {
	if existing, err := path.Readlink(); err == nil {
		if existing == target {
			return nil
		}
	} else if info, statErr := os.Lstat(path.ToString()); statErr == nil {
		if info.IsDir() && !ownedDir {
			return &FilesystemConflictError{Path: path.ToString(), Cause: fmt.Errorf("a directory already exists here and is not owned by the virtual store")}
		}
	}

	if err := path.Dir().MkdirAll(); err != nil {
		return err
	}

	tmp := path.Dir().UntypedJoin(".pacquet-tmp-" + uuid.NewString())
	if err := tmp.Symlink(target); err != nil {
		return errors.Wrap(err, "creating temporary symlink")
	}

	if err := tmp.Rename(path); err != nil {
		if removeErr := os.RemoveAll(path.ToString()); removeErr != nil {
			_ = tmp.Remove()
			return &FilesystemConflictError{Path: path.ToString(), Cause: err}
		}
		if err := tmp.Rename(path); err != nil {
			_ = tmp.Remove()
			return &FilesystemConflictError{Path: path.ToString(), Cause: err}
		}
	}
	return nil
}
