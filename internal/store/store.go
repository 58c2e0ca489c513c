// Package store implements the Store Dir layer: the content-addressed
// store (CAS) shared across projects. It owns the CAS root path,
// encodes hash-to-path and (name, version, registry)-to-directory
// mappings, and inserts files with write-once, atomic-rename semantics.
package store

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// Store owns one content-addressed store rooted at Dir.
type Store struct {
	Dir turbopath.AbsoluteSystemPath
}

// New returns a Store rooted at dir, creating the directory layout
// (files/, and the per-registry package anchor root) if it does not
// already exist.
func New(dir turbopath.AbsoluteSystemPath) (*Store, error) {
	s := &Store{Dir: dir.UntypedJoin("v3")}
	if err := s.filesDir().MkdirAll(); err != nil {
		return nil, errors.Wrap(err, "store: creating store dir")
	}
	return s, nil
}

func (s *Store) filesDir() turbopath.AbsoluteSystemPath {
	return s.Dir.UntypedJoin("files")
}

// FilePath returns the canonical path for a StoreEntry given its content
// hash in hex, sharded by a two-character prefix directory for
// cardinality (§4.1, §3 StoreEntry).
func (s *Store) FilePath(hexHash string) (turbopath.AbsoluteSystemPath, error) {
	if len(hexHash) < 3 {
		return "", fmt.Errorf("store: hash %q too short to shard", hexHash)
	}
	return s.filesDir().UntypedJoin(hexHash[:2], hexHash[2:]), nil
}

// PackagePath returns the canonical per-package anchor directory for a
// resolved package, URL-encoding the registry host so the path is
// filesystem-safe (§3 PackagePath).
func (s *Store) PackagePath(registryURL, name, version string) (turbopath.AbsoluteSystemPath, error) {
	host, err := encodeRegistryHost(registryURL)
	if err != nil {
		return "", err
	}
	return s.Dir.UntypedJoin(host, fmt.Sprintf("%s@%s", name, version)), nil
}

func encodeRegistryHost(registryURL string) (string, error) {
	u, err := url.Parse(registryURL)
	if err != nil {
		return "", errors.Wrapf(err, "store: invalid registry URL %q", registryURL)
	}
	host := u.Host
	if host == "" {
		host = registryURL
	}
	return url.PathEscape(host), nil
}

// Has reports whether a StoreEntry for hexHash already exists.
func (s *Store) Has(hexHash string) (bool, error) {
	path, err := s.FilePath(hexHash)
	if err != nil {
		return false, err
	}
	return path.FileExists(), nil
}

// Insert writes contents into the CAS under hexHash, write-once: it
// writes to a temp sibling file and renames it into place. If the final
// path already exists the write is skipped entirely — per §9, the store
// trusts existing entries rather than re-verifying them, and a losing
// concurrent writer's temp file is discarded rather than erroring.
func (s *Store) Insert(hexHash string, contents io.Reader, executable bool) error {
	finalPath, err := s.FilePath(hexHash)
	if err != nil {
		return err
	}
	if finalPath.FileExists() {
		// Trust the store: another writer already inserted this content.
		return nil
	}
	if err := finalPath.Dir().MkdirAll(); err != nil {
		return errors.Wrap(err, "store: creating shard dir")
	}

	tempPath := finalPath.Dir().UntypedJoin(fmt.Sprintf(".%s.tmp", uuid.NewString()))
	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}

	f, err := tempPath.OpenFile(os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return errors.Wrap(err, "store: creating temp file")
	}
	if _, err := io.Copy(f, contents); err != nil {
		_ = f.Close()
		_ = tempPath.Remove()
		return errors.Wrap(err, "store: writing temp file")
	}
	if err := f.Close(); err != nil {
		_ = tempPath.Remove()
		return errors.Wrap(err, "store: closing temp file")
	}

	if err := tempPath.Rename(finalPath); err != nil {
		// Another writer won the race and the final path now exists;
		// our temp file is simply discarded.
		_ = tempPath.Remove()
		if finalPath.FileExists() {
			return nil
		}
		return errors.Wrap(err, "store: renaming into place")
	}
	return nil
}

// Open opens a StoreEntry for reading, retrying once on ENOENT in case a
// concurrent writer is mid-rename (§5: readers never lock).
func (s *Store) Open(hexHash string) (*os.File, error) {
	path, err := s.FilePath(hexHash)
	if err != nil {
		return nil, err
	}
	f, err := path.Open()
	if os.IsNotExist(err) {
		f, err = path.Open()
	}
	return f, err
}

// lockFileName is the pidfile-style advisory lock acquired during prune
// to exclude concurrent installers, per §5 ("installers may skip the
// lock; they only append").
const lockFileName = "store.lock"

// Prune removes every immediate child of the store's package-anchor
// directories (not the shared files/ tree), under a process-level
// advisory lock so no concurrent installer observes a half-pruned store.
// Partial prune of orphaned entries only is out of scope (§4.1).
func (s *Store) Prune() error {
	lockPath := s.Dir.UntypedJoin(lockFileName)
	if err := lockPath.Dir().MkdirAll(); err != nil {
		return err
	}
	lock, err := lockfile.New(lockPath.ToString())
	if err != nil {
		return errors.Wrap(err, "store: constructing prune lock")
	}
	if err := lock.TryLock(); err != nil {
		return errors.Wrap(err, "store: another installer holds the prune lock")
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := os.ReadDir(s.Dir.ToString())
	if err != nil {
		return errors.Wrap(err, "store: reading store dir")
	}
	for _, entry := range entries {
		if entry.Name() == "files" || entry.Name() == lockFileName {
			continue
		}
		if err := s.Dir.UntypedJoin(entry.Name()).RemoveAll(); err != nil {
			return errors.Wrapf(err, "store: pruning %s", entry.Name())
		}
	}
	return nil
}
