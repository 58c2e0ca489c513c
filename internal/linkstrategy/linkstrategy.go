// Package linkstrategy implements the configurable clone strategy used
// to materialize a package's files from the content-addressed store into
// a project's virtual store: copy-on-write reflink, falling back to a
// hard link, falling back to a byte copy (§9 design notes).
package linkstrategy

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Strategy is a named clone operation: attempt(from, to) performs the
// clone and reports whether it succeeded, so Clone can fall through to
// the next strategy without distinguishing "not supported" from "failed".
type Strategy struct {
	Name    string
	attempt func(from, to string) (bool, error)
}

// Reflink attempts a copy-on-write clone via the platform's reflink
// ioctl. On platforms or filesystems without support it reports false,
// not an error, so Clone falls through to the next strategy.
var Reflink = Strategy{Name: "reflink", attempt: reflink}

// Hardlink attempts os.Link, which requires from and to to live on the
// same filesystem.
var Hardlink = Strategy{Name: "hardlink", attempt: hardlink}

// Copy performs a byte-for-byte copy; it is the strategy of last resort
// and always succeeds or returns a real error.
var Copy = Strategy{Name: "copy", attempt: copyFile}

func hardlink(from, to string) (bool, error) {
	if err := os.Link(from, to); err != nil {
		return false, nil
	}
	return true, nil
}

func copyFile(from, to string) (bool, error) {
	src, err := os.Open(from)
	if err != nil {
		return false, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return false, err
	}

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return false, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return false, err
	}
	return true, nil
}

// Chain tries each strategy's attempt in order and returns the name of
// the first one that succeeds.
type Chain []Strategy

// Default is the preferred order per §4.4 materialization step 2:
// copy-on-write reflink, then hard link, then byte copy.
var Default = Chain{Reflink, Hardlink, Copy}

// Clone materializes the file at from into to using the first strategy
// in the chain that succeeds.
func (c Chain) Clone(from, to string) (string, error) {
	var lastErr error
	for _, strategy := range c {
		ok, err := strategy.attempt(from, to)
		if ok {
			return strategy.Name, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", errors.Wrapf(lastErr, "linkstrategy: all strategies failed for %s", from)
	}
	return "", fmt.Errorf("linkstrategy: all strategies declined %s", from)
}
