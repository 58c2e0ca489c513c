//go:build !linux

package linkstrategy

// reflink has no portable equivalent outside Linux's FICLONE ioctl; it
// always declines so Clone falls through to Hardlink then Copy.
func reflink(from, to string) (bool, error) {
	return false, nil
}
