//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package phys

// mapAnonymous allocates from the heap when mmap is not available
func mapAnonymous(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
