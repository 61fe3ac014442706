//go:build !unix

package mobi

// applyResourceLimits is a no-op on platforms without setrlimit; the
// parent's wall-clock timeout remains in force.
func applyResourceLimits(_, _ uint64) error {
	return nil
}
