//go:build unix

package mobi

import "golang.org/x/sys/unix"

// applyResourceLimits caps the worker's address space and CPU time
// before it touches untrusted input. Limits apply to this process only;
// the parent's wall-clock timeout covers what CPU limits cannot
// (I/O-bound stalls).
func applyResourceLimits(addressSpaceBytes, cpuSeconds uint64) error {
	if addressSpaceBytes > 0 {
		lim := &unix.Rlimit{Cur: addressSpaceBytes, Max: addressSpaceBytes}
		if err := unix.Setrlimit(unix.RLIMIT_AS, lim); err != nil {
			return err
		}
	}
	if cpuSeconds > 0 {
		lim := &unix.Rlimit{Cur: cpuSeconds, Max: cpuSeconds}
		if err := unix.Setrlimit(unix.RLIMIT_CPU, lim); err != nil {
			return err
		}
	}
	return nil
}
