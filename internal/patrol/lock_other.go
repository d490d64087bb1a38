//go:build !unix

package patrol

import "github.com/rs/zerolog/log"

// RunLock is a no-op where flock is unavailable.
type RunLock struct{}

// AcquireRunLock always succeeds on this platform, so concurrent patrols
// on one tree are not prevented. The gap is logged on every run.
func AcquireRunLock(path string) (*RunLock, error) {
	log.Warn().Str("path", path).Msg("run lock unsupported on this platform; concurrent patrols on this tree are not prevented")
	return &RunLock{}, nil
}

// Release does nothing.
func (l *RunLock) Release() error { return nil }
