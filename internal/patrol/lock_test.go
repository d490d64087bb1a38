//go:build unix

package patrol

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_ExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "patrol.lock")

	first, err := AcquireRunLock(path)
	require.NoError(t, err)

	_, err = AcquireRunLock(path)
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	again, err := AcquireRunLock(path)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}
