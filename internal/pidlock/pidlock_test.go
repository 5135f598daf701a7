package pidlock

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/divinus-camerad-test.pid"

	lock, err := acquireAt(path)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, path, lock.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n")

	_, err = acquireAt(path)
	assert.Error(t, err)
}

func TestReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/divinus-camerad-test.pid"

	lock, err := acquireAt(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/divinus-camerad-test.pid"

	lock1, err := acquireAt(path)
	require.NoError(t, err)
	require.NoError(t, lock1.Release())

	lock2, err := acquireAt(path)
	require.NoError(t, err)
	defer lock2.Release()
}

func TestNilLockMethodsAreNoops(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
	assert.Equal(t, "", l.Path())
}
