package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireIsExclusive(t *testing.T) {
	lock, f, err := Create()
	require.NoError(t, err)
	defer f.Close()
	defer lock.Close()

	assert.True(t, lock.TryAcquire(), "first acquire should succeed uncontended")
	assert.False(t, lock.TryAcquire(), "second acquire should fail while held")

	lock.Release()
	assert.True(t, lock.TryAcquire(), "acquire should succeed again after release")
}

func TestOpenSharesPagesWithCreator(t *testing.T) {
	lock, f, err := Create()
	require.NoError(t, err)
	defer f.Close()
	defer lock.Close()

	require.True(t, lock.TryAcquire())

	mirror, err := Open(f)
	require.NoError(t, err)
	defer mirror.Close()

	assert.False(t, mirror.TryAcquire(), "mirrored mapping should observe the same held lock")

	lock.Release()
	assert.True(t, mirror.TryAcquire(), "mirrored mapping should observe the release")
}
