package channel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/channel"
)

func TestTakeNextFreeLowestIndex(t *testing.T) {
	r := channel.New(4)

	idx, ok := r.TakeNextFree(true)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = r.TakeNextFree(false)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	r.Destroy(0)

	idx, ok = r.TakeNextFree(true)
	require.True(t, ok)
	assert.Equal(t, 0, idx, "lowest free index must be reused before higher ones")
}

func TestTakeNextFreeExhausted(t *testing.T) {
	r := channel.New(2)
	_, ok := r.TakeNextFree(true)
	require.True(t, ok)
	_, ok = r.TakeNextFree(true)
	require.True(t, ok)

	_, ok = r.TakeNextFree(true)
	assert.False(t, ok, "registry with no free slots must report failure")
}

func TestDestroyFreesSlot(t *testing.T) {
	r := channel.New(2)
	idx, _ := r.TakeNextFree(true)
	assert.True(t, r.Enabled(idx))

	r.Destroy(idx)
	assert.False(t, r.Enabled(idx))
	assert.Equal(t, channel.CodecNone, r.CodecOf(idx))
}

func TestEnabledNeverDeliversToDisabledSlot(t *testing.T) {
	r := channel.New(4)
	for i := 0; i < 4; i++ {
		assert.False(t, r.Enabled(i))
	}
	idx, _ := r.TakeNextFree(true)
	for i := 0; i < 4; i++ {
		if i == idx {
			assert.True(t, r.Enabled(i))
		} else {
			assert.False(t, r.Enabled(i))
		}
	}
}
