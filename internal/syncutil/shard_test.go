package syncutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardIndex_StableAndInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("identity-%d", i)
		idx := ShardIndex(key, ShardCount)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, ShardCount)
		assert.Equal(t, idx, ShardIndex(key, ShardCount))
	}
}

func TestPerShard(t *testing.T) {
	assert.Equal(t, 0, PerShard(0, 256))
	assert.Equal(t, 1, PerShard(10, 256))
	assert.Equal(t, 1, PerShard(256, 256))
	assert.Equal(t, 2, PerShard(257, 256))
	assert.Equal(t, 391, PerShard(100000, 256))
}
