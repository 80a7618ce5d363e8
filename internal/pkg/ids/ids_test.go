package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MonotonicAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		assert.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id %s", id)
		assert.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}
