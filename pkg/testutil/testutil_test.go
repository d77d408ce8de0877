package testutil

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	seq := func(yield func(int, error) bool) {
		for i := 0; i < 3; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
	assert.Equal(t, []int{0, 1, 2}, Collect[int](t, iter.Seq2[int, error](seq)))
}

func TestDrain(t *testing.T) {
	ch := make(chan string, 2)
	ch <- "a"
	ch <- "b"
	close(ch)
	assert.Equal(t, []string{"a", "b"}, Drain(t, ch))
}

func TestContext(t *testing.T) {
	ctx := Context(t)
	_, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.NoError(t, ctx.Err())
}
