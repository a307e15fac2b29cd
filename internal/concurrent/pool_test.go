package concurrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolPreservesOrder(t *testing.T) {
	square := func(x int) int { return x * x }
	pool := NewWorkerPool(4, JobFunc[int, int](square))

	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	results := pool.Run(items)

	want := []int{1, 4, 9, 16, 25, 36, 49, 64, 81, 100}
	assert.Equal(t, want, results)
}

func TestWorkerPoolHandlesEmptyInput(t *testing.T) {
	pool := NewWorkerPool(2, JobFunc[int, int](func(x int) int { return x }))
	results := pool.Run(nil)
	assert.Empty(t, results)
}

func TestWorkerPoolClampsWorkerCount(t *testing.T) {
	pool := NewWorkerPool(0, JobFunc[int, int](func(x int) int { return x + 1 }))
	results := pool.Run([]int{1, 2, 3})
	assert.Equal(t, []int{2, 3, 4}, results)
}
