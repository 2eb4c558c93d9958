package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_EmptyQueue(t *testing.T) {
	q := NewQueue[int]()
	assert.Zero(t, q.Len())
	_, ok := q.At(0)
	assert.False(t, ok)
	_, ok = q.RemoveAt(0)
	assert.False(t, ok)
}

func TestQueue_KeepsOrder(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(3)
	q.Enqueue(5)
	q.Enqueue(2)
	assert.Equal(t, 3, q.Len())

	for _, expected := range []int{3, 5, 2} {
		actual, ok := q.RemoveAt(0)
		assert.True(t, ok)
		assert.Equal(t, expected, actual)
	}
	assert.Zero(t, q.Len())
}

func TestQueue_RemoveAt(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	v, ok := q.At(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = q.RemoveAt(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, q.Len())

	_, ok = q.RemoveAt(5)
	assert.False(t, ok)
	_, ok = q.At(-1)
	assert.False(t, ok)

	head, _ := q.At(0)
	assert.Equal(t, "a", head)
	tail, _ := q.At(1)
	assert.Equal(t, "c", tail)
}
