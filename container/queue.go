package container

import (
	"container/list"
)

// Queue is a FIFO backed by container/list that can also remove an
// element by position, which the link simulator uses to reorder datagrams.
type Queue[T any] struct {
	list *list.List
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.list = list.New()
	return q
}

func (q *Queue[T]) Enqueue(value T) {
	q.list.PushBack(value)
}

// At returns the element at position index counted from the head.
func (q *Queue[T]) At(index int) (value T, ok bool) {
	elem := q.element(index)
	if elem == nil {
		return value, false
	}
	return elem.Value.(T), true
}

// RemoveAt removes and returns the element at position index.
func (q *Queue[T]) RemoveAt(index int) (value T, ok bool) {
	elem := q.element(index)
	if elem == nil {
		return value, false
	}
	q.list.Remove(elem)
	return elem.Value.(T), true
}

func (q *Queue[T]) element(index int) *list.Element {
	if index < 0 || index >= q.list.Len() {
		return nil
	}
	elem := q.list.Front()
	for ; index > 0; index-- {
		elem = elem.Next()
	}
	return elem
}

func (q *Queue[T]) Len() int {
	return q.list.Len()
}
