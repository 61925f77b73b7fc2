package queue

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinOrder(t *testing.T) {
	pq := &PriorityQueue{}
	heap.Init(pq)

	for _, d := range []float32{0.5, 0.1, 0.9, 0.3} {
		heap.Push(pq, &PriorityQueueItem{ID: uint64(d * 10), Distance: d})
	}

	var got []float32
	for pq.Len() > 0 {
		item, _ := heap.Pop(pq).(*PriorityQueueItem)
		got = append(got, item.Distance)
	}

	assert.Equal(t, []float32{0.1, 0.3, 0.5, 0.9}, got)
}

func TestMaxOrder(t *testing.T) {
	pq := &PriorityQueue{Order: true}
	heap.Init(pq)

	for _, d := range []float32{0.5, 0.1, 0.9, 0.3} {
		heap.Push(pq, &PriorityQueueItem{Distance: d})
	}

	assert.Equal(t, float32(0.9), pq.Top().Distance)

	var got []float32
	for pq.Len() > 0 {
		item, _ := heap.Pop(pq).(*PriorityQueueItem)
		got = append(got, item.Distance)
	}

	assert.Equal(t, []float32{0.9, 0.5, 0.3, 0.1}, got)
}

func TestPopEmpty(t *testing.T) {
	pq := &PriorityQueue{}
	assert.Nil(t, pq.Pop())
	assert.Nil(t, pq.Top())
}
