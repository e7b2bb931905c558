package route

import "container/heap"

type pqItem struct {
	node int
	pathState
}

// pqueue is a min-heap over path states, ordered by pathState.better.
type pqueue []pqItem

func (q pqueue) Len() int           { return len(q) }
func (q pqueue) Less(i, j int) bool { return q[i].pathState.better(q[j].pathState) }
func (q pqueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pqueue) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *pqueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func (q *pqueue) push(it pqItem) { heap.Push(q, it) }

func (q *pqueue) pop() pqItem { return heap.Pop(q).(pqItem) }
