package notifier

import (
	"time"

	"github.com/go-futureme/internal/domain"
)

type pending struct {
	id      string
	fireAt  time.Time
	payload domain.NotificationPayload
	index   int
}

// queue is a min-heap on fireAt, ties broken by id.
type queue []*pending

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].fireAt.Equal(q[j].fireAt) {
		return q[i].fireAt.Before(q[j].fireAt)
	}
	return q[i].id < q[j].id
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	p := x.(*pending)
	p.index = len(*q)
	*q = append(*q, p)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*q = old[:n-1]
	return p
}

func (q queue) peek() *pending {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
