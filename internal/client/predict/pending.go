package predict

import "tankarena.gg/internal/protocol"

// PendingInput is a command sent to the server and not yet acknowledged.
type PendingInput struct {
	Cmd      protocol.Command
	Sequence uint64
	SentAt   int64 // network clock, ms
	// Applied records whether the local prediction accepted the command.
	// Rejected inputs still wait for their ack but are never replayed.
	Applied bool
}

// PendingQueue holds unacknowledged inputs in ascending sequence order.
type PendingQueue struct {
	items []PendingInput
}

func (q *PendingQueue) Push(in PendingInput) { q.items = append(q.items, in) }

func (q *PendingQueue) Len() int { return len(q.items) }

// Items returns the queue in sequence order. The slice must not be modified.
func (q *PendingQueue) Items() []PendingInput { return q.items }

// Find returns the pending input with sequence seq.
func (q *PendingQueue) Find(seq uint64) (PendingInput, bool) {
	for _, in := range q.items {
		if in.Sequence == seq {
			return in, true
		}
	}
	return PendingInput{}, false
}

// Ack drops every input with sequence <= seq and returns how many went.
func (q *PendingQueue) Ack(seq uint64) int {
	n := 0
	for n < len(q.items) && q.items[n].Sequence <= seq {
		n++
	}
	q.drop(n)
	return n
}

// PruneBefore drops inputs sent before cutoffMs; the server will never
// acknowledge them.
func (q *PendingQueue) PruneBefore(cutoffMs int64) int {
	n := 0
	for n < len(q.items) && q.items[n].SentAt < cutoffMs {
		n++
	}
	q.drop(n)
	return n
}

func (q *PendingQueue) Reset() { q.items = q.items[:0] }

func (q *PendingQueue) drop(n int) {
	if n == 0 {
		return
	}
	q.items = append(q.items[:0], q.items[n:]...)
}
