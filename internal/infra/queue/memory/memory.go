// Package memory provides an in-memory queue used by tests and local
// development. It models the broker semantics the worker depends on:
// at-least-once delivery, per-delivery receipt tokens, visibility timeouts,
// and receive-count bookkeeping.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// defaultVisibilityTimeout hides a delivered message from subsequent
// receives until it is deleted, requeued, or the timeout lapses.
const defaultVisibilityTimeout = 30 * time.Second

type entry struct {
	jobID        uuid.UUID
	ref          scanning.ObjectRef
	enqueueTime  time.Time
	receiveCount int

	// visibleAt gates delivery: zero means immediately visible.
	visibleAt time.Time

	// receiptToken is valid only while the entry is in flight.
	receiptToken string
}

// Queue implements scanning.Queue in memory.
type Queue struct {
	mu         sync.Mutex
	entries    []*entry
	visibility time.Duration
	tokenSeq   int

	now func() time.Time
}

// NewQueue creates an empty queue with the default visibility timeout.
func NewQueue() *Queue {
	return &Queue{visibility: defaultVisibilityTimeout, now: time.Now}
}

// Enqueue adds a scan message for the given job and object.
func (q *Queue) Enqueue(jobID uuid.UUID, ref scanning.ObjectRef) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &entry{
		jobID:       jobID,
		ref:         ref,
		enqueueTime: q.now().UTC(),
	})
}

// Len returns the number of messages still in the queue, visible or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Receive returns up to max visible messages. It returns immediately when
// messages are available and otherwise polls until wait elapses or ctx is
// canceled.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]scanning.ScanMessage, error) {
	deadline := q.now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if msgs := q.receiveVisible(max); len(msgs) > 0 {
			return msgs, nil
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *Queue) receiveVisible(max int) []scanning.ScanMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var msgs []scanning.ScanMessage
	for _, e := range q.entries {
		if len(msgs) >= max {
			break
		}
		if e.receiptToken != "" || now.Before(e.visibleAt) {
			continue
		}

		q.tokenSeq++
		e.receiptToken = fmt.Sprintf("receipt-%d", q.tokenSeq)
		e.receiveCount++
		e.visibleAt = now.Add(q.visibility)

		msgs = append(msgs, scanning.ScanMessage{
			JobID:        e.jobID,
			Ref:          e.ref,
			EnqueueTime:  e.enqueueTime,
			ReceiptToken: e.receiptToken,
			ReceiveCount: e.receiveCount,
		})
	}
	return msgs
}

// Delete acknowledges a delivery and removes the message.
func (q *Queue) Delete(ctx context.Context, receiptToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.receiptToken == receiptToken {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unknown receipt token %q", receiptToken)
}

// Requeue makes the delivery visible again after delay and invalidates its
// receipt token.
func (q *Queue) Requeue(ctx context.Context, receiptToken string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.receiptToken == receiptToken {
			e.receiptToken = ""
			e.visibleAt = q.now().Add(delay)
			return nil
		}
	}
	return fmt.Errorf("unknown receipt token %q", receiptToken)
}
