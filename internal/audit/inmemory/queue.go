package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fiscaldata/invoice-agent/internal/audit"
)

// Queue is an in-memory implementation of the audit publisher and consumer.
// It uses a channel for distribution and is safe for concurrent use. Suitable
// for single-instance deployments; a broker-backed queue can replace it later.
type Queue struct {
	entryChan chan *audit.QuestionLog
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     audit.Store
	closed    bool
}

// NewQueue creates a new in-memory audit queue. bufferSize determines how many
// entries can be queued before Publish blocks.
func NewQueue(bufferSize int, store audit.Store) *Queue {
	return &Queue{
		entryChan: make(chan *audit.QuestionLog, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, entry *audit.QuestionLog) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("audit queue is closed")
	}

	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = audit.EntryStatusPending
	}
	if entry.AskedAt.IsZero() {
		entry.AskedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save audit entry: %w", err)
		}
	}

	select {
	case q.entryChan <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("audit queue is closed")
	}
}

// Start implements the Consumer interface. A single worker drains the queue;
// entries are independent and ordering within a session is preserved.
func (q *Queue) Start(ctx context.Context, handler audit.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("audit queue is closed")
	}
	q.mu.RUnlock()

	q.wg.Add(1)
	go q.worker(ctx, handler)

	return nil
}

func (q *Queue) worker(ctx context.Context, handler audit.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case entry := <-q.entryChan:
			if entry == nil {
				return
			}
			q.processEntry(ctx, entry, handler)
		}
	}
}

func (q *Queue) processEntry(ctx context.Context, entry *audit.QuestionLog, handler audit.Handler) {
	err := handler(ctx, entry)
	if err != nil {
		entry.Status = audit.EntryStatusFailed
		entry.SinkError = err.Error()
	} else {
		entry.Status = audit.EntryStatusWritten
		entry.SinkError = ""
	}

	if q.store != nil {
		_ = q.store.Save(ctx, entry)
	}
}

// Stop implements the Consumer interface. It stops the queue and waits for
// in-flight entries to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ audit.Publisher = (*Queue)(nil)
var _ audit.Consumer = (*Queue)(nil)
