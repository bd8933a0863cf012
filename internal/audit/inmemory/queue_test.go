package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiscaldata/invoice-agent/internal/audit"
)

func waitForStatus(t *testing.T, store *Store, entryID string, want audit.EntryStatus) *audit.QuestionLog {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := store.Get(context.Background(), entryID)
		if err == nil && entry.Status == want {
			return entry
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("entry %s never reached status %q", entryID, want)
	return nil
}

func TestQueuePublishDefaults(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	entry := &audit.QuestionLog{
		SessionID: "s1",
		Question:  "Qual o fornecedor?",
		Answer:    "ACME",
	}
	if err := queue.Publish(context.Background(), entry); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if entry.EntryID == "" {
		t.Error("Publish should assign an entry ID")
	}
	if entry.Status != audit.EntryStatusPending {
		t.Errorf("status = %q, want %q", entry.Status, audit.EntryStatusPending)
	}
	if entry.AskedAt.IsZero() {
		t.Error("Publish should stamp AskedAt")
	}

	// The entry is persisted before the worker picks it up.
	if _, err := store.Get(context.Background(), entry.EntryID); err != nil {
		t.Errorf("entry should be in the store right after Publish: %v", err)
	}
}

func TestQueueProcessing(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	var mu sync.Mutex
	var handled []string
	handler := func(ctx context.Context, entry *audit.QuestionLog) error {
		mu.Lock()
		handled = append(handled, entry.Question)
		mu.Unlock()
		return nil
	}

	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	entry := &audit.QuestionLog{SessionID: "s1", Question: "q1"}
	if err := queue.Publish(context.Background(), entry); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := waitForStatus(t, store, entry.EntryID, audit.EntryStatusWritten)
	if got.SinkError != "" {
		t.Errorf("SinkError = %q, want empty", got.SinkError)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != "q1" {
		t.Errorf("handled = %v, want [q1]", handled)
	}
}

func TestQueueSinkFailure(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	handler := func(ctx context.Context, entry *audit.QuestionLog) error {
		return errors.New("sink down")
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	entry := &audit.QuestionLog{SessionID: "s1", Question: "q1"}
	if err := queue.Publish(context.Background(), entry); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := waitForStatus(t, store, entry.EntryID, audit.EntryStatusFailed)
	if got.SinkError != "sink down" {
		t.Errorf("SinkError = %q, want %q", got.SinkError, "sink down")
	}
}

func TestQueuePublishAfterClose(t *testing.T) {
	queue := NewQueue(10, NewStore())
	if err := queue.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := queue.Publish(context.Background(), &audit.QuestionLog{Question: "q"})
	if err == nil {
		t.Fatal("Publish after Close should fail")
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	base := time.Now()
	entries := []*audit.QuestionLog{
		{EntryID: "e1", SessionID: "s1", Status: audit.EntryStatusWritten, AskedAt: base},
		{EntryID: "e2", SessionID: "s1", Status: audit.EntryStatusFailed, AskedAt: base.Add(time.Second)},
		{EntryID: "e3", SessionID: "s2", Status: audit.EntryStatusWritten, AskedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) failed: %v", e.EntryID, err)
		}
	}

	tests := []struct {
		name    string
		filter  audit.Filter
		wantIDs []string
	}{
		{"all newest first", audit.Filter{}, []string{"e3", "e2", "e1"}},
		{"by session", audit.Filter{SessionID: "s1"}, []string{"e2", "e1"}},
		{"by status", audit.Filter{Status: audit.EntryStatusWritten}, []string{"e3", "e1"}},
		{"limit", audit.Filter{Limit: 1}, []string{"e3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List returned %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].EntryID != want {
					t.Errorf("entry[%d] = %s, want %s", i, got[i].EntryID, want)
				}
			}
		})
	}
}

func TestStoreSaveRequiresID(t *testing.T) {
	store := NewStore()
	if err := store.Save(context.Background(), &audit.QuestionLog{}); err == nil {
		t.Fatal("Save without an entry ID should fail")
	}
}

func TestStoreCopiesEntries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	entry := &audit.QuestionLog{EntryID: "e1", Question: "original"}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entry.Question = "mutated"

	got, err := store.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Question != "original" {
		t.Errorf("stored entry changed after external mutation: %q", got.Question)
	}
}
