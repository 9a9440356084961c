package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/storage"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnqueueDequeueOrder(t *testing.T) {
	t.Parallel()
	q := New(openDB(t))
	ctx := context.Background()

	runID := uuid.New()
	first, err := q.Enqueue(ctx, EnqueueRequest{
		Action:        ActionStart,
		ContainerName: "nmap_instance_1",
		Image:         "nmap:1.0",
		Environment:   map[string]string{"RUN_ID": runID.String()},
		RunID:         runID,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := q.Enqueue(ctx, EnqueueRequest{
		Action:        ActionStop,
		ContainerName: "nmap_instance_1",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task == nil || task.ID != first {
		t.Fatalf("expected first task, got %+v", task)
	}
	if task.Action != ActionStart || task.Image != "nmap:1.0" {
		t.Fatalf("task fields mismatch: %+v", task)
	}
	if task.Environment["RUN_ID"] != runID.String() {
		t.Fatalf("environment not preserved: %+v", task.Environment)
	}
	if task.Status != StatusTaken || task.TakenAt == nil {
		t.Fatalf("task not marked taken: %+v", task)
	}

	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task == nil || task.ID != second {
		t.Fatalf("expected second task, got %+v", task)
	}

	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue empty: %v", err)
	}
	if task != nil {
		t.Fatalf("expected empty queue, got %+v", task)
	}
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()
	q := New(openDB(t))
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, EnqueueRequest{Action: "restart", ContainerName: "x"}); err == nil {
		t.Fatal("expected invalid action to be rejected")
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{Action: ActionStart, ContainerName: ""}); err == nil {
		t.Fatal("expected empty container name to be rejected")
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{Action: ActionStart, ContainerName: "x"}); err == nil {
		t.Fatal("expected start without image to be rejected")
	}
	if _, err := q.Enqueue(ctx, EnqueueRequest{Action: ActionCleanup, ContainerName: "x"}); err != nil {
		t.Fatalf("cleanup without image should be fine: %v", err)
	}
}

func TestDeleteAndPending(t *testing.T) {
	t.Parallel()
	q := New(openDB(t))
	ctx := context.Background()

	id, err := q.Enqueue(ctx, EnqueueRequest{Action: ActionStop, ContainerName: "x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	n, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pending, got %d", n)
	}
	if err := q.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err = q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 pending, got %d", n)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()
	c := NewCounters(openDB(t))
	ctx := context.Background()
	nodeID := uuid.New()

	for want := 1; want <= 3; want++ {
		got, err := c.Next(ctx, nodeID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	if err := c.Reset(ctx, nodeID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := c.Next(ctx, nodeID)
	if err != nil {
		t.Fatalf("next after reset: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter restart at 1, got %d", got)
	}
}

func TestCountersConcurrentNext(t *testing.T) {
	t.Parallel()
	c := NewCounters(openDB(t))
	ctx := context.Background()
	nodeID := uuid.New()

	const n = 20
	values := make(chan int, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Next(ctx, nodeID)
			if err != nil {
				errs <- err
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent next: %v", err)
	}
	seen := make(map[int]bool, n)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate instance number %d", v)
		}
		seen[v] = true
	}
	for want := 1; want <= n; want++ {
		if !seen[want] {
			t.Fatalf("instance number %d never handed out", want)
		}
	}
}
