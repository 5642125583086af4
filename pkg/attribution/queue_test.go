package attribution

import (
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSerialQueue_RunsInOrder(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Dispatch(func() { got = append(got, i) })
	}
	q.Flush()

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestSerialQueue_NeverConcurrent(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())
	defer q.Close()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Dispatch(func() {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	q.Flush()

	if maxSeen != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxSeen)
	}
}

func TestSerialQueue_RecoversPanics(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())
	defer q.Close()

	ran := false
	q.Dispatch(func() { panic("handler bug") })
	q.Dispatch(func() { ran = true })
	q.Flush()

	if !ran {
		t.Error("queue should keep running after a panic")
	}
}

func TestSerialQueue_DispatchFromTask(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())
	defer q.Close()

	done := make(chan struct{})
	q.Dispatch(func() {
		q.Dispatch(func() { close(done) })
	})
	<-done
}

func TestSerialQueue_CloseDrainsAndDrops(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())

	count := 0
	for i := 0; i < 10; i++ {
		q.Dispatch(func() { count++ })
	}
	q.Close()

	if count != 10 {
		t.Errorf("Close drained %d tasks, want 10", count)
	}

	q.Dispatch(func() { count++ })
	q.Flush()
	if count != 10 {
		t.Error("tasks dispatched after Close should be dropped")
	}
}

func TestSerialQueue_TryDispatch(t *testing.T) {
	t.Parallel()

	q := NewSerialQueue(discardLogger())

	ran := make(chan struct{})
	if !q.TryDispatch(func() { close(ran) }) {
		t.Fatal("open queue should accept work")
	}
	<-ran

	q.Close()
	if q.TryDispatch(func() {}) {
		t.Error("closed queue should refuse work")
	}
}
