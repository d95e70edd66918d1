package analysis

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingDispatcher records dispatched paths in order.
type recordingDispatcher struct {
	mu    sync.Mutex
	paths []string
}

func (d *recordingDispatcher) Dispatch(path string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = append(d.paths, path)
	return 2, true
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.paths))
	copy(out, d.paths)
	return out
}

func newTestQueue(d Dispatcher, s *Scheduler, debounce, drain, backoff, chunkDelay time.Duration, chunkSize int) *BatchQueue {
	return NewBatchQueue(BatchQueueConfig{
		Scheduler:  s,
		Dispatcher: d,
		Debounce:   debounce,
		Drain:      drain,
		Backoff:    backoff,
		ChunkDelay: chunkDelay,
		ChunkSize:  chunkSize,
	})
}

// TestBatchQueue_DebounceCoalesces verifies rapid additions are absorbed
// into one debounced drain, FIFO, one path per fire.
func TestBatchQueue_DebounceCoalesces(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(SchedulerConfig{Concurrency: 4})
	q := newTestQueue(d, s, 40*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond, time.Second, 100)
	defer q.Stop()

	q.Add([]string{"/a.pdf"})
	q.Add([]string{"/b.pdf"})
	q.Add([]string{"/c.pdf"})

	// Inside the quiet period nothing may be dispatched.
	time.Sleep(20 * time.Millisecond)
	if got := d.dispatched(); len(got) != 0 {
		t.Fatalf("dispatched %v before debounce elapsed", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(d.dispatched()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := d.dispatched()
	want := []string{"/a.pdf", "/b.pdf", "/c.pdf"}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatch order %v, want %v", got, want)
			break
		}
	}
}

// TestBatchQueue_NoDuplicateDispatch verifies re-adding a pending path
// does not dispatch it twice.
func TestBatchQueue_NoDuplicateDispatch(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(SchedulerConfig{Concurrency: 4})
	q := newTestQueue(d, s, 20*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond, time.Second, 100)
	defer q.Stop()

	q.Add([]string{"/a.pdf", "/b.pdf"})
	q.Add([]string{"/a.pdf"}) // duplicate while pending

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(d.dispatched()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // would-be duplicate window

	seen := map[string]int{}
	for _, p := range d.dispatched() {
		seen[p]++
	}
	for p, n := range seen {
		if n > 1 {
			t.Errorf("%s dispatched %d times", p, n)
		}
	}
}

// TestBatchQueue_BacksOffWithoutCapacity verifies no path is dequeued
// while the scheduler has no capacity, and draining resumes afterwards.
func TestBatchQueue_BacksOffWithoutCapacity(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(SchedulerConfig{Concurrency: 1})
	q := newTestQueue(d, s, 10*time.Millisecond, 10*time.Millisecond, 25*time.Millisecond, time.Second, 100)
	defer q.Stop()

	// Exhaust capacity before the queue fires.
	if _, ok := s.TryStart("/busy.pdf", KindThumbnail); !ok {
		t.Fatal("failed to occupy token")
	}

	q.Add([]string{"/a.pdf"})

	time.Sleep(60 * time.Millisecond)
	if got := d.dispatched(); len(got) != 0 {
		t.Fatalf("dispatched %v with no capacity", got)
	}
	if q.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", q.Pending())
	}

	s.Finish("/busy.pdf", KindThumbnail)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(d.dispatched()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("path never dispatched after capacity freed: %v", d.dispatched())
}

// TestBatchQueue_ChunkSplit verifies a large batch is admitted in waves:
// the first chunk immediately, the remainders after the chunk delay.
func TestBatchQueue_ChunkSplit(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(SchedulerConfig{Concurrency: 4})
	// Debounce far in the future so pending admission is observable
	// without any draining.
	q := newTestQueue(d, s, time.Hour, time.Hour, time.Hour, 60*time.Millisecond, 10)
	defer q.Stop()

	paths := make([]string, 25)
	for i := range paths {
		paths[i] = fmt.Sprintf("/doc-%02d.pdf", i)
	}
	q.Add(paths)

	if got := q.Pending(); got != 10 {
		t.Fatalf("first wave pending = %d, want 10", got)
	}

	waitPending := func(want int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if q.Pending() == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("pending = %d, want %d", q.Pending(), want)
	}

	waitPending(20) // second wave of 10
	waitPending(25) // final wave of 5
}

// TestBatchQueue_RequeuesIncompleteDispatch verifies a capacity-starved
// dispatch puts the path back at the head for a later retry.
func TestBatchQueue_RequeuesIncompleteDispatch(t *testing.T) {
	d := &flakyDispatcher{failures: 2}
	s := NewScheduler(SchedulerConfig{Concurrency: 4})
	q := newTestQueue(d, s, 10*time.Millisecond, 10*time.Millisecond, 15*time.Millisecond, time.Second, 100)
	defer q.Stop()

	q.Add([]string{"/a.pdf"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.calls() == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dispatch retried %d times, want 3", d.calls())
}

// TestBatchQueue_StopClearsPending verifies Stop drops queued work and
// ignores later additions.
func TestBatchQueue_StopClearsPending(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(SchedulerConfig{Concurrency: 4})
	q := newTestQueue(d, s, 20*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond, time.Second, 100)

	q.Add([]string{"/a.pdf", "/b.pdf"})
	q.Stop()

	if q.Pending() != 0 {
		t.Errorf("pending = %d after Stop", q.Pending())
	}

	q.Add([]string{"/c.pdf"})
	time.Sleep(80 * time.Millisecond)
	if got := d.dispatched(); len(got) != 0 {
		t.Errorf("dispatched %v after Stop", got)
	}
}

// flakyDispatcher reports incomplete for the first N calls.
type flakyDispatcher struct {
	mu       sync.Mutex
	failures int
	n        int
}

func (d *flakyDispatcher) Dispatch(path string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return 0, d.n > d.failures
}

func (d *flakyDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}
