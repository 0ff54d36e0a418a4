package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

func stamped(ts time.Duration) audio.AudioFrame {
	return audio.AudioFrame{Samples: []float32{0}, SampleRate: testRate, Timestamp: ts}
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()
	q := NewQueue(4, DropOldest)
	for i := range 3 {
		if !q.Enqueue(stamped(time.Duration(i))) {
			t.Fatalf("Enqueue(%d) rejected", i)
		}
	}
	for i := range 3 {
		f, err := q.Dequeue(time.Second)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if f.Timestamp != time.Duration(i) {
			t.Errorf("frame %d: got timestamp %v", i, f.Timestamp)
		}
	}
}

func TestQueue_DropOldest(t *testing.T) {
	t.Parallel()
	q := NewQueue(2, DropOldest)
	for i := range 4 {
		if !q.Enqueue(stamped(time.Duration(i))) {
			t.Fatalf("Enqueue(%d) rejected under drop-oldest", i)
		}
	}
	if got := q.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	for _, want := range []time.Duration{2, 3} {
		f, err := q.Dequeue(time.Second)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if f.Timestamp != want {
			t.Errorf("got %v, want %v", f.Timestamp, want)
		}
	}
}

func TestQueue_DropNewest(t *testing.T) {
	t.Parallel()
	q := NewQueue(2, DropNewest)
	q.Enqueue(stamped(0))
	q.Enqueue(stamped(1))
	if q.Enqueue(stamped(2)) {
		t.Error("Enqueue on full queue accepted under drop-newest")
	}
	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	f, _ := q.Dequeue(time.Second)
	if f.Timestamp != 0 {
		t.Errorf("head = %v, want 0", f.Timestamp)
	}
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	t.Parallel()
	for _, p := range []DropPolicy{DropOldest, DropNewest} {
		q := NewQueue(1, p)
		done := make(chan struct{})
		go func() {
			for i := range 1000 {
				q.Enqueue(stamped(time.Duration(i)))
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: Enqueue blocked on a full queue", p)
		}
		if q.Len() != 1 {
			t.Errorf("%s: Len() = %d, want 1", p, q.Len())
		}
	}
}

func TestQueue_DequeueTimeout(t *testing.T) {
	t.Parallel()
	q := NewQueue(1, DropOldest)
	start := time.Now()
	_, err := q.Dequeue(20 * time.Millisecond)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("err = %v, want ErrQueueTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Dequeue returned before the timeout")
	}
}

func TestQueue_CloseDrainsThenFails(t *testing.T) {
	t.Parallel()
	q := NewQueue(2, DropOldest)
	q.Enqueue(stamped(7))
	q.Close()
	q.Close()

	if q.Enqueue(stamped(8)) {
		t.Error("Enqueue after Close accepted")
	}
	f, err := q.Dequeue(time.Second)
	if err != nil || f.Timestamp != 7 {
		t.Fatalf("Dequeue = (%v, %v), want buffered frame", f.Timestamp, err)
	}
	if _, err := q.Dequeue(time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_CloseWakesDequeue(t *testing.T) {
	t.Parallel()
	q := NewQueue(1, DropOldest)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(time.Minute)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("err = %v, want ErrQueueClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake on Close")
	}
}

func TestQueue_PushCopiesAndStamps(t *testing.T) {
	t.Parallel()
	q := NewQueue(4, DropOldest)
	buf := make([]float32, 480)
	buf[0] = 0.5
	q.Push(buf, testRate)
	buf[0] = -1
	q.Push(buf, testRate)

	first, _ := q.Dequeue(time.Second)
	second, _ := q.Dequeue(time.Second)
	if first.Samples[0] != 0.5 {
		t.Errorf("Push aliased the caller's buffer: got %v", first.Samples[0])
	}
	if first.Timestamp != 0 {
		t.Errorf("first timestamp = %v, want 0", first.Timestamp)
	}
	if second.Timestamp != 10*time.Millisecond {
		t.Errorf("second timestamp = %v, want 10ms", second.Timestamp)
	}
}

func TestQueue_PushTimestampsAdvanceAcrossDrops(t *testing.T) {
	t.Parallel()
	q := NewQueue(1, DropOldest)
	for range 3 {
		q.Push(make([]float32, 480), testRate)
	}
	f, _ := q.Dequeue(time.Second)
	if f.Timestamp != 20*time.Millisecond {
		t.Errorf("timestamp = %v, want 20ms", f.Timestamp)
	}
}

func TestQueue_PushAfterCloseIsNoop(t *testing.T) {
	t.Parallel()
	q := NewQueue(1, DropOldest)
	q.Close()
	q.Push([]float32{1}, testRate)
	if q.Len() != 0 {
		t.Error("Push after Close enqueued a frame")
	}
}
