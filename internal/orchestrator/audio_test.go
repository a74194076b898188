package orchestrator

import (
	"testing"
	"time"
)

func TestAudioQueue_PushAndDrain(t *testing.T) {
	q := newAudioQueue()
	q.push([]byte{1})
	q.push([]byte{2})
	q.push([]byte{3})

	batch := q.drainBatch()
	if len(batch) != 3 {
		t.Fatalf("len(batch) = %d, want 3", len(batch))
	}
	if batch[0][0] != 1 || batch[1][0] != 2 || batch[2][0] != 3 {
		t.Errorf("batch = %v, want [[1] [2] [3]]", batch)
	}
}

func TestAudioQueue_DrainBatchCapsSize(t *testing.T) {
	q := newAudioQueue()
	for i := 0; i < audioDrainBatch+3; i++ {
		q.push([]byte{byte(i)})
	}

	first := q.drainBatch()
	if len(first) != audioDrainBatch {
		t.Fatalf("len(first) = %d, want %d", len(first), audioDrainBatch)
	}
	second := q.drainBatch()
	if len(second) != 3 {
		t.Fatalf("len(second) = %d, want 3", len(second))
	}
}

func TestAudioQueue_DropsOldestAtCapacity(t *testing.T) {
	q := newAudioQueue()
	for i := 0; i < audioQueueCapacity+10; i++ {
		q.push([]byte{byte(i)})
	}
	if len(q.items) != audioQueueCapacity {
		t.Fatalf("len(q.items) = %d, want %d", len(q.items), audioQueueCapacity)
	}
	if q.items[0][0] != byte(10) {
		t.Errorf("oldest surviving chunk = %d, want %d (first 10 dropped)", q.items[0][0], 10)
	}
}

func TestAudioQueue_WaitBlocksUntilPush(t *testing.T) {
	q := newAudioQueue()
	done := make(chan bool, 1)
	go func() {
		done <- q.wait()
	}()

	select {
	case <-done:
		t.Fatal("wait() returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.push([]byte{9})

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("wait() = false after push, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("wait() did not unblock after push")
	}
}

func TestAudioQueue_StopUnblocksWait(t *testing.T) {
	q := newAudioQueue()
	done := make(chan bool, 1)
	go func() {
		done <- q.wait()
	}()

	time.Sleep(20 * time.Millisecond)
	q.stop()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("wait() = true after stop with nothing queued, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("stop() did not unblock wait()")
	}
}

func TestAudioQueue_DrainBatchEmptyReturnsNil(t *testing.T) {
	q := newAudioQueue()
	if batch := q.drainBatch(); batch != nil {
		t.Errorf("drainBatch() on empty queue = %v, want nil", batch)
	}
}
