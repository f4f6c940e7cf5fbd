package matchbox

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPostThenDeliver(t *testing.T) {
	b := New()
	ch := b.Post(7)

	select {
	case <-ch:
		t.Fatal("receive satisfied before anything arrived")
	default:
	}

	b.Deliver(Arrival{Tag: 7, Data: []byte("hello")})

	select {
	case a := <-ch:
		if string(a.Data) != "hello" {
			t.Fatalf("Data = %q, want %q", a.Data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("posted receive never satisfied")
	}
}

func TestDeliverThenPost(t *testing.T) {
	b := New()
	b.Deliver(Arrival{Tag: 3, Data: []byte("early")})

	a := <-b.Post(3)
	if string(a.Data) != "early" {
		t.Fatalf("Data = %q, want %q", a.Data, "early")
	}
}

func TestTagsDoNotCross(t *testing.T) {
	b := New()
	ch1 := b.Post(1)
	b.Deliver(Arrival{Tag: 2, Data: []byte("two")})

	select {
	case <-ch1:
		t.Fatal("tag 1 receive claimed a tag 2 arrival")
	default:
	}

	if a := <-b.Post(2); string(a.Data) != "two" {
		t.Fatalf("Data = %q, want %q", a.Data, "two")
	}
}

func TestFIFOPerTag(t *testing.T) {
	b := New()
	b.Deliver(Arrival{Tag: 9, Data: []byte("first")})
	b.Deliver(Arrival{Tag: 9, Data: []byte("second")})

	if a := <-b.Post(9); string(a.Data) != "first" {
		t.Fatalf("first claim = %q, want %q", a.Data, "first")
	}
	if a := <-b.Post(9); string(a.Data) != "second" {
		t.Fatalf("second claim = %q, want %q", a.Data, "second")
	}
}

func TestBroadcastWakesAllWaiters(t *testing.T) {
	b := New()
	chans := []<-chan Arrival{b.Post(1), b.Post(2), b.Post(2)}

	cause := errors.New("connection reset")
	b.Broadcast(cause)

	for i, ch := range chans {
		select {
		case a := <-ch:
			if a.Err == nil {
				t.Fatalf("waiter %d woke without an error", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never woke after Broadcast", i)
		}
	}
}

func TestAnyBoxPeekDoesNotConsume(t *testing.T) {
	b := NewAnyBox()
	if _, ok := b.Peek(); ok {
		t.Fatal("Peek on empty box reported an arrival")
	}

	b.Deliver(AnyArrival{Tag: 5, Data: []byte("probe me")})

	a1, ok := b.Peek()
	if !ok {
		t.Fatal("Peek missed a queued arrival")
	}
	a2, ok := b.Peek()
	if !ok || string(a2.Data) != string(a1.Data) {
		t.Fatal("second Peek did not see the same arrival")
	}

	b.PopFront()
	if _, ok := b.Peek(); ok {
		t.Fatal("arrival still visible after PopFront")
	}
}

func TestAnyBoxConcurrentDeliver(t *testing.T) {
	b := NewAnyBox()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tag uint32) {
			defer wg.Done()
			b.Deliver(AnyArrival{Tag: tag})
		}(uint32(i))
	}
	wg.Wait()

	seen := 0
	for {
		if _, ok := b.Peek(); !ok {
			break
		}
		b.PopFront()
		seen++
	}
	if seen != n {
		t.Fatalf("drained %d arrivals, want %d", seen, n)
	}
}
