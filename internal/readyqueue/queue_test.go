package readyqueue

import "testing"

func TestFIFOOrder(t *testing.T) {
	q := New(4)
	q.Push(3)
	q.Push(1)
	q.Push(2)

	for _, want := range []int{3, 1, 2} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v; want %d, true", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop() on empty queue reported ok")
	}
}

func TestWraparound(t *testing.T) {
	q := New(3)
	q.Push(1)
	q.Push(2)
	q.Pop()
	q.Push(3)
	q.Push(4)

	var got []int
	for {
		tid, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, tid)
	}
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPushOnFullPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing onto a full queue")
		}
	}()
	q := New(1)
	q.Push(1)
	q.Push(2)
}

func TestContainsAndLen(t *testing.T) {
	q := New(4)
	if !q.Empty() {
		t.Fatal("new queue should be empty")
	}
	q.Push(5)
	q.Push(6)
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	if !q.Contains(6) || q.Contains(7) {
		t.Fatal("Contains returned wrong result")
	}
}
