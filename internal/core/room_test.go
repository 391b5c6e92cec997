package core

import (
	"fmt"
	"sync"
	"testing"
)

func drain(sub *Subscription) []string {
	var got []string
	for {
		select {
		case line := <-sub.C():
			got = append(got, line)
		default:
			return got
		}
	}
}

func TestBroadcastReachesSubscribersInOrder(t *testing.T) {
	room := NewRoom(0)
	a := room.Subscribe()
	b := room.Subscribe()

	room.Broadcast("one")
	room.Broadcast("two")
	room.Broadcast("three")

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		got := drain(sub)
		want := []string{"one", "two", "three"}
		if len(got) != len(want) {
			t.Fatalf("subscriber %s got %v", name, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("subscriber %s line %d = %q, expected %q", name, i, got[i], want[i])
			}
		}
	}
}

func TestLateAndDepartedSubscribersSeeNothing(t *testing.T) {
	room := NewRoom(0)

	early := room.Subscribe()
	room.Unsubscribe(early)
	room.Broadcast("missed by both")
	late := room.Subscribe()

	if got := drain(early); len(got) != 0 {
		t.Errorf("departed subscriber received %v", got)
	}
	if got := drain(late); len(got) != 0 {
		t.Errorf("late subscriber received %v", got)
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	room := NewRoom(0)
	room.Broadcast("into the void") // must not block or panic
}

func TestSlowSubscriberDropsOldestAndCountsSkips(t *testing.T) {
	room := NewRoom(2)
	sub := room.Subscribe()

	for i := 1; i <= 5; i++ {
		room.Broadcast(fmt.Sprintf("m%d", i))
	}

	if n := sub.TakeSkipped(); n != 3 {
		t.Fatalf("skipped = %d, expected 3", n)
	}
	if n := sub.TakeSkipped(); n != 0 {
		t.Fatalf("TakeSkipped did not reset, got %d", n)
	}

	got := drain(sub)
	if len(got) != 2 || got[0] != "m4" || got[1] != "m5" {
		t.Fatalf("backlog = %v, expected newest two lines", got)
	}
}

func TestMemberCounterPairing(t *testing.T) {
	room := NewRoom(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room.Increment()
			room.Decrement()
		}()
	}
	wg.Wait()

	if n := room.Members(); n != 0 {
		t.Fatalf("member count = %d after paired inc/dec, expected 0", n)
	}
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	room := NewRoom(0)
	sub := room.Subscribe()
	room.Close()

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed subscription channel")
	}

	// A subscription taken after close is born closed.
	if _, ok := <-room.Subscribe().C(); ok {
		t.Fatal("expected subscription on closed room to be closed")
	}

	room.Broadcast("ignored")
	room.Close() // idempotent
}

func benchmarkBroadcast(b *testing.B, subscribers int) {
	room := NewRoom(DefaultRoomCapacity)
	subs := make([]*Subscription, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		subs = append(subs, room.Subscribe())
	}

	// Drain everyone so backlog drops do not dominate the measurement.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			for {
				select {
				case <-s.C():
				case <-done:
					return
				}
			}
		}(sub)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		room.Broadcast("payload")
	}
	b.StopTimer()
	close(done)
	wg.Wait()
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
