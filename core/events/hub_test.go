package events

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logsvc "github.com/trezcool/appgen/services/logger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func receive(t *testing.T, sub *Subscription, n int) []Event {
	t.Helper()
	got := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatalf("received %d events, want %d", len(got), n)
		}
	}
	return got
}

func TestHub_OrderAndFanOut(t *testing.T) {
	hub := NewHub(16, logsvc.NewMemoryLogger())
	defer hub.Close()

	a := hub.Subscribe(Filter{})
	b := hub.Subscribe(Filter{})
	only2 := hub.Subscribe(Filter{JobID: "job-2"})

	hub.Publish(Started("job-1", epoch))
	hub.Publish(Started("job-2", epoch))
	for i := 1; i <= 5; i++ {
		hub.Publish(Progress("job-1", i*10, "step "+strconv.Itoa(i), epoch))
	}
	hub.Publish(Completed("job-1", "https://dl.test/1.apk", epoch))

	for _, sub := range []*Subscription{a, b} {
		got := receive(t, sub, 8)
		assert.Equal(t, TypeStarted, got[0].Type)
		assert.Equal(t, "job-2", got[1].JobID)
		for i := 2; i < 7; i++ {
			assert.Equal(t, (i-1)*10, got[i].Percent)
		}
		assert.Equal(t, TypeCompleted, got[7].Type)
	}

	got := receive(t, only2, 1)
	assert.Equal(t, "job-2", got[0].JobID)
	select {
	case e := <-only2.C():
		t.Fatalf("filtered subscription received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NoReplay(t *testing.T) {
	hub := NewHub(4, logsvc.NewMemoryLogger())
	defer hub.Close()

	hub.Publish(Completed("job-1", "https://dl.test/1.apk", epoch))

	late := hub.Subscribe(Filter{JobID: "job-1"})
	select {
	case e := <-late.C():
		t.Fatalf("late subscriber received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func untilTerminal(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return got
			}
			got = append(got, e)
			if e.IsTerminal() {
				return got
			}
		case <-timeout:
			t.Errorf("terminal event not delivered after %d events", len(got))
			return got
		}
	}
}

func TestHub_SlowSubscriber(t *testing.T) {
	hub := NewHub(4, logsvc.NewMemoryLogger())
	defer hub.Close()

	slow := hub.Subscribe(Filter{})
	fast := hub.Subscribe(Filter{})

	var wg sync.WaitGroup
	wg.Add(1)
	var fastGot []Event
	go func() {
		defer wg.Done()
		fastGot = untilTerminal(t, fast)
	}()

	// the slow subscriber never reads while publishing: Publish must not block
	done := make(chan struct{})
	go func() {
		hub.Publish(Started("job-1", epoch))
		for i := 1; i <= 50; i++ {
			hub.Publish(Progress("job-1", i, "", epoch))
		}
		hub.Publish(Failed("job-1", 50, "boom", epoch))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	wg.Wait()
	require.NotEmpty(t, fastGot)
	assert.Equal(t, TypeFailed, fastGot[len(fastGot)-1].Type)

	slowGot := untilTerminal(t, slow)
	require.NotEmpty(t, slowGot)
	// one event held by the delivery goroutine plus the bounded queue
	assert.LessOrEqual(t, len(slowGot), 4+1)
	assert.Equal(t, TypeFailed, slowGot[len(slowGot)-1].Type)
	assert.Greater(t, hub.Dropped(), int64(0))

	// surviving events keep publish order
	for _, got := range [][]Event{fastGot, slowGot} {
		for i := 1; i < len(got)-1; i++ {
			assert.Less(t, got[i-1].Percent, got[i].Percent)
		}
	}
}

func TestSubscription_TerminalEventsNeverDropped(t *testing.T) {
	hub := NewHub(2, logsvc.NewMemoryLogger())
	sub := &Subscription{hub: hub, max: 2, notify: make(chan struct{}, 1)}

	sub.enqueue(Progress("a", 1, "", epoch))
	sub.enqueue(Completed("a", "", epoch))
	sub.enqueue(Failed("b", 0, "x", epoch)) // drops progress of a
	sub.enqueue(Completed("c", "", epoch))  // queue only holds terminal events: grows
	_, dropped := sub.enqueue(Progress("d", 1, "", epoch))

	assert.True(t, dropped)
	require.Len(t, sub.queue, 3)
	for _, e := range sub.queue {
		assert.True(t, e.IsTerminal())
	}
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub(4, logsvc.NewMemoryLogger())
	sub := hub.Subscribe(Filter{})
	require.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	_, ok := <-sub.C()
	assert.False(t, ok, "channel must be closed")

	hub.Close()
	closed := hub.Subscribe(Filter{})
	_, ok = <-closed.C()
	assert.False(t, ok, "subscribing to a closed hub returns a closed subscription")
	hub.Publish(Started("job-1", epoch))
}

func TestSubscription_Drain(t *testing.T) {
	hub := NewHub(8, logsvc.NewMemoryLogger())
	sub := hub.Subscribe(Filter{})

	hub.Publish(Started("a", epoch))
	hub.Publish(Progress("a", 50, "", epoch))
	hub.Publish(Completed("a", "/files/a.apk", epoch))
	first := receive(t, sub, 1)
	assert.Equal(t, TypeStarted, first[0].Type)

	// detaching every subscriber keeps what was queued for draining
	hub.Close()
	pending := sub.Drain()
	require.Len(t, pending, 2)
	assert.Equal(t, TypeProgress, pending[0].Type)
	assert.Equal(t, TypeCompleted, pending[1].Type)

	assert.Empty(t, sub.Drain())
	assert.Equal(t, 0, hub.Subscribers())
}
