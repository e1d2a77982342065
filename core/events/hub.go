package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trezcool/appgen/core"
)

const DefaultBuffer = 64

// Filter restricts a subscription. The zero Filter matches every event.
type Filter struct {
	JobID string
}

func (f Filter) match(e Event) bool {
	return f.JobID == "" || f.JobID == e.JobID
}

// Hub is an in-process publish/subscribe channel.
// Subscribers get every matching event published after they subscribed, in publish order.
// Past events are never replayed: late observers must read the job store.
type Hub struct {
	buffer int
	log    core.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	dropped atomic.Int64
}

func NewHub(buffer int, log core.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		log:    log,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe attaches a new observer. The caller must Close the subscription when done.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		hub:    h,
		filter: filter,
		max:    h.buffer,
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.closeOnce.Do(func() { close(sub.done) })
		close(sub.out)
		return sub
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish queues `e` for every matching subscriber. It never blocks on subscribers.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.filter.match(e) {
			continue
		}
		if dropped, ok := sub.enqueue(e); ok {
			h.dropped.Add(1)
			h.log.Debug(fmt.Sprintf("events: slow subscriber, dropped %s event of job %s", dropped.Type, dropped.JobID))
		}
	}
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of events dropped for slow subscribers since start.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close detaches every subscriber. Publishing after Close is a no-op.
// Events still queued are only kept for subscribers that Drain.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Subscription is one observer's view of the hub, with its own bounded queue.
type Subscription struct {
	hub    *Hub
	filter Filter
	max    int

	mu    sync.Mutex
	queue []Event

	notify    chan struct{}
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// C returns the delivery channel. It is closed once the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close detaches the subscription and releases its delivery goroutine.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.stop()
}

// Drain closes the subscription and returns, in order, the events it had not delivered yet.
// It must not be called while another goroutine reads C.
func (s *Subscription) Drain() []Event {
	s.Close()

	var pending []Event
	for e := range s.out {
		pending = append(pending, e)
	}
	s.mu.Lock()
	pending = append(pending, s.queue...)
	s.queue = nil
	s.mu.Unlock()
	return pending
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// enqueue appends `e` to the queue. When the queue is full the oldest non-terminal
// event is dropped; terminal events are never dropped, even past capacity.
func (s *Subscription) enqueue(e Event) (dropped Event, ok bool) {
	s.mu.Lock()
	if len(s.queue) >= s.max {
		idx := -1
		for i, q := range s.queue {
			if !q.IsTerminal() {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0:
			dropped, ok = s.queue[idx], true
			s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		case !e.IsTerminal():
			// queue only holds terminal events
			s.mu.Unlock()
			return e, true
		}
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped, ok
}

func (s *Subscription) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return e, true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		e, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- e:
		case <-s.done:
			s.requeue(e)
			return
		}
	}
}

// requeue puts back an event taken by next but never delivered.
func (s *Subscription) requeue(e Event) {
	s.mu.Lock()
	s.queue = append([]Event{e}, s.queue...)
	s.mu.Unlock()
}
