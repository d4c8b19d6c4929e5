package hub

import (
	"sync"

	"github.com/cornelk/hashmap"
)

// Flag is an observable boolean. Subscribers receive the latest value; a slow
// subscriber only misses intermediate values, never the last one.
type Flag struct {
	mu    sync.Mutex
	value bool
	next  int
	subs  *hashmap.Map[int, chan bool]
}

// NewFlag creates a flag holding false.
func NewFlag() *Flag {
	return &Flag{subs: hashmap.New[int, chan bool]()}
}

// Get returns the current value.
func (f *Flag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set stores v and notifies subscribers when the value changed.
func (f *Flag) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == v {
		return
	}
	f.value = v
	f.subs.Range(func(_ int, ch chan bool) bool {
		publish(ch, v)
		return true
	})
}

// Subscribe returns a channel receiving the current value followed by every change,
// and a function that cancels the subscription and closes the channel.
func (f *Flag) Subscribe() (<-chan bool, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan bool, 1)
	ch <- f.value
	f.subs.Set(id, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.subs.Del(id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Flag) Subscribers() int {
	return f.subs.Len()
}

// publish replaces a pending unread value with v.
func publish(ch chan bool, v bool) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
