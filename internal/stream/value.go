// Package stream provides a latest-value cell with conflating subscribers.
//
// A Value always has a current value. Subscribers receive the current value
// on subscription and every later change; a subscriber that falls behind
// only ever sees the newest value, never a backlog.
package stream

import (
	"context"
	"sync"
)

// Value holds the latest value of type T and fans changes out to
// subscribers. The zero value is not usable; call NewValue.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	equal  func(a, b T) bool
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewValue returns a Value holding initial. If equal is non-nil, Set and
// Update drop values equal to the current one.
func NewValue[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		cur:   initial,
		equal: equal,
		subs:  make(map[uint64]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set stores x and notifies subscribers. It returns false if x was dropped
// because it equals the current value or the Value is closed.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setLocked(x)
}

// Update replaces the current value with fn(current) under the lock, so
// concurrent read-modify-write cycles do not lose updates.
func (v *Value[T]) Update(fn func(T) T) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return v.cur, false
	}
	next := fn(v.cur)
	return next, v.setLocked(next)
}

func (v *Value[T]) setLocked(x T) bool {
	if v.closed {
		return false
	}
	if v.equal != nil && v.equal(v.cur, x) {
		return false
	}
	v.cur = x
	for _, ch := range v.subs {
		offer(ch, x)
	}
	return true
}

// offer replaces whatever is buffered in ch with x. Callers hold the lock,
// so they are the only sender and the send never blocks.
func offer[T any](ch chan T, x T) {
	select {
	case <-ch:
	default:
	}
	ch <- x
}

// Subscribe returns a channel that yields the current value immediately and
// then every later change. The returned cancel func is idempotent; it closes
// the channel. Subscribing to a closed Value returns a closed channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	ch <- v.cur

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Close closes every subscriber channel. Later calls to Set are no-ops.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

// Closed reports whether Close has been called.
func (v *Value[T]) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Map derives a stream from src: every value of src is passed through fn
// and emitted unless equal to the previous result. The derived channel is
// closed when ctx is done or src is closed.
func Map[S, T any](ctx context.Context, src *Value[S], fn func(S) T, equal func(a, b T) bool) <-chan T {
	in, cancel := src.Subscribe()
	first, ok := <-in
	if !ok {
		ch := make(chan T)
		close(ch)
		cancel()
		return ch
	}

	out := NewValue(fn(first), equal)
	ch, _ := out.Subscribe()
	go func() {
		defer out.Close()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					return
				}
				out.Set(fn(s))
			}
		}
	}()
	return ch
}
