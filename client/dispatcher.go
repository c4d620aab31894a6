/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package client

import (
	"sync"
	"sync/atomic"
)

// dispatcher runs the callbacks given to the client one at a time, in the
// order they were raised, on a goroutine of its own so that they may call
// the client.
type dispatcher struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// dispatch schedules fn. It is dropped once the dispatcher is closed.
func (d *dispatcher) dispatch(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)

	for range d.wake {
		for {
			d.mu.Lock()
			batch := d.pending
			d.pending = nil
			closed := d.closed
			d.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
	}
}

// close stops accepting callbacks. The ones already scheduled still run.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// observer delivers the events of one listener through the dispatcher
// until it is muted.
type observer[T any] struct {
	dispatcher *dispatcher
	muted      atomic.Bool

	onNext  func(T)
	onError func(error)
}

func newObserver[T any](d *dispatcher, onNext func(T), onError func(error)) *observer[T] {
	return &observer[T]{dispatcher: d, onNext: onNext, onError: onError}
}

func (o *observer[T]) next(v T) {
	o.dispatcher.dispatch(func() {
		if !o.muted.Load() && o.onNext != nil {
			o.onNext(v)
		}
	})
}

// fail delivers err and mutes the observer, as listeners end with their
// first error.
func (o *observer[T]) fail(err error) {
	o.dispatcher.dispatch(func() {
		if o.muted.Swap(true) || o.onError == nil {
			return
		}
		o.onError(err)
	})
}

func (o *observer[T]) mute() {
	o.muted.Store(true)
}
