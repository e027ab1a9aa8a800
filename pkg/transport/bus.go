// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Bus is an in-memory broadcast medium. A payload sent on one attached link
// is delivered to every other attached link, each independently subject to
// the drop rate.
type Bus struct {
	mu       sync.Mutex
	links    []*BusLink
	dropRate float64
	rng      *rand.Rand

	delivered uint64
	dropped   uint64
}

// NewBus creates a bus that drops each delivery with probability dropRate.
// The seed makes the loss pattern reproducible.
func NewBus(dropRate float64, seed int64) *Bus {
	if dropRate < 0 {
		dropRate = 0
	}
	if dropRate > 1 {
		dropRate = 1
	}
	return &Bus{
		dropRate: dropRate,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Attach adds a participant to the bus
func (b *Bus) Attach(name string) *BusLink {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := &BusLink{
		bus:   b,
		name:  name,
		queue: make(chan received, 64),
		done:  make(chan struct{}),
	}
	b.links = append(b.links, l)
	return l
}

// Stats returns the number of delivered and dropped payloads
func (b *Bus) Stats() (delivered, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered, b.dropped
}

func (b *Bus) broadcast(from *BusLink, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range b.links {
		if l == from {
			continue
		}
		if b.dropRate > 0 && b.rng.Float64() < b.dropRate {
			b.dropped++
			continue
		}
		select {
		case <-l.done:
			continue
		default:
		}
		select {
		case l.queue <- received{payload: payload}:
			b.delivered++
		default:
			b.dropped++
		}
	}
}

func (b *Bus) detach(l *BusLink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, other := range b.links {
		if other == l {
			b.links = append(b.links[:i], b.links[i+1:]...)
			return
		}
	}
}

// BusLink is one participant on a Bus
type BusLink struct {
	bus       *Bus
	name      string
	queue     chan received
	done      chan struct{}
	closeOnce sync.Once
}

// Receive returns the next payload sent by another participant
func (l *BusLink) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrClosed
	case r := <-l.queue:
		return r.payload, r.err
	}
}

// Send broadcasts a payload to every other participant
func (l *BusLink) Send(payload string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	l.bus.broadcast(l, payload)
	return nil
}

// Close detaches the link from the bus
func (l *BusLink) Close() error {
	l.closeOnce.Do(func() {
		l.bus.detach(l)
		close(l.done)
	})
	return nil
}

// Describe returns a human-readable link description
func (l *BusLink) Describe() string {
	return fmt.Sprintf("Bus: %s", l.name)
}
