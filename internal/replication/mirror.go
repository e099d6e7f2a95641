// Package replication keeps the observer-side copy of zone state.
//
// Only the authoritative processor publishes; observers read snapshots and run
// the reduced client pass, which never writes owner or progress.
package replication

import (
	"sort"
	"sync"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// Mirror holds the latest snapshot per zone and fans updates out to subscribers.
type Mirror struct {
	mu        sync.RWMutex
	snapshots map[core.ZoneID]core.ZoneSnapshot
	subs      map[*Subscription]struct{}
}

func NewMirror() *Mirror {
	return &Mirror{
		snapshots: make(map[core.ZoneID]core.ZoneSnapshot),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Publish stores the snapshots and pushes each one to every subscriber.
func (m *Mirror) Publish(snapshots ...core.ZoneSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range snapshots {
		m.snapshots[s.Zone] = s
		for sub := range m.subs {
			sub.offer(s)
		}
	}
}

// Remove forgets a zone.
func (m *Mirror) Remove(zone core.ZoneID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, zone)
}

// Get returns the latest snapshot for a zone.
func (m *Mirror) Get(zone core.ZoneID) (core.ZoneSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[zone]
	return s, ok
}

// All returns every snapshot sorted by zone id.
func (m *Mirror) All() []core.ZoneSnapshot {
	m.mu.RLock()
	out := make([]core.ZoneSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out
}

// Subscribe registers a subscriber with a buffer of the given size.
func (m *Mirror) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{ch: make(chan core.ZoneSnapshot, buffer), mirror: m}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub] = struct{}{}
	return sub
}

func (m *Mirror) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub]; !ok {
		return
	}
	delete(m.subs, sub)
	close(sub.ch)
}

// Subscription receives published snapshots. A slow reader loses the oldest
// pending snapshot instead of stalling the publisher.
type Subscription struct {
	ch      chan core.ZoneSnapshot
	mirror  *Mirror
	dropped int
}

// C is the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan core.ZoneSnapshot {
	return s.ch
}

// Dropped returns how many snapshots were discarded for this subscriber.
func (s *Subscription) Dropped() int {
	s.mirror.mu.RLock()
	defer s.mirror.mu.RUnlock()
	return s.dropped
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	s.mirror.unsubscribe(s)
}

// offer is called with the mirror lock held.
func (s *Subscription) offer(snap core.ZoneSnapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}
