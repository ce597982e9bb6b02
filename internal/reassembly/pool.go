// Package reassembly collects numbered packet fragments per GUID and
// joins them into a single logical packet once all fragments for that
// GUID have arrived.
package reassembly

import (
	"sort"
	"sync"

	"github.com/outband/serclient/internal/protocol"
)

// Pool maps a GUID to its ordered set of fragments. It is owned
// exclusively by the watcher's main loop (see spec §5 — only the
// egress queue is shared across goroutines), but the mutex is kept
// anyway since nothing prevents a future caller from sharing a Pool
// across goroutines and the cost of a single uncontended mutex is
// negligible.
type Pool struct {
	mu      sync.Mutex
	entries map[string]map[uint32]protocol.Packet
}

// New returns an empty reassembly pool.
func New() *Pool {
	return &Pool{entries: make(map[string]map[uint32]protocol.Packet)}
}

// Add inserts pkt keyed by (pkt.GUID, pkt.Number). A duplicate
// (guid, number) pair silently overwrites the previous fragment: Add
// does not report it, and the watcher does not log it.
func (p *Pool) Add(pkt protocol.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fragments, ok := p.entries[pkt.GUID]
	if !ok {
		fragments = make(map[uint32]protocol.Packet)
		p.entries[pkt.GUID] = fragments
	}
	fragments[pkt.Number] = pkt
}

// IsComplete reports whether guid has exactly expectedCount fragments
// collected.
func (p *Pool) IsComplete(guid string, expectedCount uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fragments, ok := p.entries[guid]
	return ok && uint32(len(fragments)) == expectedCount
}

// Assemble concatenates the bodies of guid's fragments in ascending
// packet-number order and returns a synthetic packet carrying the
// first fragment's command type and guid. The pool entry is left in
// place; callers must call Remove once they have safely consumed the
// result (spec §4.3).
func (p *Pool) Assemble(guid string) (protocol.Packet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fragments, ok := p.entries[guid]
	if !ok || len(fragments) == 0 {
		return protocol.Packet{}, false
	}

	numbers := make([]uint32, 0, len(fragments))
	for n := range fragments {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var body []byte
	for _, n := range numbers {
		body = append(body, fragments[n].Body...)
	}

	first := fragments[numbers[0]]
	return protocol.Packet{
		CommandType: first.CommandType,
		GUID:        guid,
		Number:      1,
		Count:       1,
		Body:        body,
	}, true
}

// Remove evicts guid's pool entry, if any.
func (p *Pool) Remove(guid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, guid)
}

// Has reports whether guid currently has an in-progress entry.
func (p *Pool) Has(guid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[guid]
	return ok
}
