package decrypt

import (
	"sync"

	"github.com/backkem/zbsec/pkg/keyring"
)

// CounterWindowSize is the number of frame counters below the highest seen
// that are still tracked individually.
const CounterWindowSize = 32

// DefaultMaxFlows is the default maximum number of flows a ReplayTable tracks.
const DefaultMaxFlows = 256

// counterWindow tracks the incoming frame counters of one flow.
// ZigBee frame counters never roll over: a sender must switch keys before
// its counter wraps.
type counterWindow struct {
	highest uint32
	// bit i set means highest-1-i was seen
	seen uint32
}

// accept records counter and reports whether it is fresh.
func (w *counterWindow) accept(counter uint32) bool {
	if counter > w.highest {
		shift := counter - w.highest
		if shift > CounterWindowSize {
			w.seen = 0
		} else {
			w.seen = w.seen<<shift | 1<<(shift-1)
		}
		w.highest = counter
		return true
	}
	if counter == w.highest {
		return false
	}

	behind := w.highest - counter
	if behind > CounterWindowSize {
		return false
	}
	mask := uint32(1) << (behind - 1)
	if w.seen&mask != 0 {
		return false
	}
	w.seen |= mask
	return true
}

// ReplayTable detects replayed frames per flow. Only frames that
// authenticated are recorded, so forged counters cannot poison a flow.
//
// A sniffer still shows replayed frames; the table only flags them.
type ReplayTable struct {
	flows    map[keyring.Flow]*counterWindow
	maxFlows int

	mu sync.Mutex
}

// NewReplayTable creates a replay table tracking at most maxFlows flows
// (0 means DefaultMaxFlows).
func NewReplayTable(maxFlows int) *ReplayTable {
	if maxFlows <= 0 {
		maxFlows = DefaultMaxFlows
	}
	return &ReplayTable{
		flows:    make(map[keyring.Flow]*counterWindow),
		maxFlows: maxFlows,
	}
}

// Accept records counter for flow. Returns false if the counter was seen
// before or fell behind the window. The first counter of a flow is always
// fresh; new flows beyond capacity are not tracked and read as fresh.
func (t *ReplayTable) Accept(flow keyring.Flow, counter uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.flows[flow]
	if !ok {
		if len(t.flows) >= t.maxFlows {
			return true
		}
		t.flows[flow] = &counterWindow{highest: counter}
		return true
	}
	return w.accept(counter)
}

// Highest returns the highest counter recorded for flow.
func (t *ReplayTable) Highest(flow keyring.Flow) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.flows[flow]
	if !ok {
		return 0, false
	}
	return w.highest, true
}

// Forget drops the state of flow, e.g. after a key switch.
func (t *ReplayTable) Forget(flow keyring.Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flows, flow)
}

// Count returns the number of tracked flows.
func (t *ReplayTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Clear removes all flow state.
func (t *ReplayTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = make(map[keyring.Flow]*counterWindow)
}
