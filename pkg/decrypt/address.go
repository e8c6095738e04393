package decrypt

import "sync"

// DefaultMaxAddresses is the default maximum number of learned addresses.
const DefaultMaxAddresses = 1024

// shortAddress identifies a device by PAN and 16-bit network address.
type shortAddress struct {
	pan   uint16
	short uint16
}

// AddressMap maps short network addresses to extended addresses, learned
// from frames that carry both. Frames secured without the extended nonce
// flag rely on it to build their nonce.
//
// Short addresses are scoped per PAN because the same short address may be
// in use on different networks.
type AddressMap struct {
	entries    map[shortAddress]uint64
	maxEntries int

	mu sync.RWMutex
}

// NewAddressMap creates an address map holding at most maxEntries mappings
// (0 means DefaultMaxAddresses).
func NewAddressMap(maxEntries int) *AddressMap {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxAddresses
	}
	return &AddressMap{
		entries:    make(map[shortAddress]uint64),
		maxEntries: maxEntries,
	}
}

// Learn records that short on pan belongs to ext.
// An existing mapping is overwritten, since short addresses are reassigned
// on rejoin. Returns false if the map is full and the mapping is new.
func (m *AddressMap) Learn(pan, short uint16, ext uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := shortAddress{pan: pan, short: short}
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		return false
	}
	m.entries[key] = ext
	return true
}

// Resolve returns the extended address learned for short on pan.
func (m *AddressMap) Resolve(pan, short uint16) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.entries[shortAddress{pan: pan, short: short}]
	return ext, ok
}

// Forget removes the mapping for short on pan.
func (m *AddressMap) Forget(pan, short uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, shortAddress{pan: pan, short: short})
}

// ForgetPAN removes every mapping of a PAN.
func (m *AddressMap) ForgetPAN(pan uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		if key.pan == pan {
			delete(m.entries, key)
		}
	}
}

// Count returns the number of learned mappings.
func (m *AddressMap) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear removes all mappings.
func (m *AddressMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[shortAddress]uint64)
}
