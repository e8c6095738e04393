package keyring

import "sync"

// Ring is the ordered set of candidate keys for one capture session.
//
// Keys are partitioned into sniffed keys, checked first and filtered by key
// class, and pre-configured keys, checked last in configuration order. On
// top of both sits a per-flow cache of the key that last decrypted a frame
// of that flow.
//
// A Ring is owned by the session that created it. It is safe for
// concurrent use so that a host may process several flows in parallel.
type Ring struct {
	preconfigured []*Key
	sniffed       []*Key
	cache         map[Flow]*Key

	mu sync.RWMutex
}

// NewRing creates an empty key ring.
func NewRing() *Ring {
	return &Ring{
		cache: make(map[Flow]*Key),
	}
}

// AddPreconfigured appends a key loaded from configuration.
// Returns ErrDuplicateKey if an identical pre-configured key exists.
func (r *Ring) AddPreconfigured(key Key) error {
	key.Source = Preconfigured

	r.mu.Lock()
	defer r.mu.Unlock()

	if indexOf(r.preconfigured, key.Bytes) >= 0 {
		return ErrDuplicateKey
	}
	k := key
	r.preconfigured = append(r.preconfigured, &k)
	return nil
}

// AddSniffed appends a key learned from traffic.
// A key with the same bytes and class is only recorded once; the returned
// bool reports whether the key was new.
func (r *Ring) AddSniffed(key Key) bool {
	key.Source = Sniffed

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.sniffed {
		if k.Bytes == key.Bytes && k.ID == key.ID {
			return false
		}
	}
	k := key
	r.sniffed = append(r.sniffed, &k)
	return true
}

// CandidatesFor returns the keys to try for a frame of the given flow, in
// trial order:
//  1. the key cached for the flow, if any
//  2. sniffed keys whose class matches flow.KeyID.BaseClass(), oldest first
//  3. all pre-configured keys, in configuration order
//
// A key whose bytes were already listed is not listed again.
func (r *Ring) CandidatesFor(flow Flow) []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Key, 0, 1+len(r.sniffed)+len(r.preconfigured))
	add := func(k *Key) {
		if indexOf(result, k.Bytes) < 0 {
			result = append(result, k)
		}
	}

	if k, ok := r.cache[flow]; ok {
		add(k)
	}

	class := flow.KeyID.BaseClass()
	for _, k := range r.sniffed {
		if k.ID.BaseClass() == class {
			add(k)
		}
	}

	for _, k := range r.preconfigured {
		add(k)
	}

	return result
}

// Remember records that key decrypted a frame of flow.
// Recording the same key twice is a no-op; a different key replaces the
// previous one.
func (r *Ring) Remember(flow Flow, key *Key) {
	if key == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[flow] = key
}

// Cached returns the key remembered for flow, or nil.
func (r *Ring) Cached(flow Flow) *Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[flow]
}

// Forget drops the cached key for flow.
func (r *Ring) Forget(flow Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, flow)
}

// Len returns the number of distinct stored keys, sniffed and pre-configured.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sniffed) + len(r.preconfigured)
}

// CachedFlows returns the number of flows with a remembered key.
func (r *Ring) CachedFlows() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Preconfigured returns the pre-configured keys in configuration order.
func (r *Ring) Preconfigured() []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Key, len(r.preconfigured))
	copy(result, r.preconfigured)
	return result
}

// ResetSession drops sniffed keys and the flow cache, keeping the
// pre-configured keys. Call this when a new capture starts.
func (r *Ring) ResetSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sniffed = nil
	r.cache = make(map[Flow]*Key)
}

// Clear removes every key and cached flow.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preconfigured = nil
	r.sniffed = nil
	r.cache = make(map[Flow]*Key)
}

func indexOf(keys []*Key, b [16]byte) int {
	for i, k := range keys {
		if k.Bytes == b {
			return i
		}
	}
	return -1
}

