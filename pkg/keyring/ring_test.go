package keyring

import (
	"sync"
	"testing"

	"github.com/backkem/zbsec/pkg/security"
	"github.com/pion/transport/v3/test"
)

func testKey(b byte, id security.KeyID, label string) Key {
	var k Key
	for i := range k.Bytes {
		k.Bytes[i] = b
	}
	k.ID = id
	k.Label = label
	return k
}

func labels(keys []*Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Label
	}
	return out
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRingCandidateOrder(t *testing.T) {
	r := NewRing()

	if err := r.AddPreconfigured(testKey(0x01, security.KeyIDNetwork, "pre-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPreconfigured(testKey(0x02, security.KeyIDLink, "pre-2")); err != nil {
		t.Fatal(err)
	}
	r.AddSniffed(testKey(0x10, security.KeyIDNetwork, "nwk-a"))
	r.AddSniffed(testKey(0x20, security.KeyIDLink, "link-a"))
	r.AddSniffed(testKey(0x11, security.KeyIDNetwork, "nwk-b"))

	flow := Flow{Source: 0x1122334455667788, KeyID: security.KeyIDNetwork}

	got := labels(r.CandidatesFor(flow))
	want := []string{"nwk-a", "nwk-b", "pre-1", "pre-2"}
	if !equalLabels(got, want) {
		t.Errorf("CandidatesFor(network) = %v, want %v", got, want)
	}

	transport := Flow{Source: flow.Source, KeyID: security.KeyIDKeyTransport}
	got = labels(r.CandidatesFor(transport))
	want = []string{"link-a", "pre-1", "pre-2"}
	if !equalLabels(got, want) {
		t.Errorf("CandidatesFor(key-transport) = %v, want %v", got, want)
	}
}

func TestRingCachedKeyFirst(t *testing.T) {
	r := NewRing()
	for i, l := range []string{"pre-1", "pre-2", "pre-3"} {
		if err := r.AddPreconfigured(testKey(byte(i+1), security.KeyIDNetwork, l)); err != nil {
			t.Fatal(err)
		}
	}
	flow := Flow{Source: 0xAABB, KeyID: security.KeyIDNetwork}

	third := r.Preconfigured()[2]
	r.Remember(flow, third)

	got := labels(r.CandidatesFor(flow))
	want := []string{"pre-3", "pre-1", "pre-2"}
	if !equalLabels(got, want) {
		t.Errorf("CandidatesFor() = %v, want %v", got, want)
	}

	// Other flows are unaffected
	other := Flow{Source: 0xCCDD, KeyID: security.KeyIDNetwork}
	got = labels(r.CandidatesFor(other))
	want = []string{"pre-1", "pre-2", "pre-3"}
	if !equalLabels(got, want) {
		t.Errorf("CandidatesFor(other) = %v, want %v", got, want)
	}
}

func TestRingRememberIdempotent(t *testing.T) {
	r := NewRing()
	if err := r.AddPreconfigured(testKey(0x01, security.KeyIDLink, "a")); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPreconfigured(testKey(0x02, security.KeyIDLink, "b")); err != nil {
		t.Fatal(err)
	}
	flow := Flow{Source: 1, KeyID: security.KeyIDLink}
	a, b := r.Preconfigured()[0], r.Preconfigured()[1]

	r.Remember(flow, b)
	r.Remember(flow, b)
	if n := len(r.CandidatesFor(flow)); n != 2 {
		t.Errorf("len(CandidatesFor()) = %d, want 2", n)
	}
	if r.CachedFlows() != 1 {
		t.Errorf("CachedFlows() = %d, want 1", r.CachedFlows())
	}

	// Last writer wins
	r.Remember(flow, a)
	if r.Cached(flow) != a {
		t.Errorf("Cached() = %v, want a", r.Cached(flow))
	}

	r.Forget(flow)
	if r.Cached(flow) != nil {
		t.Error("Cached() after Forget() should be nil")
	}
}

func TestRingDeduplication(t *testing.T) {
	r := NewRing()

	k := testKey(0x42, security.KeyIDNetwork, "nwk")
	if !r.AddSniffed(k) {
		t.Error("first AddSniffed() = false, want true")
	}
	if r.AddSniffed(k) {
		t.Error("second AddSniffed() = true, want false")
	}
	if err := r.AddPreconfigured(k); err != nil {
		t.Fatalf("AddPreconfigured() error = %v", err)
	}
	if err := r.AddPreconfigured(k); err != ErrDuplicateKey {
		t.Errorf("AddPreconfigured() duplicate error = %v, want ErrDuplicateKey", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	cands := r.CandidatesFor(Flow{KeyID: security.KeyIDNetwork})
	if len(cands) != 1 {
		t.Fatalf("len(CandidatesFor()) = %d, want 1", len(cands))
	}
	if cands[0].Source != Sniffed {
		t.Errorf("first candidate provenance = %v, want sniffed", cands[0].Source)
	}
}

func TestRingResetSession(t *testing.T) {
	r := NewRing()
	if err := r.AddPreconfigured(testKey(0x01, security.KeyIDLink, "pre")); err != nil {
		t.Fatal(err)
	}
	r.AddSniffed(testKey(0x02, security.KeyIDLink, "sniffed"))
	r.Remember(Flow{Source: 1}, r.Preconfigured()[0])

	r.ResetSession()
	if r.Len() != 1 || r.CachedFlows() != 0 {
		t.Errorf("after ResetSession: Len() = %d, CachedFlows() = %d, want 1, 0", r.Len(), r.CachedFlows())
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("after Clear: Len() = %d, want 0", r.Len())
	}
}

func TestRingConcurrentFlows(t *testing.T) {
	defer test.CheckRoutines(t)()

	r := NewRing()
	for i := 0; i < 4; i++ {
		if err := r.AddPreconfigured(testKey(byte(i+1), security.KeyIDNetwork, "")); err != nil {
			t.Fatal(err)
		}
	}
	keys := r.Preconfigured()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			flow := Flow{Source: uint64(g), KeyID: security.KeyIDNetwork}
			for i := 0; i < 100; i++ {
				r.Remember(flow, keys[(g+i)%len(keys)])
				if c := r.CandidatesFor(flow); len(c) != len(keys) {
					t.Errorf("flow %d: %d candidates, want %d", g, len(c), len(keys))
					return
				}
				r.AddSniffed(testKey(byte(0x80+g), security.KeyIDLink, ""))
			}
		}(g)
	}
	wg.Wait()

	if r.CachedFlows() != 8 {
		t.Errorf("CachedFlows() = %d, want 8", r.CachedFlows())
	}
}

func TestKeyString(t *testing.T) {
	k := Key{ID: security.KeyIDNetwork, Source: Sniffed, Frame: 12}
	if got := k.String(); got != "Network key from frame 12" {
		t.Errorf("String() = %q", got)
	}
	k.Label = "nwk"
	if got := k.String(); got != "nwk (Network key from frame 12)" {
		t.Errorf("String() = %q", got)
	}
	p := Key{ID: security.KeyIDLink}
	if got := p.String(); got != "pre-configured Link key" {
		t.Errorf("String() = %q", got)
	}
}
