package refdata

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	ports      map[int]PortEntry
	vendors    map[string]VendorEntry
	signatures []Signature
	known      []KnownDevice
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ports:   make(map[int]PortEntry),
		vendors: make(map[string]VendorEntry),
	}
}

// NewDefaultMemoryStore returns a store holding the default seed data.
func NewDefaultMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	for _, p := range DefaultPorts {
		s.AddPort(p)
	}
	for _, v := range DefaultVendors {
		s.AddVendor(v)
	}
	for _, sig := range DefaultSignatures {
		s.AddSignature(sig)
	}
	return s
}

func (s *MemoryStore) AddPort(p PortEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[p.Port] = p
}

func (s *MemoryStore) AddVendor(v VendorEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[normalizePrefix(v.Prefix)] = v
}

func (s *MemoryStore) AddSignature(sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig.Rules = append([]Rule(nil), sig.Rules...)
	s.signatures = append(s.signatures, sig)
}

func (s *MemoryStore) AddKnownDevice(d KnownDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = append(s.known, d)
}

// KnownDevice returns the most recently seen device matching ip or mac.
func (s *MemoryStore) KnownDevice(_ context.Context, ip, mac string) (*KnownDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *KnownDevice
	for i := range s.known {
		d := s.known[i]
		if !(ip != "" && d.IP == ip) && !(mac != "" && d.MAC == mac) {
			continue
		}
		if best == nil || d.LastSeen.After(best.LastSeen) {
			best = &d
		}
	}
	return best, nil
}

func (s *MemoryStore) MACVendor(_ context.Context, prefix string) (*VendorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vendors[prefix]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *MemoryStore) PortService(_ context.Context, port int) (*PortEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.ports[port]; ok && p.WellKnown {
		return &p, nil
	}
	return nil, nil
}

func (s *MemoryStore) Signatures(_ context.Context) ([]Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Signature, len(s.signatures))
	for i, sig := range s.signatures {
		sig.Rules = append([]Rule(nil), sig.Rules...)
		out[i] = sig
	}
	return out, nil
}
