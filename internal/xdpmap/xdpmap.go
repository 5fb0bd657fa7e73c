// Package xdpmap abstracts the kernel-shared whitelist map described in
// spec.md §6: a bounded LRU hash map keyed by (address, port), read
// lock-free by the XDP program and mutated from userspace. The mutation
// side is guarded by a mutex here because, per spec.md §5, the
// kernel-shared map is not safe for concurrent userspace writers even
// though its kernel-side reads are atomic per-bucket.
package xdpmap

import (
	"errors"
	"sync"

	"github.com/cilium/ebpf"

	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
)

// Capacity is the whitelist's fixed LRU bound (spec.md §3, §6).
const Capacity = 1024

// PresentValue is written for every whitelist entry; presence is the
// signal, the payload itself is unused (spec.md §3).
const PresentValue uint32 = 1

// Map is the userspace-writable, kernel-readable whitelist handle.
// Implementations must tolerate LRU eviction silently dropping entries.
type Map interface {
	// Insert adds or refreshes (key -> PresentValue). LRU eviction of an
	// older, unrelated entry is not an error.
	Insert(key socketv4.SocketV4) error
	// Remove deletes key if present. Removing an absent key is not an
	// error (spec.md §4.6: "removal errors are logged but non-fatal" refers
	// to genuine map errors, not no-op removes).
	Remove(key socketv4.SocketV4) error
	// Contains reports whether key is currently whitelisted. Used by
	// tests; the real kernel program performs its own lookup against the
	// same underlying ebpf.Map, not through this interface.
	Contains(key socketv4.SocketV4) (bool, error)
	// Close releases the underlying map.
	Close() error
}

// ebpfKey mirrors the kernel map schema in spec.md §6:
//
//	struct { u32 address; u16 port; u16 _pad; }
//
// with explicit padding so Go's struct layout matches the C one the XDP
// program compiles against.
type ebpfKey struct {
	Address uint32
	Port    uint16
	_       uint16
}

// EbpfMap wraps a *ebpf.Map of type LRUHash, MaxEntries=Capacity,
// KeySize=8, ValueSize=4, named "WHITELIST" per spec.md §6.
type EbpfMap struct {
	mu sync.Mutex
	m  *ebpf.Map
}

// NewEbpfMap creates a fresh in-kernel LRU hash map with the WHITELIST
// schema. Used when no pinned/loaded map is supplied by the eBPF loader.
func NewEbpfMap() (*EbpfMap, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "WHITELIST",
		Type:       ebpf.LRUHash,
		KeySize:    8,
		ValueSize:  4,
		MaxEntries: Capacity,
	})
	if err != nil {
		return nil, err
	}
	return WrapEbpfMap(m), nil
}

// WrapEbpfMap adapts an already-loaded *ebpf.Map (e.g. one obtained from a
// loaded collection's bpf.Maps()["WHITELIST"]) to the Map interface.
func WrapEbpfMap(m *ebpf.Map) *EbpfMap {
	return &EbpfMap{m: m}
}

func (e *EbpfMap) Insert(key socketv4.SocketV4) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ebpfKey{Address: key.Address, Port: key.Port}
	if err := e.m.Put(k, PresentValue); err != nil {
		return err
	}
	return nil
}

func (e *EbpfMap) Remove(key socketv4.SocketV4) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ebpfKey{Address: key.Address, Port: key.Port}
	err := e.m.Delete(k)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return nil
	}
	return err
}

func (e *EbpfMap) Contains(key socketv4.SocketV4) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ebpfKey{Address: key.Address, Port: key.Port}
	var v uint32
	err := e.m.Lookup(k, &v)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *EbpfMap) Close() error {
	return e.m.Close()
}

// Underlying exposes the raw *ebpf.Map, e.g. so cmd/server can hand it to
// the XDP program loader as the map it should consult.
func (e *EbpfMap) Underlying() *ebpf.Map {
	return e.m
}

var _ Map = (*EbpfMap)(nil)
