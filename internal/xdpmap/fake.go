package xdpmap

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
)

// FakeMap is an in-memory Map with the same LRU-capacity semantics as the
// kernel-shared one (spec.md §3, §8 S5), used by the unit tests; cmd/server
// always uses an EbpfMap. It shares
// no code with EbpfMap on purpose: the point is to exercise the same
// contract through a second, independently-written implementation.
type FakeMap struct {
	mu    sync.Mutex
	cache *lru.Cache[socketv4.SocketV4, uint32]
}

// NewFakeMap returns a FakeMap bounded at Capacity entries.
func NewFakeMap() *FakeMap {
	cache, err := lru.New[socketv4.SocketV4, uint32](Capacity)
	if err != nil {
		// Capacity is a positive compile-time constant; lru.New only
		// fails for size <= 0.
		panic(err)
	}
	return &FakeMap{cache: cache}
}

func (f *FakeMap) Insert(key socketv4.SocketV4) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Add(key, PresentValue)
	return nil
}

func (f *FakeMap) Remove(key socketv4.SocketV4) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache.Remove(key)
	return nil
}

func (f *FakeMap) Contains(key socketv4.SocketV4) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache.Contains(key), nil
}

func (f *FakeMap) Close() error {
	return nil
}

var _ Map = (*FakeMap)(nil)
