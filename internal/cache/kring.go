package cache

import (
	"container/list"
	"sync"
)

// KRing is a ring buffer of keys with value lookup: the oldest key is
// dropped once capacity is reached. Lookups do not refresh a key (FIFO,
// not LRU). A capacity <= 0 disables the cache.
type KRing[V any] struct {
	capacity int
	order    *list.List // front = newest
	items    map[string]*list.Element
	mu       sync.Mutex
}

type entry[V any] struct {
	key   string
	value V
}

func NewKRing[V any](capacity int) *KRing[V] {
	return &KRing[V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (k *KRing[V]) Capacity() int { return k.capacity }

// Append stores v under key, evicting the oldest keys as needed. Appending
// an existing key replaces its value and makes it the newest.
func (k *KRing[V]) Append(key string, v V) {
	if k.capacity <= 0 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if elem, ok := k.items[key]; ok {
		k.order.Remove(elem)
		delete(k.items, key)
	}
	for k.order.Len() >= k.capacity {
		oldest := k.order.Back()
		k.order.Remove(oldest)
		delete(k.items, oldest.Value.(*entry[V]).key)
	}
	k.items[key] = k.order.PushFront(&entry[V]{key: key, value: v})
}

func (k *KRing[V]) Get(key string) (V, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	elem, ok := k.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[V]).value, true
}

// Clear reinitializes the ring to empty.
func (k *KRing[V]) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.order.Init()
	k.items = make(map[string]*list.Element)
}

func (k *KRing[V]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.order.Len()
}
