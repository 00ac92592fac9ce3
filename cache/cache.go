package cache

import (
	"sync"
)

type entry[S comparable, V any] struct {
	mu    sync.Mutex
	valid bool
	stamp S
	value V
}

// Cache holds one value per key, regenerated whenever the caller presents a different stamp, such as a
// file modification time. Generation for a key is serialized; different keys generate concurrently.
type Cache[K, S comparable, V any] struct {
	mu    sync.Mutex
	store map[K]*entry[S, V]
}

func New[K, S comparable, V any]() *Cache[K, S, V] {
	return &Cache[K, S, V]{
		store: make(map[K]*entry[S, V]),
	}
}

// Get returns the value for key if it was generated with stamp, otherwise it calls gen. Failed
// generations are not cached.
func (me *Cache[K, S, V]) Get(key K, stamp S, gen func() (V, error)) (value V, err error) {
	me.mu.Lock()
	e, ok := me.store[key]
	if !ok {
		e = &entry[S, V]{}
		me.store[key] = e
	}
	me.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid && e.stamp == stamp {
		return e.value, nil
	}
	value, err = gen()
	if err != nil {
		e.valid = false
		var zero V
		e.value = zero
		return
	}
	e.value, e.stamp, e.valid = value, stamp, true
	return
}

func (me *Cache[K, S, V]) Delete(key K) {
	me.mu.Lock()
	defer me.mu.Unlock()
	delete(me.store, key)
}

func (me *Cache[K, S, V]) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.store)
}
