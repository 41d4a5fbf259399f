package memory

import "sync"

// KV is an in-memory KeyValueStore.
type KV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewKV() *KV {
	return &KV{m: make(map[string]string)}
}

func (kv *KV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok
}

func (kv *KV) Set(key, value string) error {
	kv.mu.Lock()
	kv.m[key] = value
	kv.mu.Unlock()
	return nil
}

func (kv *KV) Remove(key string) error {
	kv.mu.Lock()
	delete(kv.m, key)
	kv.mu.Unlock()
	return nil
}
