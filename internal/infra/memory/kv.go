package memory

import (
	"context"
	"sync"

	"cybershield-progress/internal/infra/local"
)

// KeyValue is an in-memory local.KeyValue for one device.
type KeyValue struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ local.KeyValue = (*KeyValue)(nil)

func NewKeyValue() *KeyValue {
	return &KeyValue{data: make(map[string][]byte)}
}

func (kv *KeyValue) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (kv *KeyValue) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = append([]byte(nil), value...)
	return nil
}

func (kv *KeyValue) Delete(_ context.Context, keys ...string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for _, key := range keys {
		delete(kv.data, key)
	}
	return nil
}

// LocalBackend hands out one KeyValue per device id for the life of the process.
type LocalBackend struct {
	mu      sync.Mutex
	devices map[string]*KeyValue
}

var _ local.Backend = (*LocalBackend)(nil)

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{devices: make(map[string]*KeyValue)}
}

func (b *LocalBackend) Device(deviceID string) local.KeyValue {
	b.mu.Lock()
	defer b.mu.Unlock()
	kv, ok := b.devices[deviceID]
	if !ok {
		kv = NewKeyValue()
		b.devices[deviceID] = kv
	}
	return kv
}
