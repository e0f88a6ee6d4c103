package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"context"
)

// Memory is an in-memory ordered KV store. A single mutex serialises
// transactions; writes inside Update stage into an overlay and apply to the
// base map only when the transaction function returns nil.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	m := new(Memory)
	m.data = make(map[string][]byte)
	return m
}

// View runs a read-only transaction.
func (m *Memory) View(ctx context.Context, fn func(KV) error) error {
	if err := ctxErr(ctx, "view"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{base: m.data, staged: nil}
	return fn(tx)
}

// Update runs a read-write transaction, committing staged writes atomically.
func (m *Memory) Update(ctx context.Context, fn func(KV) error) error {
	if err := ctxErr(ctx, "update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{base: m.data, staged: make(map[string]*[]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for key, value := range tx.staged {
		if value == nil {
			delete(m.data, key)
			continue
		}
		m.data[key] = *value
	}
	return nil
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}

// memTx overlays staged writes on the base map. A nil staged value is a
// tombstone. staged is nil for read-only transactions.
type memTx struct {
	base   map[string][]byte
	staged map[string]*[]byte
}

func (t *memTx) Get(key string) ([]byte, bool) {
	if t.staged != nil {
		if value, ok := t.staged[key]; ok {
			if value == nil {
				return nil, false
			}
			return append([]byte(nil), *value...), true
		}
	}
	value, ok := t.base[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

func (t *memTx) Set(key string, value []byte) {
	if t.staged == nil {
		return
	}
	copied := append([]byte(nil), value...)
	t.staged[key] = &copied
}

func (t *memTx) Delete(key string) {
	if t.staged == nil {
		return
	}
	t.staged[key] = nil
}

func (t *memTx) Scan(prefix string, fn func(key string, value []byte) bool) {
	keys := make([]string, 0, len(t.base))
	for key := range t.base {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if t.staged != nil {
		for key, value := range t.staged {
			if value != nil && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		value, ok := t.Get(key)
		if !ok {
			continue
		}
		if !fn(key, value) {
			return
		}
	}
}
