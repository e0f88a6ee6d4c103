package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryUpdateCommits(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), func(kv KV) error {
		kv.Set("exec/a", []byte("1"))
		kv.Set("cont/a", []byte("2"))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := m.View(context.Background(), func(kv KV) error {
		for _, key := range []string{"exec/a", "cont/a"} {
			if _, ok := kv.Get(key); !ok {
				t.Errorf("missing key %s after commit", key)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestMemoryUpdateRollsBackAllKeys(t *testing.T) {
	m := NewMemory()
	if err := m.Update(context.Background(), func(kv KV) error {
		kv.Set("exec/a", []byte("committed"))
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("boom")
	err := m.Update(context.Background(), func(kv KV) error {
		kv.Set("exec/a", []byte("dirty"))
		kv.Set("exec/b", []byte("new"))
		kv.Delete("exec/a")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	_ = m.View(context.Background(), func(kv KV) error {
		value, ok := kv.Get("exec/a")
		if !ok || string(value) != "committed" {
			t.Errorf("exec/a = %q, %v; want committed, true", value, ok)
		}
		if _, ok := kv.Get("exec/b"); ok {
			t.Error("exec/b leaked from aborted transaction")
		}
		return nil
	})
}

func TestMemoryTxReadsOwnWrites(t *testing.T) {
	m := NewMemory()
	_ = m.Update(context.Background(), func(kv KV) error {
		kv.Set("k", []byte("v"))
		if value, ok := kv.Get("k"); !ok || string(value) != "v" {
			t.Errorf("staged write invisible: %q, %v", value, ok)
		}
		kv.Delete("k")
		if _, ok := kv.Get("k"); ok {
			t.Error("tombstone not applied within transaction")
		}
		return nil
	})
}

func TestMemoryScanOrderedWithPrefix(t *testing.T) {
	m := NewMemory()
	_ = m.Update(context.Background(), func(kv KV) error {
		kv.Set("cont/b", []byte("2"))
		kv.Set("exec/x", []byte("9"))
		kv.Set("cont/a", []byte("1"))
		kv.Set("cont/c", []byte("3"))
		return nil
	})

	var keys []string
	_ = m.View(context.Background(), func(kv KV) error {
		kv.Scan("cont/", func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		return nil
	})
	want := []string{"cont/a", "cont/b", "cont/c"}
	if len(keys) != len(want) {
		t.Fatalf("Scan keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Scan order[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestMemoryScanSeesStagedWrites(t *testing.T) {
	m := NewMemory()
	_ = m.Update(context.Background(), func(kv KV) error {
		kv.Set("cont/persisted", []byte("1"))
		return nil
	})
	_ = m.Update(context.Background(), func(kv KV) error {
		kv.Set("cont/staged", []byte("2"))
		kv.Delete("cont/persisted")
		var keys []string
		kv.Scan("cont/", func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		if len(keys) != 1 || keys[0] != "cont/staged" {
			t.Errorf("Scan inside tx = %v, want [cont/staged]", keys)
		}
		return nil
	})
}

func TestMemoryContextCancelled(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Update(ctx, func(KV) error { return nil }); err == nil {
		t.Error("expected context error")
	}
}
