package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/MrWong99/parley/pkg/cache"
	"github.com/MrWong99/parley/pkg/cache/memory"
)

func TestBackend_GetMiss(t *testing.T) {
	t.Parallel()
	b := memory.New()
	v, ok, err := b.Get(context.Background(), "npc", "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != nil {
		t.Errorf("Get miss = (%v, %v), want (nil, false)", v, ok)
	}
}

func TestBackend_NamespacesAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()

	if err := b.Set(ctx, "npc", "erika", []byte("npc-value")); err != nil {
		t.Fatalf("Set npc: %v", err)
	}
	if err := b.Set(ctx, "scene", "erika", []byte("scene-value")); err != nil {
		t.Fatalf("Set scene: %v", err)
	}

	for ns, want := range map[string]string{"npc": "npc-value", "scene": "scene-value"} {
		got, ok, err := b.Get(ctx, ns, "erika")
		if err != nil || !ok {
			t.Fatalf("Get(%s) = ok %v, err %v", ns, ok, err)
		}
		if string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", ns, got, want)
		}
	}
}

func TestBackend_SetOverwritesAndCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()

	buf := []byte("first")
	_ = b.Set(ctx, "memory", "k", buf)
	buf[0] = 'X'

	got, _, _ := b.Get(ctx, "memory", "k")
	if string(got) != "first" {
		t.Errorf("stored value aliased caller slice: %q", got)
	}
	got[0] = 'Y'
	again, _, _ := b.Get(ctx, "memory", "k")
	if string(again) != "first" {
		t.Errorf("returned value aliased stored slice: %q", again)
	}

	_ = b.Set(ctx, "memory", "k", []byte("second"))
	got, _, _ = b.Get(ctx, "memory", "k")
	if string(got) != "second" {
		t.Errorf("after overwrite got %q, want %q", got, "second")
	}
	if n := b.Len("memory"); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			_ = b.Set(ctx, "npc", key, []byte(key))
			_, _, _ = b.Get(ctx, "npc", key)
		}()
	}
	wg.Wait()
	if n := b.Len("npc"); n != 16 {
		t.Errorf("Len = %d, want 16", n)
	}
}

type record struct {
	Name  string
	Level int
}

func TestFactory_TypedRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := cache.NewFactory(memory.New())
	c := f.Cache(cache.NamespaceNPC)

	if _, ok, err := cache.Get[record](ctx, c, "erika"); err != nil || ok {
		t.Fatalf("Get before Set = ok %v, err %v", ok, err)
	}
	if err := cache.Set(ctx, c, "erika", record{Name: "Erika", Level: 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get[record](ctx, c, "erika")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if got != (record{Name: "Erika", Level: 3}) {
		t.Errorf("Get = %+v", got)
	}

	// Same key, different namespace: independent.
	if _, ok, _ := cache.Get[record](ctx, f.Cache(cache.NamespaceScene), "erika"); ok {
		t.Error("scene namespace should not see npc entry")
	}
}

func TestFactory_DecodeErrorSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := cache.NewFactory(memory.New())
	c := f.Cache("raw")
	if err := c.SetBytes(ctx, "k", []byte{0xff, 0x00}); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if _, _, err := cache.Get[record](ctx, c, "k"); err == nil {
		t.Error("expected decode error for garbage bytes")
	}
}
