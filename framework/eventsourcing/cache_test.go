package eventsourcing

import (
	"errors"
	"testing"
)

func TestPassthroughCache_NeverMemoizes(t *testing.T) {
	c := NewPassthroughCache[string, orderProjection]()
	calls := 0
	loader := func() (*orderProjection, error) {
		calls++
		return &orderProjection{ID: "A", Name: "foo"}, nil
	}
	if _, err := c.GetOrLoad("A", loader); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrLoad("A", loader); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected the loader invoked on every call, got %d", calls)
	}
	c.Add("A", &orderProjection{ID: "A"})
	c.Remove("A")
	c.Clear()
}

func TestInMemoryCache_MemoizesOnHit(t *testing.T) {
	c := NewInMemoryCache[string, orderProjection](16)
	calls := 0
	loader := func() (*orderProjection, error) {
		calls++
		return &orderProjection{ID: "A", Name: "foo"}, nil
	}
	v1, err := c.GetOrLoad("A", loader)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.GetOrLoad("A", loader)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected the loader invoked once, got %d", calls)
	}
	if v1 != v2 {
		t.Fatal("expected the same cached pointer returned on a hit")
	}
}

func TestInMemoryCache_LoaderErrorNotMemoized(t *testing.T) {
	c := NewInMemoryCache[string, orderProjection](16)
	calls := 0
	loader := func() (*orderProjection, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return &orderProjection{ID: "A"}, nil
	}
	if _, err := c.GetOrLoad("A", loader); err == nil {
		t.Fatal("expected the first call's error to surface")
	}
	if _, err := c.GetOrLoad("A", loader); err != nil {
		t.Fatalf("expected the second call to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a failed load not memoized, loader called %d times", calls)
	}
}

func TestInMemoryCache_MissIsNotCached(t *testing.T) {
	c := NewInMemoryCache[string, orderProjection](16)
	calls := 0
	loader := func() (*orderProjection, error) {
		calls++
		return nil, nil
	}
	if v, err := c.GetOrLoad("A", loader); err != nil || v != nil {
		t.Fatalf("expected nil, nil on a miss, got %v %v", v, err)
	}
	if v, err := c.GetOrLoad("A", loader); err != nil || v != nil {
		t.Fatalf("expected nil, nil on a second miss, got %v %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("expected a (nil, nil) load not cached, loader called %d times", calls)
	}
}

func TestInMemoryCache_RemoveAndClear(t *testing.T) {
	c := NewInMemoryCache[string, orderProjection](16)
	c.Add("A", &orderProjection{ID: "A"})
	c.Add("B", &orderProjection{ID: "B"})

	c.Remove("A")
	if _, ok := c.lru.Get("A"); ok {
		t.Fatal("expected A removed")
	}
	if _, ok := c.lru.Get("B"); !ok {
		t.Fatal("expected B to remain")
	}

	c.Clear()
	if _, ok := c.lru.Get("B"); ok {
		t.Fatal("expected Clear to purge every entry")
	}
}

func TestInMemoryCache_NonPositiveCapacityRaisedToDefault(t *testing.T) {
	// Must not panic: a capacity <= 0 is raised to a sane minimum rather
	// than forwarded to the underlying LRU, which rejects it.
	c := NewInMemoryCache[string, orderProjection](0)
	c.Add("A", &orderProjection{ID: "A"})
	if _, ok := c.lru.Get("A"); !ok {
		t.Fatal("expected the cache to be usable after construction with capacity 0")
	}
}
