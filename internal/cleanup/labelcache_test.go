package cleanup

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
)

func TestLabelCacheEnsureIdempotent(t *testing.T) {
	fake := &fakeClient{labels: []gmail.Label{{ID: "L1", Name: "Receipts", Type: "user"}}}
	cache := NewLabelCache(fake)

	for i := 0; i < 3; i++ {
		id, err := cache.Ensure(context.Background(), "Receipts", false)
		if err != nil {
			t.Fatalf("ensure %d failed: %v", i, err)
		}
		if id != "L1" {
			t.Fatalf("ensure %d returned %q", i, id)
		}
	}
	if fake.listLabelsCalls != 1 {
		t.Fatalf("expected one label listing, got %d", fake.listLabelsCalls)
	}
	if len(fake.created) != 0 {
		t.Fatalf("unexpected label creation: %v", fake.created)
	}
}

func TestLabelCacheCaseInsensitive(t *testing.T) {
	fake := &fakeClient{labels: []gmail.Label{{ID: "L1", Name: "Receipts", Type: "user"}}}
	cache := NewLabelCache(fake)

	id, err := cache.Ensure(context.Background(), "receipts", false)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id != "L1" {
		t.Fatalf("expected case-insensitive hit, got %q", id)
	}
}

func TestLabelCacheRefreshOnMiss(t *testing.T) {
	fake := &fakeClient{labels: []gmail.Label{{ID: "L0", Name: "Seed", Type: "user"}}}
	cache := NewLabelCache(fake)

	// First lookup fills the cache; the label appears out of band afterwards.
	if _, err := cache.Ensure(context.Background(), "Seed", false); err != nil {
		t.Fatalf("warmup ensure failed: %v", err)
	}
	fake.labels = append(fake.labels, gmail.Label{ID: "L9", Name: "Late", Type: "user"})

	id, err := cache.Ensure(context.Background(), "Late", false)
	if err != nil {
		t.Fatalf("ensure after refresh failed: %v", err)
	}
	if id != "L9" {
		t.Fatalf("expected refreshed label, got %q", id)
	}
}

func TestLabelCacheNotFound(t *testing.T) {
	fake := &fakeClient{}
	cache := NewLabelCache(fake)

	_, err := cache.Ensure(context.Background(), "Ghost", false)
	if !errors.Is(err, ErrLabelNotFound) {
		t.Fatalf("error = %v, want ErrLabelNotFound", err)
	}
	// At most one extra listing: the refresh happens once per run, not per miss.
	if _, err := cache.Ensure(context.Background(), "Ghost", false); !errors.Is(err, ErrLabelNotFound) {
		t.Fatalf("second miss error = %v", err)
	}
	if fake.listLabelsCalls != 2 {
		t.Fatalf("listings = %d, want 2 (load + single refresh)", fake.listLabelsCalls)
	}
}

func TestLabelCacheCreates(t *testing.T) {
	fake := &fakeClient{}
	cache := NewLabelCache(fake)

	id, err := cache.Ensure(context.Background(), "Brand New", true)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id != "L-Brand New" {
		t.Fatalf("created id = %q", id)
	}
	if len(fake.created) != 1 || fake.created[0] != "Brand New" {
		t.Fatalf("created labels: %v", fake.created)
	}

	// The created label is cached; a second ensure does not create again.
	if _, err := cache.Ensure(context.Background(), "brand new", true); err != nil {
		t.Fatalf("cached ensure failed: %v", err)
	}
	if len(fake.created) != 1 {
		t.Fatalf("label created twice: %v", fake.created)
	}
}

func TestLabelCacheRejectsEmptyName(t *testing.T) {
	cache := NewLabelCache(&fakeClient{})
	for _, name := range []string{"", "   "} {
		if _, err := cache.Ensure(context.Background(), name, true); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("name %q: error = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestLabelCacheUserLabelNames(t *testing.T) {
	fake := &fakeClient{labels: []gmail.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "L1", Name: "Travel", Type: "user"},
		{ID: "L2", Name: "Receipts", Type: "user"},
	}}
	cache := NewLabelCache(fake)

	names, err := cache.UserLabelNames(context.Background())
	if err != nil {
		t.Fatalf("user label names failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want the two user labels", names)
	}
	for _, n := range names {
		if n != "Travel" && n != "Receipts" {
			t.Fatalf("unexpected label %q", n)
		}
	}
}
