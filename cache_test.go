package minotaur_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/artagnon/minotaur"
	"github.com/google/go-cmp/cmp"
)

func openTestCache(t *testing.T) (*minotaur.Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	cfg := minotaur.DefaultConfig()
	cfg.EnableCaching = true
	cfg.RedisAddr = srv.Addr()
	c := minotaur.OpenCache(context.Background(), cfg)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := openTestCache(t)
	ctx := context.Background()

	key := "define i32 @sliced_t0(i32 %x) {\nentry:\n  ret i32 %x\n}\n"
	want := minotaur.CacheValue{
		Rewrite:    "(add i32 %x, (const i32 0))",
		CostAfter:  2,
		CostBefore: 4,
		Origin:     "sliced_t0",
	}
	c.PutRewrite(ctx, key, want)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestCache_Miss(t *testing.T) {
	c, _ := openTestCache(t)
	if _, ok := c.Get(context.Background(), "no such key"); ok {
		t.Fatal("expected a miss")
	}
}

func TestCache_NoSolution(t *testing.T) {
	c, _ := openTestCache(t)
	ctx := context.Background()

	c.PutNoSolution(ctx, "k", "f")
	got, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.IsNoSolution() {
		t.Fatalf("expected the sentinel, got %q", got.Rewrite)
	}
	if got.Origin != "f" {
		t.Fatalf("unexpected origin: %q", got.Origin)
	}
}

func TestCache_DegradesOnTransportFailure(t *testing.T) {
	c, srv := openTestCache(t)
	ctx := context.Background()

	srv.Close()

	// the transport is gone; writes land in the in-process map and
	// reads keep working
	c.PutRewrite(ctx, "k", minotaur.CacheValue{Rewrite: "%x"})
	got, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected a hit from the degraded cache")
	}
	if got.Rewrite != "%x" {
		t.Fatalf("unexpected rewrite: %q", got.Rewrite)
	}
}

func TestCache_UnavailableAtOpen(t *testing.T) {
	cfg := minotaur.DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1" // nothing listens here
	c := minotaur.OpenCache(context.Background(), cfg)
	defer c.Close()

	ctx := context.Background()
	c.PutNoSolution(ctx, "k", "f")
	if got, ok := c.Get(ctx, "k"); !ok || !got.IsNoSolution() {
		t.Fatal("degraded cache must still round trip")
	}
}
