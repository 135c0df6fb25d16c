package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestDenylist(t *testing.T, clk *clock) *MemoryDenylist {
	t.Helper()
	d := NewMemoryDenylist(time.Hour)
	d.now = clk.Now
	t.Cleanup(d.Close)
	return d
}

func TestMemoryDenylist_RevokeAndCheck(t *testing.T) {
	clk := newClock(testNow)
	d := newTestDenylist(t, clk)
	ctx := context.Background()

	if err := d.Revoke(ctx, "jti-1", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := d.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Errorf("IsRevoked(jti-1) = %v, %v; want true", revoked, err)
	}
	revoked, _ = d.IsRevoked(ctx, "jti-2")
	if revoked {
		t.Error("unknown jti reported as revoked")
	}
}

func TestMemoryDenylist_RequiresJTI(t *testing.T) {
	d := newTestDenylist(t, newClock(testNow))
	if err := d.Revoke(context.Background(), "", testNow.Add(time.Hour)); err == nil {
		t.Error("expected error for empty jti")
	}
}

func TestMemoryDenylist_IgnoresAlreadyExpired(t *testing.T) {
	d := newTestDenylist(t, newClock(testNow))
	if err := d.Revoke(context.Background(), "old", testNow.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestMemoryDenylist_SweepRemovesExpired(t *testing.T) {
	clk := newClock(testNow)
	d := newTestDenylist(t, clk)
	ctx := context.Background()

	_ = d.Revoke(ctx, "short", testNow.Add(time.Minute))
	_ = d.Revoke(ctx, "long", testNow.Add(time.Hour))

	clk.Advance(2 * time.Minute)
	if revoked, _ := d.IsRevoked(ctx, "short"); revoked {
		t.Error("expired entry should no longer count as revoked")
	}

	d.sweep()
	if d.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", d.Len())
	}
	if revoked, _ := d.IsRevoked(ctx, "long"); !revoked {
		t.Error("unexpired entry lost by sweep")
	}
}

func TestMemoryDenylist_CloseIdempotent(t *testing.T) {
	d := NewMemoryDenylist(time.Hour)
	d.Close()
	d.Close()
}

func TestMemoryDenylist_Concurrent(t *testing.T) {
	d := newTestDenylist(t, newClock(testNow))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = d.Revoke(ctx, string(rune('a'+i%26))+"-jti", testNow.Add(time.Hour))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = d.IsRevoked(ctx, "a-jti")
		}()
	}
	wg.Wait()

	if d.Len() != 26 {
		t.Errorf("Len = %d, want 26", d.Len())
	}
}
