package httpbridge

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func account(id string, ttlMinutes, maxEntries int, callbackDefault string) ResolvedAccount {
	return ResolvedAccount{AccountID: id, Enabled: true, Config: AccountSettings{
		CallbackTTLMinutes: ttlMinutes,
		MaxCallbackEntries: maxEntries,
		CallbackDefault:    callbackDefault,
	}}
}

func TestDirectoryRememberResolve(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	acct := account("a", 10, 0, "https://default.example/cb")

	d.Remember(" c1 ", "https://cb.example/x", acct)
	url, ok := d.Resolve("c1", acct)
	if !ok || url != "https://cb.example/x" {
		t.Fatalf("Resolve = %q %v", url, ok)
	}
	if _, ok := d.Entry("C1"); ok {
		t.Error("conversation ids must be case-sensitive")
	}

	clock.Advance(11 * time.Minute)
	url, ok = d.Resolve("c1", acct)
	if !ok || url != "https://default.example/cb" {
		t.Errorf("after TTL: got %q %v, want default", url, ok)
	}
	if d.Len() != 0 {
		t.Errorf("expired entry kept, len=%d", d.Len())
	}
}

func TestDirectoryResolveRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	acct := account("a", 10, 0, "")

	d.Remember("c1", "https://cb.example/x", acct)
	for i := 0; i < 3; i++ {
		clock.Advance(8 * time.Minute)
		if _, ok := d.Resolve("c1", acct); !ok {
			t.Fatalf("entry expired at step %d despite refresh", i)
		}
	}
	clock.Advance(11 * time.Minute)
	if url, ok := d.Resolve("c1", acct); ok {
		t.Errorf("got %q, want miss without default", url)
	}
}

func TestDirectoryDefaultsForNonPositiveLimits(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	acct := account("a", -5, 0, "")

	d.Remember("c1", "https://cb.example/x", acct)
	clock.Advance(23 * time.Hour)
	if _, ok := d.Resolve("c1", acct); !ok {
		t.Fatal("default TTL of 24h not applied")
	}
	clock.Advance(25 * time.Hour)
	if _, ok := d.Resolve("c1", acct); ok {
		t.Fatal("entry outlived the default TTL")
	}
}

func TestDirectoryCapacityEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	acct := account("a", 0, 3, "")

	for i := 1; i <= 3; i++ {
		d.Remember(fmt.Sprintf("c%d", i), "https://cb.example", acct)
		clock.Advance(time.Second)
	}
	d.Resolve("c1", acct)
	clock.Advance(time.Second)

	d.Remember("c4", "https://cb.example", acct)
	if d.Len() != 3 {
		t.Fatalf("len = %d, want 3", d.Len())
	}
	if _, ok := d.Entry("c2"); ok {
		t.Error("c2 had the oldest updatedAt and should be evicted")
	}
	for _, id := range []string{"c1", "c3", "c4"} {
		if _, ok := d.Entry(id); !ok {
			t.Errorf("%s evicted unexpectedly", id)
		}
	}
}

func TestDirectoryCapacityTieBreaksByInsertion(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	acct := account("a", 0, 2, "")

	d.Remember("first", "u", acct)
	d.Remember("second", "u", acct)
	d.Remember("third", "u", acct)

	if _, ok := d.Entry("first"); ok {
		t.Error("earliest inserted entry should go first on equal timestamps")
	}
	if d.Len() != 2 {
		t.Errorf("len = %d, want 2", d.Len())
	}
}

func TestDirectoryUsesCallingAccountLimits(t *testing.T) {
	clock := newFakeClock()
	d := NewDirectory(WithClock(clock.Now))
	long := account("long", 60, 0, "")
	short := account("short", 5, 0, "")

	d.Remember("c1", "https://cb.example/long", long)
	clock.Advance(10 * time.Minute)
	if _, ok := d.Resolve("c1", long); !ok {
		t.Fatal("entry should survive under the 60 minute account")
	}
	clock.Advance(10 * time.Minute)
	if _, ok := d.Resolve("c1", short); ok {
		t.Error("short-TTL account must prune the 10 minute old entry")
	}
}

func TestDirectoryOverwrite(t *testing.T) {
	d := NewDirectory()
	acct := account("a", 0, 0, "")
	d.Remember("c1", "https://one.example", acct)
	d.Remember("c1", "https://two.example", account("b", 0, 0, ""))

	e, ok := d.Entry("c1")
	if !ok || e.URL != "https://two.example" || e.AccountID != "b" {
		t.Errorf("entry = %+v", e)
	}
	d.Reset()
	if d.Len() != 0 {
		t.Error("Reset kept entries")
	}
}
