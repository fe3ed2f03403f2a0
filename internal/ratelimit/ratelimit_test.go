package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(burst int, interval time.Duration, maxRequests int) (*Limiter, *time.Time) {
	l := New(burst, interval, maxRequests)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBurstExhaustion(t *testing.T) {
	l, _ := newTestLimiter(3, time.Second, 1)

	for i := 0; i < 3; i++ {
		d := l.Allow("client-a")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 2-i)
		}
	}

	d := l.Allow("client-a")
	if d.Allowed {
		t.Fatal("burst exhausted, request should be denied")
	}
	if d.ResetMs <= 0 || d.ResetMs > 1000 {
		t.Errorf("reset_ms = %d, want within (0, 1000]", d.ResetMs)
	}
}

func TestAllowLazyRefill(t *testing.T) {
	l, now := newTestLimiter(3, time.Second, 1)

	for i := 0; i < 3; i++ {
		l.Allow("c")
	}
	if l.Allow("c").Allowed {
		t.Fatal("expected denial after burst")
	}

	// A partial interval refills nothing.
	*now = now.Add(500 * time.Millisecond)
	if l.Allow("c").Allowed {
		t.Fatal("partial interval must not refill")
	}

	// One full interval refills one token.
	*now = now.Add(500 * time.Millisecond)
	if !l.Allow("c").Allowed {
		t.Fatal("one interval should refill one token")
	}
	if l.Allow("c").Allowed {
		t.Fatal("only one token should have been refilled")
	}
}

func TestAllowRefillCapsAtBurst(t *testing.T) {
	l, now := newTestLimiter(3, time.Second, 1)

	l.Allow("c")
	*now = now.Add(time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("c").Allowed {
			t.Fatalf("request %d should be allowed after long idle", i)
		}
	}
	if l.Allow("c").Allowed {
		t.Fatal("refill must cap at burst")
	}
}

func TestAllowIndependentClients(t *testing.T) {
	l, _ := newTestLimiter(1, time.Second, 1)

	if !l.Allow("a").Allowed {
		t.Fatal("first client should be allowed")
	}
	if !l.Allow("b").Allowed {
		t.Fatal("second client has its own bucket")
	}
	if l.Allow("a").Allowed {
		t.Fatal("first client is exhausted")
	}
}
