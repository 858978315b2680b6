package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_BasicFunctionality(t *testing.T) {
	// 3 requests per 100ms window
	l := New(100*time.Millisecond, 3, 50*time.Millisecond)
	defer l.Stop()

	identity := "user_1"

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := l.Allow(identity)
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
		if remaining != 3-(i+1) {
			t.Errorf("Request %d: expected remaining %d, got %d", i+1, 3-(i+1), remaining)
		}
	}

	allowed, remaining, retryAfter := l.Allow(identity)
	if allowed {
		t.Error("4th request should be rejected")
	}
	if remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", remaining)
	}
	if retryAfter <= 0 {
		t.Errorf("Expected positive retry-after, got %d", retryAfter)
	}
}

func TestLimiter_WindowSliding(t *testing.T) {
	// 2 requests per 50ms window
	l := New(50*time.Millisecond, 2, 25*time.Millisecond)
	defer l.Stop()

	identity := "user_1"

	for i := 0; i < 2; i++ {
		if allowed, _, _ := l.Allow(identity); !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}
	if allowed, _, _ := l.Allow(identity); allowed {
		t.Error("Third request should be rejected")
	}

	// Let the window slide past the recorded timestamps
	time.Sleep(60 * time.Millisecond)

	if allowed, _, _ := l.Allow(identity); !allowed {
		t.Error("Request after window slide should be allowed")
	}
	if allowed, _, _ := l.Allow(identity); !allowed {
		t.Error("Second request after window slide should be allowed")
	}
	if allowed, _, _ := l.Allow(identity); allowed {
		t.Error("Third request after window slide should be rejected")
	}
}

func TestLimiter_IndependentIdentities(t *testing.T) {
	l := New(100*time.Millisecond, 2, 50*time.Millisecond)
	defer l.Stop()

	for _, identity := range []string{"alice", "bob", "carol"} {
		if allowed, _, _ := l.Allow(identity); !allowed {
			t.Errorf("First request for %s should be allowed", identity)
		}
		if allowed, _, _ := l.Allow(identity); !allowed {
			t.Errorf("Second request for %s should be allowed", identity)
		}
		if allowed, _, _ := l.Allow(identity); allowed {
			t.Errorf("Third request for %s should be rejected", identity)
		}
	}
}

func TestLimiter_DeniedAttemptsNotRecorded(t *testing.T) {
	l := New(100*time.Millisecond, 1, 50*time.Millisecond)
	defer l.Stop()

	identity := "user_1"
	l.Allow(identity)

	// Hammer the limiter while denied; the window must still hold exactly
	// one timestamp so the original reservation expires on schedule.
	for i := 0; i < 5; i++ {
		l.Allow(identity)
	}

	stats := l.GetStats()
	if stats.TrackedRequests != 1 {
		t.Errorf("Expected 1 tracked request, got %d", stats.TrackedRequests)
	}
}

func TestLimiter_ConcurrentSameIdentity(t *testing.T) {
	// Limit well below total attempts; the per-identity lock must hold the
	// admitted count to exactly the limit.
	l := New(200*time.Millisecond, 100, 100*time.Millisecond)
	defer l.Stop()

	numGoroutines := 10
	requestsPerGoroutine := 20
	var wg sync.WaitGroup
	var allowedCount int32

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				if allowed, _, _ := l.Allow("shared_identity"); allowed {
					atomic.AddInt32(&allowedCount, 1)
				}
			}
		}()
	}

	wg.Wait()

	if allowedCount != 100 {
		t.Errorf("Expected exactly 100 allowed requests, got %d", allowedCount)
	}
}

func TestLimiter_IdleEviction(t *testing.T) {
	l := New(50*time.Millisecond, 5, 10*time.Millisecond)
	defer l.Stop()

	identities := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, identity := range identities {
		l.Allow(identity)
	}

	stats := l.GetStats()
	if stats.ActiveIdentities != 5 {
		t.Errorf("Expected 5 active identities, got %d", stats.ActiveIdentities)
	}

	// Idle longer than 2x window; cleanup should drop every window
	time.Sleep(120 * time.Millisecond)

	stats = l.GetStats()
	if stats.ActiveIdentities != 0 {
		t.Errorf("Expected 0 active identities after eviction, got %d", stats.ActiveIdentities)
	}
}

func TestLimiter_RetryAfterCalculation(t *testing.T) {
	l := New(100*time.Millisecond, 1, 50*time.Millisecond)
	defer l.Stop()

	identity := "user_1"
	l.Allow(identity)

	allowed, _, retryAfter := l.Allow(identity)
	if allowed {
		t.Error("Second request should be rejected")
	}
	if retryAfter < 1 || retryAfter > 100 {
		t.Errorf("Retry-after %d out of expected range", retryAfter)
	}
}

func TestLimiter_ZeroCleanupInterval(t *testing.T) {
	// A zero cleanup interval must not panic the ticker; it falls back to
	// the window duration
	l := New(time.Minute, 5, 0)
	defer l.Stop()

	allowed, remaining, _ := l.Allow("user_1")
	if !allowed {
		t.Error("First request should be allowed")
	}
	if remaining != 4 {
		t.Errorf("Expected 4 remaining, got %d", remaining)
	}
}

func TestLimiter_ZeroWindowAndCleanup(t *testing.T) {
	l := New(0, 5, 0)
	defer l.Stop()

	if allowed, _, _ := l.Allow("user_1"); !allowed {
		t.Error("First request should be allowed")
	}
}

func BenchmarkLimiter_Allow(b *testing.B) {
	l := New(time.Minute, 1000, 30*time.Second)
	defer l.Stop()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.Allow("bench_identity")
		}
	})
}
