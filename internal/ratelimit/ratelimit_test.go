package ratelimit

import "testing"

func TestAllowDeniesBeyondCapacity(t *testing.T) {
	l := New(2)
	first, err := l.Allow()
	if !first || err != nil {
		t.Fatalf("expected first attempt allowed, got allowed=%v err=%v", first, err)
	}
	second, _ := l.Allow()
	if !second {
		t.Fatalf("expected second attempt (within burst) allowed")
	}
	third, err := l.Allow()
	if third {
		t.Fatalf("expected third immediate attempt to be denied")
	}
	if err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
