package main

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0: expected 1, got %v", got)
	}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50: expected 5, got %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100: expected 10, got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty: expected 0, got %v", got)
	}
}

func TestSessionForIsConsistent(t *testing.T) {
	for i := 0; i < 6; i++ {
		s := sessionFor(i, 12345)
		if !s.Consistent() {
			t.Fatalf("sessionFor(%d) not consistent: %+v", i, s)
		}
	}
}
