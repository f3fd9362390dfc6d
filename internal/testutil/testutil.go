// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common numeric assertions to reduce code
// duplication across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want. NaN never
// matches.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("got %g, want %g (within %g)", got, want, delta)
	}
}

// AssertAllInDelta checks two equal-length coordinate slices elementwise.
func AssertAllInDelta(t *testing.T, got, want []float64, delta float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d coordinates, want %d", len(got), len(want))
	}
	for i := range got {
		if math.IsNaN(got[i]) || math.Abs(got[i]-want[i]) > delta {
			t.Errorf("coordinate %d = %g, want %g (within %g)", i, got[i], want[i], delta)
			return
		}
	}
}

// AssertNaN checks that v is NaN, the convention for absent optional
// measurements.
func AssertNaN(t *testing.T, v float64) {
	t.Helper()
	if !math.IsNaN(v) {
		t.Errorf("got %g, want NaN", v)
	}
}
