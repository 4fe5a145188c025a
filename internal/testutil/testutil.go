// Package testutil provides shared test utilities and fixtures.
//
// The helpers centralise assertions that recur across the reconstruction
// layers: error checks, float tolerances and small synthetic hit fixtures.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta fails the test when |got-want| exceeds delta or either value is NaN.
func AssertInDelta(t testing.TB, name string, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.IsNaN(want) || math.Abs(got-want) > delta {
		t.Errorf("%s = %g, want %g (+/- %g)", name, got, want, delta)
	}
}

// AssertRelative fails the test when got differs from want by more than the
// relative tolerance rel.
func AssertRelative(t testing.TB, name string, got, want, rel float64) {
	t.Helper()
	if want == 0 {
		AssertInDelta(t, name, got, want, rel)
		return
	}
	if math.IsNaN(got) || math.Abs(got-want)/math.Abs(want) > rel {
		t.Errorf("%s = %g, want %g (relative tolerance %g)", name, got, want, rel)
	}
}

// Gaussian returns n samples of amp*exp(-(i-mean)^2/(2 sigma^2)) at integer
// positions 0..n-1.
func Gaussian(n int, amp, mean, sigma float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		d := (float64(i) - mean) / sigma
		out[i] = amp * math.Exp(-0.5*d*d)
	}
	return out
}
