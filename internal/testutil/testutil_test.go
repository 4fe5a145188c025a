package testutil

import (
	"errors"
	"math"
	"testing"
)

// recorder captures failures so the helpers' failure paths can be checked
// without failing the enclosing test.
type recorder struct {
	testing.TB
	failed bool
}

func (r *recorder) Helper()                       {}
func (r *recorder) Errorf(string, ...interface{}) { r.failed = true }
func (r *recorder) Fatalf(string, ...interface{}) { r.failed = true }
func (r *recorder) Fatal(...interface{})          { r.failed = true }

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)

	r := &recorder{}
	AssertNoError(r, errors.New("boom"))
	if !r.failed {
		t.Error("AssertNoError accepted a non-nil error")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))

	r := &recorder{}
	AssertError(r, nil)
	if !r.failed {
		t.Error("AssertError accepted a nil error")
	}
}

func TestAssertInDelta(t *testing.T) {
	t.Parallel()

	AssertInDelta(t, "x", 1.05, 1.0, 0.1)

	tests := []struct {
		name      string
		got, want float64
	}{
		{"outside", 1.2, 1.0},
		{"nan", math.NaN(), 1.0},
	}
	for _, tt := range tests {
		r := &recorder{}
		AssertInDelta(r, tt.name, tt.got, tt.want, 0.1)
		if !r.failed {
			t.Errorf("%s: expected failure", tt.name)
		}
	}
}

func TestAssertRelative(t *testing.T) {
	t.Parallel()

	AssertRelative(t, "length", 101, 100, 0.02)
	AssertRelative(t, "zero", 0.001, 0, 0.01)

	r := &recorder{}
	AssertRelative(r, "length", 103, 100, 0.02)
	if !r.failed {
		t.Error("AssertRelative accepted a 3% deviation at 2% tolerance")
	}
}

func TestGaussian(t *testing.T) {
	t.Parallel()

	g := Gaussian(21, 10, 10, 2)
	if g[10] != 10 {
		t.Errorf("peak = %g, want 10", g[10])
	}
	if math.Abs(g[8]-g[12]) > 1e-12 {
		t.Errorf("asymmetric samples %g vs %g", g[8], g[12])
	}
}
