package l3hits

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
)

var sqrt2Pi = math.Sqrt(2 * math.Pi)

// Model identifies the model chosen for a slice.
type Model int

const (
	// ModelSkipped marks a slice below threshold or whose fit failed.
	ModelSkipped Model = iota
	ModelNoise
	ModelSingle
	ModelDouble
)

func (m Model) String() string {
	switch m {
	case ModelNoise:
		return "noise"
	case ModelSingle:
		return "single"
	case ModelDouble:
		return "double"
	}
	return "skipped"
}

// Peak is one fitted Gaussian in slice-index units.
type Peak struct {
	Amplitude float64
	Mean      float64
	Sigma     float64
}

// Charge returns the integral of the peak, A*sigma*sqrt(2pi).
func (p Peak) Charge() float64 { return p.Amplitude * p.Sigma * sqrt2Pi }

func (p Peak) at(x float64) float64 {
	d := (x - p.Mean) / p.Sigma
	return p.Amplitude * math.Exp(-0.5*d*d)
}

// SliceFit is the outcome of fitting one 1-D slice.
type SliceFit struct {
	Model Model
	// Peaks holds the accepted peaks (none unless Model is single or double).
	Peaks []Peak
	// Lo and Hi bound the fitted window (inclusive slice indices).
	Lo, Hi    int
	MSENoise  float64
	MSESingle float64
	MSEDouble float64
	Converged bool
}

// FitSlice fits one slice of cell values with the noise, single-peak and,
// when a second resolvable maximum exists, double-peak models.
func (f *Fitter) FitSlice(values []float64) SliceFit {
	p := f.params
	n := len(values)
	if n == 0 {
		return SliceFit{}
	}
	m := floats.MaxIdx(values)
	vmax := values[m]
	if vmax < p.SliceMaxThreshold {
		return SliceFit{}
	}

	// Window: first/last bins above EdgeFraction*max within HalfWindow of the
	// maximum, made symmetric and padded by one bin.
	edge := p.EdgeFraction * vmax
	first, last := m, m
	for k := max(0, m-p.HalfWindow); k <= min(n-1, m+p.HalfWindow); k++ {
		if values[k] >= edge {
			first = min(first, k)
			last = max(last, k)
		}
	}
	half := max(m-first, last-m)
	lo, hi := max(0, m-half-1), min(n-1, m+half+1)
	window := values[lo : hi+1]
	fit := SliceFit{Lo: lo, Hi: hi}

	if floats.Sum(window) < p.SliceIntegralThreshold {
		return fit
	}

	xs := make([]float64, len(window))
	for k := range xs {
		xs[k] = float64(lo + k)
	}

	noise := stat.Mean(window, nil)
	fit.MSENoise = mse(window, func(int) float64 { return noise })
	fit.Model = ModelNoise
	if fit.MSENoise == 0 {
		fit.Converged = true
		return fit
	}

	single, mseSingle, ok := f.fitPeaks(xs, window, []int{m}, half)
	if !ok {
		return SliceFit{Lo: lo, Hi: hi, MSENoise: fit.MSENoise}
	}
	fit.MSESingle = mseSingle
	fit.Converged = true
	best, bestMSE, bestModel := single, mseSingle, ModelSingle

	if second := f.secondMaximum(values, lo, hi, m); second >= 0 {
		double, mseDouble, ok := f.fitPeaks(xs, window, []int{m, second}, half)
		if ok {
			fit.MSEDouble = mseDouble
			if mseDouble < p.DoublePeakMSERatio*mseSingle {
				best, bestMSE, bestModel = double, mseDouble, ModelDouble
			}
		}
	}

	if bestMSE < p.SignalMSERatio*fit.MSENoise {
		fit.Model = bestModel
		fit.Peaks = best
	}
	return fit
}

// secondMaximum returns the index of the highest local maximum in [lo, hi]
// other than m that reaches EdgeFraction of the maximum and is at least
// MinPeakSeparation bins away, or -1.
func (f *Fitter) secondMaximum(values []float64, lo, hi, m int) int {
	p := f.params
	thr := p.EdgeFraction * values[m]
	best := -1
	for k := max(lo, 1); k <= min(hi, len(values)-2); k++ {
		if abs(k-m) < p.MinPeakSeparation {
			continue
		}
		v := values[k]
		if v < thr || v < values[k-1] || v <= values[k+1] {
			continue
		}
		if best < 0 || v > values[best] {
			best = k
		}
	}
	return best
}

// fitPeaks fits one Gaussian per entry of centres (slice indices) to the
// window and returns the peaks, the mean squared residual and whether the
// minimizer converged.
func (f *Fitter) fitPeaks(xs, window []float64, centres []int, half int) ([]Peak, float64, bool) {
	p := f.params
	sigmaHi := math.Max(float64(half), 1.5)
	meanTol := math.Max(0.8*float64(half), 1)
	if len(centres) > 1 {
		meanTol = math.Max(0.4*math.Abs(float64(centres[1]-centres[0])), 1)
	}

	lo := int(xs[0])
	params := make([]optimizer.Param, 0, 3*len(centres))
	for _, c := range centres {
		amp := window[c-lo]
		sigma0 := math.Min(math.Max(momentSigma(xs, window, float64(c), meanTol), p.SigmaMin), sigmaHi)
		params = append(params,
			optimizer.Bounded("amplitude", amp, 0.1*amp, 0.5*amp, 1.5*amp),
			optimizer.Bounded("mean", float64(c), 0.25, float64(c)-meanTol, float64(c)+meanTol),
			optimizer.Bounded("sigma", sigma0, 0.2*sigma0, p.SigmaMin, sigmaHi),
		)
	}

	peaks := make([]Peak, len(centres))
	eval := optimizer.EvaluatorFunc(func(x []float64) float64 {
		for i := range peaks {
			peaks[i] = Peak{Amplitude: x[3*i], Mean: x[3*i+1], Sigma: x[3*i+2]}
		}
		return mse(window, func(k int) float64 {
			var s float64
			for _, pk := range peaks {
				s += pk.at(xs[k])
			}
			return s
		})
	})

	res, err := f.minimizer.Minimize(eval, params)
	if err != nil || !res.Converged {
		return nil, 0, false
	}
	out := make([]Peak, len(centres))
	for i := range out {
		out[i] = Peak{Amplitude: res.Params[3*i], Mean: res.Params[3*i+1], Sigma: res.Params[3*i+2]}
	}
	return out, res.Loss, true
}

// momentSigma estimates a width from the positive charge within tol of centre.
func momentSigma(xs, window []float64, centre, tol float64) float64 {
	var x, w []float64
	for k, v := range window {
		if v > 0 && math.Abs(xs[k]-centre) <= tol+1 {
			x = append(x, xs[k])
			w = append(w, v)
		}
	}
	if len(x) < 2 {
		return 1
	}
	_, variance := stat.PopMeanVariance(x, w)
	return math.Sqrt(variance)
}

func mse(values []float64, model func(k int) float64) float64 {
	var s float64
	for k, v := range values {
		d := v - model(k)
		s += d * d
	}
	return s / float64(len(values))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
