package config

import (
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l2cluster"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
	"github.com/banshee-data/tpcreco/internal/tpc/l5tracks"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
	"github.com/banshee-data/tpcreco/internal/tpc/pipeline"
)

// GetStripPitchMM returns the strip_pitch_mm value or the default.
func (c *RecoConfig) GetStripPitchMM() float64 {
	if c.StripPitchMM == nil {
		return geometry.DefaultStripPitchMM
	}
	return *c.StripPitchMM
}

// GetTimeBinMM returns the time_bin_mm value or the default.
func (c *RecoConfig) GetTimeBinMM() float64 {
	if c.TimeBinMM == nil {
		return geometry.DefaultTimeBinMM
	}
	return *c.TimeBinMM
}

// GetChamberRadiusMM returns the chamber_radius_mm value or the default.
func (c *RecoConfig) GetChamberRadiusMM() float64 {
	if c.ChamberRadiusMM == nil {
		return geometry.DefaultChamberRadiusMM
	}
	return *c.ChamberRadiusMM
}

// GetStripRebin returns the strip_rebin value or the default.
func (c *RecoConfig) GetStripRebin() int {
	if c.StripRebin == nil {
		return 1
	}
	return *c.StripRebin
}

// GetTimeRebin returns the time_rebin value or the default.
func (c *RecoConfig) GetTimeRebin() int {
	if c.TimeRebin == nil {
		return 1
	}
	return *c.TimeRebin
}

// GetSeedThreshold returns the seed_threshold value or the default.
func (c *RecoConfig) GetSeedThreshold() float64 {
	if c.SeedThreshold == nil {
		return l2cluster.DefaultSeedThreshold
	}
	return *c.SeedThreshold
}

// GetKernelSumThreshold returns the kernel_sum_threshold value or the default.
func (c *RecoConfig) GetKernelSumThreshold() float64 {
	if c.KernelSumThreshold == nil {
		return l2cluster.DefaultKernelSumThreshold
	}
	return *c.KernelSumThreshold
}

// GetEmptyBinThreshold returns the empty_bin_threshold value or the default.
func (c *RecoConfig) GetEmptyBinThreshold() float64 {
	if c.EmptyBinThreshold == nil {
		return l2cluster.DefaultEmptyBinThreshold
	}
	return *c.EmptyBinThreshold
}

// GetKernelRadiusStrip returns the kernel_radius_strip value or the default.
func (c *RecoConfig) GetKernelRadiusStrip() int {
	if c.KernelRadiusStrip == nil {
		return l2cluster.DefaultKernelRadius
	}
	return *c.KernelRadiusStrip
}

// GetKernelRadiusTime returns the kernel_radius_time value or the default.
func (c *RecoConfig) GetKernelRadiusTime() int {
	if c.KernelRadiusTime == nil {
		return l2cluster.DefaultKernelRadius
	}
	return *c.KernelRadiusTime
}

// GetSliceMaxThreshold returns the slice_max_threshold value or the default.
func (c *RecoConfig) GetSliceMaxThreshold() float64 {
	if c.SliceMaxThreshold == nil {
		return l3hits.DefaultSliceMaxThreshold
	}
	return *c.SliceMaxThreshold
}

// GetSliceIntegralThreshold returns the slice_integral_threshold value or the default.
func (c *RecoConfig) GetSliceIntegralThreshold() float64 {
	if c.SliceIntegralThreshold == nil {
		return l3hits.DefaultSliceIntegralThreshold
	}
	return *c.SliceIntegralThreshold
}

// GetSliceHalfWindow returns the slice_half_window value or the default.
func (c *RecoConfig) GetSliceHalfWindow() int {
	if c.SliceHalfWindow == nil {
		return l3hits.DefaultHalfWindow
	}
	return *c.SliceHalfWindow
}

// GetSliceEdgeFraction returns the slice_edge_fraction value or the default.
func (c *RecoConfig) GetSliceEdgeFraction() float64 {
	if c.SliceEdgeFraction == nil {
		return l3hits.DefaultEdgeFraction
	}
	return *c.SliceEdgeFraction
}

// GetSignalMSERatio returns the signal_mse_ratio value or the default.
func (c *RecoConfig) GetSignalMSERatio() float64 {
	if c.SignalMSERatio == nil {
		return l3hits.DefaultSignalMSERatio
	}
	return *c.SignalMSERatio
}

// GetDoublePeakMSERatio returns the double_peak_mse_ratio value or the default.
func (c *RecoConfig) GetDoublePeakMSERatio() float64 {
	if c.DoublePeakMSERatio == nil {
		return l3hits.DefaultDoublePeakMSERatio
	}
	return *c.DoublePeakMSERatio
}

// GetMinPeakSeparation returns the min_peak_separation value or the default.
func (c *RecoConfig) GetMinPeakSeparation() int {
	if c.MinPeakSeparation == nil {
		return l3hits.DefaultMinPeakSeparation
	}
	return *c.MinPeakSeparation
}

// GetHitSigmaMin returns the hit_sigma_min value or the default.
func (c *RecoConfig) GetHitSigmaMin() float64 {
	if c.HitSigmaMin == nil {
		return l3hits.DefaultSigmaMin
	}
	return *c.HitSigmaMin
}

// GetFallbackChargeFraction returns the fallback_charge_fraction value or the default.
func (c *RecoConfig) GetFallbackChargeFraction() float64 {
	if c.FallbackChargeFraction == nil {
		return l3hits.DefaultFallbackChargeFraction
	}
	return *c.FallbackChargeFraction
}

// GetHitCleanFraction returns the hit_clean_fraction value or the default.
func (c *RecoConfig) GetHitCleanFraction() float64 {
	if c.HitCleanFraction == nil {
		return l3hits.DefaultCleanFraction
	}
	return *c.HitCleanFraction
}

// GetHitCleanRadiusMM returns the hit_clean_radius_mm value or the default.
func (c *RecoConfig) GetHitCleanRadiusMM() float64 {
	if c.HitCleanRadiusMM == nil {
		return l3hits.DefaultCleanRadiusMM
	}
	return *c.HitCleanRadiusMM
}

// GetSliceMaxIterations returns the slice_max_iterations value or the default.
func (c *RecoConfig) GetSliceMaxIterations() int {
	if c.SliceMaxIterations == nil {
		return l3hits.DefaultMaxIterations
	}
	return *c.SliceMaxIterations
}

// GetSegmentLoss returns the segment_loss value or the default.
func (c *RecoConfig) GetSegmentLoss() string {
	if c.SegmentLoss == nil {
		return l4segments.LossTangentBias.String()
	}
	return *c.SegmentLoss
}

// GetHoughThetaBins returns the hough_theta_bins value or the default.
func (c *RecoConfig) GetHoughThetaBins() int {
	if c.HoughThetaBins == nil {
		return l4segments.DefaultHoughThetaBins
	}
	return *c.HoughThetaBins
}

// GetHoughRhoBinMM returns the hough_rho_bin_mm value or the default.
func (c *RecoConfig) GetHoughRhoBinMM() float64 {
	if c.HoughRhoBinMM == nil {
		return l4segments.DefaultHoughRhoBinMM
	}
	return *c.HoughRhoBinMM
}

// GetHoughPeakMargin returns the hough_peak_margin value or the default.
func (c *RecoConfig) GetHoughPeakMargin() int {
	if c.HoughPeakMargin == nil {
		return l4segments.DefaultHoughPeakMargin
	}
	return *c.HoughPeakMargin
}

// GetHoughMaxPeaks returns the hough_max_peaks value or the default.
func (c *RecoConfig) GetHoughMaxPeaks() int {
	if c.HoughMaxPeaks == nil {
		return l4segments.DefaultHoughMaxPeaks
	}
	return *c.HoughMaxPeaks
}

// GetHoughMinHits returns the hough_min_hits value or the default.
func (c *RecoConfig) GetHoughMinHits() int {
	if c.HoughMinHits == nil {
		return l4segments.DefaultHoughMinHits
	}
	return *c.HoughMinHits
}

// GetLossCombine returns the loss_combine value or the default.
func (c *RecoConfig) GetLossCombine() string {
	if c.LossCombine == nil {
		return l5tracks.CombineSum.String()
	}
	return *c.LossCombine
}

// GetLossProjection returns the loss_projection value or the default.
func (c *RecoConfig) GetLossProjection() int {
	if c.LossProjection == nil {
		return l5tracks.AllProjections
	}
	return *c.LossProjection
}

// GetChamberRadiusOverrideMM returns the chamber_radius_override_mm value or the default.
func (c *RecoConfig) GetChamberRadiusOverrideMM() float64 {
	if c.ChamberRadiusOverrideMM == nil {
		return 0
	}
	return *c.ChamberRadiusOverrideMM
}

// GetExtendShrink returns the extend_shrink value or the default.
func (c *RecoConfig) GetExtendShrink() bool {
	if c.ExtendShrink == nil {
		return true
	}
	return *c.ExtendShrink
}

// GetMaxSplits returns the max_splits value or the default.
func (c *RecoConfig) GetMaxSplits() int {
	if c.MaxSplits == nil {
		return 0
	}
	return *c.MaxSplits
}

// GetRadiusCutMM returns the radius_cut_mm value or the default.
func (c *RecoConfig) GetRadiusCutMM() float64 {
	if c.RadiusCutMM == nil {
		return l5tracks.DefaultRadiusCut
	}
	return *c.RadiusCutMM
}

// GetOptimizerMaxIterations returns the optimizer_max_iterations value or the default.
func (c *RecoConfig) GetOptimizerMaxIterations() int {
	if c.OptimizerMaxIterations == nil {
		return optimizer.DefaultSettings().MaxIterations
	}
	return *c.OptimizerMaxIterations
}

// GetOptimizerMaxEvaluations returns the optimizer_max_evaluations value or the default.
func (c *RecoConfig) GetOptimizerMaxEvaluations() int {
	if c.OptimizerMaxEvaluations == nil {
		return optimizer.DefaultSettings().MaxEvaluations
	}
	return *c.OptimizerMaxEvaluations
}

// GetOptimizerTolerance returns the optimizer_tolerance value or the default.
func (c *RecoConfig) GetOptimizerTolerance() float64 {
	if c.OptimizerTolerance == nil {
		return optimizer.DefaultSettings().Tolerance
	}
	return *c.OptimizerTolerance
}

// GetProfileBinWidthMM returns the profile_bin_width_mm value or the default.
func (c *RecoConfig) GetProfileBinWidthMM() float64 {
	if c.ProfileBinWidthMM == nil {
		return pipeline.DefaultProfileBinWidthMM
	}
	return *c.ProfileBinWidthMM
}

// GetGasMixture returns the gas_mixture value or the default.
func (c *RecoConfig) GetGasMixture() string {
	if c.GasMixture == nil {
		return string(l6pid.GasCO2)
	}
	return *c.GasMixture
}

// GetGasPressureMbar returns the gas_pressure_mbar value or the default.
func (c *RecoConfig) GetGasPressureMbar() float64 {
	if c.GasPressureMbar == nil {
		return l6pid.ReferencePressureMbar
	}
	return *c.GasPressureMbar
}

// GetGasTemperatureK returns the gas_temperature_k value or the default.
func (c *RecoConfig) GetGasTemperatureK() float64 {
	if c.GasTemperatureK == nil {
		return l6pid.ReferenceTemperatureK
	}
	return *c.GasTemperatureK
}

// GetBuiltinCurvesOff returns the builtin_curves_off value or the default.
func (c *RecoConfig) GetBuiltinCurvesOff() bool {
	if c.BuiltinCurvesOff == nil {
		return false
	}
	return *c.BuiltinCurvesOff
}

// GetPIDEnabled returns the pid_enabled value or the default.
func (c *RecoConfig) GetPIDEnabled() bool {
	if c.PIDEnabled == nil {
		return true
	}
	return *c.PIDEnabled
}

// GetPIDReflection returns the pid_reflection value or the default.
func (c *RecoConfig) GetPIDReflection() bool {
	if c.PIDReflection == nil {
		return true
	}
	return *c.PIDReflection
}

// GetPIDVertexWindowMM returns the pid_vertex_window_mm value or the default.
func (c *RecoConfig) GetPIDVertexWindowMM() float64 {
	if c.PIDVertexWindowMM == nil {
		return l6pid.DefaultVertexWindowMM
	}
	return *c.PIDVertexWindowMM
}

// GetPIDMinSecondaryRangeMM returns the pid_min_secondary_range_mm value or the default.
func (c *RecoConfig) GetPIDMinSecondaryRangeMM() float64 {
	if c.PIDMinSecondaryRangeMM == nil {
		return l6pid.DefaultMinSecondaryRangeMM
	}
	return *c.PIDMinSecondaryRangeMM
}

// GetPIDMaxSecondaryEnergyMeV returns the pid_max_secondary_energy_mev value or the default.
func (c *RecoConfig) GetPIDMaxSecondaryEnergyMeV() float64 {
	if c.PIDMaxSecondaryEnergyMeV == nil {
		return l6pid.DefaultMaxSecondaryEnergyMeV
	}
	return *c.PIDMaxSecondaryEnergyMeV
}

// GetPIDSigmaMinMM returns the pid_sigma_min_mm value or the default.
func (c *RecoConfig) GetPIDSigmaMinMM() float64 {
	if c.PIDSigmaMinMM == nil {
		return l6pid.DefaultSigmaMinMM
	}
	return *c.PIDSigmaMinMM
}

// GetPIDSigmaMaxMM returns the pid_sigma_max_mm value or the default.
func (c *RecoConfig) GetPIDSigmaMaxMM() float64 {
	if c.PIDSigmaMaxMM == nil {
		return l6pid.DefaultSigmaMaxMM
	}
	return *c.PIDSigmaMaxMM
}

// GetPIDMaxRefits returns the pid_max_refits value or the default.
func (c *RecoConfig) GetPIDMaxRefits() int {
	if c.PIDMaxRefits == nil {
		return l6pid.DefaultMaxRefits
	}
	return *c.PIDMaxRefits
}

// GetPIDChi2Threshold returns the pid_chi2_threshold value or the default.
func (c *RecoConfig) GetPIDChi2Threshold() float64 {
	if c.PIDChi2Threshold == nil {
		return l6pid.DefaultChi2Threshold
	}
	return *c.PIDChi2Threshold
}

// GetFitModes returns the fit_modes sequence or the default sequence.
func (c *RecoConfig) GetFitModes() []string {
	if len(c.FitModes) > 0 {
		return append([]string(nil), c.FitModes...)
	}
	var names []string
	for _, m := range l5tracks.DefaultFitModes() {
		names = append(names, m.String())
	}
	return names
}

// GetPIDHypotheses returns the pid_hypotheses list or ALPHA and C12_ALPHA.
func (c *RecoConfig) GetPIDHypotheses() []string {
	if len(c.PIDHypotheses) > 0 {
		return append([]string(nil), c.PIDHypotheses...)
	}
	var names []string
	for _, t := range l6pid.DefaultFitterParams().Hypotheses {
		names = append(names, t.String())
	}
	return names
}
