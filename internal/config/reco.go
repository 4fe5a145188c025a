package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/tpcreco/internal/fsutil"
	"github.com/banshee-data/tpcreco/internal/tpc/geometry"
	"github.com/banshee-data/tpcreco/internal/tpc/l2cluster"
	"github.com/banshee-data/tpcreco/internal/tpc/l3hits"
	"github.com/banshee-data/tpcreco/internal/tpc/l4segments"
	"github.com/banshee-data/tpcreco/internal/tpc/l5tracks"
	"github.com/banshee-data/tpcreco/internal/tpc/l6pid"
	"github.com/banshee-data/tpcreco/internal/tpc/optimizer"
	"github.com/banshee-data/tpcreco/internal/tpc/pipeline"
	"github.com/banshee-data/tpcreco/internal/units"
)

// DefaultConfigPath is the path to the canonical reconstruction defaults
// file.
const DefaultConfigPath = "config/reco.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RangeTableConfig names an external range table to load into the range
// calculator.
type RangeTableConfig struct {
	Gas          string  `json:"gas,omitempty" yaml:"gas,omitempty"`
	Ion          string  `json:"ion" yaml:"ion"`
	Path         string  `json:"path" yaml:"path"`
	EnergyUnit   string  `json:"energy_unit,omitempty" yaml:"energy_unit,omitempty"`
	RangeUnit    string  `json:"range_unit,omitempty" yaml:"range_unit,omitempty"`
	EnergyColumn int     `json:"energy_column,omitempty" yaml:"energy_column,omitempty"`
	RangeColumn  int     `json:"range_column,omitempty" yaml:"range_column,omitempty"`
	PressureMbar float64 `json:"pressure_mbar,omitempty" yaml:"pressure_mbar,omitempty"`
	TemperatureK float64 `json:"temperature_k,omitempty" yaml:"temperature_k,omitempty"`
}

// RecoConfig holds the reconstruction options. Nil fields take the
// built-in defaults through the Get accessors, so partial files are safe.
type RecoConfig struct {
	// Geometry
	StripPitchMM    *float64 `json:"strip_pitch_mm,omitempty" yaml:"strip_pitch_mm,omitempty"`
	TimeBinMM       *float64 `json:"time_bin_mm,omitempty" yaml:"time_bin_mm,omitempty"`
	ChamberRadiusMM *float64 `json:"chamber_radius_mm,omitempty" yaml:"chamber_radius_mm,omitempty"`

	// Charge map and clustering
	StripRebin         *int     `json:"strip_rebin,omitempty" yaml:"strip_rebin,omitempty"`
	TimeRebin          *int     `json:"time_rebin,omitempty" yaml:"time_rebin,omitempty"`
	SeedThreshold      *float64 `json:"seed_threshold,omitempty" yaml:"seed_threshold,omitempty"`
	KernelSumThreshold *float64 `json:"kernel_sum_threshold,omitempty" yaml:"kernel_sum_threshold,omitempty"`
	EmptyBinThreshold  *float64 `json:"empty_bin_threshold,omitempty" yaml:"empty_bin_threshold,omitempty"`
	KernelRadiusStrip  *int     `json:"kernel_radius_strip,omitempty" yaml:"kernel_radius_strip,omitempty"`
	KernelRadiusTime   *int     `json:"kernel_radius_time,omitempty" yaml:"kernel_radius_time,omitempty"`

	// Slice fits
	SliceMaxThreshold      *float64 `json:"slice_max_threshold,omitempty" yaml:"slice_max_threshold,omitempty"`
	SliceIntegralThreshold *float64 `json:"slice_integral_threshold,omitempty" yaml:"slice_integral_threshold,omitempty"`
	SliceHalfWindow        *int     `json:"slice_half_window,omitempty" yaml:"slice_half_window,omitempty"`
	SliceEdgeFraction      *float64 `json:"slice_edge_fraction,omitempty" yaml:"slice_edge_fraction,omitempty"`
	SignalMSERatio         *float64 `json:"signal_mse_ratio,omitempty" yaml:"signal_mse_ratio,omitempty"`
	DoublePeakMSERatio     *float64 `json:"double_peak_mse_ratio,omitempty" yaml:"double_peak_mse_ratio,omitempty"`
	MinPeakSeparation      *int     `json:"min_peak_separation,omitempty" yaml:"min_peak_separation,omitempty"`
	HitSigmaMin            *float64 `json:"hit_sigma_min,omitempty" yaml:"hit_sigma_min,omitempty"`
	FallbackChargeFraction *float64 `json:"fallback_charge_fraction,omitempty" yaml:"fallback_charge_fraction,omitempty"`
	HitCleanFraction       *float64 `json:"hit_clean_fraction,omitempty" yaml:"hit_clean_fraction,omitempty"`
	HitCleanRadiusMM       *float64 `json:"hit_clean_radius_mm,omitempty" yaml:"hit_clean_radius_mm,omitempty"`
	SliceMaxIterations     *int     `json:"slice_max_iterations,omitempty" yaml:"slice_max_iterations,omitempty"`

	// Segments and track assembly
	SegmentLoss             *string  `json:"segment_loss,omitempty" yaml:"segment_loss,omitempty"`
	HoughThetaBins          *int     `json:"hough_theta_bins,omitempty" yaml:"hough_theta_bins,omitempty"`
	HoughRhoBinMM           *float64 `json:"hough_rho_bin_mm,omitempty" yaml:"hough_rho_bin_mm,omitempty"`
	HoughPeakMargin         *int     `json:"hough_peak_margin,omitempty" yaml:"hough_peak_margin,omitempty"`
	HoughMaxPeaks           *int     `json:"hough_max_peaks,omitempty" yaml:"hough_max_peaks,omitempty"`
	HoughMinHits            *int     `json:"hough_min_hits,omitempty" yaml:"hough_min_hits,omitempty"`
	FitModes                []string `json:"fit_modes,omitempty" yaml:"fit_modes,omitempty"`
	LossCombine             *string  `json:"loss_combine,omitempty" yaml:"loss_combine,omitempty"`
	LossProjection          *int     `json:"loss_projection,omitempty" yaml:"loss_projection,omitempty"` // -1 = all
	ChamberRadiusOverrideMM *float64 `json:"chamber_radius_override_mm,omitempty" yaml:"chamber_radius_override_mm,omitempty"`
	ExtendShrink            *bool    `json:"extend_shrink,omitempty" yaml:"extend_shrink,omitempty"`
	MaxSplits               *int     `json:"max_splits,omitempty" yaml:"max_splits,omitempty"`
	RadiusCutMM             *float64 `json:"radius_cut_mm,omitempty" yaml:"radius_cut_mm,omitempty"`
	OptimizerMaxIterations  *int     `json:"optimizer_max_iterations,omitempty" yaml:"optimizer_max_iterations,omitempty"`
	OptimizerMaxEvaluations *int     `json:"optimizer_max_evaluations,omitempty" yaml:"optimizer_max_evaluations,omitempty"`
	OptimizerTolerance      *float64 `json:"optimizer_tolerance,omitempty" yaml:"optimizer_tolerance,omitempty"`
	ProfileBinWidthMM       *float64 `json:"profile_bin_width_mm,omitempty" yaml:"profile_bin_width_mm,omitempty"`

	// Gas and range tables
	GasMixture       *string            `json:"gas_mixture,omitempty" yaml:"gas_mixture,omitempty"`
	GasPressureMbar  *float64           `json:"gas_pressure_mbar,omitempty" yaml:"gas_pressure_mbar,omitempty"`
	GasTemperatureK  *float64           `json:"gas_temperature_k,omitempty" yaml:"gas_temperature_k,omitempty"`
	RangeTables      []RangeTableConfig `json:"range_tables,omitempty" yaml:"range_tables,omitempty"`
	BuiltinCurvesOff *bool              `json:"builtin_curves_off,omitempty" yaml:"builtin_curves_off,omitempty"`

	// Particle identification
	PIDEnabled               *bool    `json:"pid_enabled,omitempty" yaml:"pid_enabled,omitempty"`
	PIDHypotheses            []string `json:"pid_hypotheses,omitempty" yaml:"pid_hypotheses,omitempty"`
	PIDReflection            *bool    `json:"pid_reflection,omitempty" yaml:"pid_reflection,omitempty"`
	PIDVertexWindowMM        *float64 `json:"pid_vertex_window_mm,omitempty" yaml:"pid_vertex_window_mm,omitempty"`
	PIDMinSecondaryRangeMM   *float64 `json:"pid_min_secondary_range_mm,omitempty" yaml:"pid_min_secondary_range_mm,omitempty"`
	PIDMaxSecondaryEnergyMeV *float64 `json:"pid_max_secondary_energy_mev,omitempty" yaml:"pid_max_secondary_energy_mev,omitempty"`
	PIDSigmaMinMM            *float64 `json:"pid_sigma_min_mm,omitempty" yaml:"pid_sigma_min_mm,omitempty"`
	PIDSigmaMaxMM            *float64 `json:"pid_sigma_max_mm,omitempty" yaml:"pid_sigma_max_mm,omitempty"`
	PIDMaxRefits             *int     `json:"pid_max_refits,omitempty" yaml:"pid_max_refits,omitempty"`
	PIDChi2Threshold         *float64 `json:"pid_chi2_threshold,omitempty" yaml:"pid_chi2_threshold,omitempty"`
}

// EmptyRecoConfig returns a RecoConfig with every field nil.
func EmptyRecoConfig() *RecoConfig {
	return &RecoConfig{}
}

// LoadRecoConfig loads a RecoConfig from a .json, .yaml or .yml file no
// larger than 1MB and validates it.
func LoadRecoConfig(path string) (*RecoConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRecoConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *RecoConfig {
	prefix := ""
	for i := 0; i < 6; i++ {
		if cfg, err := LoadRecoConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
		prefix += "../"
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// JSON returns the configuration as compact JSON, as stored with runs.
func (c *RecoConfig) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Validate checks that the configuration values are valid.
func (c *RecoConfig) Validate() error {
	for name, v := range map[string]*float64{
		"strip_pitch_mm":       c.StripPitchMM,
		"time_bin_mm":          c.TimeBinMM,
		"chamber_radius_mm":    c.ChamberRadiusMM,
		"profile_bin_width_mm": c.ProfileBinWidthMM,
		"gas_pressure_mbar":    c.GasPressureMbar,
		"gas_temperature_k":    c.GasTemperatureK,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}
	if c.LossProjection != nil {
		if p := *c.LossProjection; p != l5tracks.AllProjections && !geometry.Projection(p).Valid() {
			return fmt.Errorf("loss_projection must be -1 or a projection index 0..%d, got %d", geometry.NumProjections-1, p)
		}
	}
	if c.MaxSplits != nil && *c.MaxSplits < 0 {
		return fmt.Errorf("max_splits must be non-negative, got %d", *c.MaxSplits)
	}
	if c.HitCleanFraction != nil && (*c.HitCleanFraction < 0 || *c.HitCleanFraction >= 1) {
		return fmt.Errorf("hit_clean_fraction must be in [0, 1), got %g", *c.HitCleanFraction)
	}
	if c.HitCleanRadiusMM != nil && *c.HitCleanRadiusMM < 0 {
		return fmt.Errorf("hit_clean_radius_mm must be non-negative, got %g", *c.HitCleanRadiusMM)
	}
	for i, t := range c.RangeTables {
		if t.Ion == "" || t.Path == "" {
			return fmt.Errorf("range_tables[%d]: ion and path are required", i)
		}
		if t.EnergyUnit != "" && !units.IsValidEnergy(t.EnergyUnit) {
			return fmt.Errorf("range_tables[%d]: unknown energy unit %q", i, t.EnergyUnit)
		}
		if t.RangeUnit != "" && !units.IsValidLength(t.RangeUnit) {
			return fmt.Errorf("range_tables[%d]: unknown range unit %q", i, t.RangeUnit)
		}
	}

	// Enumerations and cross-field checks are done by the stage parameter
	// validators.
	p, err := c.PipelineParams()
	if err != nil {
		return err
	}
	if c.GetPIDEnabled() {
		if err := p.PID.Validate(); err != nil {
			return fmt.Errorf("pid: %w", err)
		}
	}
	return nil
}

// Geometry builds the UVW geometry.
func (c *RecoConfig) Geometry() *geometry.UVW {
	return geometry.NewUVW(c.GetStripPitchMM(), c.GetTimeBinMM(), c.GetChamberRadiusMM())
}

// PipelineParams builds the parameters of every reconstruction stage.
func (c *RecoConfig) PipelineParams() (pipeline.Params, error) {
	p := pipeline.DefaultParams()
	p.StripRebin = c.GetStripRebin()
	p.TimeRebin = c.GetTimeRebin()
	p.ProfileBinWidth = c.GetProfileBinWidthMM()

	p.Cluster = l2cluster.Params{
		SeedThreshold:      c.GetSeedThreshold(),
		KernelSumThreshold: c.GetKernelSumThreshold(),
		EmptyBinThreshold:  c.GetEmptyBinThreshold(),
		Kernel:             l2cluster.Radius{Strip: c.GetKernelRadiusStrip(), Time: c.GetKernelRadiusTime()},
	}

	h := l3hits.DefaultParams()
	h.SliceMaxThreshold = c.GetSliceMaxThreshold()
	h.SliceIntegralThreshold = c.GetSliceIntegralThreshold()
	h.HalfWindow = c.GetSliceHalfWindow()
	h.EdgeFraction = c.GetSliceEdgeFraction()
	h.SignalMSERatio = c.GetSignalMSERatio()
	h.DoublePeakMSERatio = c.GetDoublePeakMSERatio()
	h.MinPeakSeparation = c.GetMinPeakSeparation()
	h.SigmaMin = c.GetHitSigmaMin()
	h.FallbackChargeFraction = c.GetFallbackChargeFraction()
	h.CleanFraction = c.GetHitCleanFraction()
	h.CleanRadiusMM = c.GetHitCleanRadiusMM()
	h.MaxIterations = c.GetSliceMaxIterations()
	p.Hits = h

	loss, err := l4segments.ParseLossType(c.GetSegmentLoss())
	if err != nil {
		return p, fmt.Errorf("segment_loss: %w", err)
	}
	p.SegmentLoss = loss
	p.Hough = l4segments.HoughParams{
		ThetaBins:  c.GetHoughThetaBins(),
		RhoBinMM:   c.GetHoughRhoBinMM(),
		PeakMargin: c.GetHoughPeakMargin(),
		MaxPeaks:   c.GetHoughMaxPeaks(),
		MinHits:    c.GetHoughMinHits(),
	}

	a := l5tracks.DefaultParams()
	a.FitModes = a.FitModes[:0]
	for _, s := range c.GetFitModes() {
		m, err := l5tracks.ParseFitMode(s)
		if err != nil {
			return p, fmt.Errorf("fit_modes: %w", err)
		}
		a.FitModes = append(a.FitModes, m)
	}
	if a.Combine, err = l5tracks.ParseCombine(c.GetLossCombine()); err != nil {
		return p, fmt.Errorf("loss_combine: %w", err)
	}
	a.LossProjection = c.GetLossProjection()
	a.ChamberRadius = c.GetChamberRadiusOverrideMM()
	a.ExtendShrink = c.GetExtendShrink()
	a.MaxSplits = c.GetMaxSplits()
	a.RadiusCut = c.GetRadiusCutMM()
	a.Optimizer = optimizer.Settings{
		MaxIterations:  c.GetOptimizerMaxIterations(),
		MaxEvaluations: c.GetOptimizerMaxEvaluations(),
		Tolerance:      c.GetOptimizerTolerance(),
		Restarts:       a.Optimizer.Restarts,
	}
	p.Assembly = a

	f := l6pid.DefaultFitterParams()
	f.Hypotheses = f.Hypotheses[:0]
	for _, s := range c.GetPIDHypotheses() {
		t, err := l6pid.ParseEventType(s)
		if err != nil {
			return p, fmt.Errorf("pid_hypotheses: %w", err)
		}
		f.Hypotheses = append(f.Hypotheses, t)
	}
	f.Reflection = c.GetPIDReflection()
	f.VertexWindowMM = c.GetPIDVertexWindowMM()
	f.MinSecondaryRangeMM = c.GetPIDMinSecondaryRangeMM()
	f.MaxSecondaryEnergyMeV = c.GetPIDMaxSecondaryEnergyMeV()
	f.SigmaMinMM = c.GetPIDSigmaMinMM()
	f.SigmaMaxMM = c.GetPIDSigmaMaxMM()
	f.MaxRefits = c.GetPIDMaxRefits()
	f.Chi2Threshold = c.GetPIDChi2Threshold()
	p.PID = f

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// RangeCalculator builds the range calculator for the configured gas,
// loading the external range tables from fsys. It returns nil when
// particle identification is disabled.
func (c *RecoConfig) RangeCalculator(fsys fsutil.FileSystem) (*l6pid.RangeCalculator, error) {
	if !c.GetPIDEnabled() {
		return nil, nil
	}
	var (
		calc *l6pid.RangeCalculator
		err  error
	)
	gas := l6pid.ParseGas(c.GetGasMixture())
	if c.GetBuiltinCurvesOff() {
		calc, err = l6pid.NewRangeCalculator(nil, gas, c.GetGasPressureMbar(), c.GetGasTemperatureK())
	} else {
		calc, err = l6pid.NewDefaultRangeCalculator(c.GetGasPressureMbar(), c.GetGasTemperatureK())
		if err == nil {
			err = calc.SetGasMixture(gas)
		}
	}
	if err != nil {
		return nil, err
	}
	for _, t := range c.RangeTables {
		src := l6pid.TableSource{
			Gas:          l6pid.ParseGas(t.Gas),
			Ion:          t.Ion,
			Path:         t.Path,
			EnergyUnit:   t.EnergyUnit,
			RangeUnit:    t.RangeUnit,
			EnergyColumn: t.EnergyColumn,
			RangeColumn:  t.RangeColumn,
			PressureMbar: t.PressureMbar,
			TemperatureK: t.TemperatureK,
		}
		if err := calc.LoadRangeTable(fsys, src); err != nil {
			return nil, err
		}
	}
	if !calc.IsOK() {
		return nil, fmt.Errorf("%w: no range curves for gas %q", l6pid.ErrNotConfigured, gas)
	}
	return calc, nil
}
