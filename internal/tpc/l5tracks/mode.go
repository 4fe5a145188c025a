package l5tracks

import (
	"fmt"
	"strings"
)

// FitMode selects the free parameters of a track fit.
type FitMode int

const (
	// FitTangent frees the direction (theta, phi) of every segment.
	FitTangent FitMode = iota
	// FitBiasZ frees the drift coordinate of every segment midpoint.
	FitBiasZ
	// FitBiasXY frees the transverse coordinates of every segment midpoint.
	FitBiasXY
	// FitTangentBias frees midpoint and direction of every segment.
	FitTangentBias
	// FitStartStop frees the shared polyline nodes.
	FitStartStop
)

var fitModeNames = map[FitMode]string{
	FitTangent:     "tangent",
	FitBiasZ:       "bias_z",
	FitBiasXY:      "bias_xy",
	FitTangentBias: "tangent_bias",
	FitStartStop:   "start_stop",
}

func (m FitMode) String() string {
	if s, ok := fitModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("FitMode(%d)", int(m))
}

// ParseFitMode parses the String form of a FitMode.
func ParseFitMode(s string) (FitMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range fitModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown fit mode %q", s)
}

// DefaultFitModes is the mode sequence run after seeding.
func DefaultFitModes() []FitMode {
	return []FitMode{FitTangent, FitBiasXY, FitBiasZ, FitTangentBias, FitStartStop}
}

// Combine selects how the per-projection losses of a segment are merged.
type Combine int

const (
	CombineSum Combine = iota
	CombineMax
)

func (c Combine) String() string {
	if c == CombineMax {
		return "max"
	}
	return "sum"
}

// ParseCombine parses "sum" or "max".
func ParseCombine(s string) (Combine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return CombineSum, nil
	case "max":
		return CombineMax, nil
	}
	return 0, fmt.Errorf("unknown loss combination %q", s)
}

// AllProjections enables every projection in the loss.
const AllProjections = -1
