// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package align

import (
	"errors"
	"fmt"
	"strings"
)

// Alignment strategy
type Mode int

const (
	ModeEuclidean   Mode = iota  // ECC, rotation and translation
	ModeHomography               // ECC, full projective transform
	ModeAffine                   // ECC, full 2x3 transform
	ModeTranslation              // ECC, translation only
	ModeBitmap                   // median threshold bitmaps, integer translation
	ModeNone                     // no alignment
)

var modeNames=map[Mode]string{
	ModeEuclidean:   "euclidean",
	ModeHomography:  "homography",
	ModeAffine:      "affine",
	ModeTranslation: "translation",
	ModeBitmap:      "bitmap-translation",
	ModeNone:        "none",
}

func (m Mode) String() string {
	if s, ok:=modeNames[m]; ok { return s }
	return fmt.Sprintf("mode(%d)", int(m))
}

// Parses an alignment mode name. Accepts "bitmap" as a shorthand for "bitmap-translation"
func ParseMode(s string) (Mode, error) {
	s=strings.ToLower(strings.TrimSpace(s))
	if s=="bitmap" || s=="mtb" { return ModeBitmap, nil }
	if s=="" || s=="off" { return ModeNone, nil }
	for m, name:=range modeNames {
		if name==s { return m, nil }
	}
	return ModeNone, errors.New(fmt.Sprintf("unknown alignment mode '%s'", s))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) (err error) {
	*m, err=ParseMode(string(text))
	return err
}

// Returns the ECC motion model for this mode
func (m Mode) Model() Model {
	switch m {
	case ModeHomography:  return ModelHomography
	case ModeAffine:      return ModelAffine
	case ModeEuclidean:   return ModelEuclidean
	}
	return ModelTranslation
}


// Outcome of a single alignment estimation
type Status int

const (
	StatusConverged      Status = iota  // correlation improvement fell below epsilon
	StatusMaxIterations                 // iteration cap reached, estimate passed all checks
	StatusSkipped                       // no estimation performed, e.g. reference frame or mode none
	StatusNonConvergence                // final correlation too low, or too little overlap
	StatusSingular                      // normal equations singular or ill-conditioned
	StatusOutOfBounds                   // estimate moves the image too far, or is not invertible
)

func (s Status) String() string {
	switch s {
	case StatusConverged:      return "converged"
	case StatusMaxIterations:  return "max iterations"
	case StatusSkipped:        return "skipped"
	case StatusNonConvergence: return "non-convergence"
	case StatusSingular:       return "singular"
	case StatusOutOfBounds:    return "out of bounds"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Returns true for absorbed failures, where the estimator fell back to the identity
func (s Status) Failed() bool {
	return s>=StatusNonConvergence
}

// Result of aligning one target image to the reference
type Result struct {
	Transform   Transform  // Maps target coordinates onto the reference frame. Identity on failure
	Status      Status
	Iterations  int        // Iterations or pyramid levels used
	Correlation float64    // Final correlation coefficient. Bitmap mode reports 1-2*mismatch fraction
}

func (r Result) String() string {
	return fmt.Sprintf("%s after %d iterations, correlation %.4f, %v", r.Status, r.Iterations, r.Correlation, r.Transform)
}

// Returns a failed result carrying the identity transform
func fail(status Status, iterations int, rho float64) Result {
	return Result{Transform: Identity(), Status: status, Iterations: iterations, Correlation: rho}
}


// Alignment parameters
type Config struct {
	Mode            Mode      `json:"mode"            yaml:"mode"`
	MaxIterations   int       `json:"maxIterations"   yaml:"maxIterations"`   // ECC iteration cap
	Epsilon         float64   `json:"epsilon"         yaml:"epsilon"`         // ECC stops when the correlation improves by less than this
	MinCorrelation  float64   `json:"minCorrelation"  yaml:"minCorrelation"`  // ECC estimates with lower final correlation are rejected
	MaxDisplacement float64   `json:"maxDisplacement" yaml:"maxDisplacement"` // Estimates moving a corner further than this fraction of max(width,height) are rejected
	MaxDimension    int       `json:"maxDimension"    yaml:"maxDimension"`    // ECC works on a copy downscaled by powers of two to at most this size, 0=full resolution
	MaxShiftBits    int       `json:"maxShiftBits"    yaml:"maxShiftBits"`    // Bitmap mode searches up to +-2^MaxShiftBits pixels
	Exclusion       float32   `json:"exclusion"       yaml:"exclusion"`       // Bitmap mode ignores pixels within this distance from the median
}

func NewConfigDefault() Config {
	return Config{
		Mode:            ModeEuclidean,
		MaxIterations:   200,
		Epsilon:         1e-6,
		MinCorrelation:  0.3,
		MaxDisplacement: 0.2,
		MaxDimension:    1024,
		MaxShiftBits:    6,
		Exclusion:       4.0/255,
	}
}

// Estimates the transform aligning target onto ref. Both are luminance planes of the given size.
// Never returns an error: failures are reported via the status and carry the identity transform
func Estimate(ref, target []float32, width, height int, cfg Config) Result {
	switch cfg.Mode {
	case ModeNone:
		return Result{Transform: Identity(), Status: StatusSkipped}
	case ModeBitmap:
		return EstimateBitmap(ref, target, width, height, cfg)
	}
	return EstimateECC(ref, target, width, height, cfg)
}
