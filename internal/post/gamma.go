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


package post

import (
	"encoding/json"
	"fmt"
	"math"
	"gonum.org/v1/gonum/optimize"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
)

const (
	MinGamma        = 0.2
	MaxGamma        = 5.0
	autoGammaSamples= 4096
)

// Power-law tone curve out = in^Gamma, applied to each channel. Gamma 0 selects auto mode,
// which picks the exponent so that mean luminance of the result matches Target
type OpGamma struct {
	ops.OpUnaryBase         `yaml:",inline"`
	Gamma          float32  `json:"gamma"  yaml:"gamma"`
	Target         float32  `json:"target" yaml:"target"`
}

var _ ops.OperatorUnary = (*OpGamma)(nil) // this type is a unary Operator

func NewOpGammaDefault() *OpGamma { return NewOpGamma(false, 0, 0.5) }

func NewOpGamma(active bool, gamma, target float32) *OpGamma {
	op:=&OpGamma{
		OpUnaryBase : ops.OpUnaryBase{OpBase: ops.OpBase{Type: "gamma", Active: active}},
		Gamma       : gamma,
		Target      : target,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal from JSON with default values for missing entries. Also accepts
// a bare number, "auto", "off" or a boolean
func (op *OpGamma) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err:=json.Unmarshal(data, &raw); err!=nil { return err }
	type defaults OpGamma
	def:=defaults(*NewOpGammaDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=json.Unmarshal(data, &def); err!=nil { return err }
	} else {
		def.Active=s.active
		if s.isNumber { def.Gamma=float32(s.number) }
	}
	*op=OpGamma(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

// Unmarshal from YAML, with the same short forms as JSON
func (op *OpGamma) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err:=unmarshal(&raw); err!=nil { return err }
	type defaults OpGamma
	def:=defaults(*NewOpGammaDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=unmarshal(&def); err!=nil { return err }
	} else {
		def.Active=s.active
		if s.isNumber { def.Gamma=float32(s.number) }
	}
	*op=OpGamma(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpGamma) Apply(f *raster.Image, c *ops.Context) (fOut *raster.Image, err error) {
	if !op.Active { return f, nil }
	gamma:=op.Gamma
	if gamma==0 {
		gamma=AutoGamma(f, op.Target)
		fmt.Fprintf(c.Log, "%d: Auto gamma %.3f for target mean luminance %.3f\n", f.ID, gamma, op.Target)
	}
	if gamma<=0 || math.IsNaN(float64(gamma)) { gamma=1 }
	fmt.Fprintf(c.Log, "%d: Applying gamma %.3f\n", f.ID, gamma)
	f.ApplyPixelFunction(pfGamma, float64(gamma))
	return f, nil
}

func pfGamma(data []float32, params interface{}) {
	g:=params.(float64)
	for i, v:=range data {
		data[i]=float32(math.Pow(float64(raster.Clamp(v)), g))
	}
}

// Finds the exponent mapping the image's mean luminance to target, bounded to [MinGamma, MaxGamma].
// Starts from the closed-form solution for a flat image, and refines it with Nelder-Mead
// on a deterministic subsample. Returns 1 if the image is black, white or the target is invalid
func AutoGamma(f *raster.Image, target float32) float32 {
	if !(target>0 && target<1) || f.Pixels()==0 { return 1 }
	r, g, b:=samplePixels(f, autoGammaSamples)

	meanAt:=func(gamma float64) float64 {
		sum:=0.0
		for i:=range r {
			sum+=float64(raster.LumR)*math.Pow(r[i], gamma) + float64(raster.LumG)*math.Pow(g[i], gamma) + float64(raster.LumB)*math.Pow(b[i], gamma)
		}
		return sum/float64(len(r))
	}
	mean:=meanAt(1)
	if !(mean>1e-6 && mean<1-1e-6) { return 1 }

	t:=float64(target)
	g0:=clampGamma(math.Log(t)/math.Log(mean))
	cost:=func(gamma float64) float64 {
		d:=meanAt(gamma)-t
		return d*d
	}

	problem:=optimize.Problem{
		Func: func(x []float64) float64 {
			gc:=clampGamma(x[0])
			return cost(gc) + (x[0]-gc)*(x[0]-gc) // pull back into bounds
		},
	}
	result, err:=optimize.Minimize(problem, []float64{g0}, nil, &optimize.NelderMead{})
	if err!=nil || result==nil { return float32(g0) }
	best:=clampGamma(result.X[0])
	if cost(best)>cost(g0) { best=g0 }
	return float32(best)
}

func clampGamma(g float64) float64 {
	if math.IsNaN(g) { return 1 }
	if g<MinGamma { return MinGamma }
	if g>MaxGamma { return MaxGamma }
	return g
}

// Returns up to n clamped pixel values per channel, taken at a fixed stride.
// Monochrome images repeat their single channel
func samplePixels(f *raster.Image, n int) (r, g, b []float64) {
	l:=f.Pixels()
	stride:=l/n
	if stride<1 { stride=1 }
	count:=(l+stride-1)/stride
	r, g, b=make([]float64, count), make([]float64, count), make([]float64, count)
	cg, cb:=0, 0
	if f.Channels>=3 { cg, cb=1, 2 }
	for k:=0; k<count; k++ {
		i:=k*stride
		r[k]=float64(raster.Clamp(f.Data[       i]))
		g[k]=float64(raster.Clamp(f.Data[cg*l+i]))
		b[k]=float64(raster.Clamp(f.Data[cb*l+i]))
	}
	return r, g, b
}
