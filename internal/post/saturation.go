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
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
)

// Scales HSV saturation by Boost, capped at 1
type OpSaturation struct {
	ops.OpUnaryBase         `yaml:",inline"`
	Boost          float32  `json:"boost" yaml:"boost"`
}

var _ ops.OperatorUnary = (*OpSaturation)(nil) // this type is a unary Operator

func NewOpSaturationDefault() *OpSaturation { return NewOpSaturation(false, 1.2) }

func NewOpSaturation(active bool, boost float32) *OpSaturation {
	op:=&OpSaturation{
		OpUnaryBase : ops.OpUnaryBase{OpBase: ops.OpBase{Type: "saturation", Active: active}},
		Boost       : boost,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal from JSON with default values for missing entries. A bare number sets the boost
func (op *OpSaturation) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err:=json.Unmarshal(data, &raw); err!=nil { return err }
	type defaults OpSaturation
	def:=defaults(*NewOpSaturationDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=json.Unmarshal(data, &def); err!=nil { return err }
	} else {
		def.Active=s.active
		if s.isNumber { def.Boost=float32(s.number) }
	}
	*op=OpSaturation(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSaturation) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err:=unmarshal(&raw); err!=nil { return err }
	type defaults OpSaturation
	def:=defaults(*NewOpSaturationDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=unmarshal(&def); err!=nil { return err }
	} else {
		def.Active=s.active
		if s.isNumber { def.Boost=float32(s.number) }
	}
	*op=OpSaturation(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

func (op *OpSaturation) Apply(f *raster.Image, c *ops.Context) (fOut *raster.Image, err error) {
	if !op.Active || op.Boost==1 { return f, nil }
	if f.Channels!=3 {
		fmt.Fprintf(c.Log, "%d: Skipping saturation for %d channel image\n", f.ID, f.Channels)
		return f, nil
	}
	fmt.Fprintf(c.Log, "%d: Scaling saturation by %.3f\n", f.ID, op.Boost)
	f.ApplyPixelFunction3Chan(pfSaturation, float64(op.Boost))
	return f, nil
}

func pfSaturation(r, g, b []float32, params interface{}) {
	boost:=params.(float64)
	for i:=range r {
		hue, sat, val:=colorful.Color{R: float64(raster.Clamp(r[i])), G: float64(raster.Clamp(g[i])), B: float64(raster.Clamp(b[i]))}.Hsv()
		sat*=boost
		if sat>1 { sat=1 }
		if sat<0 { sat=0 }
		col:=colorful.Hsv(hue, sat, val)
		r[i], g[i], b[i]=float32(col.R), float32(col.G), float32(col.B)
	}
}
