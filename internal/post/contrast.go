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
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
)

const claheBins=256

// Contrast limited adaptive histogram equalization on CIE L*, leaving a* and b* untouched
type OpLocalContrast struct {
	ops.OpUnaryBase         `yaml:",inline"`
	ClipLimit      float32  `json:"clipLimit" yaml:"clipLimit"`  // histogram bins are capped at this multiple of the mean bin count. <=0 disables clipping
	TileGrid       int      `json:"tileGrid"  yaml:"tileGrid"`   // number of tiles along each axis
}

var _ ops.OperatorUnary = (*OpLocalContrast)(nil) // this type is a unary Operator

func NewOpLocalContrastDefault() *OpLocalContrast { return NewOpLocalContrast(false, 2, 8) }

func NewOpLocalContrast(active bool, clipLimit float32, tileGrid int) *OpLocalContrast {
	op:=&OpLocalContrast{
		OpUnaryBase : ops.OpUnaryBase{OpBase: ops.OpBase{Type: "localContrast", Active: active}},
		ClipLimit   : clipLimit,
		TileGrid    : tileGrid,
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal from JSON with default values for missing entries. A bare number sets the clip limit
func (op *OpLocalContrast) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err:=json.Unmarshal(data, &raw); err!=nil { return err }
	type defaults OpLocalContrast
	def:=defaults(*NewOpLocalContrastDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=json.Unmarshal(data, &def); err!=nil { return err }
		alias:=contrastAliases{}
		if err:=json.Unmarshal(data, &alias); err!=nil { return err }
		alias.applyTo((*OpLocalContrast)(&def))
	} else {
		def.Active=s.active
		if s.isNumber { def.ClipLimit=float32(s.number) }
	}
	*op=OpLocalContrast(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpLocalContrast) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err:=unmarshal(&raw); err!=nil { return err }
	type defaults OpLocalContrast
	def:=defaults(*NewOpLocalContrastDefault())
	s, err:=parseShorthand(raw)
	if err!=nil { return err }
	if s.isObject {
		def.Active=true
		if err:=unmarshal(&def); err!=nil { return err }
		alias:=contrastAliases{}
		if err:=unmarshal(&alias); err!=nil { return err }
		alias.applyTo((*OpLocalContrast)(&def))
	} else {
		def.Active=s.active
		if s.isNumber { def.ClipLimit=float32(s.number) }
	}
	*op=OpLocalContrast(def)
	op.OpUnaryBase.Apply=op.Apply
	return nil
}

// Snake case field names, as used by the flat option post_local_contrast
type contrastAliases struct {
	ClipLimit *float32 `json:"clip_limit" yaml:"clip_limit"`
	TileSize  *int     `json:"tile_size"  yaml:"tile_size"`
}

func (a contrastAliases) applyTo(op *OpLocalContrast) {
	if a.ClipLimit!=nil { op.ClipLimit=*a.ClipLimit }
	if a.TileSize!=nil  { op.TileGrid=*a.TileSize }
}

func (op *OpLocalContrast) Apply(f *raster.Image, c *ops.Context) (fOut *raster.Image, err error) {
	if !op.Active { return f, nil }
	if f.Channels!=3 {
		fmt.Fprintf(c.Log, "%d: Skipping local contrast for %d channel image\n", f.ID, f.Channels)
		return f, nil
	}
	grid:=op.TileGrid
	if grid<1 { grid=1 }
	fmt.Fprintf(c.Log, "%d: Applying local contrast with clip limit %.2f on %dx%d tiles\n", f.ID, op.ClipLimit, grid, grid)

	w, h, l:=f.Width, f.Height, f.Pixels()
	r, g, b:=f.Plane(0), f.Plane(1), f.Plane(2)

	// convert to L*a*b*, keeping chroma for the way back
	lum:=make([]float64, l)
	la :=make([]float64, l)
	lb :=make([]float64, l)
	raster.ParallelRows(h, func(yStart, yEnd int) {
		for i:=yStart*w; i<yEnd*w; i++ {
			col:=colorful.Color{R: float64(raster.Clamp(r[i])), G: float64(raster.Clamp(g[i])), B: float64(raster.Clamp(b[i]))}
			lum[i], la[i], lb[i]=col.Lab()
		}
	})

	t:=newTiling(w, h, grid)
	luts:=t.equalize(lum, op.ClipLimit)

	raster.ParallelRows(h, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			ty0, ty1, ay:=t.neighbours(y, t.tileH, t.ny)
			for x:=0; x<w; x++ {
				tx0, tx1, ax:=t.neighbours(x, t.tileW, t.nx)
				i:=y*w+x
				bin:=lumBin(lum[i])
				top:=(1-ax)*luts[ty0*t.nx+tx0][bin] + ax*luts[ty0*t.nx+tx1][bin]
				bot:=(1-ax)*luts[ty1*t.nx+tx0][bin] + ax*luts[ty1*t.nx+tx1][bin]
				newL:=(1-ay)*top + ay*bot
				col:=colorful.Lab(newL, la[i], lb[i]).Clamped()
				r[i], g[i], b[i]=float32(col.R), float32(col.G), float32(col.B)
			}
		}
	})
	return f, nil
}

// Partition of an image into a grid of equally sized tiles. Edge tiles may be smaller
type tiling struct {
	width, height int
	tileW, tileH  int
	nx, ny        int
}

func newTiling(width, height, grid int) tiling {
	tw:=(width +grid-1)/grid
	th:=(height+grid-1)/grid
	if tw<1 { tw=1 }
	if th<1 { th=1 }
	return tiling{width: width, height: height, tileW: tw, tileH: th, nx: (width+tw-1)/tw, ny: (height+th-1)/th}
}

// Returns the two tiles whose centers bracket coordinate p, and the interpolation weight of the second
func (t tiling) neighbours(p, size, n int) (i0, i1 int, a float64) {
	pos:=(float64(p)+0.5)/float64(size) - 0.5
	if pos<=0 { return 0, 0, 0 }
	if pos>=float64(n-1) { return n-1, n-1, 0 }
	i0=int(pos)
	return i0, i0+1, pos-float64(i0)
}

// Computes the clipped, equalized lightness mapping of every tile
func (t tiling) equalize(lum []float64, clipLimit float32) [][]float64 {
	luts:=make([][]float64, t.nx*t.ny)
	raster.ParallelRows(t.ny, func(tyStart, tyEnd int) {
		for ty:=tyStart; ty<tyEnd; ty++ {
			for tx:=0; tx<t.nx; tx++ {
				x0, y0:=tx*t.tileW, ty*t.tileH
				x1, y1:=minInt(x0+t.tileW, t.width), minInt(y0+t.tileH, t.height)
				hist:=make([]int, claheBins)
				for y:=y0; y<y1; y++ {
					for x:=x0; x<x1; x++ {
						hist[lumBin(lum[y*t.width+x])]++
					}
				}
				luts[ty*t.nx+tx]=equalizeHistogram(hist, (x1-x0)*(y1-y0), clipLimit)
			}
		}
	})
	return luts
}

// Clips the histogram at clipLimit times the mean bin count, spreads the excess evenly over all bins,
// and returns the normalized cumulative distribution as lightness mapping
func equalizeHistogram(hist []int, pixels int, clipLimit float32) []float64 {
	if clipLimit>0 {
		limit:=int(math.Ceil(float64(clipLimit)*float64(pixels)/float64(len(hist))))
		if limit<1 { limit=1 }
		excess:=0
		for i, v:=range hist {
			if v>limit {
				excess+=v-limit
				hist[i]=limit
			}
		}
		share, rest:=excess/len(hist), excess%len(hist)
		for i:=range hist {
			hist[i]+=share
		}
		if rest>0 {
			step:=len(hist)/rest
			for i:=0; i<len(hist) && rest>0; i+=step {
				hist[i]++
				rest--
			}
		}
	}
	lut:=make([]float64, len(hist))
	cum:=0
	scale:=1/float64(pixels)
	for i, v:=range hist {
		cum+=v
		lut[i]=float64(cum)*scale
	}
	return lut
}

func lumBin(l float64) int {
	b:=int(l*(claheBins-1)+0.5)
	if b<0 { return 0 }
	if b>=claheBins { return claheBins-1 }
	return b
}

func minInt(a, b int) int { if a<b { return a }; return b }
