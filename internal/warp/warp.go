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


package warp

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/raster"
)

// Interpolation kernel for resampling
type Interpolation int

const (
	Bilinear  Interpolation = iota  // 2x2 linear
	Nearest                         // nearest neighbour
	HighOrder                       // 4x4 Catmull-Rom bicubic
)

func (i Interpolation) String() string {
	switch i {
	case Bilinear:  return "bilinear"
	case Nearest:   return "nearest"
	case HighOrder: return "high-order"
	}
	return fmt.Sprintf("interpolation(%d)", int(i))
}

func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bilinear", "linear", "":   return Bilinear, nil
	case "nearest":                  return Nearest, nil
	case "high-order", "bicubic", "cubic": return HighOrder, nil
	}
	return Bilinear, errors.New(fmt.Sprintf("unknown interpolation '%s'", s))
}

func (i Interpolation) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Interpolation) UnmarshalText(text []byte) (err error) {
	*i, err=ParseInterpolation(string(text))
	return err
}

// Handling of source samples outside the image
type Border int

const (
	Replicate Border = iota   // repeat the nearest edge pixel
	Constant                  // black
)

func (b Border) String() string {
	switch b {
	case Replicate: return "replicate"
	case Constant:  return "constant"
	}
	return fmt.Sprintf("border(%d)", int(b))
}

func ParseBorder(s string) (Border, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replicate", "": return Replicate, nil
	case "constant":      return Constant, nil
	}
	return Replicate, errors.New(fmt.Sprintf("unknown border mode '%s'", s))
}

func (b Border) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Border) UnmarshalText(text []byte) (err error) {
	*b, err=ParseBorder(string(text))
	return err
}

// Resamples the image onto the reference grid. The transform maps image coordinates
// onto the reference, so every destination pixel is looked up at the inverse transform.
// The identity returns an exact copy. Points mapping behind the projection center are black
func Apply(f *raster.Image, t align.Transform, interp Interpolation, border Border) (*raster.Image, error) {
	if t.IsIdentity() { return f.Clone(), nil }

	inv, err:=t.Invert()
	if err!=nil { return nil, err }

	out:=raster.New(f.ID, f.Width, f.Height, f.Channels, nil)
	out.FileName=f.FileName
	w, h:=f.Width, f.Height
	s:=sampler{width: w, height: h, border: border}

	raster.ParallelRows(h, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			for x:=0; x<w; x++ {
				u, v, ok:=inv.Apply(float64(x), float64(y))
				for c:=0; c<f.Channels; c++ {
					val:=float32(0)
					if ok {
						src:=f.Plane(c)
						switch interp {
						case Nearest:   val=s.nearest(src, u, v)
						case HighOrder: val=raster.Clamp(s.bicubic(src, u, v))
						default:        val=s.bilinear(src, u, v)
						}
					}
					out.Data[c*w*h+y*w+x]=val
				}
			}
		}
	})
	return out, nil
}

// Samples a plane at fractional positions, applying the border policy per tap
type sampler struct {
	width, height int
	border        Border
}

// Returns the sample at integer position (x,y), or the border value
func (s *sampler) at(src []float32, x, y int) float32 {
	if x<0 || x>=s.width || y<0 || y>=s.height {
		if s.border==Constant { return 0 }
		x, y=raster.Replicate(x, s.width), raster.Replicate(y, s.height)
	}
	return src[y*s.width+x]
}

func (s *sampler) nearest(src []float32, u, v float64) float32 {
	return s.at(src, int(math.Floor(u+0.5)), int(math.Floor(v+0.5)))
}

func (s *sampler) bilinear(src []float32, u, v float64) float32 {
	fu, fv:=math.Floor(u), math.Floor(v)
	x0, y0:=int(fu), int(fv)
	dx, dy:=float32(u-fu), float32(v-fv)
	a:=s.at(src, x0, y0  )*(1-dx) + s.at(src, x0+1, y0  )*dx
	b:=s.at(src, x0, y0+1)*(1-dx) + s.at(src, x0+1, y0+1)*dx
	return a*(1-dy) + b*dy
}

func (s *sampler) bicubic(src []float32, u, v float64) float32 {
	fu, fv:=math.Floor(u), math.Floor(v)
	x0, y0:=int(fu), int(fv)
	wx:=catmullRom(float32(u-fu))
	wy:=catmullRom(float32(v-fv))
	sum:=float32(0)
	for j:=0; j<4; j++ {
		row:=float32(0)
		for i:=0; i<4; i++ {
			row+=wx[i]*s.at(src, x0-1+i, y0-1+j)
		}
		sum+=wy[j]*row
	}
	return sum
}

// Catmull-Rom weights for the four taps at offsets -1, 0, 1, 2 from the sample position floor
func catmullRom(t float32) [4]float32 {
	t2, t3:=t*t, t*t*t
	return [4]float32{
		0.5*(-t3 + 2*t2 - t),
		0.5*(3*t3 - 5*t2 + 2),
		0.5*(-3*t3 + 4*t2 + t),
		0.5*(t3 - t2),
	}
}
