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


package fuse

import (
	"github.com/mlnoga/brackets/internal/raster"
)

// One level of a multi-channel pyramid, stored planar like raster.Image
type Level struct {
	Width    int
	Height   int
	Data     []float32
}

func (l *Level) Plane(c int) []float32 {
	n:=l.Width*l.Height
	return l.Data[c*n:(c+1)*n]
}

// A multi-channel image pyramid, finest level first
type Pyramid struct {
	Channels int
	Levels   []Level
}

// Returns the number of pyramid levels for an image of given size. Halving stops once
// the smaller side would drop below minSize, or at maxLevels. Always at least one level
func LevelCount(width, height, maxLevels, minSize int) int {
	if maxLevels<1 { maxLevels=1 }
	if minSize<1   { minSize=1 }
	n:=1
	for n<maxLevels {
		w, h:=raster.HalfSize(width, height)
		if w<minSize || h<minSize || (w==width && h==height) { break }
		width, height=w, h
		n++
	}
	return n
}

// Builds a gaussian pyramid of a single plane with the given number of levels
func GaussianPyramid(plane []float32, width, height, levels int) []Level {
	res:=make([]Level, levels)
	res[0]=Level{Width: width, Height: height, Data: plane}
	for l:=1; l<levels; l++ {
		prev:=&res[l-1]
		data, w, h:=raster.PyrDown(prev.Data, prev.Width, prev.Height)
		res[l]=Level{Width: w, Height: h, Data: data}
	}
	return res
}

// Builds a laplacian pyramid of all channels of an image. The coarsest level holds
// the low-pass residual
func LaplacianPyramid(f *raster.Image, levels int) *Pyramid {
	p:=newPyramid(f.Width, f.Height, f.Channels, levels)
	for c:=0; c<f.Channels; c++ {
		g:=GaussianPyramid(f.Plane(c), f.Width, f.Height, levels)
		for l:=0; l<levels-1; l++ {
			up:=raster.PyrUp(g[l+1].Data, g[l+1].Width, g[l+1].Height, g[l].Width, g[l].Height)
			dst:=p.Levels[l].Plane(c)
			for i, v:=range g[l].Data {
				dst[i]=v-up[i]
			}
		}
		copy(p.Levels[levels-1].Plane(c), g[levels-1].Data)
	}
	return p
}

// Allocates an all-zero pyramid with the level sizes of a width x height image
func newPyramid(width, height, channels, levels int) *Pyramid {
	p:=&Pyramid{Channels: channels, Levels: make([]Level, levels)}
	for l:=0; l<levels; l++ {
		p.Levels[l]=Level{Width: width, Height: height, Data: make([]float32, width*height*channels)}
		width, height=raster.HalfSize(width, height)
	}
	return p
}

// Multiplies every channel of each level with the matching gaussian weight level. Operates in-place
func (p *Pyramid) Weight(g []Level) {
	for l:=range p.Levels {
		lev, wts:=&p.Levels[l], g[l].Data
		n:=lev.Width*lev.Height
		raster.ParallelRows(lev.Height, func(yStart, yEnd int) {
			for c:=0; c<p.Channels; c++ {
				plane:=lev.Data[c*n:(c+1)*n]
				for i:=yStart*lev.Width; i<yEnd*lev.Width; i++ {
					plane[i]*=wts[i]
				}
			}
		})
	}
}

// Adds another pyramid of identical shape. Operates in-place
func (p *Pyramid) Add(q *Pyramid) {
	for l:=range p.Levels {
		dst, src:=p.Levels[l].Data, q.Levels[l].Data
		raster.ParallelRows(p.Levels[l].Height*p.Channels, func(yStart, yEnd int) {
			w:=p.Levels[l].Width
			for i:=yStart*w; i<yEnd*w; i++ {
				dst[i]+=src[i]
			}
		})
	}
}

// Reconstructs the image from a laplacian pyramid, coarsest level first
func (p *Pyramid) Collapse(id int) *raster.Image {
	top:=len(p.Levels)-1
	cur:=make([]float32, len(p.Levels[top].Data))
	copy(cur, p.Levels[top].Data)
	for l:=top-1; l>=0; l-- {
		coarse, fine:=&p.Levels[l+1], &p.Levels[l]
		n, m:=coarse.Width*coarse.Height, fine.Width*fine.Height
		next:=make([]float32, len(fine.Data))
		for c:=0; c<p.Channels; c++ {
			up :=raster.PyrUp(cur[c*n:(c+1)*n], coarse.Width, coarse.Height, fine.Width, fine.Height)
			det:=fine.Data[c*m:(c+1)*m]
			out:=next[c*m:(c+1)*m]
			for i:=range out {
				out[i]=up[i]+det[i]
			}
		}
		cur=next
	}
	return raster.New(id, p.Levels[0].Width, p.Levels[0].Height, p.Channels, cur)
}

// Approximate number of bytes a pyramid of given size occupies
func pyramidBytes(width, height, channels, levels int) int64 {
	total:=int64(0)
	for l:=0; l<levels; l++ {
		total+=int64(width)*int64(height)*int64(channels)*4
		width, height=raster.HalfSize(width, height)
	}
	return total
}
