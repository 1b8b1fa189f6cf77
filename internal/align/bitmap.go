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
	"math"
	"sync/atomic"
	"github.com/mlnoga/brackets/internal/raster"
	"github.com/mlnoga/brackets/internal/stats"
)

// Bitmap pyramid levels stop shrinking below this size
const minBitmapSize = 8

// Full resolution bitmaps disagreeing on this fraction of pixels or more are unrelated. Chance is 0.5
const maxBitmapError = 0.4

// Median threshold bitmap and exclusion bitmap for one pyramid level
type bitmapLevel struct {
	width, height int
	thresh []bool   // luminance above median
	valid  []bool   // luminance outside the exclusion band around the median
}

func newBitmapLevel(lum []float32, width, height int, exclusion float32) *bitmapLevel {
	med:=stats.Median(lum)
	b:=&bitmapLevel{
		width:  width,
		height: height,
		thresh: make([]bool, len(lum)),
		valid:  make([]bool, len(lum)),
	}
	for i, l:=range lum {
		b.thresh[i]=l>med
		d:=l-med
		b.valid[i]=d>exclusion || d< -exclusion
	}
	return b
}

// Estimates an integer translation aligning target onto ref with Ward's median threshold bitmaps.
// Shifts are searched in a 3x3 window per pyramid level, doubling from coarse to fine
func EstimateBitmap(ref, target []float32, width, height int, cfg Config) Result {
	// 2x2 box pyramids of both luminance planes, with impulse noise removed so it can't flip threshold bits
	refs, tgts:=[][]float32{raster.Median3x3(ref, width, height)}, [][]float32{raster.Median3x3(target, width, height)}
	ws, hs:=[]int{width}, []int{height}
	for l:=0; l<cfg.MaxShiftBits; l++ {
		w, h:=ws[l]/2, hs[l]/2
		if w<minBitmapSize || h<minBitmapSize { break }
		refs=append(refs, shrink(refs[l], ws[l], hs[l]))
		tgts=append(tgts, shrink(tgts[l], ws[l], hs[l]))
		ws, hs=append(ws, w), append(hs, h)
	}

	ox, oy, bestErr:=0, 0, 1.0
	for l:=len(refs)-1; l>=0; l-- {
		ox, oy=2*ox, 2*oy
		rb:=newBitmapLevel(refs[l], ws[l], hs[l], cfg.Exclusion)
		tb:=newBitmapLevel(tgts[l], ws[l], hs[l], cfg.Exclusion)

		// center first, so ties keep the current shift
		bestX, bestY:=ox, oy
		bestErr=bitmapError(rb, tb, ox, oy)
		for dy:=-1; dy<=1; dy++ {
			for dx:=-1; dx<=1; dx++ {
				if dx==0 && dy==0 { continue }
				if e:=bitmapError(rb, tb, ox+dx, oy+dy); e<bestErr {
					bestX, bestY, bestErr=ox+dx, oy+dy, e
				}
			}
		}
		ox, oy=bestX, bestY
	}

	if !(bestErr<maxBitmapError) {
		return fail(StatusNonConvergence, len(refs), 1-2*bestErr)
	}

	// ref(x) matches target(x+o), so target coordinates map onto the reference by -o
	if math.Hypot(float64(ox), float64(oy))>cfg.MaxDisplacement*float64(maxInt(width, height)) {
		return fail(StatusOutOfBounds, len(refs), 0)
	}
	return Result{Transform: Translation(float64(-ox), float64(-oy)), Status: StatusConverged, Iterations: len(refs), Correlation: 1-2*bestErr}
}

// Returns the fraction of compared pixels where the thresholded reference and the target
// shifted by (ox,oy) disagree. Pixels excluded in either bitmap or without overlap are not compared
func bitmapError(ref, tgt *bitmapLevel, ox, oy int) float64 {
	w, h:=ref.width, ref.height
	var mismatches, compared int64
	raster.ParallelRows(h, func(yStart, yEnd int) {
		localMis, localCmp:=int64(0), int64(0)
		for y:=yStart; y<yEnd; y++ {
			ty:=y+oy
			if ty<0 || ty>=h { continue }
			for x:=0; x<w; x++ {
				tx:=x+ox
				if tx<0 || tx>=w { continue }
				r, t:=y*w+x, ty*w+tx
				if !ref.valid[r] || !tgt.valid[t] { continue }
				localCmp++
				if ref.thresh[r]!=tgt.thresh[t] { localMis++ }
			}
		}
		atomic.AddInt64(&mismatches, localMis)
		atomic.AddInt64(&compared,   localCmp)
	})
	if compared==0 { return 1 }
	return float64(mismatches)/float64(compared)
}

// Halves a plane by averaging 2x2 blocks. Odd trailing rows and columns are dropped
func shrink(src []float32, width, height int) []float32 {
	w, h:=width/2, height/2
	dst:=make([]float32, w*h)
	raster.ParallelRows(h, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			r0:=src[(2*y  )*width:]
			r1:=src[(2*y+1)*width:]
			for x:=0; x<w; x++ {
				dst[y*w+x]=0.25*(r0[2*x]+r0[2*x+1]+r1[2*x]+r1[2*x+1])
			}
		}
	})
	return dst
}
