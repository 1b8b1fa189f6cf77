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


package raster

// 5-tap binomial kernel (Burt & Adelson), sums to one
var binomial5=[5]float32{1.0/16, 4.0/16, 6.0/16, 4.0/16, 1.0/16}

// Reflects an index into [0,n) without repeating the edge sample, i.e. gfedcb|abcdefgh|gfedcba
func Reflect101(i, n int) int {
	if n==1 { return 0 }
	for i<0 || i>=n {
		if i<0 { i=-i }
		if i>=n { i=2*n-2-i }
	}
	return i
}

// Clamps an index into [0,n)
func Replicate(i, n int) int {
	if i<0 { return 0 }
	if i>=n { return n-1 }
	return i
}

// Smooths a plane with the separable 5-tap binomial kernel. Returns a new plane
func Blur5(src []float32, width, height int) []float32 {
	tmp:=make([]float32, len(src))
	ParallelRows(height, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			row:=src[y*width:(y+1)*width]
			out:=tmp[y*width:(y+1)*width]
			for x:=0; x<width; x++ {
				sum:=float32(0)
				for k:=-2; k<=2; k++ {
					sum+=binomial5[k+2]*row[Reflect101(x+k, width)]
				}
				out[x]=sum
			}
		}
	})
	dst:=make([]float32, len(src))
	ParallelRows(height, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			out:=dst[y*width:(y+1)*width]
			for x:=0; x<width; x++ {
				sum:=float32(0)
				for k:=-2; k<=2; k++ {
					sum+=binomial5[k+2]*tmp[Reflect101(y+k, height)*width+x]
				}
				out[x]=sum
			}
		}
	})
	return dst
}

// Returns the dimensions of the next coarser pyramid level
func HalfSize(width, height int) (int, int) {
	return (width+1)/2, (height+1)/2
}

// Smooths a plane with the binomial kernel and keeps every second sample in each direction.
// Output has dimensions HalfSize(width, height)
func PyrDown(src []float32, width, height int) (dst []float32, dw, dh int) {
	dw, dh=HalfSize(width, height)

	// horizontal pass on even columns only
	tmp:=make([]float32, dw*height)
	ParallelRows(height, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			row:=src[y*width:(y+1)*width]
			out:=tmp[y*dw:(y+1)*dw]
			for x:=0; x<dw; x++ {
				sx :=2*x
				sum:=float32(0)
				for k:=-2; k<=2; k++ {
					sum+=binomial5[k+2]*row[Reflect101(sx+k, width)]
				}
				out[x]=sum
			}
		}
	})

	// vertical pass on even rows only
	dst=make([]float32, dw*dh)
	ParallelRows(dh, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			sy :=2*y
			out:=dst[y*dw:(y+1)*dw]
			for x:=0; x<dw; x++ {
				sum:=float32(0)
				for k:=-2; k<=2; k++ {
					sum+=binomial5[k+2]*tmp[Reflect101(sy+k, height)*dw+x]
				}
				out[x]=sum
			}
		}
	})
	return dst, dw, dh
}

// Expands a plane of dimensions sw x sh to dw x dh by inserting zeros at odd positions
// and smoothing with the binomial kernel, renormalized over the non-zero taps.
// Inverse of PyrDown up to the lost detail
func PyrUp(src []float32, sw, sh, dw, dh int) []float32 {
	// horizontal pass over source rows
	tmp:=make([]float32, dw*sh)
	ParallelRows(sh, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			row:=src[y*sw:(y+1)*sw]
			out:=tmp[y*dw:(y+1)*dw]
			for x:=0; x<dw; x++ {
				sum, wsum:=float32(0), float32(0)
				for k:=-2; k<=2; k++ {
					ux:=Reflect101(x+k, dw)
					if ux&1!=0 { continue }
					sum +=binomial5[k+2]*row[ux>>1]
					wsum+=binomial5[k+2]
				}
				out[x]=sum/wsum
			}
		}
	})

	// vertical pass into destination rows
	dst:=make([]float32, dw*dh)
	ParallelRows(dh, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			out :=dst[y*dw:(y+1)*dw]
			wsum:=float32(0)
			for k:=-2; k<=2; k++ {
				uy:=Reflect101(y+k, dh)
				if uy&1!=0 { continue }
				w  :=binomial5[k+2]
				sy :=uy>>1
				in :=tmp[sy*dw:(sy+1)*dw]
				for x:=0; x<dw; x++ {
					out[x]+=w*in[x]
				}
				wsum+=w
			}
			scale:=1/wsum
			for x:=0; x<dw; x++ {
				out[x]*=scale
			}
		}
	})
	return dst
}

// Computes horizontal and vertical central difference gradients of a plane, replicating the border
func Gradients(src []float32, width, height int) (gx, gy []float32) {
	gx=make([]float32, len(src))
	gy=make([]float32, len(src))
	ParallelRows(height, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			ym, yp:=Replicate(y-1, height), Replicate(y+1, height)
			for x:=0; x<width; x++ {
				xm, xp:=Replicate(x-1, width), Replicate(x+1, width)
				gx[y*width+x]=0.5*(src[y*width+xp]-src[y*width+xm])
				gy[y*width+x]=0.5*(src[yp*width+x]-src[ym*width+x])
			}
		}
	})
	return gx, gy
}

// Computes the absolute response of the discrete 3x3 Laplacian of a plane, reflecting the border
func AbsLaplacian(src []float32, width, height int) []float32 {
	dst:=make([]float32, len(src))
	ParallelRows(height, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			ym, yp:=Reflect101(y-1, height), Reflect101(y+1, height)
			for x:=0; x<width; x++ {
				xm, xp:=Reflect101(x-1, width), Reflect101(x+1, width)
				c:=src[y*width+x]
				l:=src[y*width+xm]+src[y*width+xp]+src[ym*width+x]+src[yp*width+x]-4*c
				if l<0 { l=-l }
				dst[y*width+x]=l
			}
		}
	})
	return dst
}
