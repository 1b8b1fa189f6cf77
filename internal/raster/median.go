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

// Applies a 3x3 median filter to a plane and returns the result as a new plane.
// Copies over the outermost rows and columns unchanged
func Median3x3(src []float32, width, height int) []float32 {
	dst:=make([]float32, len(src))
	if width<3 || height<3 {
		copy(dst, src)
		return dst
	}
	copy(dst[:width], src[:width])                                  // copy first row
	copy(dst[(height-1)*width:], src[(height-1)*width:])            // copy last row
	ParallelRows(height-2, func(yStart, yEnd int) {
		var gathered [9]float32
		for y:=yStart+1; y<=yEnd; y++ {
			row:=y*width
			dst[row]=src[row]                                       // copy first column
			for x:=1; x<width-1; x++ {
				j:=0
				for off:=row-width; off<=row+width; off+=width {
					gathered[j], gathered[j+1], gathered[j+2]=src[off+x-1], src[off+x], src[off+x+1]
					j+=3
				}
				dst[row+x]=medianOf9(&gathered)
			}
			dst[row+width-1]=src[row+width-1]                       // copy last column
		}
	})
	return dst
}

// Calculates the median of nine values with a 19 step min/max network.
// Modifies the elements in place. Values must not contain IEEE NaN
func medianOf9(a *[9]float32) float32 {
	if a[0]>a[1] { a[0], a[1] = a[1], a[0]}  // swap(0,1)
	if a[3]>a[4] { a[3], a[4] = a[4], a[3]}  // swap(3,4)
	if a[6]>a[7] { a[6], a[7] = a[7], a[6]}  // swap(6,7)
	if a[1]>a[2] { a[1], a[2] = a[2], a[1]}  // swap(1,2)
	if a[4]>a[5] { a[4], a[5] = a[5], a[4]}  // swap(4,5)
	if a[7]>a[8] { a[7], a[8] = a[8], a[7]}  // swap(7,8)
	if a[0]>a[1] { a[0], a[1] = a[1], a[0]}  // swap(0,1)
	if a[3]>a[4] { a[3], a[4] = a[4], a[3]}  // swap(3,4)
	if a[6]>a[7] { a[6], a[7] = a[7], a[6]}  // swap(6,7)
	if a[0]>a[3] { a[3]       = a[0]      }  // max (0,3)
	if a[3]>a[6] { a[6]       = a[3]      }  // max (3,6)
	if a[1]>a[4] { a[1], a[4] = a[4], a[1]}  // swap(1,4)
	if a[4]>a[7] { a[4]       = a[7]      }  // min (4,7)
	if a[1]>a[4] { a[4]       = a[1]      }  // max (1,4)
	if a[5]>a[8] { a[5]       = a[8]      }  // min (5,8)
	if a[2]>a[5] { a[2]       = a[5]      }  // min (2,5)
	if a[2]>a[4] { a[2], a[4] = a[4], a[2]}  // swap(2,4)
	if a[4]>a[6] { a[4]       = a[6]      }  // min (4,6)
	if a[2]>a[4] { a[4]       = a[2]      }  // max (2,4)
	return a[4]
}
