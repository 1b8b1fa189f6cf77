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


package stats

import (
	"github.com/valyala/fastrand"
)

// Above this many values, medians are estimated from a sample
const ExactMedianLimit = 1<<20

// Number of samples for approximate medians
const MedianSamples = 1<<16


// Select kth lowest element from an array of float32, with k counting from 1. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right:=0, len(a)-1
	for left<right {
		// partition around the middle element
		mid:=(left+right)>>1
		pivot := a[mid]
		l, r  := left-1, right+1
		for {
			for {
				l++
				if a[l]>=pivot { break }
			}
			for {
				r--
				if a[r]<=pivot { break }
			}
			if l >= r { break } // index in r
			a[l], a[r] = a[r], a[l]
		}

		offset:=r-left+1
		if k<=offset {
			right=r
		} else {
			left=r+1
			k-=offset
		}
	}
	return a[left]
}

// Select the median of an array of float32. For even lengths, averages the two middle elements.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n:=len(a)
	if n==0 { return 0 }
	upper:=QSelectFloat32(a, (n>>1)+1)
	if n&1!=0 { return upper }
	lower:=a[0]
	for _, v:=range a[:n>>1] {  // after selection, all lower elements are left of the upper median
		if v>lower { lower=v }
	}
	return 0.5*(lower+upper)
}

// Returns the median of the data, leaving the data unchanged. Small inputs are copied and
// selected exactly. Large inputs are estimated from MedianSamples pseudo-random samples,
// seeded from the data length so results are reproducible
func Median(data []float32) float32 {
	if len(data)<=ExactMedianLimit {
		return QSelectMedianFloat32(append([]float32(nil), data...))
	}
	samples:=make([]float32, MedianSamples)
	return FastApproxMedian(data, samples)
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	rng.Seed(max)
	for i:=range samples {
		samples[i]=data[rng.Uint32n(max)]
	}
	return QSelectMedianFloat32(samples)
}
