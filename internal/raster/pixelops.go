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

import (
	"runtime"
)


//////////////////////////////////////////////////////////////////
// CPU-limited pixel operations. Parallelized across CPUs
//////////////////////////////////////////////////////////////////

// A pixel function. Operates in-place on a contiguous range of samples
type PixelFunction func(data []float32, params interface{})

// A three-channel pixel function over matching ranges of the R, G and B planes. Operates in-place
type PixelFunction3Chan func(r,g,b []float32, params interface{})

// A row function, processing rows [yStart, yEnd)
type RowFunction func(yStart, yEnd int)


// Apply given pixel function to all samples of the image. Operates in-place
func (f *Image) ApplyPixelFunction(pf PixelFunction, args interface{}) {
	data:=f.Data
	parallelRanges(len(data), func(lower, upper int) {
		pf(data[lower:upper], args)
	})
}

// Apply given pixel function to matching ranges of the three color planes. Operates in-place
func (f *Image) ApplyPixelFunction3Chan(pf PixelFunction3Chan, args interface{}) {
	r, g, b:=f.Plane(0), f.Plane(1), f.Plane(2)
	parallelRanges(len(r), func(lower, upper int) {
		pf(r[lower:upper], g[lower:upper], b[lower:upper], args)
	})
}

// Splits rows [0,height) into batches and runs the row function on them concurrently.
// Returns when all batches are done
func ParallelRows(height int, rf RowFunction) {
	parallelRanges(height, func(lower, upper int) { rf(lower, upper) })
}

// Splits [0,n) into 8*NumCPU() work packages, with parallelism limited to NumCPU()
func parallelRanges(n int, fn func(lower, upper int)) {
	if n<=0 { return }
	numBatches:=8*runtime.NumCPU()
	batchSize :=(n+numBatches-1)/numBatches
	if batchSize<1 { batchSize=1 }
	sem       :=make(chan bool, runtime.NumCPU())
	for lower:=0; lower<n; lower+=batchSize {
		upper:=lower+batchSize
		if upper>n { upper=n }

		sem <- true
		go func(lower, upper int) {
			fn(lower, upper)
			<-sem
		}(lower, upper)
	}

	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}
