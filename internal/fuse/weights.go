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
	"fmt"
	"math"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
)

// Exponents and parameters of the per-pixel quality measures (Mertens, Kautz & Van Reeth 2007).
// An exponent of zero disables its measure
type WeightParams struct {
	Contrast    float32 `json:"contrast"    yaml:"contrast"`    // exponent of the absolute luminance laplacian
	Saturation  float32 `json:"saturation"  yaml:"saturation"`  // exponent of the standard deviation across channels
	Exposedness float32 `json:"exposedness" yaml:"exposedness"` // exponent of the gaussian closeness to mid-gray
	Sigma       float32 `json:"sigma"       yaml:"sigma"`       // width of the well-exposedness gaussian
}

func NewWeightParamsDefault() WeightParams {
	return WeightParams{Contrast: 1, Saturation: 1, Exposedness: 1, Sigma: 0.2}
}

func (p WeightParams) String() string {
	return fmt.Sprintf("contrast^%g saturation^%g exposedness(sigma %g)^%g", p.Contrast, p.Saturation, p.Sigma, p.Exposedness)
}

// Computes the unnormalized weight map of one image
func WeightMap(f *raster.Image, p WeightParams) []float32 {
	w, h, l:=f.Width, f.Height, f.Pixels()
	weights:=make([]float32, l)
	for i:=range weights { weights[i]=1 }

	if p.Contrast!=0 {
		lap:=raster.AbsLaplacian(f.Luminance(), w, h)
		multiplyPow(weights, lap, p.Contrast)
	}

	if p.Saturation!=0 {
		sat:=make([]float32, l)
		raster.ParallelRows(h, func(yStart, yEnd int) {
			for i:=yStart*w; i<yEnd*w; i++ {
				sat[i]=channelStdDev(f.Data, i, l, f.Channels)
			}
		})
		multiplyPow(weights, sat, p.Saturation)
	}

	if p.Exposedness!=0 {
		exp:=make([]float32, l)
		inv2Sigma2:=float64(1/(2*p.Sigma*p.Sigma))
		raster.ParallelRows(h, func(yStart, yEnd int) {
			for i:=yStart*w; i<yEnd*w; i++ {
				e:=1.0
				for c:=0; c<f.Channels; c++ {
					d:=float64(f.Data[c*l+i])-0.5
					e*=math.Exp(-d*d*inv2Sigma2)
				}
				exp[i]=float32(e)
			}
		})
		multiplyPow(weights, exp, p.Exposedness)
	}
	return weights
}

// Multiplies weights with measure^exponent element-wise. Operates in-place on weights
func multiplyPow(weights, measure []float32, exponent float32) {
	if exponent==1 {
		for i, m:=range measure { weights[i]*=m }
		return
	}
	e:=float64(exponent)
	for i, m:=range measure {
		weights[i]*=float32(math.Pow(float64(m), e))
	}
}

// Population standard deviation of the channel values of pixel i
func channelStdDev(data []float32, i, planeLen, channels int) float32 {
	if channels<2 { return 0 }
	mean:=float32(0)
	for c:=0; c<channels; c++ { mean+=data[c*planeLen+i] }
	mean/=float32(channels)
	variance:=float32(0)
	for c:=0; c<channels; c++ {
		d:=data[c*planeLen+i]-mean
		variance+=d*d
	}
	return float32(math.Sqrt(float64(variance/float32(channels))))
}

// Computes weight maps for all images in parallel, and normalizes them jointly
func Weights(fs []*raster.Image, p WeightParams, c *ops.Context) [][]float32 {
	weights:=make([][]float32, len(fs))
	limiter:=make(chan bool, maxInt(c.MaxThreads, 1))
	for i, f:=range fs {
		limiter <- true
		go func(i int, f *raster.Image) {
			defer func() { <-limiter }()
			weights[i]=WeightMap(f, p)
		}(i, f)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	if len(fs)>0 {
		NormalizeWeights(weights, fs[0].Width, fs[0].Height)
	}
	return weights
}

// Weight sums below this are treated as zero, so the reciprocal stays finite
const minWeightSum = 1e-30

// Scales weight maps so they sum to one at every pixel. Pixels where all weights are zero,
// or so small that their sum is below minWeightSum, receive 1/N for each image. Operates in-place
func NormalizeWeights(weights [][]float32, width, height int) {
	n:=len(weights)
	if n==0 { return }
	equal:=1/float32(n)
	raster.ParallelRows(height, func(yStart, yEnd int) {
		for i:=yStart*width; i<yEnd*width; i++ {
			sum:=float64(0)
			for _, w:=range weights { sum+=float64(w[i]) }
			inv:=1/sum
			if !(sum>=minWeightSum) || math.IsInf(inv, 0) || math.IsInf(sum, 0) {
				for _, w:=range weights { w[i]=equal }
				continue
			}
			for _, w:=range weights { w[i]=float32(float64(w[i])*inv) }
		}
	})
}

func maxInt(a, b int) int { if a>b { return a }; return b }
