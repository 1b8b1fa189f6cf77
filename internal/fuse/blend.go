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
	"errors"
	"fmt"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
)

// Pyramid shape limits
type PyramidParams struct {
	MaxLevels int `json:"maxLevels" yaml:"maxLevels"`
	MinSize   int `json:"minSize"   yaml:"minSize"`
}

func NewPyramidParamsDefault() PyramidParams {
	return PyramidParams{MaxLevels: 12, MinSize: 8}
}

// Blends aligned images with normalized per-pixel weights in a laplacian pyramid,
// and clamps the result to [0,1]. Images are processed in batches bounded by the
// context's blending memory budget, and summed in index order so the result does
// not depend on scheduling
func Blend(fs []*raster.Image, weights [][]float32, p PyramidParams, c *ops.Context) (*raster.Image, error) {
	if len(fs)==0 { return nil, errors.New("no images to blend") }
	if len(weights)!=len(fs) {
		return nil, errors.New(fmt.Sprintf("%d weight maps for %d images", len(weights), len(fs)))
	}
	first:=fs[0]
	if len(fs)==1 {
		res:=first.Clone()
		res.Clamp()
		return res, nil
	}

	levels:=LevelCount(first.Width, first.Height, p.MaxLevels, p.MinSize)
	batch:=batchSize(first, levels, len(fs), c)
	if c.Log!=nil {
		fmt.Fprintf(c.Log, "Blending %d images with %d pyramid levels in batches of %d\n", len(fs), levels, batch)
	}

	acc:=newPyramid(first.Width, first.Height, first.Channels, levels)
	for lower:=0; lower<len(fs); lower+=batch {
		upper:=lower+batch
		if upper>len(fs) { upper=len(fs) }

		contribs:=make([]*Pyramid, upper-lower)
		limiter :=make(chan bool, upper-lower)
		for i:=lower; i<upper; i++ {
			limiter <- true
			go func(i int) {
				defer func() { <-limiter }()
				lp:=LaplacianPyramid(fs[i], levels)
				lp.Weight(GaussianPyramid(weights[i], first.Width, first.Height, levels))
				contribs[i-lower]=lp
			}(i)
		}
		for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
			limiter <- true
		}
		for _, lp:=range contribs {
			acc.Add(lp)
		}
	}

	res:=acc.Collapse(first.ID)
	res.FileName=first.FileName
	res.Clamp()
	return res, nil
}

// Number of images whose weighted pyramids fit into the blending memory budget at once,
// limited by the thread count. Always at least one
func batchSize(f *raster.Image, levels, n int, c *ops.Context) int {
	per:=pyramidBytes(f.Width, f.Height, f.Channels+1, levels)*2
	budget:=int64(c.BatchMemoryMB)*1024*1024
	b:=n
	if per>0 && budget>0 {
		if fit:=int(budget/per); fit<b { b=fit }
	}
	if c.MaxThreads>0 && c.MaxThreads<b { b=c.MaxThreads }
	if b<1 { b=1 }
	return b
}
