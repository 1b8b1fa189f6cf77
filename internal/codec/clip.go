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


package codec

import (
	"image"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/mlnoga/brackets/internal/stats"
)

// 8-bit levels at or beyond which a sample counts as clipped
const (
	ClipBlack = 2
	ClipWhite = 253
)

// Reports the fraction of R, G and B samples of an 8-bit image that are near black or near white
func ClipReport(img image.Image) stats.Clipping {
	h:=histogram.NewRGBAHistogram(img)
	low, high, total:=0, 0, 0
	for _, bins:=range [][]int{h.R.Bins, h.G.Bins, h.B.Bins} {
		for level, n:=range bins {
			total+=n
			if level<=ClipBlack { low +=n }
			if level>=ClipWhite { high+=n }
		}
	}
	if total==0 { return stats.Clipping{} }
	return stats.Clipping{Low: float32(low)/float32(total), High: float32(high)/float32(total)}
}
