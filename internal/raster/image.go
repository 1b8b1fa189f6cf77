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
	"fmt"
)

// Luminance weights for deriving a grayscale image from R, G and B (ITU-R BT.601)
const (
	LumR float32 = 0.299
	LumG float32 = 0.587
	LumB float32 = 0.114
)

// A planar floating point image. Channel order is always R, G, B.
// Sample c of pixel (x,y) lives at Data[c*Width*Height + y*Width + x].
// Values are normalized to [0,1] between stages.
type Image struct {
	ID       int         // Sequential ID number, for log output. Index into the exposure stack
	FileName string      // Original file name, if any, for log output

	Width    int
	Height   int
	Channels int

	Data     []float32   // The image data, one plane per channel
}

// Creates a new image of given dimensions. Data is allocated if nil, otherwise used without copying
func New(id, width, height, channels int, data []float32) *Image {
	if data==nil {
		data=make([]float32, width*height*channels)
	}
	return &Image{
		ID:       id,
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     data,
	}
}

// Creates a deep copy of the image
func (f *Image) Clone() *Image {
	g:=*f
	g.Data=append([]float32(nil), f.Data...)
	return &g
}

// Returns the number of pixels per channel
func (f *Image) Pixels() int {
	return f.Width*f.Height
}

// Returns the given channel plane. Shares the underlying data
func (f *Image) Plane(c int) []float32 {
	l:=f.Width*f.Height
	return f.Data[c*l:(c+1)*l]
}

// Returns true if both images have identical width, height and channel count
func (f *Image) SameSize(g *Image) bool {
	return f.Width==g.Width && f.Height==g.Height && f.Channels==g.Channels
}

func (f *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", f.Width, f.Height, f.Channels)
}

// Returns the luminance of the image as a new plane. Single-channel images are copied
func (f *Image) Luminance() []float32 {
	if f.Channels<3 {
		return append([]float32(nil), f.Plane(0)...)
	}
	lum:=make([]float32, f.Pixels())
	r, g, b:=f.Plane(0), f.Plane(1), f.Plane(2)
	ParallelRows(f.Height, func(yStart, yEnd int) {
		for i:=yStart*f.Width; i<yEnd*f.Width; i++ {
			lum[i]=LumR*r[i] + LumG*g[i] + LumB*b[i]
		}
	})
	return lum
}

// Returns the mean luminance of the image
func (f *Image) MeanLuminance() float32 {
	lum:=f.Luminance()
	sum:=float64(0)
	for _,l:=range lum { sum+=float64(l) }
	return float32(sum/float64(len(lum)))
}

// Clamps all values of the image to [0,1]. Operates in-place
func (f *Image) Clamp() {
	f.ApplyPixelFunction(pfClamp, nil)
}

func pfClamp(data []float32, params interface{}) {
	for i, d:=range data {
		if !(d>=0) {
			data[i]=0
		} else if d>1 {
			data[i]=1
		}
	}
}

// Clamps a single value to [0,1]. NaN maps to 0
func Clamp(v float32) float32 {
	if !(v>0) { return 0 }
	if v>1 { return 1 }
	return v
}
