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
	"math"
	"github.com/disintegration/imaging"
	"github.com/mlnoga/brackets/internal/raster"
)

// Converts a decoded image into R, G, B float planes in [0,1]. This and FromRaster are the
// only places where channel order is translated. Alpha is discarded
func ToRaster(img image.Image, id int) *raster.Image {
	nrgba:=imaging.Clone(img)
	b:=nrgba.Bounds()
	w, h:=b.Dx(), b.Dy()
	f:=raster.New(id, w, h, 3, nil)
	l:=w*h
	r, g, bl:=f.Data[:l], f.Data[l:2*l], f.Data[2*l:]
	raster.ParallelRows(h, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			row:=nrgba.Pix[y*nrgba.Stride:]
			for x:=0; x<w; x++ {
				i:=y*w+x
				r [i]=float32(row[4*x  ])/255
				g [i]=float32(row[4*x+1])/255
				bl[i]=float32(row[4*x+2])/255
			}
		}
	})
	return f
}

// Converts float planes back into an opaque 8-bit image, quantizing round(clamp(v)*255).
// Single-channel images are written as gray
func FromRaster(f *raster.Image) *image.NRGBA {
	w, h, l:=f.Width, f.Height, f.Pixels()
	img:=image.NewNRGBA(image.Rect(0, 0, w, h))
	cg, cb:=0, 0
	if f.Channels>=3 { cg, cb=1, 2 }
	r, g, b:=f.Data[:l], f.Data[cg*l:(cg+1)*l], f.Data[cb*l:(cb+1)*l]
	raster.ParallelRows(h, func(yStart, yEnd int) {
		for y:=yStart; y<yEnd; y++ {
			row:=img.Pix[y*img.Stride:]
			for x:=0; x<w; x++ {
				i:=y*w+x
				row[4*x  ]=quantize(r[i])
				row[4*x+1]=quantize(g[i])
				row[4*x+2]=quantize(b[i])
				row[4*x+3]=255
			}
		}
	})
	return img
}

func quantize(v float32) uint8 {
	return uint8(math.Round(float64(raster.Clamp(v))*255))
}
