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
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // register WebP with image.Decode
	"github.com/mlnoga/brackets/internal/raster"
)

// Decodes a compressed image held in memory into float planes, applying EXIF orientation.
// Supports PNG, JPEG, GIF, BMP, TIFF and WebP
func Decode(data []byte, id int) (*raster.Image, error) {
	if len(data)==0 { return nil, errors.New("empty buffer") }
	img, err:=imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err!=nil { return nil, err }
	f:=ToRaster(img, id)
	if f.Width==0 || f.Height==0 {
		return nil, errors.New(fmt.Sprintf("image has no pixels (%s)", f.DimensionsToString()))
	}
	return f, nil
}

// Reads and decodes an image file
func DecodeFile(fileName string, id int) (*raster.Image, []byte, error) {
	data, err:=os.ReadFile(fileName)
	if err!=nil { return nil, nil, err }
	f, err:=Decode(data, id)
	if err!=nil { return nil, data, err }
	f.FileName=fileName
	return f, data, nil
}


// Exposure settings recorded by the camera
type FrameInfo struct {
	ISO          int64
	FNumber      float64
	ExposureTime float64   // seconds
}

// Exposure value at ISO 100, log2(N^2/t) - log2(ISO/100). NaN if a setting is missing
func (fi FrameInfo) EV() float64 {
	if fi.FNumber<=0 || fi.ExposureTime<=0 || fi.ISO<=0 { return math.NaN() }
	return math.Log2(fi.FNumber*fi.FNumber/fi.ExposureTime) - math.Log2(float64(fi.ISO)/100)
}

func (fi FrameInfo) String() string {
	t:=fmt.Sprintf("%gs", fi.ExposureTime)
	if fi.ExposureTime>0 && fi.ExposureTime<1 { t=fmt.Sprintf("1/%.0fs", 1/fi.ExposureTime) }
	return fmt.Sprintf("ISO %d f/%.1f %s EV100 %.2f", fi.ISO, fi.FNumber, t, fi.EV())
}

// Extracts exposure metadata from EXIF. Returns false if the buffer carries no EXIF block.
// Individual missing tags are left zero
func ReadFrameInfo(data []byte) (FrameInfo, bool) {
	fi:=FrameInfo{}
	ex, err:=exif.Decode(bytes.NewReader(data))
	if err!=nil { return fi, false }

	if tag, err:=ex.Get(exif.ISOSpeedRatings); err==nil {
		if val, err:=tag.Int64(0); err==nil { fi.ISO=val }
	}
	if tag, err:=ex.Get(exif.FNumber); err==nil {
		if num, denom, err:=tag.Rat2(0); err==nil && denom!=0 { fi.FNumber=float64(num)/float64(denom) }
	}
	if tag, err:=ex.Get(exif.ExposureTime); err==nil {
		if num, denom, err:=tag.Rat2(0); err==nil && denom!=0 { fi.ExposureTime=float64(num)/float64(denom) }
	}
	return fi, true
}
