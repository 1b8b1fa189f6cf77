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
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"
	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
	"github.com/mlnoga/brackets/internal/raster"
)

// Output container format
type Format int

const (
	FormatPNG  Format = iota
	FormatTIFF
)

func (f Format) String() string {
	switch f {
	case FormatPNG:  return "png"
	case FormatTIFF: return "tiff"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "":      return FormatPNG,  nil
	case "tiff", "tif":  return FormatTIFF, nil
	}
	return FormatPNG, errors.New(fmt.Sprintf("unknown output format '%s'", s))
}

func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Format) UnmarshalText(text []byte) (err error) {
	*f, err=ParseFormat(string(text))
	return err
}

func (f Format) MIMEType() string {
	if f==FormatTIFF { return "image/tiff" }
	return "image/png"
}

func (f Format) Extension() string {
	if f==FormatTIFF { return ".tiff" }
	return ".png"
}

// Guesses the format from a file name extension, defaulting to PNG
func FormatFromFileName(fileName string) Format {
	lower:=strings.ToLower(fileName)
	if strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff") { return FormatTIFF }
	return FormatPNG
}

// Maps compression levels 0..9 onto the PNG encoder's discrete settings
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level<=0: return png.NoCompression
	case level<=3: return png.BestSpeed
	case level<=6: return png.DefaultCompression
	}
	return png.BestCompression
}

// Encodes the image as 8-bit RGB in the given format. Level 0 disables compression,
// higher levels trade speed for size
func Encode(w io.Writer, f *raster.Image, format Format, level int) error {
	img:=FromRaster(f)
	switch format {
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(level)))
	case FormatTIFF:
		opts:=&tiff.Options{Compression: tiff.Uncompressed}
		if level>0 { opts=&tiff.Options{Compression: tiff.Deflate, Predictor: true} }
		return tiff.Encode(w, img, opts)
	}
	return errors.New(fmt.Sprintf("unknown output format %d", int(format)))
}

