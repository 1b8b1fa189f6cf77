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
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"github.com/mlnoga/brackets/internal/raster"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img:=image.NewNRGBA(image.Rect(0, 0, w, h))
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestChannelOrderRoundTrip(t *testing.T) {
	colors:=[]color.NRGBA{
		{255, 0, 0, 255},
		{0, 255, 0, 255},
		{0, 0, 255, 255},
		{12, 200, 77, 255},
	}
	for _, c:=range colors {
		f:=ToRaster(solid(3, 2, c), 0)
		l:=f.Pixels()
		for i:=0; i<l; i++ {
			if f.Data[i]!=float32(c.R)/255 || f.Data[l+i]!=float32(c.G)/255 || f.Data[2*l+i]!=float32(c.B)/255 {
				t.Fatalf("%v: pixel %d=(%g,%g,%g); want planes in R,G,B order", c, i, f.Data[i], f.Data[l+i], f.Data[2*l+i])
			}
		}
		back:=FromRaster(f)
		if got:=back.NRGBAAt(1, 1); got!=c {
			t.Errorf("FromRaster pixel=%v; want %v", got, c)
		}

		for _, format:=range []Format{FormatPNG, FormatTIFF} {
			buf:=bytes.Buffer{}
			if err:=Encode(&buf, f, format, 5); err!=nil { t.Fatalf("%v: Encode err=%v", format, err) }
			g, err:=Decode(buf.Bytes(), 1)
			if err!=nil { t.Fatalf("%v: Decode err=%v", format, err) }
			if !g.SameSize(f) { t.Fatalf("%v: size %s; want %s", format, g.DimensionsToString(), f.DimensionsToString()) }
			for i:=range f.Data {
				if g.Data[i]!=f.Data[i] {
					t.Errorf("%v %v: data[%d]=%g; want %g", format, c, i, g.Data[i], f.Data[i])
					break
				}
			}
		}
	}
}

func TestAlphaDiscarded(t *testing.T) {
	f:=ToRaster(solid(2, 2, color.NRGBA{200, 100, 50, 10}), 0)
	if f.Channels!=3 { t.Fatalf("channels=%d; want 3", f.Channels) }
	if f.Data[0]!=200.0/255 { t.Errorf("red=%g; want %g", f.Data[0], 200.0/255) }
	if a:=FromRaster(f).NRGBAAt(0, 0).A; a!=255 { t.Errorf("alpha=%d; want 255", a) }
}

func TestQuantize(t *testing.T) {
	tests:=[]struct {
		in   float32
		want uint8
	}{
		{-0.5, 0}, {0, 0}, {0.5, 128}, {1, 255}, {7, 255}, {float32(math.NaN()), 0},
	}
	for _, test:=range tests {
		if got:=quantize(test.in); got!=test.want {
			t.Errorf("quantize(%g)=%d; want %d", test.in, got, test.want)
		}
	}
}

func TestGrayRasterWritesGray(t *testing.T) {
	f:=raster.New(0, 1, 1, 1, []float32{0.2})
	if got:=FromRaster(f).NRGBAAt(0, 0); got.R!=51 || got.G!=51 || got.B!=51 {
		t.Errorf("pixel=%v; want gray 51", got)
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, data:=range [][]byte{nil, []byte("not an image")} {
		if _, err:=Decode(data, 0); err==nil {
			t.Errorf("Decode(%q) err=nil; want error", data)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want:=range map[string]Format{"png": FormatPNG, "PNG": FormatPNG, "tiff": FormatTIFF, "tif": FormatTIFF} {
		if got, err:=ParseFormat(in); err!=nil || got!=want {
			t.Errorf("ParseFormat(%q)=%v, %v; want %v", in, got, err, want)
		}
	}
	if _, err:=ParseFormat("jpeg"); err==nil {
		t.Errorf("ParseFormat(jpeg) err=nil; want error")
	}
	if FormatFromFileName("out.TIF")!=FormatTIFF || FormatFromFileName("out.png")!=FormatPNG {
		t.Errorf("FormatFromFileName mismatch")
	}
}

func TestPNGLevels(t *testing.T) {
	tests:=map[int]png.CompressionLevel{0: png.NoCompression, 1: png.BestSpeed, 5: png.DefaultCompression, 9: png.BestCompression}
	for level, want:=range tests {
		if got:=pngLevel(level); got!=want {
			t.Errorf("pngLevel(%d)=%v; want %v", level, got, want)
		}
	}
}

func TestClipReport(t *testing.T) {
	img:=image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(2, 0, color.NRGBA{128, 128, 128, 255})
	img.SetNRGBA(3, 0, color.NRGBA{128, 128, 128, 255})
	c:=ClipReport(img)
	if math.Abs(float64(c.Low-0.25))>1e-6 || math.Abs(float64(c.High-0.25))>1e-6 {
		t.Errorf("clipping=%v; want 25%% low, 25%% high", c)
	}
}

func TestFrameInfoAbsentInPNG(t *testing.T) {
	buf:=bytes.Buffer{}
	if err:=png.Encode(&buf, solid(2, 2, color.NRGBA{1, 2, 3, 255})); err!=nil { t.Fatal(err) }
	if _, ok:=ReadFrameInfo(buf.Bytes()); ok {
		t.Errorf("ReadFrameInfo found EXIF in a plain PNG")
	}
	if ev:=(FrameInfo{ISO: 100, FNumber: 8, ExposureTime: 1.0/125}).EV(); math.Abs(ev-12.966)>0.01 {
		t.Errorf("EV=%g; want 12.97", ev)
	}
}
