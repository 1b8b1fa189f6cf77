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


package pipeline

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/codec"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/raster"
	"github.com/mlnoga/brackets/internal/stats"
)

func testContext() *ops.Context {
	return &ops.Context{Log: io.Discard, MaxThreads: 4, BatchMemoryMB: 256}
}

// Scene radiance: a horizontal ramp from 0.02 to 1.6 with a little vertical texture
func radiance(x, y, w int) float32 {
	base:=0.02+1.58*float64(x)/float64(w-1)
	return float32(base*(1+0.05*math.Sin(float64(y)/2.5)))
}

// Renders the scene at the given exposure scale, with a mild color cast, clipped to [0,1]
func exposure(id, w, h int, scale float32) *raster.Image {
	f:=raster.New(id, w, h, 3, nil)
	l:=f.Pixels()
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			s:=scale*radiance(x, y, w)
			i:=y*w+x
			f.Data[i], f.Data[l+i], f.Data[2*l+i]=raster.Clamp(s), raster.Clamp(0.9*s), raster.Clamp(0.8*s)
		}
	}
	return f
}

func clipped(f *raster.Image) stats.Clipping {
	return stats.ClippedFraction(f.Data, 2.0/255, 253.0/255)
}

func TestEmptyStack(t *testing.T) {
	res, err:=Fuse(nil, nil, testContext())
	if !errors.Is(err, ErrEmptyStack) { t.Errorf("Fuse err=%v; want ErrEmptyStack", err) }
	if res==nil || res.Image!=nil || len(res.Alignments)!=0 { t.Errorf("Fuse result=%v; want empty result", res) }

	out, res, err:=FuseBytes([][]byte{}, nil, testContext())
	if !errors.Is(err, ErrEmptyStack) { t.Errorf("FuseBytes err=%v; want ErrEmptyStack", err) }
	if out!=nil || res==nil || res.Image!=nil { t.Errorf("FuseBytes=%v, %v; want nil bytes and empty result", out, res) }
}

func TestDimensionMismatch(t *testing.T) {
	stack:=[]*raster.Image{exposure(0, 10, 10, 1), exposure(1, 10, 10, 1), exposure(2, 12, 10, 1)}
	_, err:=Fuse(stack, nil, testContext())
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) { t.Fatalf("err=%v; want DimensionMismatchError", err) }
	if dm.Index!=2 || dm.Want!="10x10x3" || dm.Got!="12x10x3" {
		t.Errorf("err=%+v; want index 2, 10x10x3 vs 12x10x3", dm)
	}
}

func TestSingleImageIdempotence(t *testing.T) {
	f:=exposure(0, 33, 21, 0.6)
	res, err:=Fuse([]*raster.Image{f.Clone()}, nil, testContext())
	if err!=nil { t.Fatalf("Fuse err=%v", err) }
	if res.Width!=33 || res.Height!=21 { t.Errorf("size %dx%d; want 33x21", res.Width, res.Height) }
	for i:=range f.Data {
		if res.Image.Data[i]!=f.Data[i] { t.Fatalf("data[%d]=%g; want %g", i, res.Image.Data[i], f.Data[i]) }
	}
}

func TestIdenticalStackInvariance(t *testing.T) {
	f:=exposure(0, 64, 48, 0.6)
	for _, mode:=range []align.Mode{align.ModeEuclidean, align.ModeBitmap, align.ModeNone} {
		cfg:=NewConfigDefault()
		cfg.Align.Mode=mode
		res, err:=Fuse([]*raster.Image{f.Clone(), f.Clone(), f.Clone()}, cfg, testContext())
		if err!=nil { t.Fatalf("%v: Fuse err=%v", mode, err) }
		for i:=range f.Data {
			if math.Abs(float64(res.Image.Data[i]-f.Data[i]))>1e-3 {
				t.Fatalf("%v: data[%d]=%g; want %g", mode, i, res.Image.Data[i], f.Data[i])
			}
		}
		if len(res.Alignments)!=3 || res.Alignments[0].Status!=align.StatusSkipped {
			t.Errorf("%v: alignments=%v; want 3 with reference skipped", mode, res.Alignments)
		}
	}
}

func TestBracketReducesClipping(t *testing.T) {
	w, h:=96, 64
	stack:=[]*raster.Image{exposure(0, w, h, 0.35), exposure(1, w, h, 1), exposure(2, w, h, 2.5)}
	minClip:=float32(1)
	for _, f:=range stack {
		if c:=clipped(f).Total(); c<minClip { minClip=c }
	}
	cfg:=NewConfigDefault()
	cfg.Align.Mode=align.ModeNone // static scene
	res, err:=Fuse(stack, cfg, testContext())
	if err!=nil { t.Fatalf("Fuse err=%v", err) }
	if c:=clipped(res.Image); c.Total()>minClip {
		t.Errorf("fused %v; want at most %.4f total", c, minClip)
	}
}

func TestFuseBytes(t *testing.T) {
	w, h:=48, 32
	var bufs [][]byte
	for i, scale:=range []float32{0.4, 1, 2} {
		buf:=bytes.Buffer{}
		if err:=codec.Encode(&buf, exposure(i, w, h, scale), codec.FormatPNG, 1); err!=nil { t.Fatal(err) }
		bufs=append(bufs, buf.Bytes())
	}
	cfg:=NewConfigDefault()
	cfg.Output.Format=codec.FormatTIFF
	cfg.Post.Saturation.Active=true
	out, res, err:=FuseBytes(bufs, cfg, testContext())
	if err!=nil { t.Fatalf("FuseBytes err=%v", err) }
	g, err:=codec.Decode(out, 0)
	if err!=nil { t.Fatalf("decoding output err=%v", err) }
	if g.Width!=w || g.Height!=h || res.Width!=w || res.Height!=h {
		t.Errorf("output %s, result %dx%d; want %dx%d", g.DimensionsToString(), res.Width, res.Height, w, h)
	}
}

func TestFuseBytesDecodeError(t *testing.T) {
	buf:=bytes.Buffer{}
	if err:=codec.Encode(&buf, exposure(0, 8, 8, 1), codec.FormatPNG, 1); err!=nil { t.Fatal(err) }
	_, _, err:=FuseBytes([][]byte{buf.Bytes(), []byte("garbage"), nil}, nil, testContext())
	var de *DecodeError
	if !errors.As(err, &de) || de.Index!=1 {
		t.Errorf("err=%v; want DecodeError at index 1", err)
	}
}

func TestFusePostProcessing(t *testing.T) {
	f:=raster.New(0, 4, 4, 3, nil)
	for i:=range f.Data { f.Data[i]=0.25 }
	cfg:=NewConfigDefault()
	cfg.Post.Gamma.Active, cfg.Post.Gamma.Gamma=true, 0.5
	res, err:=Fuse([]*raster.Image{f}, cfg, testContext())
	if err!=nil { t.Fatalf("Fuse err=%v", err) }
	for i, v:=range res.Image.Data {
		if math.Abs(float64(v-0.5))>1e-6 { t.Fatalf("data[%d]=%g; want 0.5", i, v) }
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg:=NewConfigDefault()
	cfg.Weights.Sigma=0
	_, err:=Fuse([]*raster.Image{exposure(0, 8, 8, 1)}, cfg, testContext())
	var ce *ConfigError
	if !errors.As(err, &ce) { t.Errorf("err=%v; want ConfigError", err) }
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestEncodeResultError(t *testing.T) {
	res, err:=Fuse([]*raster.Image{exposure(0, 8, 8, 1)}, nil, testContext())
	if err!=nil { t.Fatalf("Fuse err=%v", err) }
	for _, format:=range []codec.Format{codec.FormatPNG, codec.FormatTIFF} {
		err:=EncodeResult(failingWriter{}, res, OutputConfig{Format: format, CompressionLevel: 5})
		var ee *EncodeError
		if !errors.As(err, &ee) || ee.Format!=format {
			t.Errorf("%s: err=%v; want EncodeError", format, err)
		}
	}
}

func TestFuseBytesUnknownFormat(t *testing.T) {
	buf:=bytes.Buffer{}
	if err:=codec.Encode(&buf, exposure(0, 8, 8, 1), codec.FormatPNG, 1); err!=nil { t.Fatal(err) }
	cfg:=NewConfigDefault()
	cfg.Output.Format=codec.Format(9)
	out, _, err:=FuseBytes([][]byte{buf.Bytes()}, cfg, testContext())
	var ce *ConfigError
	if !errors.As(err, &ce) || out!=nil {
		t.Errorf("out=%d bytes, err=%v; want ConfigError", len(out), err)
	}
}

func TestFuseNilLog(t *testing.T) {
	stack:=[]*raster.Image{exposure(0, 16, 16, 0.5), exposure(1, 16, 16, 1.5)}
	cfg:=NewConfigDefault()
	cfg.Post.Gamma.Active=true
	for _, c:=range []*ops.Context{nil, ops.NewContext(nil), {MaxThreads: 2}} {
		res, err:=Fuse(stack, cfg, c)
		if err!=nil || res.Image==nil { t.Errorf("Fuse err=%v; want fused image", err) }
	}
}
