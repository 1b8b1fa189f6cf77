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
	"encoding/json"
	"fmt"
	"io"
	"time"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/codec"
	"github.com/mlnoga/brackets/internal/fuse"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/post"
	"github.com/mlnoga/brackets/internal/raster"
	"github.com/mlnoga/brackets/internal/warp"
)

// Outcome of a fusion job
type Result struct {
	Image      *raster.Image
	Width      int
	Height     int
	Alignments []align.Result  // one per input, index 0 is the reference
}

// Checks that all images match the reference's width, height and channel count.
// Returns the first offending image
func CheckDimensions(stack []*raster.Image) error {
	if len(stack)==0 { return ErrEmptyStack }
	ref:=stack[0]
	for i, f:=range stack[1:] {
		if !f.SameSize(ref) {
			return &DimensionMismatchError{Index: i+1, Want: ref.DimensionsToString(), Got: f.DimensionsToString()}
		}
	}
	return nil
}

// Fuses an exposure stack into one image. The first image is the reference frame.
// Every other image is aligned to it and resampled onto its grid, then all are blended
// with normalized quality weights and post-processed
func Fuse(stack []*raster.Image, cfg *Config, c *ops.Context) (*Result, error) {
	if len(stack)==0 { return &Result{}, ErrEmptyStack }
	if cfg==nil { cfg=NewConfigDefault() }
	if err:=cfg.Validate(); err!=nil { return nil, &ConfigError{Err: err} }
	c=ops.EnsureLog(c)
	if err:=CheckDimensions(stack); err!=nil { return nil, err }

	start:=time.Now()
	ref:=stack[0]
	fmt.Fprintf(c.Log, "Fusing %d images of %s, alignment %s, interpolation %s\n",
	            len(stack), ref.DimensionsToString(), cfg.Align.Mode, cfg.Warp.Interpolation)

	// align and warp all images in parallel
	alignments:=make([]align.Result, len(stack))
	var refLum []float32
	if len(stack)>1 && cfg.Align.Mode!=align.ModeNone { refLum=ref.Luminance() }
	promises:=make([]ops.Promise, len(stack))
	for i, f:=range stack {
		promises[i]=alignPromise(i, f, refLum, cfg, c, alignments)
	}
	aligned, err:=ops.MaterializeAll(promises, c.MaxThreads)
	if err!=nil { return nil, err }

	weights:=fuse.Weights(aligned, cfg.Weights, c)
	blended, err:=fuse.Blend(aligned, weights, cfg.Pyramid, c)
	if err!=nil { return nil, err }
	aligned, weights=nil, nil // free memory

	seq:=post.NewOpPostProcess(cfg.Post.Gamma, cfg.Post.LocalContrast, cfg.Post.Saturation)
	if seq.Active {
		if m, err:=json.Marshal(seq); err==nil { fmt.Fprintf(c.Log, "Post-processing with %s\n", m) }
	}
	out, err:=seq.ApplyTo(blended, c)
	if err!=nil { return nil, err }
	out.Clamp()

	fmt.Fprintf(c.Log, "Fused %s in %v\n", out.DimensionsToString(), time.Since(start))
	return &Result{Image: out, Width: out.Width, Height: out.Height, Alignments: alignments}, nil
}

// Creates a promise that aligns image i to the reference luminance and resamples it
// onto the reference grid. Records the alignment outcome in results[i]
func alignPromise(i int, f *raster.Image, refLum []float32, cfg *Config, c *ops.Context, results []align.Result) ops.Promise {
	return func() (*raster.Image, error) {
		if i==0 || refLum==nil {
			results[i]=align.Result{Transform: align.Identity(), Status: align.StatusSkipped}
			return f, nil
		}
		res:=align.Estimate(refLum, f.Luminance(), f.Width, f.Height, cfg.Align)
		results[i]=res
		if res.Status.Failed() {
			fmt.Fprintf(c.Log, "%d: Alignment failed, using identity: %v\n", i, res)
		} else {
			fmt.Fprintf(c.Log, "%d: Aligned, %v\n", i, res)
		}
		return warp.Apply(f, res.Transform, cfg.Warp.Interpolation, cfg.Warp.Border)
	}
}

// Decodes compressed images, fuses them and encodes the result in the configured format
func FuseBytes(bufs [][]byte, cfg *Config, c *ops.Context) ([]byte, *Result, error) {
	if len(bufs)==0 { return nil, &Result{}, ErrEmptyStack }
	if cfg==nil { cfg=NewConfigDefault() }
	if err:=cfg.Validate(); err!=nil { return nil, nil, &ConfigError{Err: err} }
	c=ops.EnsureLog(c)

	stack, err:=DecodeAll(bufs, c)
	if err!=nil { return nil, nil, err }

	res, err:=Fuse(stack, cfg, c)
	if err!=nil { return nil, res, err }

	buf:=bytes.Buffer{}
	if err:=EncodeResult(&buf, res, cfg.Output); err!=nil { return nil, res, err }
	fmt.Fprintf(c.Log, "Encoded %s with compression level %d, %d bytes\n", cfg.Output.Format, cfg.Output.CompressionLevel, buf.Len())
	return buf.Bytes(), res, nil
}

// Encodes the fused image with the given output settings. Failures are reported as EncodeError
func EncodeResult(w io.Writer, res *Result, out OutputConfig) error {
	if err:=codec.Encode(w, res.Image, out.Format, out.CompressionLevel); err!=nil {
		return &EncodeError{Format: out.Format, Err: err}
	}
	return nil
}

// Decodes all buffers in parallel. On failure, reports the lowest failing index
func DecodeAll(bufs [][]byte, c *ops.Context) ([]*raster.Image, error) {
	errs:=make([]error, len(bufs))
	promises:=make([]ops.Promise, len(bufs))
	for i, data:=range bufs {
		promises[i]=decodePromise(i, data, c, errs)
	}
	stack, err:=ops.MaterializeAll(promises, c.MaxThreads)
	if err!=nil { return nil, err }
	for i, e:=range errs {
		if e!=nil { return nil, &DecodeError{Index: i, Err: e} }
	}
	return stack, nil
}

func decodePromise(i int, data []byte, c *ops.Context, errs []error) ops.Promise {
	return func() (*raster.Image, error) {
		f, err:=codec.Decode(data, i)
		if err!=nil {
			errs[i]=err
			return nil, nil
		}
		if fi, ok:=codec.ReadFrameInfo(data); ok {
			fmt.Fprintf(c.Log, "%d: Decoded %s, %s\n", i, f.DimensionsToString(), fi)
		} else {
			fmt.Fprintf(c.Log, "%d: Decoded %s\n", i, f.DimensionsToString())
		}
		return f, nil
	}
}
