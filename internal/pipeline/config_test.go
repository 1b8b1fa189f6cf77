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
	"os"
	"path/filepath"
	"testing"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/codec"
	"github.com/mlnoga/brackets/internal/warp"
)

func TestConfigDefaults(t *testing.T) {
	c:=NewConfigDefault()
	if c.Align.Mode!=align.ModeEuclidean || c.Align.MaxIterations!=200 || c.Align.Epsilon!=1e-6 {
		t.Errorf("align=%+v; want euclidean, 200 iterations, epsilon 1e-6", c.Align)
	}
	if c.Warp.Interpolation!=warp.Bilinear || c.Warp.Border!=warp.Replicate {
		t.Errorf("warp=%+v; want bilinear, replicate", c.Warp)
	}
	if c.Weights.Contrast!=1 || c.Weights.Saturation!=1 || c.Weights.Exposedness!=1 || c.Weights.Sigma!=0.2 {
		t.Errorf("weights=%v; want exponents 1, sigma 0.2", c.Weights)
	}
	if c.Post.Gamma.Active || c.Post.LocalContrast.Active || c.Post.Saturation.Active {
		t.Errorf("post-processing active by default")
	}
	if c.Output.Format!=codec.FormatPNG || c.Output.CompressionLevel!=5 {
		t.Errorf("output=%+v; want png level 5", c.Output)
	}
	if err:=c.Validate(); err!=nil { t.Errorf("Validate err=%v", err) }
}

func TestParsePartialConfig(t *testing.T) {
	tests:=[]struct {
		name string
		data string
	}{
		{"nested.json", `{"align":{"mode":"homography"},"post":{"gamma":2.2,"saturation":{"boost":1.4}},"output":{"format":"tiff"}}`},
		{"nested.yaml", "align:\n  mode: homography\npost:\n  gamma: 2.2\n  saturation:\n    boost: 1.4\noutput:\n  format: tiff\n"},
		{"flat.json",   `{"alignment_mode":"homography","post_gamma":2.2,"post_saturation_boost":1.4,"output_format":"TIFF"}`},
		{"flat.yml",    "alignment_mode: homography\npost_gamma: 2.2\npost_saturation_boost: 1.4\noutput_format: TIFF\n"},
	}
	for _, test:=range tests {
		c, err:=ParseConfig([]byte(test.data), test.name)
		if err!=nil { t.Errorf("%s: err=%v", test.name, err); continue }
		if c.Align.Mode!=align.ModeHomography { t.Errorf("%s: mode=%v; want homography", test.name, c.Align.Mode) }
		if c.Align.MaxIterations!=200 { t.Errorf("%s: max iterations=%d; want default 200", test.name, c.Align.MaxIterations) }
		if c.Weights.Sigma!=0.2 { t.Errorf("%s: sigma=%g; want default 0.2", test.name, c.Weights.Sigma) }
		if !c.Post.Gamma.Active || c.Post.Gamma.Gamma!=2.2 { t.Errorf("%s: gamma=%+v; want active 2.2", test.name, c.Post.Gamma) }
		if !c.Post.Saturation.Active || c.Post.Saturation.Boost!=1.4 { t.Errorf("%s: saturation=%+v; want active 1.4", test.name, c.Post.Saturation) }
		if c.Post.LocalContrast.Active { t.Errorf("%s: local contrast active; want default off", test.name) }
		if c.Output.Format!=codec.FormatTIFF || c.Output.CompressionLevel!=5 {
			t.Errorf("%s: output=%+v; want tiff, default level 5", test.name, c.Output)
		}
	}
}

func TestFlatLocalContrast(t *testing.T) {
	c, err:=ParseConfig([]byte(`{"post_local_contrast":{"clip_limit":3,"tile_size":4},"warp_interpolation":"high-order"}`), "c.json")
	if err!=nil { t.Fatalf("err=%v", err) }
	lc:=c.Post.LocalContrast
	if !lc.Active || lc.ClipLimit!=3 || lc.TileGrid!=4 {
		t.Errorf("local contrast=%+v; want active, clip 3, grid 4", lc)
	}
	if c.Warp.Interpolation!=warp.HighOrder { t.Errorf("interpolation=%v; want high-order", c.Warp.Interpolation) }

	c, err=ParseConfig([]byte(`{"post_local_contrast":"off","alignment_mode":"bitmap-translation"}`), "c.json")
	if err!=nil { t.Fatalf("err=%v", err) }
	if c.Post.LocalContrast.Active || c.Align.Mode!=align.ModeBitmap {
		t.Errorf("config=%v; want contrast off, bitmap mode", c)
	}
}

func TestConfigValidation(t *testing.T) {
	for _, data:=range []string{
		`{"output_compression_level":12}`,
		`{"weights":{"sigma":0}}`,
		`{"alignment_max_iterations":0}`,
		`{"alignment_mode":"sideways"}`,
		`{"weight_contrast_exponent":-1}`,
	} {
		if _, err:=ParseConfig([]byte(data), "c.json"); err==nil {
			t.Errorf("%s: err=nil; want error", data)
		}
	}
	cfg:=NewConfigDefault()
	cfg.Output.Format=codec.Format(7)
	if err:=cfg.Validate(); err==nil { t.Errorf("format 7: err=nil; want error") }
}

func TestLoadConfig(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "brackets.yaml")
	if err:=os.WriteFile(fileName, []byte("warp:\n  border: constant\npyramid:\n  maxLevels: 4\n"), 0644); err!=nil { t.Fatal(err) }
	c, err:=LoadConfig(fileName)
	if err!=nil { t.Fatalf("LoadConfig err=%v", err) }
	if c.Warp.Border!=warp.Constant || c.Pyramid.MaxLevels!=4 || c.Pyramid.MinSize!=8 {
		t.Errorf("config=%v; want constant border, 4 levels, min size 8", c)
	}
	if _, err:=LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err==nil {
		t.Errorf("LoadConfig(missing) err=nil; want error")
	}
}

func TestNullPostSteps(t *testing.T) {
	c, err:=ParseConfig([]byte(`{"post":{"gamma":null,"saturation":null}}`), "c.json")
	if err!=nil { t.Fatalf("err=%v", err) }
	if c.Post.Gamma==nil || c.Post.Gamma.Active || c.Post.Saturation==nil || c.Post.Saturation.Active {
		t.Errorf("post=%+v; want inactive defaults", c.Post)
	}
}
