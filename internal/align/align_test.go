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


package align

import (
	"math"
	"testing"
	"github.com/valyala/fastrand"
)

// Smooth test pattern with structure at several scales
func pattern(x, y float64) float32 {
	return float32(0.5 + 0.2*math.Sin(x/9) + 0.15*math.Cos(y/13) + 0.1*math.Sin((x+2*y)/17))
}

// Renders the pattern sampled at (x+dx, y+dy), with a photometric gain and offset
func render(w, h int, dx, dy float64, gain, offset float32) []float32 {
	data:=make([]float32, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			data[y*w+x]=gain*pattern(float64(x)+dx, float64(y)+dy)+offset
		}
	}
	return data
}

func noise(w, h int, seed uint32) []float32 {
	rng:=fastrand.RNG{}
	rng.Seed(seed)
	data:=make([]float32, w*h)
	for i:=range data {
		data[i]=float32(rng.Uint32n(65536))/65535
	}
	return data
}

func TestTransformInvert(t *testing.T) {
	tests:=[]Transform{
		Identity(),
		Translation(3.5, -2),
		Euclidean(0.1, 4, -7),
		{Model: ModelAffine,     M: [9]float64{1.1, 0.05, 3, -0.02, 0.95, -1, 0, 0, 1}},
		{Model: ModelHomography, M: [9]float64{1.0, 0.02, 2, 0.01, 1.03, -3, 1e-4, -2e-4, 1}},
	}
	for _, tr:=range tests {
		inv, err:=tr.Invert()
		if err!=nil { t.Errorf("Invert(%v) err=%v", tr, err); continue }
		for _, p:=range [][2]float64{{0,0}, {10,5}, {-3,40}, {100,80}} {
			xp, yp, _:=tr.Apply(p[0], p[1])
			xb, yb, _:=inv.Apply(xp, yp)
			if math.Abs(xb-p[0])>1e-9 || math.Abs(yb-p[1])>1e-9 {
				t.Errorf("%v: inverse maps %v to (%g,%g); want %v", tr, p, xb, yb, p)
			}
		}
	}
}

func TestTransformRescale(t *testing.T) {
	tr:=Transform{Model: ModelHomography, M: [9]float64{1.0, 0.02, 2, 0.01, 1.03, -3, 1e-4, -2e-4, 1}}
	full:=tr.Rescale(4)
	xs, ys, _:=tr.Apply(10, 20)
	xf, yf, _:=full.Apply(40, 80)
	if math.Abs(xf-4*xs)>1e-9 || math.Abs(yf-4*ys)>1e-9 {
		t.Errorf("rescaled maps (40,80) to (%g,%g); want (%g,%g)", xf, yf, 4*xs, 4*ys)
	}
}

func TestSingularInvert(t *testing.T) {
	tr:=Transform{Model: ModelAffine, M: [9]float64{1,2,0, 2,4,0, 0,0,1}}
	if _, err:=tr.Invert(); err==nil {
		t.Errorf("Invert(%v) err=nil; want error", tr)
	}
}

func TestParseMode(t *testing.T) {
	tests:=[]struct {
		in   string
		want Mode
	}{
		{"euclidean", ModeEuclidean},
		{"Homography", ModeHomography},
		{"bitmap-translation", ModeBitmap},
		{"bitmap", ModeBitmap},
		{"none", ModeNone},
		{"affine", ModeAffine},
	}
	for _, test:=range tests {
		got, err:=ParseMode(test.in)
		if err!=nil || got!=test.want {
			t.Errorf("ParseMode(%q)=%v, %v; want %v", test.in, got, err, test.want)
		}
	}
	if _, err:=ParseMode("sideways"); err==nil {
		t.Errorf("ParseMode(sideways) err=nil; want error")
	}
}

func TestECCRecoversTranslation(t *testing.T) {
	w, h:=96, 80
	ref:=render(w, h, 0, 0, 1, 0)
	target:=render(w, h, 1.5, -1, 0.6, 0.1)  // shifted and darker

	cfg:=NewConfigDefault()
	cfg.Mode=ModeTranslation
	res:=Estimate(ref, target, w, h, cfg)
	if res.Status.Failed() { t.Fatalf("status=%v; want success", res) }
	if math.Abs(res.Transform.M[2]-1.5)>0.1 || math.Abs(res.Transform.M[5]+1)>0.1 {
		t.Errorf("transform=%v; want translation (1.5,-1)", res.Transform)
	}
	if res.Correlation<0.99 {
		t.Errorf("correlation=%g; want >=0.99", res.Correlation)
	}
}

func TestECCStopsOnVanishingStep(t *testing.T) {
	w, h:=64, 48
	ref:=render(w, h, 0, 0, 1, 0)
	for _, mode:=range []Mode{ModeTranslation, ModeEuclidean, ModeAffine} {
		cfg:=NewConfigDefault()
		cfg.Mode=mode
		cfg.Epsilon=0
		cfg.MaxIterations=50
		res:=Estimate(ref, ref, w, h, cfg)
		if res.Status!=StatusConverged || res.Iterations>=cfg.MaxIterations {
			t.Errorf("%v: status=%v after %d iterations; want converged early", mode, res.Status, res.Iterations)
		}
	}
}

func TestECCHigherOrderModels(t *testing.T) {
	w, h:=96, 80
	ref:=render(w, h, 0, 0, 1, 0)
	target:=render(w, h, 1.5, -1, 0.8, 0.05)
	for _, mode:=range []Mode{ModeAffine, ModeHomography} {
		cfg:=NewConfigDefault()
		cfg.Mode=mode
		res:=Estimate(ref, target, w, h, cfg)
		if res.Status.Failed() { t.Errorf("%v: status=%v; want success", mode, res); continue }
		for _, p:=range [][2]float64{{0,0}, {float64(w-1),0}, {0,float64(h-1)}, {float64(w-1),float64(h-1)}} {
			xp, yp, ok:=res.Transform.Apply(p[0], p[1])
			if !ok || math.Abs(xp-p[0]-1.5)>0.25 || math.Abs(yp-p[1]+1)>0.25 {
				t.Errorf("%v: corner %v maps to (%g,%g); want shift (1.5,-1)", mode, p, xp, yp)
			}
		}
	}
}

func TestECCEuclidean(t *testing.T) {
	w, h:=96, 80
	ref:=render(w, h, 0, 0, 1, 0)
	target:=render(w, h, -1, 0.5, 1.2, -0.05)

	cfg:=NewConfigDefault()
	res:=Estimate(ref, target, w, h, cfg)
	if res.Status.Failed() { t.Fatalf("status=%v; want success", res) }
	if res.Transform.Model!=ModelEuclidean {
		t.Errorf("model=%v; want euclidean", res.Transform.Model)
	}
	xp, yp, _:=res.Transform.Apply(40, 40)
	if math.Abs(xp-39)>0.15 || math.Abs(yp-40.5)>0.15 {
		t.Errorf("transform maps (40,40) to (%g,%g); want (39,40.5)", xp, yp)
	}
}

func TestECCIdenticalImages(t *testing.T) {
	w, h:=64, 64
	ref:=render(w, h, 0, 0, 1, 0)
	for _, mode:=range []Mode{ModeTranslation, ModeEuclidean, ModeAffine, ModeHomography} {
		cfg:=NewConfigDefault()
		cfg.Mode=mode
		res:=Estimate(ref, ref, w, h, cfg)
		if res.Status.Failed() { t.Errorf("%v: status=%v; want success", mode, res); continue }
		if d:=res.Transform.MaxCornerDisplacement(w, h); d>1e-3 {
			t.Errorf("%v: displacement=%g; want ~0", mode, d)
		}
	}
}

func TestECCNoiseFallsBackToIdentity(t *testing.T) {
	w, h:=64, 64
	for seed:=uint32(1); seed<=5; seed++ {
		ref   :=noise(w, h, seed)
		target:=noise(w, h, seed+1000)
		for _, mode:=range []Mode{ModeEuclidean, ModeHomography} {
			cfg:=NewConfigDefault()
			cfg.Mode=mode
			cfg.MaxIterations=50
			res:=Estimate(ref, target, w, h, cfg)
			if !res.Status.Failed() {
				t.Errorf("seed %d %v: status=%v; want failure", seed, mode, res)
			}
			if !res.Transform.IsIdentity() {
				t.Errorf("seed %d %v: transform=%v; want identity", seed, mode, res.Transform)
			}
			if res.Iterations>cfg.MaxIterations {
				t.Errorf("seed %d %v: iterations=%d; want <=%d", seed, mode, res.Iterations, cfg.MaxIterations)
			}
		}
	}
}

func TestECCDownscaled(t *testing.T) {
	w, h:=160, 128
	ref:=render(w, h, 0, 0, 1, 0)
	target:=render(w, h, 2, -2, 0.8, 0)

	cfg:=NewConfigDefault()
	cfg.Mode=ModeTranslation
	cfg.MaxDimension=80
	res:=Estimate(ref, target, w, h, cfg)
	if res.Status.Failed() { t.Fatalf("status=%v; want success", res) }
	if math.Abs(res.Transform.M[2]-2)>0.25 || math.Abs(res.Transform.M[5]+2)>0.25 {
		t.Errorf("transform=%v; want translation (2,-2)", res.Transform)
	}
}

func TestBitmapRecoversShift(t *testing.T) {
	w, h:=128, 128
	ref:=render(w, h, 0, 0, 1, 0)
	target:=render(w, h, 3, -2, 0.5, 0.2)

	cfg:=NewConfigDefault()
	cfg.Mode=ModeBitmap
	res:=Estimate(ref, target, w, h, cfg)
	if res.Status!=StatusConverged { t.Fatalf("status=%v; want converged", res) }
	if res.Correlation<0.5 { t.Errorf("correlation=%g; want >=0.5", res.Correlation) }
	if res.Transform.M[2]!=3 || res.Transform.M[5]!=-2 {
		t.Errorf("transform=%v; want translation (3,-2)", res.Transform)
	}
}

func TestBitmapNoiseFallsBackToIdentity(t *testing.T) {
	w, h:=96, 96
	for seed:=uint32(1); seed<=10; seed++ {
		cfg:=NewConfigDefault()
		cfg.Mode=ModeBitmap
		res:=Estimate(noise(w, h, seed), noise(w, h, seed+1000), w, h, cfg)
		if res.Status!=StatusNonConvergence || !res.Transform.IsIdentity() {
			t.Errorf("seed %d: result=%v; want non-convergence with identity", seed, res)
		}
	}
}

func TestModeNone(t *testing.T) {
	cfg:=NewConfigDefault()
	cfg.Mode=ModeNone
	res:=Estimate(nil, nil, 0, 0, cfg)
	if res.Status!=StatusSkipped || !res.Transform.IsIdentity() {
		t.Errorf("result=%v; want skipped identity", res)
	}
}
