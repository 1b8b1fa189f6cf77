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
	"math"
	"testing"
)

func TestReflect101(t *testing.T) {
	tests:=[]struct {
		i, n, want int
	}{
		{ 0, 5, 0},
		{-1, 5, 1},
		{-2, 5, 2},
		{ 5, 5, 3},
		{ 6, 5, 2},
		{ 3, 1, 0},
		{-1, 2, 1},
		{ 2, 2, 0},
	}
	for _, test:=range tests {
		if got:=Reflect101(test.i, test.n); got!=test.want {
			t.Errorf("Reflect101(%d,%d)=%d; want %d", test.i, test.n, got, test.want)
		}
	}
}

func TestPyrConstant(t *testing.T) {
	for _, dims:=range [][2]int{{1,1}, {2,3}, {7,5}, {16,16}, {33,17}} {
		w, h:=dims[0], dims[1]
		src:=make([]float32, w*h)
		for i:=range src { src[i]=0.375 }

		down, dw, dh:=PyrDown(src, w, h)
		if dw!=(w+1)/2 || dh!=(h+1)/2 {
			t.Errorf("PyrDown %dx%d size=%dx%d; want %dx%d", w, h, dw, dh, (w+1)/2, (h+1)/2)
		}
		for i, d:=range down {
			if math.Abs(float64(d-0.375))>1e-6 {
				t.Errorf("PyrDown %dx%d [%d]=%g; want 0.375", w, h, i, d)
				break
			}
		}

		up:=PyrUp(down, dw, dh, w, h)
		for i, u:=range up {
			if math.Abs(float64(u-0.375))>1e-6 {
				t.Errorf("PyrUp %dx%d [%d]=%g; want 0.375", w, h, i, u)
				break
			}
		}
	}
}

func TestLuminance(t *testing.T) {
	f:=New(0, 2, 1, 3, []float32{1,0, 0,1, 0,0})
	lum:=f.Luminance()
	if math.Abs(float64(lum[0]-LumR))>1e-6 || math.Abs(float64(lum[1]-LumG))>1e-6 {
		t.Errorf("Luminance=%v; want [%g %g]", lum, LumR, LumG)
	}
}

func TestAbsLaplacianFlat(t *testing.T) {
	w, h:=9, 7
	src:=make([]float32, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			src[y*w+x]=0.5
		}
	}
	src[3*w+4]=1
	lap:=AbsLaplacian(src, w, h)
	if lap[3*w+4]!=2 {
		t.Errorf("center=%g; want 2", lap[3*w+4])
	}
	if lap[3*w+5]!=0.5 {
		t.Errorf("neighbour=%g; want 0.5", lap[3*w+5])
	}
	if lap[0]!=0 {
		t.Errorf("corner=%g; want 0", lap[0])
	}
}

func TestMedian3x3(t *testing.T) {
	w, h:=5, 4
	src:=make([]float32, w*h)
	for i:=range src { src[i]=0.5 }
	src[1*w+2]=1      // impulse inside
	src[0]=0          // corner stays
	got:=Median3x3(src, w, h)
	if got[1*w+2]!=0.5 { t.Errorf("impulse=%g; want 0.5", got[1*w+2]) }
	if got[0]!=0 { t.Errorf("corner=%g; want 0 unchanged", got[0]) }
	if src[1*w+2]!=1 { t.Errorf("source modified") }

	a:=[9]float32{9, 1, 8, 2, 7, 3, 6, 4, 5}
	if m:=medianOf9(&a); m!=5 { t.Errorf("medianOf9=%g; want 5", m) }
}
