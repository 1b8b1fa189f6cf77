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
	"errors"
	"fmt"
	"math"
)

// Motion model of a transform. Determines which matrix entries are free
type Model int

const (
	ModelTranslation Model = iota  // x'=x+tx, y'=y+ty
	ModelEuclidean                 // rotation and translation
	ModelAffine                    // full 2x3 matrix
	ModelHomography                // full 3x3 matrix with M[8]=1
)

func (m Model) String() string {
	switch m {
	case ModelTranslation: return "translation"
	case ModelEuclidean:   return "euclidean"
	case ModelAffine:      return "affine"
	case ModelHomography:  return "homography"
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// A 2D projective transform, stored as a row-major 3x3 matrix.
// Maps target image coordinates onto the reference frame. Affine models keep the last row at 0 0 1
type Transform struct {
	Model Model
	M     [9]float64
}

// The zero-displacement transform
func Identity() Transform {
	return Transform{Model: ModelTranslation, M: [9]float64{1,0,0, 0,1,0, 0,0,1}}
}

// A pure translation by (tx, ty)
func Translation(tx, ty float64) Transform {
	return Transform{Model: ModelTranslation, M: [9]float64{1,0,tx, 0,1,ty, 0,0,1}}
}

// A rotation by theta radians around the origin, followed by a translation by (tx, ty)
func Euclidean(theta, tx, ty float64) Transform {
	c, s:=math.Cos(theta), math.Sin(theta)
	return Transform{Model: ModelEuclidean, M: [9]float64{c,-s,tx, s,c,ty, 0,0,1}}
}

// Returns true if the matrix is exactly the identity
func (t Transform) IsIdentity() bool {
	return t.M==[9]float64{1,0,0, 0,1,0, 0,0,1}
}

// Returns true if the last row is 0 0 1
func (t Transform) IsAffine() bool {
	return t.M[6]==0 && t.M[7]==0 && t.M[8]==1
}

// Applies the transform to a point. Returns false if the point maps to infinity or behind the projection center
func (t Transform) Apply(x, y float64) (xp, yp float64, ok bool) {
	m:=&t.M
	w:=m[6]*x + m[7]*y + m[8]
	if w<=1e-12 { return 0, 0, false }
	return (m[0]*x + m[1]*y + m[2])/w, (m[3]*x + m[4]*y + m[5])/w, true
}

// Returns the inverse transform, or an error if the matrix is singular
func (t Transform) Invert() (Transform, error) {
	m:=&t.M
	c00:=m[4]*m[8]-m[5]*m[7]
	c01:=m[5]*m[6]-m[3]*m[8]
	c02:=m[3]*m[7]-m[4]*m[6]
	det:=m[0]*c00 + m[1]*c01 + m[2]*c02
	if math.Abs(det)<1e-12 || math.IsNaN(det) {
		return Identity(), errors.New(fmt.Sprintf("singular transform %v", t))
	}
	inv:=Transform{Model: t.Model}
	inv.M[0]=c00/det
	inv.M[1]=(m[2]*m[7]-m[1]*m[8])/det
	inv.M[2]=(m[1]*m[5]-m[2]*m[4])/det
	inv.M[3]=c01/det
	inv.M[4]=(m[0]*m[8]-m[2]*m[6])/det
	inv.M[5]=(m[2]*m[3]-m[0]*m[5])/det
	inv.M[6]=c02/det
	inv.M[7]=(m[1]*m[6]-m[0]*m[7])/det
	inv.M[8]=(m[0]*m[4]-m[1]*m[3])/det
	inv.normalize()
	return inv, nil
}

// Returns the equivalent transform for coordinates scaled by the given factor, i.e. S*T*S^-1
func (t Transform) Rescale(factor float64) Transform {
	res:=t
	res.M[2]*=factor
	res.M[5]*=factor
	res.M[6]/=factor
	res.M[7]/=factor
	return res
}

// Scales the matrix so M[8]=1, and snaps affine rows
func (t *Transform) normalize() {
	if t.Model!=ModelHomography {
		t.M[6], t.M[7], t.M[8]=0, 0, 1
		return
	}
	if t.M[8]!=0 && t.M[8]!=1 {
		s:=1/t.M[8]
		for i:=range t.M { t.M[i]*=s }
		t.M[8]=1
	}
}

// Returns true if any matrix entry is NaN or infinite
func (t Transform) IsNaN() bool {
	for _, v:=range t.M {
		if math.IsNaN(v) || math.IsInf(v, 0) { return true }
	}
	return false
}

// Returns the largest displacement of the four image corners under the transform,
// or +Inf if a corner maps to infinity
func (t Transform) MaxCornerDisplacement(width, height int) float64 {
	w, h:=float64(width-1), float64(height-1)
	max:=0.0
	for _, p:=range [4][2]float64{{0,0}, {w,0}, {0,h}, {w,h}} {
		xp, yp, ok:=t.Apply(p[0], p[1])
		if !ok { return math.Inf(1) }
		d:=math.Hypot(xp-p[0], yp-p[1])
		if d>max { max=d }
	}
	return max
}

func (t Transform) String() string {
	m:=&t.M
	if t.IsAffine() {
		return fmt.Sprintf("%s x'=%.5gx %+.5gy %+.3g, y'=%.5gx %+.5gy %+.3g",
			t.Model, m[0], m[1], m[2], m[3], m[4], m[5])
	}
	return fmt.Sprintf("%s [%.5g %.5g %.3g; %.5g %.5g %.3g; %.3g %.3g %.3g]",
		t.Model, m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}
