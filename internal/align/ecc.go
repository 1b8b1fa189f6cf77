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
	"runtime"
	"sync"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"github.com/mlnoga/brackets/internal/raster"
)

// Normal equations with a larger condition number are treated as singular
const maxCondition = 1e12

// Minimum fraction of reference pixels which must map inside the target
const minOverlap = 0.25

// Parameter updates with a smaller euclidean norm end the iteration as converged
const minStep = 1e-6

// Estimates the transform aligning target onto ref by maximizing the enhanced correlation
// coefficient (Evangelidis & Psarakis 2008) with Gauss-Newton steps, starting from the identity.
// Large images are downscaled by powers of two to at most cfg.MaxDimension first
func EstimateECC(ref, target []float32, width, height int, cfg Config) Result {
	if width<2 || height<2 { return fail(StatusNonConvergence, 0, 0) }

	// work on a reduced copy if requested
	t, in, w, h, scale:=ref, target, width, height, 1
	for cfg.MaxDimension>0 && maxInt(w, h)>cfg.MaxDimension && minInt(w, h)>=32 {
		var nw, nh int
		t, nw, nh=raster.PyrDown(t, w, h)
		in, _, _ =raster.PyrDown(in, w, h)
		w, h=nw, nh
		scale*=2
	}

	res:=ecc(t, in, w, h, cfg.Mode.Model(), cfg)
	if res.Status.Failed() { return res }

	// the iteration finds the warp from reference to target coordinates, so invert it
	inv, err:=res.Transform.Invert()
	if err!=nil { return fail(StatusOutOfBounds, res.Iterations, res.Correlation) }
	inv=inv.Rescale(float64(scale))

	if inv.MaxCornerDisplacement(width, height)>cfg.MaxDisplacement*float64(maxInt(width, height)) {
		return fail(StatusOutOfBounds, res.Iterations, res.Correlation)
	}
	res.Transform=inv
	return res
}

// Core ECC iteration on same-sized template and input planes. Returns the warp mapping
// template coordinates to input coordinates
func ecc(tmpl, input []float32, w, h int, model Model, cfg Config) Result {
	tmpl =raster.Blur5(tmpl, w, h)
	input=raster.Blur5(input, w, h)
	gx, gy:=raster.Gradients(input, w, h)

	k:=numParams(model)
	p:=newWarpParams(model)
	minValid:=int(minOverlap*float64(w*h))
	if minValid<k+1 { minValid=k+1 }

	rho, lastRho:=-1.0, -cfg.Epsilon
	iter, stalled:=0, false
	for ; iter<cfg.MaxIterations && math.Abs(rho-lastRho)>=cfg.Epsilon; iter++ {
		s:=accumulate(tmpl, input, gx, gy, w, h, p)
		if s.n<minValid { return fail(StatusNonConvergence, iter, rho) }

		n:=float64(s.n)
		tMean, iMean:=s.sumT/n, s.sumI/n
		tNorm2:=s.sumTT - n*tMean*tMean
		iNorm2:=s.sumII - n*iMean*iMean
		tiDot :=s.sumTI - n*tMean*iMean
		if tNorm2<=0 || iNorm2<=0 { return fail(StatusNonConvergence, iter, rho) }

		lastRho=rho
		rho=tiDot/math.Sqrt(tNorm2*iNorm2)
		if math.IsNaN(rho) { return fail(StatusNonConvergence, iter, lastRho) }

		// projections of the zero-mean images onto the jacobian
		ip:=make([]float64, k)
		tp:=make([]float64, k)
		floats.AddScaledTo(ip, s.sumJI, -iMean, s.sumJ)
		floats.AddScaledTo(tp, s.sumJT, -tMean, s.sumJ)

		sys, ok:=newNormalSystem(s.hess, k)
		if !ok { return fail(StatusSingular, iter, rho) }
		hip, err:=sys.solve(ip)
		if err!=nil { return fail(StatusSingular, iter, rho) }

		lambdaN:=iNorm2 - floats.Dot(ip, hip)
		lambdaD:=tiDot  - floats.Dot(tp, hip)
		if lambdaD<=0 { return fail(StatusNonConvergence, iter, rho) }
		lambda:=lambdaN/lambdaD

		// error projection is J^T (lambda*tz - iz)
		ep:=make([]float64, k)
		floats.AddScaledTo(ep, floats.ScaleTo(make([]float64, k), -1, ip), lambda, tp)
		dp, err:=sys.solve(ep)
		if err!=nil { return fail(StatusSingular, iter, rho) }
		p.update(dp)
		if floats.Norm(dp, 2)<minStep {
			stalled=true
			iter++
			break
		}
	}

	warp:=p.transform()
	if warp.IsNaN() { return fail(StatusNonConvergence, iter, rho) }
	if rho<cfg.MinCorrelation { return fail(StatusNonConvergence, iter, rho) }

	status:=StatusConverged
	if !stalled && math.Abs(rho-lastRho)>=cfg.Epsilon { status=StatusMaxIterations }
	return Result{Transform: warp, Status: status, Iterations: iter, Correlation: rho}
}

// Cholesky factorization of the hessian after symmetric Jacobi scaling D*H*D, D=diag(1/sqrt(H_ii))
type normalSystem struct {
	chol  mat.Cholesky
	scale []float64
}

// Factorizes the given row-major k x k hessian. Returns false if it is singular or ill-conditioned
func newNormalSystem(hess []float64, k int) (*normalSystem, bool) {
	sys:=&normalSystem{scale: make([]float64, k)}
	for i:=0; i<k; i++ {
		d:=hess[i*k+i]
		if !(d>0) { return nil, false }
		sys.scale[i]=1/math.Sqrt(d)
	}
	scaled:=make([]float64, k*k)
	for i:=0; i<k; i++ {
		for j:=0; j<k; j++ {
			scaled[i*k+j]=sys.scale[i]*hess[i*k+j]*sys.scale[j]
		}
	}
	if ok:=sys.chol.Factorize(mat.NewSymDense(k, scaled)); !ok || sys.chol.Cond()>maxCondition {
		return nil, false
	}
	return sys, true
}

// Solves H x = b
func (sys *normalSystem) solve(b []float64) ([]float64, error) {
	k:=len(b)
	bs:=make([]float64, k)
	floats.MulTo(bs, sys.scale, b)
	var x mat.VecDense
	if err:=sys.chol.SolveVecTo(&x, mat.NewVecDense(k, bs)); err!=nil { return nil, err }
	res:=make([]float64, k)
	for i:=range res { res[i]=sys.scale[i]*x.AtVec(i) }
	return res, nil
}

func numParams(model Model) int {
	switch model {
	case ModelTranslation: return 2
	case ModelEuclidean:   return 3
	case ModelAffine:      return 6
	}
	return 8
}

// Free parameters of a warp during the iteration
type warpParams struct {
	model Model
	theta float64       // rotation angle, euclidean only
	t     Transform
}

func newWarpParams(model Model) *warpParams {
	t:=Identity()
	t.Model=model
	return &warpParams{model: model, t: t}
}

// Adds a parameter update, in the order of the jacobian columns
func (p *warpParams) update(dp []float64) {
	m:=&p.t.M
	switch p.model {
	case ModelTranslation:
		m[2]+=dp[0]
		m[5]+=dp[1]
	case ModelEuclidean:
		p.theta+=dp[0]
		tx, ty:=m[2]+dp[1], m[5]+dp[2]
		p.t=Euclidean(p.theta, tx, ty)
	case ModelAffine:
		for i:=0; i<6; i++ { m[i]+=dp[i] }
	case ModelHomography:
		for i:=0; i<8; i++ { m[i]+=dp[i] }
	}
}

func (p *warpParams) transform() Transform {
	return p.t
}

// Sums over all valid pixels needed for one ECC step. The jacobian J is never stored
type eccSums struct {
	n       int
	sumT    float64
	sumI    float64
	sumTT   float64
	sumII   float64
	sumTI   float64
	sumJ    []float64   // sum of J
	sumJT   []float64   // sum of J*template
	sumJI   []float64   // sum of J*warped input
	hess    []float64   // J^T J, row-major, both triangles filled
}

func newECCSums(k int) *eccSums {
	return &eccSums{
		sumJ:  make([]float64, k),
		sumJT: make([]float64, k),
		sumJI: make([]float64, k),
		hess:  make([]float64, k*k),
	}
}

func (s *eccSums) add(o *eccSums) {
	s.n    +=o.n
	s.sumT +=o.sumT
	s.sumI +=o.sumI
	s.sumTT+=o.sumTT
	s.sumII+=o.sumII
	s.sumTI+=o.sumTI
	floats.Add(s.sumJ,  o.sumJ)
	floats.Add(s.sumJT, o.sumJT)
	floats.Add(s.sumJI, o.sumJI)
	floats.Add(s.hess,  o.hess)
}

// Number of row chunks for accumulation. Fixed so the summation order is independent of the CPU count
const eccChunks = 32

// Warps the input by the current parameters and accumulates the ECC sums over all template pixels
// which map inside the input. Chunks are reduced in order, so results are reproducible
func accumulate(tmpl, input, gx, gy []float32, w, h int, p *warpParams) *eccSums {
	k:=numParams(p.model)
	chunks:=eccChunks
	if chunks>h { chunks=h }
	parts:=make([]*eccSums, chunks)

	var wg sync.WaitGroup
	sem:=make(chan bool, runtime.NumCPU())
	for c:=0; c<chunks; c++ {
		wg.Add(1)
		sem <- true
		go func(c int) {
			defer func() { <-sem; wg.Done() }()
			parts[c]=accumulateRows(tmpl, input, gx, gy, w, h, c*h/chunks, (c+1)*h/chunks, p, k)
		}(c)
	}
	wg.Wait()

	total:=newECCSums(k)
	for _, part:=range parts { total.add(part) }
	for i:=0; i<k; i++ {   // mirror the upper triangle
		for j:=0; j<i; j++ {
			total.hess[i*k+j]=total.hess[j*k+i]
		}
	}
	return total
}

func accumulateRows(tmpl, input, gx, gy []float32, w, h, yStart, yEnd int, p *warpParams, k int) *eccSums {
	s:=newECCSums(k)
	j:=make([]float64, k)
	m:=&p.t.M
	sinT, cosT:=math.Sin(p.theta), math.Cos(p.theta)
	maxX, maxY:=float64(w-1), float64(h-1)

	for y:=yStart; y<yEnd; y++ {
		fy:=float64(y)
		for x:=0; x<w; x++ {
			fx:=float64(x)
			den:=m[6]*fx + m[7]*fy + m[8]
			if den<=1e-12 { continue }
			u:=(m[0]*fx + m[1]*fy + m[2])/den
			v:=(m[3]*fx + m[4]*fy + m[5])/den
			if !(u>=0 && u<=maxX && v>=0 && v<=maxY) { continue }

			iw :=bilinear(input, w, h, u, v)
			gxw:=bilinear(gx,    w, h, u, v)
			gyw:=bilinear(gy,    w, h, u, v)

			switch p.model {
			case ModelTranslation:
				j[0], j[1]=gxw, gyw
			case ModelEuclidean:
				hatX:=-(fx*sinT + fy*cosT)
				hatY:=  fx*cosT - fy*sinT
				j[0], j[1], j[2]=gxw*hatX+gyw*hatY, gxw, gyw
			case ModelAffine:
				j[0], j[1], j[2]=gxw*fx, gxw*fy, gxw
				j[3], j[4], j[5]=gyw*fx, gyw*fy, gyw
			case ModelHomography:
				gxd, gyd:=gxw/den, gyw/den
				proj:=-(gxd*u + gyd*v)
				j[0], j[1], j[2]=gxd*fx, gxd*fy, gxd
				j[3], j[4], j[5]=gyd*fx, gyd*fy, gyd
				j[6], j[7]      =proj*fx, proj*fy
			}

			tv:=float64(tmpl[y*w+x])
			s.n++
			s.sumT +=tv
			s.sumI +=iw
			s.sumTT+=tv*tv
			s.sumII+=iw*iw
			s.sumTI+=tv*iw
			for a:=0; a<k; a++ {
				ja:=j[a]
				s.sumJ [a]+=ja
				s.sumJT[a]+=ja*tv
				s.sumJI[a]+=ja*iw
				row:=s.hess[a*k:]
				for b:=a; b<k; b++ {
					row[b]+=ja*j[b]
				}
			}
		}
	}
	return s
}

// Samples a plane bilinearly at a position inside [0,w-1]x[0,h-1]
func bilinear(data []float32, w, h int, u, v float64) float64 {
	x0, y0:=int(u), int(v)
	x1, y1:=x0+1, y0+1
	if x1>=w { x1=w-1 }
	if y1>=h { y1=h-1 }
	fx, fy:=u-float64(x0), v-float64(y0)
	a:=float64(data[y0*w+x0])*(1-fx) + float64(data[y0*w+x1])*fx
	b:=float64(data[y1*w+x0])*(1-fx) + float64(data[y1*w+x1])*fx
	return a*(1-fy) + b*fy
}

func maxInt(a, b int) int { if a>b { return a }; return b }
func minInt(a, b int) int { if a<b { return a }; return b }
