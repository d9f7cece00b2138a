// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"math"
	"sync"
	"time"

	"github.com/curioloop/optimizer/lbfgsb"
	"github.com/curioloop/optimizer/numdiff"
	"github.com/curioloop/optimizer/slsqp"
	"github.com/curioloop/trajopt/mesh"
	"gonum.org/v1/gonum/floats"
)

// Solution is the decoded result of one solve: the best-found trajectory,
// the objective there, and the solver diagnostics passed through verbatim.
type Solution struct {
	Traj mesh.Traj
	F    float64

	OK      bool   // whether the solver converged
	Backend string // "slsqp" or "lbfgsb"
	Status  int    // the backend's exit status, unmodified
	Message string // meaning of Status per the backend's documentation

	NumIter int           // solver iterations
	NumEval int           // transcription evaluation sweeps, finite-difference probes included
	Elapsed time.Duration // wall clock around the solver call
}

// Solve wires the transcription callbacks, bounds and initial point into a
// solver and decodes the result. Problems with at least one constraint row
// go to SLSQP; a transcription with no dynamics and no user constraints is
// purely bound-constrained and goes to L-BFGS-B instead. Gradients and
// constraint normals are approximated by forward differences.
//
// A non-success exit status is not an error: the best-found solution and the
// verbatim status are returned for the caller to judge. The error return
// only reports solver construction failures.
func (t *Transcription) Solve() (*Solution, error) {
	ev := newEvaluator(t)
	if t.mEq+t.mNeq == 0 {
		return t.solveQuasi(ev)
	}
	return t.solveSQP(ev)
}

func (t *Transcription) solveSQP(ev *evaluator) (*Solution, error) {

	n := t.layout.Len()

	object := func(x, g []float64) float64 {
		if g == nil {
			return ev.value(x).f
		}
		p := ev.gradient(x)
		copy(g, p.jac[:n])
		return p.f
	}

	eqCons := make([]slsqp.Evaluation, t.mEq)
	for j := range eqCons {
		j := j
		row := (1 + j) * n
		eqCons[j] = func(x, g []float64) float64 {
			if g == nil {
				return ev.value(x).eq[j]
			}
			p := ev.gradient(x)
			copy(g, p.jac[row:row+n])
			return p.eq[j]
		}
	}

	// SLSQP takes 𝒄(𝐱) ≥ 0 while the transcription contract is ≤ 0,
	// so inequality values and normals flip sign here.
	neqCons := make([]slsqp.Evaluation, t.mNeq)
	for j := range neqCons {
		j := j
		row := (1 + t.mEq + j) * n
		neqCons[j] = func(x, g []float64) float64 {
			if g == nil {
				return -ev.value(x).neq[j]
			}
			p := ev.gradient(x)
			for i, v := range p.jac[row : row+n] {
				g[i] = -v
			}
			return -p.neq[j]
		}
	}

	bounds := make([]slsqp.Bound, n)
	for i, b := range t.bounds {
		bounds[i] = slsqp.Bound{Lower: b.Lower, Upper: b.Upper}
	}

	sp := slsqp.Problem{
		N:       n,
		Stop:    t.opts.Stop,
		Line:    t.opts.Line,
		Object:  object,
		EqCons:  eqCons,
		NeqCons: neqCons,
		Bounds:  bounds,
	}

	opt, err := sp.New()
	if err != nil {
		return nil, err
	}

	w := opt.Init()
	start := time.Now()
	res := opt.Fit(t.InitPoint(), w)
	elapsed := time.Since(start)

	return &Solution{
		Traj:    t.layout.Unpack(res.X),
		F:       res.F,
		OK:      res.OK,
		Backend: "slsqp",
		Status:  int(res.Status),
		Message: sqpMessage(int(res.Status)),
		NumIter: res.NumIter,
		NumEval: ev.count(),
		Elapsed: elapsed,
	}, nil
}

func (t *Transcription) solveQuasi(ev *evaluator) (*Solution, error) {

	n := t.layout.Len()

	eval := func(x, g []float64) float64 {
		p := ev.gradient(x)
		copy(g, p.jac[:n])
		return p.f
	}

	// L-BFGS-B marks a missing bound with NaN, not ±Inf.
	bounds := make([]lbfgsb.Bound, n)
	for i, b := range t.bounds {
		l, u := b.Lower, b.Upper
		if math.IsInf(l, 0) {
			l = math.NaN()
		}
		if math.IsInf(u, 0) {
			u = math.NaN()
		}
		bounds[i] = lbfgsb.Bound{Lower: l, Upper: u}
	}

	qp := lbfgsb.Problem{
		N:      n,
		M:      t.opts.Corrections,
		Eval:   eval,
		Stop:   t.opts.Quasi,
		Bounds: bounds,
	}

	opt, err := qp.New(t.opts.Log)
	if err != nil {
		return nil, err
	}

	w := opt.Init()
	start := time.Now()
	res := opt.Fit(t.InitPoint(), w)
	elapsed := time.Since(start)

	return &Solution{
		Traj:    t.layout.Unpack(res.X),
		F:       res.F,
		OK:      res.OK,
		Backend: "lbfgsb",
		Status:  int(res.Status),
		Message: quasiMessage(int(res.Status)),
		NumIter: res.NumIter,
		NumEval: ev.count(),
		Elapsed: elapsed,
	}, nil
}

// point is one cached evaluation of the transcription at a fixed location.
type point struct {
	x       []float64
	f       float64
	neq, eq []float64
	jac     []float64 // (1+mEq+mNeq)×n, row-major, nil until a gradient is requested
}

// evaluator memoizes the latest evaluation point. SLSQP asks for every
// scalar constraint separately at the same x, so one assembler sweep serves
// the whole row; the finite-difference Jacobian is built lazily on the first
// gradient request at an x. The Transcription callbacks themselves stay
// stateless: the cache lives only for the duration of one solve.
type evaluator struct {
	t     *Transcription
	diff  numdiff.ApproxSpec
	mu    sync.Mutex
	last  *point
	evals int
}

func newEvaluator(t *Transcription) *evaluator {
	// The probe is deliberately unbounded: a variable pinned by an exact
	// bound would collapse the difference step to zero, and the callbacks
	// are defined everywhere anyway.
	ev := &evaluator{t: t}
	ev.diff = numdiff.ApproxSpec{
		N:      t.layout.Len(),
		M:      1 + t.mEq + t.mNeq,
		Object: ev.sweep,
		Method: numdiff.Forward,
	}
	return ev
}

// sweep evaluates the objective and both constraint blocks into one output
// vector [f, eq…, neq…]. Also the numdiff target.
func (ev *evaluator) sweep(x, y []float64) {
	ev.evals++
	y[0] = ev.t.Objective(x)
	neq, eq := ev.t.Constraints(x)
	copy(y[1:1+len(eq)], eq)
	copy(y[1+len(eq):], neq)
}

func (ev *evaluator) refresh(x []float64) *point {
	if ev.last != nil && floats.Equal(ev.last.x, x) {
		return ev.last
	}
	m := ev.diff.M
	y := make([]float64, m)
	ev.sweep(x, y)
	p := &point{
		x:   append([]float64(nil), x...),
		f:   y[0],
		eq:  y[1 : 1+ev.t.mEq],
		neq: y[1+ev.t.mEq : m],
	}
	ev.last = p
	return p
}

func (ev *evaluator) value(x []float64) *point {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.refresh(x)
}

func (ev *evaluator) gradient(x []float64) *point {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	p := ev.refresh(x)
	if p.jac == nil {
		jac := make([]float64, ev.diff.N*ev.diff.M)
		x0 := append([]float64(nil), p.x...) // numdiff perturbs its argument in place
		if err := ev.diff.Diff(x0, jac); err != nil {
			panic(err)
		}
		p.jac = jac
	}
	return p
}

func (ev *evaluator) count() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.evals
}

func sqpMessage(code int) string {
	switch code {
	case int(slsqp.OK), int(slsqp.HasSolution):
		return "problem solved successfully"
	case int(slsqp.BadArgument):
		return "evaluation panic or input dimension unacceptable"
	case int(slsqp.NNLSExceedMaxIter):
		return "more than max iterations for solving NNLS"
	case int(slsqp.ConsIncompatible):
		return "inequality constraints incompatible"
	case int(slsqp.LSISingularE):
		return "matrix E is not of full rank in LSI"
	case int(slsqp.LSEISingularC):
		return "matrix C is not of full rank in LSEI"
	case int(slsqp.HFTIRankDefect):
		return "rank-deficient equality constraint in HFTI"
	case int(slsqp.SearchNotDescent):
		return "positive directional derivative for line-search"
	case int(slsqp.SQPExceedMaxIter):
		return "more than max iterations in SQP"
	}
	return "unknown status"
}

func quasiMessage(code int) string {
	switch code {
	case int(lbfgsb.ConvGradProgNorm):
		return "convergence: projected gradient norm within tolerance"
	case int(lbfgsb.ConvEnoughAccuracy):
		return "convergence: relative function reduction within accuracy factor"
	case int(lbfgsb.StopAbnormalSearch):
		return "abnormal termination in line search"
	case int(lbfgsb.HaltEvalPanic):
		return "evaluation callback panicked"
	case int(lbfgsb.OverIterLimit):
		return "iteration limit reached"
	case int(lbfgsb.OverEvalLimit):
		return "evaluation limit reached"
	case int(lbfgsb.OverTimeLimit):
		return "computation time limit reached"
	case int(lbfgsb.OverGradThresh):
		return "projected gradient sufficiently small"
	}
	return "unknown status"
}
