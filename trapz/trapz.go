// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trapz transcribes a continuous-time optimal control problem into a
// finite-dimensional constrained NLP by trapezoidal direct collocation and
// hands it to the solvers of github.com/curioloop/optimizer.
package trapz

import (
	"errors"

	"github.com/curioloop/optimizer/lbfgsb"
	"github.com/curioloop/optimizer/slsqp"
	"github.com/curioloop/trajopt/mesh"
	"gonum.org/v1/gonum/mat"
)

// Dynamics evaluates the system ODE right-hand side 𝐱̇ = 𝒇(t,𝐱,𝐮) over a whole
// trajectory at once. The result is stored in deriv, which has the same
// (nState × nTime) shape as state: deriv[:,k] = 𝒇(tₖ, 𝐱ₖ, 𝐮ₖ).
type Dynamics func(time []float64, state, control, deriv *mat.Dense)

// PathCost evaluates the running cost integrand 𝒈(t,𝐱,𝐮) at every mesh node.
// The result is stored in cost, one entry per node.
type PathCost func(time []float64, state, control *mat.Dense, cost []float64)

// BoundaryCost evaluates a cost term depending only on the trajectory
// endpoints (t₀,𝐱₀) and (t𝘧,𝐱𝘧).
type BoundaryCost func(t0 float64, x0 []float64, tf float64, xf []float64) float64

// PathCons evaluates user constraints along the whole trajectory and returns
// an inequality residual vector (feasible when ≤ 0) and an equality residual
// vector (feasible when = 0). Either may be empty, but each must keep a fixed
// size and ordering across calls.
type PathCons func(time []float64, state, control *mat.Dense) (neq, eq []float64)

// BoundaryCons evaluates user constraints on the trajectory endpoints,
// with the same residual contract as PathCons.
type BoundaryCons func(t0 float64, x0 []float64, tf float64, xf []float64) (neq, eq []float64)

// Options carries the solver configuration through the transcription
// untouched. Zero values are replaced with defaults by Problem.New.
type Options struct {
	// Stop condition and line-search option for the SLSQP backend.
	Stop slsqp.Termination
	Line slsqp.LineSearch
	// Stop condition, correction number and logger for the L-BFGS-B
	// backend, used when the transcription has no constraint rows.
	Quasi       lbfgsb.Termination
	Corrections int
	Log         *lbfgsb.Logger
}

// Problem specifies one transcription run: mesh resolution, variable bounds,
// the optional user functions and an initial guess trajectory. The guess may
// live on any strictly increasing mesh; it is resampled onto the transcription
// mesh. A Problem is immutable input: New copies what it keeps.
//
// Every user function is optional. A missing cost contributes zero, a missing
// constraint contributes no residuals and missing dynamics produce no defect
// rows. Each supplied function must be pure and reentrant: the solver
// evaluates the callbacks an unbounded number of times, including repeatedly
// at the same point for finite-difference probing.
type Problem struct {
	NTime    int // mesh resolution, at least 2
	NState   int
	NControl int

	Bounds Bounds
	Guess  mesh.Traj

	Dynamics Dynamics
	PathCost PathCost
	BndCost  BoundaryCost
	PathCons PathCons
	BndCons  BoundaryCons

	Options Options
}

// New validates the problem and builds its transcription: the decision
// vector layout, the expanded variable bounds, the initial point resampled
// from the guess, and the constraint block sizes discovered by probing the
// assembler once at the initial point.
func (p *Problem) New() (t *Transcription, err error) {

	opts := p.Options
	if opts.Stop.Accuracy == 0 {
		opts.Stop.Accuracy = 1e-8
	}
	if opts.Stop.MaxIterations == 0 {
		opts.Stop.MaxIterations = 200
	}
	if opts.Quasi.MaxIterations == 0 {
		opts.Quasi.MaxIterations = 200
	}
	if opts.Quasi.EpsAccuracyFactor == 0 {
		opts.Quasi.EpsAccuracyFactor = 1e7
	}
	if opts.Quasi.ProjGradTolerance == 0 {
		opts.Quasi.ProjGradTolerance = 1e-5
	}
	if opts.Corrections == 0 {
		opts.Corrections = 10
	}

	gt := len(p.Guess.Time)
	gsr, gsc := dims(p.Guess.State)
	gcr, gcc := dims(p.Guess.Control)

	switch {
	case p.NTime < 2:
		err = errors.New("mesh must hold at least two time nodes")
	case p.NState <= 0:
		err = errors.New("state dimension must greater than 0")
	case p.NControl <= 0:
		err = errors.New("control dimension must greater than 0")
	case gt < 2:
		err = errors.New("guess must hold at least two time nodes")
	case gsr != p.NState || gsc != gt:
		err = errors.New("guess state dimension not match problem")
	case gcr != p.NControl || gcc != gt:
		err = errors.New("guess control dimension not match problem")
	case badChannels(p.Bounds.State, p.NState):
		err = errors.New("state bound size must equal to state dimension")
	case badChannels(p.Bounds.InitialState, p.NState):
		err = errors.New("initial state bound size must equal to state dimension")
	case badChannels(p.Bounds.FinalState, p.NState):
		err = errors.New("final state bound size must equal to state dimension")
	case badChannels(p.Bounds.Control, p.NControl):
		err = errors.New("control bound size must equal to control dimension")
	}

	if err != nil {
		return
	}

	layout := mesh.Layout{NTime: p.NTime, NState: p.NState, NControl: p.NControl}
	t = &Transcription{
		layout:   layout,
		bounds:   p.Bounds.expand(layout),
		x0:       layout.Pack(mesh.Resample(p.Guess, p.NTime)),
		dynamics: p.Dynamics,
		pathCost: p.PathCost,
		bndCost:  p.BndCost,
		pathCons: p.PathCons,
		bndCons:  p.BndCons,
		opts:     opts,
	}

	neq, eq := t.Constraints(t.x0)
	t.mNeq, t.mEq = len(neq), len(eq)
	return
}

// Transcription is the finite-dimensional image of a Problem: an objective
// callback, a constraint callback, variable bounds and an initial point over
// the decision vector
//
//	𝐳 = [t₀, t𝘧, 𝐱 columns, 𝐮 columns]
//
// (see mesh.Layout). All evaluation methods are pure: they share no mutable
// state and may be called concurrently, so an external solver is free to
// probe them for finite-difference derivatives from several goroutines.
type Transcription struct {
	layout mesh.Layout
	bounds []Bound
	x0     []float64

	dynamics Dynamics
	pathCost PathCost
	bndCost  BoundaryCost
	pathCons PathCons
	bndCons  BoundaryCons

	opts Options

	// constraint block sizes probed at the initial point
	mNeq, mEq int
}

// Layout returns the decision vector layout shared by all callbacks.
func (t *Transcription) Layout() mesh.Layout { return t.layout }

// InitPoint returns a copy of the initial decision vector, packed from the
// guess trajectory resampled onto the transcription mesh.
func (t *Transcription) InitPoint() []float64 {
	x := make([]float64, len(t.x0))
	copy(x, t.x0)
	return x
}

// VarBounds returns a copy of the elementwise decision vector bounds.
func (t *Transcription) VarBounds() []Bound {
	b := make([]Bound, len(t.bounds))
	copy(b, t.bounds)
	return b
}

func dims(m *mat.Dense) (r, c int) {
	if m == nil {
		return 0, 0
	}
	return m.Dims()
}

func badChannels(b []Bound, n int) bool {
	return len(b) != 0 && len(b) != n
}
