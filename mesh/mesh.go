// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mesh holds the grid-side data model of a trajectory transcription:
// a time-indexed trajectory sampled on a mesh of nodes, the bijective codec
// between that trajectory and a flat decision vector, and linear resampling
// of a guess trajectory onto a uniform mesh.
package mesh

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Traj is a trajectory sampled on a mesh of time nodes.
// State and Control hold one column per node:
//   - 𝐱(tₖ) = State[:,k]   (nState × nTime)
//   - 𝐮(tₖ) = Control[:,k] (nControl × nTime)
//
// Time must be strictly increasing with at least two nodes. Both matrices
// carry at least one channel row: a problem without state or without
// control has no trajectory to transcribe.
type Traj struct {
	Time    []float64
	State   *mat.Dense
	Control *mat.Dense
}

// Layout describes how a trajectory collapses into a flat decision vector
//
//	𝐳 = [t₀, t𝘧, 𝐱₁(t₀) ··· 𝐱ₙ(t𝘧), 𝐮₁(t₀) ··· 𝐮ₘ(t𝘧)]
//
// where the state and control blocks are the column-major flattening of the
// (channels × nTime) trajectory matrices. Only the two endpoint times are
// stored: trapezoidal transcription assumes a uniform mesh, so Unpack
// regenerates the interior nodes as a uniform span between 𝐳[0] and 𝐳[1].
// Intermediate times of a non-uniform input mesh are not preserved.
//
// A Layout is immutable shape metadata. The same Layout must be used for
// every Pack and Unpack of a given transcription. NTime is at least 2 and
// both channel counts are positive; Pack and Unpack reject anything else.
type Layout struct {
	NTime, NState, NControl int
}

// Len returns the decision vector length 2 + nTime×(nState+nControl).
func (l Layout) Len() int {
	return 2 + l.NTime*(l.NState+l.NControl)
}

func (l Layout) check() {
	if l.NTime < 2 || l.NState <= 0 || l.NControl <= 0 {
		panic("layout needs two time nodes and positive channel counts")
	}
}

// Pack collapses a trajectory into a fresh flat decision vector.
// The trajectory shape must match the layout.
func (l Layout) Pack(tr Traj) []float64 {
	l.check()
	if len(tr.Time) != l.NTime {
		panic("trajectory time dimension not match layout")
	}
	checkDims(tr.State, l.NState, l.NTime, "state")
	checkDims(tr.Control, l.NControl, l.NTime, "control")

	z := make([]float64, l.Len())
	z[0], z[1] = tr.Time[0], tr.Time[l.NTime-1]
	sb := l.NTime * l.NState
	packBlock(z[2:2+sb], tr.State)
	packBlock(z[2+sb:], tr.Control)
	return z
}

// Unpack is the left-inverse of Pack: it rebuilds the trajectory described
// by a flat decision vector. Time is regenerated as nTime uniformly spaced
// points between z[0] and z[1].
func (l Layout) Unpack(z []float64) Traj {
	l.check()
	if len(z) != l.Len() {
		panic("vector dimension not match layout")
	}
	time := floats.Span(make([]float64, l.NTime), z[0], z[1])
	state := mat.NewDense(l.NState, l.NTime, nil)
	control := mat.NewDense(l.NControl, l.NTime, nil)
	sb := l.NTime * l.NState
	unpackBlock(state, z[2:2+sb])
	unpackBlock(control, z[2+sb:])
	return Traj{Time: time, State: state, Control: control}
}

func checkDims(m *mat.Dense, rows, cols int, name string) {
	if m == nil {
		panic("trajectory " + name + " is nil")
	}
	if r, c := m.Dims(); r != rows || c != cols {
		panic("trajectory " + name + " dimension not match layout")
	}
}

// packBlock stores the column-major flattening of m into dst.
func packBlock(dst []float64, m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			dst[j*r+i] = m.At(i, j)
		}
	}
}

func unpackBlock(m *mat.Dense, src []float64) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			m.Set(i, j, src[j*r+i])
		}
	}
}
