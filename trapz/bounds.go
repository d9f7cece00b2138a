// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"math"

	"github.com/curioloop/trajopt/mesh"
)

// Bound represents the range of an optimization variable.
type Bound struct {
	Lower, Upper float64
}

// Free returns an unbounded variable range.
func Free() Bound {
	return Bound{math.Inf(-1), math.Inf(1)}
}

// Fixed pins a variable to an exact value.
func Fixed(v float64) Bound {
	return Bound{v, v}
}

// Bounds holds the variable ranges of a Problem, per channel where a slice
// is expected. A nil slice means unbounded channels. InitialState and
// FinalState override the generic State range at the first and last mesh
// node; when nil they fall back to State.
//
// The zero value of the time bounds pins that time to 0, which is the usual
// choice for InitialTime but rarely for FinalTime. Elementwise Lower ≤ Upper
// is the caller's responsibility; the solver rejects infeasible ranges.
type Bounds struct {
	InitialTime, FinalTime Bound

	State        []Bound
	InitialState []Bound
	FinalState   []Bound
	Control      []Bound
}

// expand maps the per-channel ranges onto the decision vector layout:
// the two endpoint times first, then per node the state channels with the
// boundary overrides applied at nodes 0 and nTime-1, then the control
// channels repeated uniformly at every node.
func (b *Bounds) expand(l mesh.Layout) []Bound {

	state := channelBounds(b.State, l.NState)
	first, last := state, state
	if b.InitialState != nil {
		first = channelBounds(b.InitialState, l.NState)
	}
	if b.FinalState != nil {
		last = channelBounds(b.FinalState, l.NState)
	}
	control := channelBounds(b.Control, l.NControl)

	vb := make([]Bound, 2, l.Len())
	vb[0], vb[1] = b.InitialTime, b.FinalTime
	for k := 0; k < l.NTime; k++ {
		switch k {
		case 0:
			vb = append(vb, first...)
		case l.NTime - 1:
			vb = append(vb, last...)
		default:
			vb = append(vb, state...)
		}
	}
	for k := 0; k < l.NTime; k++ {
		vb = append(vb, control...)
	}
	return vb
}

func channelBounds(b []Bound, n int) []Bound {
	if b != nil {
		return b
	}
	b = make([]Bound, n)
	for i := range b {
		b[i] = Free()
	}
	return b
}
