// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"gonum.org/v1/gonum/mat"
)

// Constraints evaluates the transcribed constraint vectors at a decision
// vector. Inequality residuals are feasible when ≤ 0, equality residuals
// when = 0. The concatenation order is fixed so residual identity lines up
// across calls:
//
//	neq = [path inequalities, boundary inequalities]
//	eq  = [dynamics defects, path equalities, boundary equalities]
//
// The defect block enforces the trapezoidal collocation condition on every
// mesh interval: with uniform step 𝚫t and 𝒇ₖ = deriv[:,k],
//
//	𝛇ₖ = 𝐱ₖ₊₁ − 𝐱ₖ − ½𝚫t(𝒇ₖ + 𝒇ₖ₊₁)   (k = 0 ··· nTime-2)
//
// which matches the change of state across the interval against the
// trapezoidal estimate of ∫𝒇 dt, a second-order dynamics discretization.
// The nTime-1 defect vectors are flattened interval by interval, channels
// fastest. Missing dynamics produce no defect rows; missing user constraint
// functions contribute empty residuals.
func (t *Transcription) Constraints(z []float64) (neq, eq []float64) {

	tr := t.layout.Unpack(z)
	nt, ns := t.layout.NTime, t.layout.NState
	last := nt - 1

	if t.dynamics != nil {
		deriv := mat.NewDense(ns, nt, nil)
		t.dynamics(tr.Time, tr.State, tr.Control, deriv)

		dt := (tr.Time[last] - tr.Time[0]) / float64(nt-1)
		eq = make([]float64, ns*(nt-1))
		for k := 0; k < nt-1; k++ {
			for i := 0; i < ns; i++ {
				eq[k*ns+i] = tr.State.At(i, k+1) - tr.State.At(i, k) -
					0.5*dt*(deriv.At(i, k)+deriv.At(i, k+1))
			}
		}
	}

	if t.pathCons != nil {
		pn, pe := t.pathCons(tr.Time, tr.State, tr.Control)
		neq = append(neq, pn...)
		eq = append(eq, pe...)
	}

	if t.bndCons != nil {
		x0 := mat.Col(nil, 0, tr.State)
		xf := mat.Col(nil, last, tr.State)
		bn, be := t.bndCons(tr.Time[0], x0, tr.Time[last], xf)
		neq = append(neq, bn...)
		eq = append(eq, be...)
	}

	return
}
