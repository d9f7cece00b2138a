// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"gonum.org/v1/gonum/mat"
)

// Objective evaluates the transcribed cost at a decision vector: the
// boundary cost term plus the path cost integrand integrated over the mesh
// with the composite trapezoidal rule. A missing cost function contributes
// zero, so with neither function the objective is identically 0.
//
// The reduction is total: any vector of the layout's length evaluates,
// including one carrying a reversed time span, which a solver probing
// finite differences near a bound may produce.
func (t *Transcription) Objective(z []float64) float64 {

	tr := t.layout.Unpack(z)
	last := t.layout.NTime - 1

	var cost float64
	if t.bndCost != nil {
		x0 := mat.Col(nil, 0, tr.State)
		xf := mat.Col(nil, last, tr.State)
		cost = t.bndCost(tr.Time[0], x0, tr.Time[last], xf)
	}
	if t.pathCost != nil {
		g := make([]float64, t.layout.NTime)
		t.pathCost(tr.Time, tr.State, tr.Control, g)
		// Uniform-step trapezoidal rule. The step keeps its sign on a
		// reversed span, so the integral stays defined there too.
		dt := (tr.Time[last] - tr.Time[0]) / float64(last)
		sum := (g[0] + g[last]) / 2
		for _, v := range g[1:last] {
			sum += v
		}
		cost += dt * sum
	}
	return cost
}
