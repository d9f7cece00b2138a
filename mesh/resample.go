// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mesh

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// Resample maps a trajectory onto n uniformly spaced nodes spanning its own
// first and last time, interpolating every state and control channel
// piecewise-linearly. The source mesh may be non-uniform but must be
// strictly increasing. A source that already holds n uniform nodes comes
// back unchanged up to floating point.
func Resample(tr Traj, n int) Traj {
	nt := len(tr.Time)
	if nt < 2 || n < 2 {
		panic("resample needs at least two time nodes")
	}
	ns, c := tr.State.Dims()
	if c != nt {
		panic("trajectory state dimension not match time")
	}
	nc, c := tr.Control.Dims()
	if c != nt {
		panic("trajectory control dimension not match time")
	}

	time := floats.Span(make([]float64, n), tr.Time[0], tr.Time[nt-1])
	state := mat.NewDense(ns, n, nil)
	control := mat.NewDense(nc, n, nil)
	resampleRows(state, time, tr.Time, tr.State)
	resampleRows(control, time, tr.Time, tr.Control)
	return Traj{Time: time, State: state, Control: control}
}

func resampleRows(dst *mat.Dense, grid, time []float64, src *mat.Dense) {
	var pl interp.PiecewiseLinear
	rows, _ := src.Dims()
	row := make([]float64, len(time))
	for i := 0; i < rows; i++ {
		mat.Row(row, i, src)
		if err := pl.Fit(time, row); err != nil {
			panic(err) // non-increasing mesh is a caller bug
		}
		for k, t := range grid {
			dst.Set(i, k, pl.Predict(t))
		}
	}
}
