// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/curioloop/optimizer/slsqp"
	"github.com/curioloop/trajopt/mesh"
	"gonum.org/v1/gonum/mat"
)

// Minimum-time crossing of a one-dimensional integrator 𝐱̇ = 𝐮 from x(t₀) = 0
// to x(t𝘧) = 1 with |𝐮| ≤ 1 and free final time: the optimum rides the
// control bound, u ≡ 1 and t𝘧 = 1. The guess is the closed-form solution.
func TestMinimumTime(t *testing.T) {

	guess := mesh.Traj{
		Time:    []float64{0, 0.5, 1},
		State:   mat.NewDense(1, 3, []float64{0, 0.5, 1}),
		Control: mat.NewDense(1, 3, []float64{1, 1, 1}),
	}

	p := Problem{
		NTime: 3, NState: 1, NControl: 1,
		Guess: guess,
		Bounds: Bounds{
			InitialTime:  Fixed(0),
			FinalTime:    Bound{0, 10},
			InitialState: []Bound{Fixed(0)},
			FinalState:   []Bound{Fixed(1)},
			State:        []Bound{{-10, 10}},
			Control:      []Bound{{-1, 1}},
		},
		Dynamics: func(time []float64, state, control, deriv *mat.Dense) {
			deriv.Copy(control)
		},
		BndCost: func(t0 float64, x0 []float64, tf float64, xf []float64) float64 {
			return tf
		},
		Options: Options{
			Stop: slsqp.Termination{Accuracy: 1e-6, MaxIterations: 100},
		},
	}

	tr, err := p.New()
	if err != nil {
		t.Fatal(err)
	}

	x0 := tr.InitPoint()
	if len(x0) != 8 { // 2 + 3×(1+1)
		t.Fatal("TestMinimumTime: Bad Vector Length")
	}

	neq, eq := tr.Constraints(x0)
	switch {
	case len(neq) != 0:
		t.Fatal("TestMinimumTime: Unexpected Inequalities")
	case len(eq) != 2:
		t.Fatal("TestMinimumTime: Bad Defect Count")
	case !almostEqual(eq, []float64{0, 0}, 1e-12):
		t.Fatal("TestMinimumTime: Closed-Form Solution Violates Defects")
	}

	sol, err := tr.Solve()
	if err != nil {
		t.Fatal(err)
	}

	switch {
	case sol.Backend != "slsqp":
		t.Fatal("TestMinimumTime: Bad Backend")
	case !sol.OK:
		t.Fatalf("TestMinimumTime: Not Converge (%s)", sol.Message)
	case !almostEqual(sol.F, 1, 1e-4):
		t.Fatal("TestMinimumTime: Final Time Not Minimal")
	case !almostEqual(sol.Traj.State.At(0, 2), 1, 1e-4):
		t.Fatal("TestMinimumTime: Final State Off Target")
	case sol.NumEval == 0:
		t.Fatal("TestMinimumTime: No Evaluations Counted")
	}
}

// A transcription with no dynamics and no user constraints is purely
// bound-constrained and must route to the L-BFGS-B backend. Minimizing
// ∫(x−1)² dt over fixed [0,1] drives every state node to 1.
func TestQuasiRoute(t *testing.T) {

	p := Problem{
		NTime: 3, NState: 1, NControl: 1,
		Guess: lineGuess(0, 1, 3),
		Bounds: Bounds{
			InitialTime: Fixed(0),
			FinalTime:   Fixed(1),
			Control:     []Bound{Fixed(0)},
		},
		PathCost: func(time []float64, state, control *mat.Dense, cost []float64) {
			for k := range cost {
				d := state.At(0, k) - 1
				cost[k] = d * d
			}
		},
	}

	tr, err := p.New()
	if err != nil {
		t.Fatal(err)
	}

	sol, err := tr.Solve()
	if err != nil {
		t.Fatal(err)
	}

	switch {
	case sol.Backend != "lbfgsb":
		t.Fatal("TestQuasiRoute: Bad Backend")
	case !sol.OK:
		t.Fatalf("TestQuasiRoute: Not Converge (%s)", sol.Message)
	case sol.F > 1e-5:
		t.Fatal("TestQuasiRoute: Object Too Large")
	case !almostEqual(mat.Row(nil, 0, sol.Traj.State), []float64{1, 1, 1}, 1e-2):
		t.Fatal("TestQuasiRoute: State Off Target")
	}
}

func TestNewValidation(t *testing.T) {

	good := Problem{
		NTime: 3, NState: 1, NControl: 1,
		Guess: lineGuess(0, 1, 3),
	}

	cases := []func(p *Problem){
		func(p *Problem) { p.NTime = 1 },
		func(p *Problem) { p.NState = 0 },
		func(p *Problem) { p.NControl = 0 },
		func(p *Problem) { p.Guess = mesh.Traj{} },
		func(p *Problem) { p.Guess.State = mat.NewDense(2, 3, nil) },
		func(p *Problem) { p.Bounds.State = []Bound{{-1, 1}, {-1, 1}} },
		func(p *Problem) { p.Bounds.Control = []Bound{{-1, 1}, {-1, 1}} },
	}

	for i, breakIt := range cases {
		p := good
		breakIt(&p)
		if _, err := p.New(); err == nil {
			t.Fatalf("TestNewValidation: Case %d Accepted", i)
		}
	}

	if _, err := good.New(); err != nil {
		t.Fatalf("TestNewValidation: Good Problem Rejected: %v", err)
	}
}

// Objective and Constraints share no mutable state, so solvers that probe
// finite differences from several goroutines may call them concurrently on
// their own vectors. Run with -race.
func TestConcurrentEval(t *testing.T) {

	p := Problem{
		NTime: 5, NState: 1, NControl: 1,
		Guess: lineGuess(0, 1, 5),
		Dynamics: func(time []float64, state, control, deriv *mat.Dense) {
			deriv.Copy(control)
		},
		PathCost: func(time []float64, state, control *mat.Dense, cost []float64) {
			for k := range cost {
				x := state.At(0, k)
				cost[k] = x * x
			}
		},
		PathCons: func(time []float64, state, control *mat.Dense) (neq, eq []float64) {
			return []float64{state.At(0, 0) - 1}, nil
		},
	}

	tr, err := p.New()
	if err != nil {
		t.Fatal(err)
	}

	base := tr.InitPoint()
	wantF := tr.Objective(base)
	wantNeq, wantEq := tr.Constraints(base)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed float64) {
			defer wg.Done()
			z := append([]float64(nil), base...)
			z[1] += 0.125 * seed
			for i := 0; i < 50; i++ {
				if f := tr.Objective(base); f != wantF {
					t.Error("TestConcurrentEval: Objective Not Reproducible")
					return
				}
				neq, eq := tr.Constraints(base)
				if !almostEqual(neq, wantNeq, 0) || !almostEqual(eq, wantEq, 0) {
					t.Error("TestConcurrentEval: Constraints Not Reproducible")
					return
				}
				tr.Objective(z)
				tr.Constraints(z)
			}
		}(float64(g))
	}
	wg.Wait()
}

func almostEqual[T float64 | []float64](a, b T, tol float64) bool {
	equalWithinAbs := func(a, b float64) bool {
		return a == b || math.Abs(a-b) <= tol
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float64:
		return equalWithinAbs(any(a).(float64), any(b).(float64))
	case reflect.Slice:
		a, b := any(a).([]float64), any(b).([]float64)
		if len(a) != len(b) {
			return false
		}
		for i, a := range a {
			if !equalWithinAbs(a, b[i]) {
				return false
			}
		}
		return true
	default:
		panic("unknown type")
	}
}
