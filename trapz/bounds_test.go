// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trapz

import (
	"math"
	"testing"

	"github.com/curioloop/trajopt/mesh"
)

func TestExpandStateBlock(t *testing.T) {

	l := mesh.Layout{NTime: 5, NState: 2, NControl: 1}

	b := Bounds{
		InitialTime:  Fixed(0),
		FinalTime:    Bound{0, 10},
		InitialState: []Bound{Fixed(0), Fixed(0)},
		FinalState:   []Bound{Fixed(1), Fixed(1)},
		State:        []Bound{{-10, 10}, {-10, 10}},
		Control:      []Bound{{-1, 1}},
	}

	vb := b.expand(l)
	if len(vb) != l.Len() {
		t.Fatal("TestExpandStateBlock: Bad Vector Length")
	}

	// Boundary overrides apply only at the two end nodes.
	wantLow := []float64{0, -10, -10, -10, 1}
	wantUp := []float64{0, 10, 10, 10, 1}
	for ch := 0; ch < l.NState; ch++ {
		for k := 0; k < l.NTime; k++ {
			g := vb[2+k*l.NState+ch]
			if g.Lower != wantLow[k] || g.Upper != wantUp[k] {
				t.Fatalf("TestExpandStateBlock: Bad State Bound at node %d channel %d", k, ch)
			}
		}
	}

	switch {
	case vb[0] != Fixed(0):
		t.Fatal("TestExpandStateBlock: Bad Initial Time Bound")
	case vb[1] != (Bound{0, 10}):
		t.Fatal("TestExpandStateBlock: Bad Final Time Bound")
	}

	// Control bounds repeat uniformly at every node.
	for k := 0; k < l.NTime; k++ {
		if g := vb[2+l.NTime*l.NState+k]; g != (Bound{-1, 1}) {
			t.Fatalf("TestExpandStateBlock: Bad Control Bound at node %d", k)
		}
	}
}

func TestExpandDefaults(t *testing.T) {

	l := mesh.Layout{NTime: 3, NState: 1, NControl: 1}

	// Nil channel slices mean unbounded; nil boundary overrides fall
	// back to the generic state range.
	b := Bounds{
		FinalTime: Bound{0, 5},
		State:     []Bound{{-2, 2}},
	}

	vb := b.expand(l)

	for k := 0; k < l.NTime; k++ {
		if g := vb[2+k]; g != (Bound{-2, 2}) {
			t.Fatalf("TestExpandDefaults: Bad State Bound at node %d", k)
		}
	}
	for k := 0; k < l.NTime; k++ {
		g := vb[2+l.NTime+k]
		if !math.IsInf(g.Lower, -1) || !math.IsInf(g.Upper, 1) {
			t.Fatalf("TestExpandDefaults: Control Bound at node %d not free", k)
		}
	}
}
