// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"testing"

	"github.com/emer/etable/etensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimFromString(t *testing.T) {
	for _, nm := range []string{"SGD", "Adam", "AdamW"} {
		ot, err := OptimFromString(nm)
		require.NoError(t, err)
		assert.Equal(t, nm, ot.String())
	}
	_, err := OptimFromString("rmsprop")
	assert.Error(t, err)
	_, err = OptimFromString("sgd")
	assert.Error(t, err, "optimizer names are case sensitive")
}

func tsrOf(vals ...float32) *etensor.Float32 {
	tsr := &etensor.Float32{}
	tsr.SetShape([]int{len(vals)}, nil, nil)
	copy(tsr.Values, vals)
	return tsr
}

// minimize f(x) = 0.5 x^2, grad = x
func converges(t *testing.T, op Optimizer) {
	p := tsrOf(5)
	g := tsrOf(0)
	for i := 0; i < 2000; i++ {
		g.Values[0] = p.Values[0]
		op.Step([]*etensor.Float32{p}, []*etensor.Float32{g})
	}
	assert.InDelta(t, 0, float64(p.Values[0]), 0.1, "%s should converge on a quadratic", op.Name())
}

func TestOptimConverge(t *testing.T) {
	for _, nm := range []string{"SGD", "Adam", "AdamW"} {
		ot, err := OptimFromString(nm)
		require.NoError(t, err)
		op, err := NewOptimizer(ot, 0.01)
		require.NoError(t, err)
		converges(t, op)
	}
}

func TestSGDMomentum(t *testing.T) {
	op := &SGDOptim{Lr: 0.1, Mom: 0.9}
	p := tsrOf(0)
	g := tsrOf(1)
	op.Step([]*etensor.Float32{p}, []*etensor.Float32{g})
	first := p.Values[0]
	assert.InDelta(t, -0.1, float64(first), 1e-6)
	op.Step([]*etensor.Float32{p}, []*etensor.Float32{g})
	// velocity builds: second step moves further than the first
	assert.InDelta(t, -0.1-0.19, float64(p.Values[0]), 1e-6)
}

func TestAdamWDecay(t *testing.T) {
	op := &AdamOptim{Lr: 0.1, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, Decay: 0.1}
	p := tsrOf(1)
	g := tsrOf(0)
	op.Step([]*etensor.Float32{p}, []*etensor.Float32{g})
	assert.Less(t, float64(p.Values[0]), 1.0, "AdamW decays weights even with zero gradient")

	plain := &AdamOptim{Lr: 0.1, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
	p2 := tsrOf(1)
	plain.Step([]*etensor.Float32{p2}, []*etensor.Float32{tsrOf(0)})
	assert.Equal(t, float32(1), p2.Values[0], "plain Adam leaves weights alone at zero gradient")
}
