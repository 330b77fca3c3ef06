// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"math"

	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
)

// OptimType is which optimizer to train with
type OptimType int32

var KiT_OptimType = kit.Enums.AddEnum(OptimTypeN, kit.NotBitFlag, nil)

const (
	// SGD is stochastic gradient descent with momentum
	SGD OptimType = iota

	// Adam is adaptive moment estimation
	Adam

	// AdamW is Adam with decoupled weight decay
	AdamW

	OptimTypeN
)

var optimNames = [OptimTypeN]string{"SGD", "Adam", "AdamW"}

func (ot OptimType) String() string {
	if ot < 0 || ot >= OptimTypeN {
		return fmt.Sprintf("OptimType(%d)", ot)
	}
	return optimNames[ot]
}

// OptimFromString returns the optimizer type for given name, erroring
// for unknown names
func OptimFromString(nm string) (OptimType, error) {
	for i, on := range optimNames {
		if on == nm {
			return OptimType(i), nil
		}
	}
	return OptimTypeN, fmt.Errorf("train: invalid optimizer: %s, must be one of: %v", nm, optimNames)
}

// Optimizer updates parameters from accumulated gradients.  Step takes
// parallel slices of parameter and gradient tensors; gradients should
// already be averaged over the batch.
type Optimizer interface {
	Name() string
	Step(params, grads []*etensor.Float32)
}

// NewOptimizer returns an optimizer of given type with given learning
// rate, using the standard defaults: momentum 0.9, Adam betas
// 0.9 / 0.999 eps 1e-8, AdamW weight decay 0.01
func NewOptimizer(ot OptimType, lr float64) (Optimizer, error) {
	switch ot {
	case SGD:
		return &SGDOptim{Lr: lr, Mom: 0.9}, nil
	case Adam:
		return &AdamOptim{Lr: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}, nil
	case AdamW:
		return &AdamOptim{Lr: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, Decay: 0.01}, nil
	}
	return nil, fmt.Errorf("train: invalid optimizer type: %d", ot)
}

//////////////////////////////////////////////
//  SGDOptim

// SGDOptim is stochastic gradient descent with classical momentum
type SGDOptim struct {
	Lr  float64 `def:"0.001" desc:"learning rate"`
	Mom float64 `def:"0.9" desc:"momentum"`
	vel [][]float32
}

func (op *SGDOptim) Name() string { return "SGD" }

func (op *SGDOptim) Step(params, grads []*etensor.Float32) {
	if op.vel == nil {
		op.vel = make([][]float32, len(params))
		for i, p := range params {
			op.vel[i] = make([]float32, len(p.Values))
		}
	}
	lr := float32(op.Lr)
	mom := float32(op.Mom)
	for i, p := range params {
		g := grads[i].Values
		v := op.vel[i]
		for j := range p.Values {
			v[j] = mom*v[j] + g[j]
			p.Values[j] -= lr * v[j]
		}
	}
}

//////////////////////////////////////////////
//  AdamOptim

// AdamOptim is Adam, with optional decoupled weight decay (AdamW when
// Decay > 0)
type AdamOptim struct {
	Lr    float64 `def:"0.001" desc:"learning rate"`
	Beta1 float64 `def:"0.9" desc:"first moment decay"`
	Beta2 float64 `def:"0.999" desc:"second moment decay"`
	Eps   float64 `def:"1e-8" desc:"numerical stability constant"`
	Decay float64 `desc:"decoupled weight decay, 0 = plain Adam"`
	t     int
	m     [][]float64
	v     [][]float64
}

func (op *AdamOptim) Name() string {
	if op.Decay > 0 {
		return "AdamW"
	}
	return "Adam"
}

func (op *AdamOptim) Step(params, grads []*etensor.Float32) {
	if op.m == nil {
		op.m = make([][]float64, len(params))
		op.v = make([][]float64, len(params))
		for i, p := range params {
			op.m[i] = make([]float64, len(p.Values))
			op.v[i] = make([]float64, len(p.Values))
		}
	}
	op.t++
	bc1 := 1 - math.Pow(op.Beta1, float64(op.t))
	bc2 := 1 - math.Pow(op.Beta2, float64(op.t))
	for i, p := range params {
		g := grads[i].Values
		m := op.m[i]
		v := op.v[i]
		for j := range p.Values {
			gj := float64(g[j])
			m[j] = op.Beta1*m[j] + (1-op.Beta1)*gj
			v[j] = op.Beta2*v[j] + (1-op.Beta2)*gj*gj
			mh := m[j] / bc1
			vh := v[j] / bc2
			upd := op.Lr * mh / (math.Sqrt(vh) + op.Eps)
			if op.Decay > 0 {
				upd += op.Lr * op.Decay * float64(p.Values[j])
			}
			p.Values[j] -= float32(upd)
		}
	}
}
