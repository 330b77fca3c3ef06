// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nets

import (
	"fmt"

	"github.com/emer/etable/etensor"
	"golang.org/x/exp/rand"
)

// Network is an ordered stack of layers forming one feedforward model.
// HeadStart is the index of the first classifier-head layer: transfer
// training freezes everything before it, and ReinitHead reinitializes
// everything from it on.
type Network struct {
	Nm        string `desc:"name of the network architecture, e.g. alexnet"`
	Layers    []Layer
	InShape   []int `desc:"input shape the network was built for"`
	OutShape  []int `desc:"output shape, [numClasses] for classification"`
	HeadStart int   `desc:"index of first classifier-head layer"`
	FreezeN   int   `desc:"layers below this index are frozen (params excluded)"`
}

// Build runs shape inference through the layer stack for given input
// shape, allocating all parameters and caches
func (nn *Network) Build(inShape []int) error {
	nn.InShape = inShape
	shp := inShape
	for _, ly := range nn.Layers {
		var err error
		shp, err = ly.Init(shp)
		if err != nil {
			return fmt.Errorf("nets: %s: %v", nn.Nm, err)
		}
	}
	nn.OutShape = shp
	return nil
}

// InitWts initializes all weights from given random seed
func (nn *Network) InitWts(seed uint64) {
	rng := rand.New(rand.NewSource(seed))
	for _, ly := range nn.Layers {
		ly.InitWts(rng)
	}
}

// Forward runs one sample through the network, returning the output
// activations (owned by the final layer, valid until next Forward)
func (nn *Network) Forward(in *etensor.Float32) *etensor.Float32 {
	x := in
	for _, ly := range nn.Layers {
		x = ly.Forward(x)
	}
	return x
}

// Backward propagates the gradient of the loss with respect to the
// output back through the network, accumulating parameter gradients.
// Frozen layers still pass gradients through; their params are just
// excluded from Params / Grads.
func (nn *Network) Backward(gradOut *etensor.Float32) {
	g := gradOut
	for i := len(nn.Layers) - 1; i >= 0; i-- {
		g = nn.Layers[i].Backward(g)
		if i <= nn.FreezeN && nn.FreezeN > 0 {
			return // nothing below needs gradients
		}
	}
}

// Params returns parameter tensors of all non-frozen layers
func (nn *Network) Params() []*etensor.Float32 {
	var ps []*etensor.Float32
	for i := nn.FreezeN; i < len(nn.Layers); i++ {
		ps = append(ps, nn.Layers[i].Params()...)
	}
	return ps
}

// Grads returns gradient tensors parallel to Params
func (nn *Network) Grads() []*etensor.Float32 {
	var gs []*etensor.Float32
	for i := nn.FreezeN; i < len(nn.Layers); i++ {
		gs = append(gs, nn.Layers[i].Grads()...)
	}
	return gs
}

// AllParams returns parameter tensors of all layers, frozen included
// (used for saving and loading weights)
func (nn *Network) AllParams() []*etensor.Float32 {
	var ps []*etensor.Float32
	for _, ly := range nn.Layers {
		ps = append(ps, ly.Params()...)
	}
	return ps
}

// ZeroGrads zeroes all gradient tensors, called between batches
func (nn *Network) ZeroGrads() {
	for _, ly := range nn.Layers {
		for _, g := range ly.Grads() {
			g.SetZeros()
		}
	}
}

// SetTrain sets training mode on all layers (enables dropout)
func (nn *Network) SetTrain(on bool) {
	for _, ly := range nn.Layers {
		ly.Train(on)
	}
}

// Freeze freezes all feature layers (those before HeadStart), so only
// the classifier head trains.  Used by transfer training.
func (nn *Network) Freeze() {
	nn.FreezeN = nn.HeadStart
}

// Unfreeze makes all layers trainable again
func (nn *Network) Unfreeze() {
	nn.FreezeN = 0
}

// ReinitHead replaces the output layer for a new number of classes and
// reinitializes the weights of all classifier-head layers.  The network
// must have been built; head shapes are recomputed from HeadStart.
func (nn *Network) ReinitHead(numClasses int, seed uint64) error {
	if numClasses < 2 {
		return fmt.Errorf("nets: %s: numClasses must be >= 2, got %d", nn.Nm, numClasses)
	}
	if nn.HeadStart <= 0 || nn.HeadStart >= len(nn.Layers) {
		return fmt.Errorf("nets: %s: no classifier head to reinit", nn.Nm)
	}
	last, ok := nn.Layers[len(nn.Layers)-1].(*Linear)
	if !ok {
		return fmt.Errorf("nets: %s: final layer %s is not Linear", nn.Nm, nn.Layers[len(nn.Layers)-1].Name())
	}
	last.Out = numClasses
	shp := nn.InShape
	var err error
	for i, ly := range nn.Layers {
		if i < nn.HeadStart {
			// recompute shape only, keep existing params
			switch tl := ly.(type) {
			case *Conv2D:
				shp = []int{tl.OutC, tl.outY, tl.outX}
			case *MaxPool2D:
				shp = []int{tl.inShape[0], tl.outY, tl.outX}
			case *Linear:
				shp = []int{tl.Out}
			case *Flatten:
				n := 1
				for _, d := range shp {
					n *= d
				}
				shp = []int{n}
			}
			continue
		}
		shp, err = ly.Init(shp)
		if err != nil {
			return fmt.Errorf("nets: %s: %v", nn.Nm, err)
		}
	}
	nn.OutShape = shp
	rng := rand.New(rand.NewSource(seed))
	for i := nn.HeadStart; i < len(nn.Layers); i++ {
		nn.Layers[i].InitWts(rng)
	}
	return nil
}

// LayerByName returns the layer with given name, nil if none
func (nn *Network) LayerByName(nm string) Layer {
	for _, ly := range nn.Layers {
		if ly.Name() == nm {
			return ly
		}
	}
	return nil
}
