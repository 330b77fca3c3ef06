// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nets

import (
	"fmt"
)

// NetNames are the network architectures that Build knows how to make
var NetNames = []string{"alexnet", "VGG16", "CORnet_Z", "CORnet_S"}

// InputSize returns the square input image size for given net name:
// 227 for alexnet and the CORnets, 224 for VGG16.  Errors on unknown
// net names.
func InputSize(netNm string) (int, error) {
	switch netNm {
	case "alexnet", "CORnet_Z", "CORnet_S":
		return 227, nil
	case "VGG16":
		return 224, nil
	}
	return 0, fmt.Errorf("nets: invalid net name: %s, must be one of: %v", netNm, NetNames)
}

// Build constructs the named architecture with a classifier head for
// numClasses classes, built for its standard [3, size, size] rgb input.
// Weights are initialized from seed.  Unknown names error.
func Build(netNm string, numClasses int, seed uint64) (*Network, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("nets: numClasses must be >= 2, got %d", numClasses)
	}
	var nn *Network
	switch netNm {
	case "alexnet":
		nn = alexnet(numClasses)
	case "VGG16":
		nn = vgg16(numClasses)
	case "CORnet_Z":
		nn = cornetZ(numClasses)
	case "CORnet_S":
		nn = cornetS(numClasses)
	default:
		return nil, fmt.Errorf("nets: invalid net name: %s, must be one of: %v", netNm, NetNames)
	}
	sz, _ := InputSize(netNm)
	if err := nn.Build([]int{3, sz, sz}); err != nil {
		return nil, err
	}
	nn.InitWts(seed)
	return nn, nil
}

func alexnet(numClasses int) *Network {
	nn := &Network{Nm: "alexnet"}
	nn.Layers = []Layer{
		NewConv2D("conv1", 96, 11, 4, 0),
		NewReLU("relu1"),
		NewMaxPool2D("pool1", 3, 2),
		NewConv2D("conv2", 256, 5, 1, 2),
		NewReLU("relu2"),
		NewMaxPool2D("pool2", 3, 2),
		NewConv2D("conv3", 384, 3, 1, 1),
		NewReLU("relu3"),
		NewConv2D("conv4", 384, 3, 1, 1),
		NewReLU("relu4"),
		NewConv2D("conv5", 256, 3, 1, 1),
		NewReLU("relu5"),
		NewMaxPool2D("pool5", 3, 2),
		NewFlatten("flat"),
	}
	nn.HeadStart = len(nn.Layers)
	nn.Layers = append(nn.Layers,
		NewDropout("drop6", 0.5),
		NewLinear("fc6", 4096),
		NewReLU("relu6"),
		NewDropout("drop7", 0.5),
		NewLinear("fc7", 4096),
		NewReLU("relu7"),
		outLinear("fc8", numClasses),
	)
	return nn
}

func vgg16(numClasses int) *Network {
	nn := &Network{Nm: "VGG16"}
	chans := [][]int{{64, 64}, {128, 128}, {256, 256, 256}, {512, 512, 512}, {512, 512, 512}}
	ci := 0
	for bi, blk := range chans {
		for _, ch := range blk {
			ci++
			nn.Layers = append(nn.Layers,
				NewConv2D(fmt.Sprintf("conv%d", ci), ch, 3, 1, 1),
				NewReLU(fmt.Sprintf("relu%d", ci)),
			)
		}
		nn.Layers = append(nn.Layers, NewMaxPool2D(fmt.Sprintf("pool%d", bi+1), 2, 2))
	}
	nn.Layers = append(nn.Layers, NewFlatten("flat"))
	nn.HeadStart = len(nn.Layers)
	nn.Layers = append(nn.Layers,
		NewLinear("fc1", 4096),
		NewReLU("fcrelu1"),
		NewDropout("fcdrop1", 0.5),
		NewLinear("fc2", 4096),
		NewReLU("fcrelu2"),
		NewDropout("fcdrop2", 0.5),
		outLinear("fc3", numClasses),
	)
	return nn
}

func cornetZ(numClasses int) *Network {
	nn := &Network{Nm: "CORnet_Z"}
	type blk struct {
		nm          string
		ch, ksz, st int
	}
	blks := []blk{
		{"V1", 64, 7, 2},
		{"V2", 128, 3, 1},
		{"V4", 256, 3, 1},
		{"IT", 512, 3, 1},
	}
	for _, b := range blks {
		nn.Layers = append(nn.Layers,
			NewConv2D(b.nm+"_conv", b.ch, b.ksz, b.st, b.ksz/2),
			NewReLU(b.nm+"_relu"),
			NewMaxPool2D(b.nm+"_pool", 3, 2),
		)
	}
	nn.Layers = append(nn.Layers, NewFlatten("flat"))
	nn.HeadStart = len(nn.Layers)
	nn.Layers = append(nn.Layers, outLinear("decoder", numClasses))
	return nn
}

func cornetS(numClasses int) *Network {
	nn := &Network{Nm: "CORnet_S"}
	nn.Layers = []Layer{
		NewConv2D("V1_conv1", 64, 7, 2, 3),
		NewReLU("V1_relu1"),
		NewMaxPool2D("V1_pool", 3, 2),
		NewConv2D("V1_conv2", 64, 3, 1, 1),
		NewReLU("V1_relu2"),
	}
	type blk struct {
		nm string
		ch int
		t  int
	}
	// time steps per area as in the recurrent model
	blks := []blk{
		{"V2", 128, 2},
		{"V4", 256, 4},
		{"IT", 512, 2},
	}
	for _, b := range blks {
		b := b
		nn.Layers = append(nn.Layers,
			NewMaxPool2D(b.nm+"_pool", 2, 2),
			NewConv2D(b.nm+"_input", b.ch, 1, 1, 0),
			NewReLU(b.nm+"_inrelu"),
			NewRecur(b.nm, b.t, func() []Layer {
				return []Layer{
					NewConv2D(b.nm+"_conv", b.ch, 3, 1, 1),
					NewReLU(b.nm+"_relu"),
				}
			}),
		)
	}
	nn.Layers = append(nn.Layers, NewFlatten("flat"))
	nn.HeadStart = len(nn.Layers)
	nn.Layers = append(nn.Layers, outLinear("decoder", numClasses))
	return nn
}

func outLinear(nm string, numClasses int) *Linear {
	ly := NewLinear(nm, numClasses)
	ly.Glorot = true
	return ly
}
