// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDispatch(t *testing.T) {
	nn, err := Build("CORnet_Z", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "CORnet_Z", nn.Nm)
	assert.Equal(t, []int{3, 227, 227}, nn.InShape)
	assert.Equal(t, []int{2}, nn.OutShape)

	_, err = Build("resnet50", 2, 1)
	assert.Error(t, err, "unknown net name must error")
	_, err = Build("alexnet", 1, 1)
	assert.Error(t, err, "fewer than 2 classes must error")
}

func TestInputSize(t *testing.T) {
	for _, nm := range []string{"alexnet", "CORnet_Z", "CORnet_S"} {
		sz, err := InputSize(nm)
		require.NoError(t, err)
		assert.Equal(t, 227, sz)
	}
	sz, err := InputSize("VGG16")
	require.NoError(t, err)
	assert.Equal(t, 224, sz)
	_, err = InputSize("lenet")
	assert.Error(t, err)
}

func TestFreezeParams(t *testing.T) {
	nn := tinyNet(t)
	all := len(nn.Params())
	nn.Freeze()
	head := len(nn.Params())
	assert.Less(t, head, all, "freeze must exclude feature layer params")
	assert.Equal(t, 2, head, "only the head linear wts+bias remain")
	nn.Unfreeze()
	assert.Equal(t, all, len(nn.Params()))
}

func TestReinitHead(t *testing.T) {
	nn := tinyNet(t)
	require.NoError(t, nn.ReinitHead(4, 9))
	assert.Equal(t, []int{4}, nn.OutShape)
	in := randInput(nn.InShape, 5)
	out := nn.Forward(in)
	assert.Equal(t, 4, len(out.Values))

	assert.Error(t, nn.ReinitHead(1, 9), "fewer than 2 classes must error")
}

func TestWtsSaveOpen(t *testing.T) {
	nn := tinyNet(t)
	in := randInput(nn.InShape, 3)
	want := append([]float32(nil), nn.Forward(in).Values...)

	fnm := filepath.Join(t.TempDir(), "tiny.wts.gz")
	require.NoError(t, nn.SaveWtsJSON(fnm))

	nn2 := tinyNet(t)
	nn2.InitWts(99) // different weights
	require.NoError(t, nn2.OpenWtsJSON(fnm))
	got := nn2.Forward(in).Values
	assert.Equal(t, want, got, "loaded weights must reproduce outputs")
}

func TestWtsShapeMismatch(t *testing.T) {
	nn := tinyNet(t)
	fnm := filepath.Join(t.TempDir(), "tiny.wts.gz")
	require.NoError(t, nn.SaveWtsJSON(fnm))

	other := &Network{Nm: "other"}
	other.Layers = []Layer{NewFlatten("flat"), NewLinear("out", 3)}
	require.NoError(t, other.Build([]int{1, 6, 6}))
	assert.Error(t, other.OpenWtsJSON(fnm), "mismatched architecture must error")
}

func TestWtsFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "alexnet_run1.wts.gz"), WtsFileName("out", "alexnet", "run1"))
	assert.Equal(t, filepath.Join("out", "alexnet.wts.gz"), WtsFileName("out", "alexnet", ""))
}
