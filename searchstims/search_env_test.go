// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"testing"

	"github.com/emer/emergent/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStep(t *testing.T) {
	se := &SearchEnv{Nm: "TestEnv"}
	se.Defaults()
	se.Trial.Max = 4
	require.NoError(t, se.Validate())
	se.Init(0)
	for i := 0; i < 4; i++ {
		se.Step()
		cur, _, _ := se.Counter(env.Trial)
		assert.Equal(t, i, cur)
		assert.Contains(t, se.SetSizes, se.CurSetSize)
	}
	se.Step()
	epc, _, chg := se.Counter(env.Epoch)
	assert.Equal(t, 1, epc)
	assert.True(t, chg)
}

func TestRenderTrialDeterministic(t *testing.T) {
	se := &SearchEnv{Nm: "TestEnv"}
	se.Defaults()
	se.Init(0)
	se.RenderTrial(RVvRHGV, 8, true, 42)
	img1 := append([]byte(nil), se.Draw.Image.Pix...)
	se.RenderTrial(RVvGV, 2, false, 99)
	se.RenderTrial(RVvRHGV, 8, true, 42)
	img2 := append([]byte(nil), se.Draw.Image.Pix...)
	assert.Equal(t, img1, img2, "same seed must render the same image")
	se.RenderTrial(RVvRHGV, 8, true, 43)
	img3 := append([]byte(nil), se.Draw.Image.Pix...)
	assert.NotEqual(t, img1, img3, "different seed should place items differently")
}

func TestSetOutput(t *testing.T) {
	se := &SearchEnv{Nm: "TestEnv"}
	se.Defaults()
	se.Init(0)
	se.SetOutput(true)
	assert.Equal(t, float64(0), se.Output.FloatVal1D(0))
	assert.Equal(t, float64(1), se.Output.FloatVal1D(1))
	se.SetOutput(false)
	assert.Equal(t, float64(1), se.Output.FloatVal1D(0))
	assert.Equal(t, float64(0), se.Output.FloatVal1D(1))
}

func TestRGBToTensor(t *testing.T) {
	se := &SearchEnv{Nm: "TestEnv"}
	se.Defaults()
	se.Init(0)
	se.RenderTrial(RVvGV, 4, true, 7)
	tsr := se.State("Image")
	require.NotNil(t, tsr)
	shp := tsr.Shapes()
	assert.Equal(t, []int{3, se.Draw.ImgSize.Y, se.Draw.ImgSize.X}, shp)
}
