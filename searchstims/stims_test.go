// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStimTypeFromString(t *testing.T) {
	for st := StimType(0); st < StimTypeN; st++ {
		got, err := StimTypeFromString(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := StimTypeFromString("8_v_2")
	assert.Error(t, err)
}

func TestTargetDistractor(t *testing.T) {
	assert.Equal(t, Digit2, TwoVsFive.Target())
	assert.Equal(t, Digit5, TwoVsFive.Distractor(0))
	assert.Equal(t, RedVert, RVvGV.Target())
	assert.Equal(t, GreenVert, RVvGV.Distractor(3))
	assert.Equal(t, RedVert, RVvRHGV.Target())
	// conjunction distractors alternate between the two types
	assert.Equal(t, RedHoriz, RVvRHGV.Distractor(0))
	assert.Equal(t, GreenVert, RVvRHGV.Distractor(1))
}

func TestStimDrawRender(t *testing.T) {
	sd := &StimDraw{}
	sd.Defaults()
	sd.Init()
	sd.Clear()
	bg := sd.Image.RGBAAt(100, 100)
	sd.DrawItem(RedVert, 100, 100, 20)
	px := sd.Image.RGBAAt(100, 100)
	assert.NotEqual(t, bg, px, "drawing should change pixels at item center")
	assert.Greater(t, px.R, px.G, "red bar should be red")
}

func TestCellCenter(t *testing.T) {
	sd := &StimDraw{}
	sd.Defaults()
	x0, y0 := sd.CellCenter(0)
	x1, y1 := sd.CellCenter(sd.GridSize - 1)
	assert.Equal(t, y0, y1, "first row cells share y")
	assert.Greater(t, x1, x0)
	_, yl := sd.CellCenter(sd.NCells() - 1)
	assert.Greater(t, yl, y0)
}
