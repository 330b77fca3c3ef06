// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchnets

import (
	"path/filepath"
	"testing"

	"github.com/NickleDave/searchnets/searchstims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSim(t *testing.T) *Sim {
	ss := &Sim{}
	ss.New()
	dir := t.TempDir()
	ss.DataDir = filepath.Join(dir, "data")
	ss.ModelsDir = filepath.Join(dir, "models")
	ss.ResultsDir = filepath.Join(dir, "results")
	ss.SourceDataDir = filepath.Join(dir, "source_data")
	ss.NPerCond = 2
	ss.SetSizes = []int{1, 8}
	ss.Config()
	return ss
}

func TestRunName(t *testing.T) {
	ss := testSim(t)
	assert.Equal(t, "Base", ss.RunName())
	ss.Tag = "pilot"
	assert.Equal(t, "pilot_Base", ss.RunName())
	ss.ParamSet = "FastAdam"
	assert.Equal(t, "pilot_FastAdam", ss.RunName())
}

func TestCondFileNames(t *testing.T) {
	ss := testSim(t)
	assert.Equal(t, "alexnet_transfer_classify_run0", ss.CondName("alexnet", "transfer", 0))
	wfn := ss.WeightsFileName("alexnet", "transfer", 0)
	assert.Contains(t, wfn, "alexnet_transfer_classify_run0")
	assert.Contains(t, wfn, ".wts.gz")

	rfn := ss.ResultsFileName("VGG16", "initialize", 1)
	assert.Contains(t, rfn, "VGG16_initialize_run1_results.tsv.gz")
	assert.NotContains(t, rfn, "detect")

	ss.Mode = "detect"
	rfn = ss.ResultsFileName("VGG16", "initialize", 1)
	assert.Contains(t, rfn, "detect")
}

func TestSplitCSVSharing(t *testing.T) {
	ss := testSim(t)
	alex, err := ss.SplitCSVName("alexnet")
	require.NoError(t, err)
	corz, err := ss.SplitCSVName("CORnet_Z")
	require.NoError(t, err)
	vgg, err := ss.SplitCSVName("VGG16")
	require.NoError(t, err)
	assert.Equal(t, alex, corz, "alexnet-sized nets share a manifest")
	assert.NotEqual(t, alex, vgg)

	_, err = ss.SplitCSVName("lenet")
	assert.Error(t, err)
}

func TestMakeStims(t *testing.T) {
	ss := testSim(t)
	require.NoError(t, ss.MakeStims())
	for _, netNm := range []string{"alexnet", "VGG16"} {
		fnm, err := ss.SplitCSVName(netNm)
		require.NoError(t, err)
		dt, err := searchstims.OpenSplit(fnm)
		require.NoError(t, err, fnm)
		assert.Equal(t, len(ss.Stims)*len(ss.SetSizes)*2*ss.NPerCond, dt.Rows)
	}
}

func TestSetParams(t *testing.T) {
	ss := testSim(t)
	ss.Lr = 0.5
	require.NoError(t, ss.SetParams("Sim", false))
	assert.Equal(t, 0.001, ss.Lr, "Base params restore the default lr")

	ss.ParamSet = "FastAdam"
	require.NoError(t, ss.SetParams("Sim", false))
	assert.Equal(t, "Adam", ss.Optim)
	assert.Equal(t, 100, ss.MaxEpcs)
}

func TestSetEnvFor(t *testing.T) {
	ss := testSim(t)
	require.NoError(t, ss.SetEnvFor("VGG16"))
	assert.Equal(t, 224, ss.TrainEnv.Draw.ImgSize.X)
	require.NoError(t, ss.SetEnvFor("alexnet"))
	assert.Equal(t, 227, ss.TrainEnv.Draw.ImgSize.X)
	assert.Error(t, ss.SetEnvFor("lenet"))
}

func TestLogTstTrl(t *testing.T) {
	ss := testSim(t)
	require.NoError(t, ss.MakeStims())
	split, err := ss.OpenSplitFor("alexnet")
	require.NoError(t, err)
	ss.LogTstTrl(0, split, 0, 1, 1)
	ss.LogTstTrl(1, split, 1, 0, 0)
	assert.Equal(t, 2, ss.TstTrlLog.Rows)
	assert.Equal(t, split.CellString("stimulus", 0), ss.TstTrlLog.CellString("stimulus", 0))
	assert.Equal(t, 0.0, ss.TstTrlLog.CellFloat("accuracy", 1))
}

func TestAggregateNoResults(t *testing.T) {
	ss := testSim(t)
	require.NoError(t, ss.MakeStims())
	assert.Error(t, ss.Aggregate(), "aggregating without results archives must error")
}
