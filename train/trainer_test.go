// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"image"
	"testing"

	"github.com/NickleDave/searchnets/nets"
	"github.com/NickleDave/searchnets/searchstims"
	"github.com/emer/etable/etable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Net: "alexnet", Method: "finetune"}
	cfg.Defaults()
	assert.Error(t, cfg.Validate(), "unknown method must error")

	cfg = Config{Net: "alexnet", Mode: "segment"}
	cfg.Defaults()
	assert.Error(t, cfg.Validate(), "unknown mode must error")

	cfg = Config{Net: "alexnet"}
	cfg.Defaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "ce", cfg.Loss)
	assert.Equal(t, "SGD", cfg.Optim)
	assert.Equal(t, 0.001, cfg.Lr)
	assert.Equal(t, "initialize", cfg.Method)
	assert.Equal(t, "classify", cfg.Mode)
}

func TestNewTrainerDispatch(t *testing.T) {
	_, err := New(Config{Net: "resnet50"})
	assert.Error(t, err, "unknown net name must error")

	_, err = New(Config{Net: "CORnet_Z", Loss: "mse"})
	assert.Error(t, err, "unknown loss must error")

	_, err = New(Config{Net: "CORnet_Z", Optim: "rmsprop"})
	assert.Error(t, err, "unknown optimizer must error")

	tr, err := New(Config{Net: "CORnet_Z"})
	require.NoError(t, err)
	assert.Equal(t, "CORnet_Z", tr.Net.Nm)
	assert.Equal(t, "ce", tr.Loss.Name())
	require.Len(t, tr.Optims, 1)
	assert.Equal(t, "SGD", tr.Optims[0].Name())
	assert.NotNil(t, tr.EpcLog)
}

func TestNewTransferTrainerErrors(t *testing.T) {
	_, err := New(Config{Net: "CORnet_Z", Method: "transfer"})
	assert.Error(t, err, "transfer without base weights must error")

	_, err = New(Config{Net: "CORnet_Z", Method: "transfer", BaseWts: "nope.wts.gz", BaseClasses: 1})
	assert.Error(t, err, "transfer with < 2 base classes must error")

	_, err = New(Config{Net: "CORnet_Z", Method: "transfer", BaseWts: "no/such/file.wts.gz", BaseClasses: 10})
	assert.Error(t, err, "missing base weights file must error")
}

// tinyTrainer wires a trainer around a small custom net so the train
// loop can run fast on small images
func tinyTrainer(t *testing.T, lossNm string) (*Trainer, *searchstims.SearchEnv) {
	cfg := Config{Net: "tiny", Loss: lossNm, Epochs: 2, BatchSize: 4, Patience: 0, SummaryStep: 0, Seed: 3}
	cfg.Defaults()
	cfg.Patience = 0
	require.NoError(t, cfg.Validate())

	nn := &nets.Network{Nm: "tiny"}
	nn.Layers = []nets.Layer{
		nets.NewConv2D("conv1", 4, 5, 2, 2),
		nets.NewReLU("relu1"),
		nets.NewMaxPool2D("pool1", 2, 2),
		nets.NewFlatten("flat"),
	}
	nn.HeadStart = len(nn.Layers)
	nn.Layers = append(nn.Layers, nets.NewLinear("out", 2))
	require.NoError(t, nn.Build([]int{3, 32, 32}))
	nn.InitWts(cfg.Seed)

	tr := &Trainer{Config: cfg, Net: nn}
	lt, err := LossFromString(cfg.Loss)
	require.NoError(t, err)
	tr.Loss, err = NewLoss(lt)
	require.NoError(t, err)
	ot, err := OptimFromString(cfg.Optim)
	require.NoError(t, err)
	op, err := NewOptimizer(ot, cfg.Lr)
	require.NoError(t, err)
	tr.Optims = []Optimizer{op}
	tr.Rng = rand.New(rand.NewSource(cfg.Seed))
	tr.ConfigEpcLog()

	ev := &searchstims.SearchEnv{Nm: "TrainEnv"}
	ev.Defaults()
	ev.Draw.ImgSize = image.Point{32, 32}
	ev.Init(0)
	return tr, ev
}

func trainSplit(t *testing.T) *etable.Table {
	dt, err := searchstims.MakeSplitTable([]searchstims.StimType{searchstims.RVvGV}, []int{1, 4}, 6, [3]float64{0.5, 0.25, 0.25}, 5)
	require.NoError(t, err)
	return dt
}

func TestTrainLoopCE(t *testing.T) {
	tr, ev := tinyTrainer(t, "ce")
	split := trainSplit(t)
	require.NoError(t, tr.Train(ev, split))
	assert.Equal(t, tr.Epochs, tr.EpcLog.Rows)
	assert.GreaterOrEqual(t, tr.BestValAcc, 0.0)
	assert.LessOrEqual(t, tr.BestValAcc, 1.0)
}

func TestTrainLoopBatchLoss(t *testing.T) {
	tr, ev := tinyTrainer(t, "invDprime")
	split := trainSplit(t)
	require.NoError(t, tr.Train(ev, split))
	assert.Equal(t, tr.Epochs, tr.EpcLog.Rows)
}

func TestRenderRow(t *testing.T) {
	ev := &searchstims.SearchEnv{Nm: "TestEnv"}
	ev.Defaults()
	ev.Init(0)
	split := trainSplit(t)
	tgt, err := RenderRow(ev, split, 0)
	require.NoError(t, err)
	want := 0
	if split.CellString("target_condition", 0) == "present" {
		want = 1
	}
	assert.Equal(t, want, tgt)
	assert.Equal(t, searchstims.RVvGV, ev.CurStim)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, Argmax([]float32{0.1, -3, 7, 2}))
	assert.Equal(t, 0, Argmax([]float32{5}))
}
