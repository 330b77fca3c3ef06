// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"log"

	"github.com/NickleDave/searchnets/nets"
	"github.com/NickleDave/searchnets/searchstims"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"golang.org/x/exp/rand"
)

// Methods are the valid training methods: initialize trains from
// random weights, transfer from a pretrained base
var Methods = []string{"initialize", "transfer"}

// Modes are the valid task modes
var Modes = []string{"classify", "detect"}

// LogPrec is precision for saving float values in logs
const LogPrec = 4

// Config specifies one training job.  Zero values get Defaults.
type Config struct {
	Net         string  `desc:"network architecture name: alexnet, VGG16, CORnet_Z, CORnet_S"`
	NumClasses  int     `def:"2" desc:"number of output classes"`
	Loss        string  `def:"ce" desc:"loss function name: ce, invDprime, triplet"`
	Optim       string  `def:"SGD" desc:"optimizer name: SGD, Adam, AdamW"`
	Lr          float64 `def:"0.001" desc:"learning rate"`
	Method      string  `def:"initialize" desc:"training method: initialize or transfer"`
	Mode        string  `def:"classify" desc:"task mode: classify or detect"`
	Epochs      int     `def:"200" desc:"max training epochs"`
	BatchSize   int     `def:"64" desc:"minibatch size"`
	Patience    int     `def:"20" desc:"early-stop after this many epochs without val improvement, 0 = off"`
	SummaryStep int     `def:"50" desc:"print a progress line every this many batches, 0 = off"`
	BaseWts     string  `desc:"path to pretrained base weights (.wts.gz), required for transfer"`
	BaseClasses int     `desc:"number of classes the pretrained base was trained with"`
	CkptPath    string  `desc:"where to save the best-val-accuracy checkpoint, empty = don't save"`
	Seed        uint64  `def:"1" desc:"random seed for weight init and batch shuffling"`
}

// Defaults fills in zero-valued fields
func (cf *Config) Defaults() {
	if cf.NumClasses == 0 {
		cf.NumClasses = 2
	}
	if cf.Loss == "" {
		cf.Loss = "ce"
	}
	if cf.Optim == "" {
		cf.Optim = "SGD"
	}
	if cf.Lr == 0 {
		cf.Lr = 0.001
	}
	if cf.Method == "" {
		cf.Method = "initialize"
	}
	if cf.Mode == "" {
		cf.Mode = "classify"
	}
	if cf.Epochs == 0 {
		cf.Epochs = 200
	}
	if cf.BatchSize == 0 {
		cf.BatchSize = 64
	}
	if cf.Patience == 0 {
		cf.Patience = 20
	}
	if cf.SummaryStep == 0 {
		cf.SummaryStep = 50
	}
	if cf.Seed == 0 {
		cf.Seed = 1
	}
}

// Validate checks the string-dispatch fields
func (cf *Config) Validate() error {
	if !inList(cf.Method, Methods) {
		return fmt.Errorf("train: invalid method: %s, must be one of: %v", cf.Method, Methods)
	}
	if !inList(cf.Mode, Modes) {
		return fmt.Errorf("train: invalid mode: %s, must be one of: %v", cf.Mode, Modes)
	}
	return nil
}

func inList(s string, ls []string) bool {
	for _, l := range ls {
		if s == l {
			return true
		}
	}
	return false
}

// Trainer trains one network on one dataset split per its Config:
// batched gradient descent with per-epoch validation accuracy,
// best-checkpoint saving, and early stopping
type Trainer struct {
	Config
	Net    *nets.Network
	Loss   Loss
	Optims []Optimizer   `desc:"optimizers applied in order each batch"`
	EpcLog *etable.Table `desc:"per-epoch training log"`
	Rng    *rand.Rand    `view:"-"`

	BestValAcc float64 `inactive:"+" desc:"best validation accuracy so far"`
	BestEpoch  int     `inactive:"+" desc:"epoch of best validation accuracy"`
}

// New returns a trainer for given config, dispatching on Method:
// initialize gives a Trainer, transfer a TransferTrainer's Trainer
func New(cfg Config) (*Trainer, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Method == "transfer" {
		tt, err := NewTransferTrainer(cfg)
		if err != nil {
			return nil, err
		}
		return tt.Trainer, nil
	}
	return NewTrainer(cfg)
}

// NewTrainer returns a trainer with a freshly-initialized network
// (the initialize method)
func NewTrainer(cfg Config) (*Trainer, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr := &Trainer{Config: cfg}
	nn, err := nets.Build(cfg.Net, cfg.NumClasses, cfg.Seed)
	if err != nil {
		return nil, err
	}
	tr.Net = nn
	lt, err := LossFromString(cfg.Loss)
	if err != nil {
		return nil, err
	}
	tr.Loss, err = NewLoss(lt)
	if err != nil {
		return nil, err
	}
	ot, err := OptimFromString(cfg.Optim)
	if err != nil {
		return nil, err
	}
	op, err := NewOptimizer(ot, cfg.Lr)
	if err != nil {
		return nil, err
	}
	tr.Optims = []Optimizer{op}
	tr.Rng = rand.New(rand.NewSource(cfg.Seed))
	tr.ConfigEpcLog()
	return tr, nil
}

// TransferTrainer is a Trainer whose network starts from pretrained
// base weights with the feature layers frozen and the classifier head
// reinitialized for the task's classes
type TransferTrainer struct {
	*Trainer
}

// NewTransferTrainer builds the network for the base classes, loads
// the base weights, freezes the feature layers, and reinitializes the
// head for cfg.NumClasses
func NewTransferTrainer(cfg Config) (*TransferTrainer, error) {
	cfg.Defaults()
	if cfg.BaseWts == "" {
		return nil, fmt.Errorf("train: transfer method requires BaseWts")
	}
	if cfg.BaseClasses < 2 {
		return nil, fmt.Errorf("train: transfer method requires BaseClasses >= 2, got %d", cfg.BaseClasses)
	}
	bcfg := cfg
	bcfg.NumClasses = cfg.BaseClasses
	bcfg.Method = "initialize"
	tr, err := NewTrainer(bcfg)
	if err != nil {
		return nil, err
	}
	tr.Method = "transfer"
	tr.NumClasses = cfg.NumClasses
	if err := tr.Net.OpenWtsJSON(cfg.BaseWts); err != nil {
		return nil, err
	}
	tr.Net.Freeze()
	if err := tr.Net.ReinitHead(cfg.NumClasses, cfg.Seed); err != nil {
		return nil, err
	}
	return &TransferTrainer{Trainer: tr}, nil
}

// ConfigEpcLog sets up the per-epoch log table
func (tr *Trainer) ConfigEpcLog() {
	dt := &etable.Table{}
	dt.SetMetaData("name", "TrnEpcLog")
	dt.SetMetaData("desc", "per-epoch training stats")
	dt.SetMetaData("precision", fmt.Sprintf("%d", LogPrec))
	sch := etable.Schema{
		{"Epoch", etensor.INT64, nil, nil},
		{"Loss", etensor.FLOAT64, nil, nil},
		{"TrainAcc", etensor.FLOAT64, nil, nil},
		{"ValAcc", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
	tr.EpcLog = dt
}

// Train runs the full training loop on given env and split manifest:
// shuffled minibatches over the train split each epoch, validation
// accuracy after each epoch, checkpoint on improvement, early stop on
// patience
func (tr *Trainer) Train(ev *searchstims.SearchEnv, split *etable.Table) error {
	trnIx := searchstims.SplitRows(split, searchstims.TrainSplit)
	valIx := searchstims.SplitRows(split, searchstims.ValSplit)
	if trnIx.Len() == 0 {
		return fmt.Errorf("train: split has no %s rows", searchstims.TrainSplit)
	}
	rows := make([]int, trnIx.Len())
	copy(rows, trnIx.Idxs)
	tr.BestValAcc = 0
	tr.BestEpoch = -1
	wait := 0
	for epc := 0; epc < tr.Epochs; epc++ {
		tr.Net.SetTrain(true)
		tr.Rng.Shuffle(len(rows), func(i, j int) {
			rows[i], rows[j] = rows[j], rows[i]
		})
		epcLoss := 0.0
		ncorrect := 0
		nbatch := 0
		for bst := 0; bst < len(rows); bst += tr.BatchSize {
			ben := bst + tr.BatchSize
			if ben > len(rows) {
				ben = len(rows)
			}
			loss, ncor, err := tr.TrainBatch(ev, split, rows[bst:ben])
			if err != nil {
				return err
			}
			epcLoss += loss
			ncorrect += ncor
			nbatch++
			if tr.SummaryStep > 0 && nbatch%tr.SummaryStep == 0 {
				fmt.Printf("%s epoch %d batch %d loss: %.4f\n", tr.Net.Nm, epc, nbatch, loss)
			}
		}
		trnAcc := float64(ncorrect) / float64(len(rows))
		valAcc := trnAcc
		if valIx.Len() > 0 {
			valAcc = tr.Accuracy(ev, split, valIx.Idxs)
		}
		tr.LogEpc(epc, epcLoss/float64(nbatch), trnAcc, valAcc)
		fmt.Printf("%s epoch %d loss: %.4f train acc: %.4f val acc: %.4f\n", tr.Net.Nm, epc, epcLoss/float64(nbatch), trnAcc, valAcc)
		if valAcc > tr.BestValAcc {
			tr.BestValAcc = valAcc
			tr.BestEpoch = epc
			wait = 0
			if tr.CkptPath != "" {
				if err := tr.Net.SaveWtsJSON(tr.CkptPath); err != nil {
					log.Println(err)
				}
			}
		} else {
			wait++
			if tr.Patience > 0 && wait >= tr.Patience {
				fmt.Printf("%s stopping early at epoch %d, no val improvement for %d epochs\n", tr.Net.Nm, epc, wait)
				break
			}
		}
	}
	tr.Net.SetTrain(false)
	return nil
}

// TrainBatch runs one minibatch: forward, loss gradient, backward,
// optimizer step.  Returns batch loss and number correct.
func (tr *Trainer) TrainBatch(ev *searchstims.SearchEnv, split *etable.Table, rows []int) (float64, int, error) {
	tr.Net.ZeroGrads()
	bn := len(rows)
	targets := make([]int, bn)
	ncorrect := 0
	loss := 0.0
	if tr.Loss.Batch() {
		// batch losses need all outputs first, then a second forward
		// pass per sample to rebuild layer caches for backward; the
		// dropout reseed makes both passes use the same masks
		dseed := tr.Rng.Uint64()
		seedDropouts(tr.Net, dseed)
		outs := make([][]float32, bn)
		for i, row := range rows {
			tgt, err := RenderRow(ev, split, row)
			if err != nil {
				return 0, 0, err
			}
			targets[i] = tgt
			out := tr.Net.Forward(tr.Input(ev))
			outs[i] = append([]float32(nil), out.Values...)
			if Argmax(outs[i]) == tgt {
				ncorrect++
			}
		}
		var grads [][]float32
		loss, grads = tr.Loss.BatchGrad(outs, targets)
		seedDropouts(tr.Net, dseed)
		gt := &etensor.Float32{}
		for i, row := range rows {
			if _, err := RenderRow(ev, split, row); err != nil {
				return 0, 0, err
			}
			tr.Net.Forward(tr.Input(ev))
			gt.SetShape([]int{len(grads[i])}, nil, nil)
			copy(gt.Values, grads[i])
			tr.Net.Backward(gt)
		}
	} else {
		gt := &etensor.Float32{}
		for i, row := range rows {
			tgt, err := RenderRow(ev, split, row)
			if err != nil {
				return 0, 0, err
			}
			targets[i] = tgt
			out := tr.Net.Forward(tr.Input(ev))
			l, g := tr.Loss.Grad(out.Values, tgt)
			loss += l
			if Argmax(out.Values) == tgt {
				ncorrect++
			}
			gt.SetShape([]int{len(g)}, nil, nil)
			copy(gt.Values, g)
			tr.Net.Backward(gt)
		}
		loss /= float64(bn)
	}
	scale := float32(1 / float64(bn))
	for _, g := range tr.Net.Grads() {
		for j := range g.Values {
			g.Values[j] *= scale
		}
	}
	for _, op := range tr.Optims {
		op.Step(tr.Net.Params(), tr.Net.Grads())
	}
	return loss, ncorrect, nil
}

// Accuracy evaluates proportion correct over given manifest rows,
// in eval mode (no dropout)
func (tr *Trainer) Accuracy(ev *searchstims.SearchEnv, split *etable.Table, rows []int) float64 {
	tr.Net.SetTrain(false)
	defer tr.Net.SetTrain(true)
	ncorrect := 0
	for _, row := range rows {
		tgt, err := RenderRow(ev, split, row)
		if err != nil {
			log.Println(err)
			continue
		}
		out := tr.Net.Forward(tr.Input(ev))
		if Argmax(out.Values) == tgt {
			ncorrect++
		}
	}
	return float64(ncorrect) / float64(len(rows))
}

// LogEpc adds one row to the epoch log
func (tr *Trainer) LogEpc(epc int, loss, trnAcc, valAcc float64) {
	dt := tr.EpcLog
	row := dt.Rows
	dt.SetNumRows(row + 1)
	dt.SetCellFloat("Epoch", row, float64(epc))
	dt.SetCellFloat("Loss", row, loss)
	dt.SetCellFloat("TrainAcc", row, trnAcc)
	dt.SetCellFloat("ValAcc", row, valAcc)
}

// Input returns the env state tensor the network should see
func (tr *Trainer) Input(ev *searchstims.SearchEnv) *etensor.Float32 {
	if ev.UseV1 {
		ev.FilterImg()
		return &ev.Vis.V1AllTsr
	}
	return ev.State("Image").(*etensor.Float32)
}

// RenderRow renders the trial described by given manifest row into the
// env, returning the target class (1 = present, 0 = absent)
func RenderRow(ev *searchstims.SearchEnv, split *etable.Table, row int) (int, error) {
	st, err := searchstims.StimTypeFromString(split.CellString("stimulus", row))
	if err != nil {
		return 0, err
	}
	setSize := int(split.CellFloat("set_size", row))
	present := split.CellString("target_condition", row) == "present"
	seed := uint64(split.CellFloat("seed", row))
	ev.RenderTrial(st, setSize, present, seed)
	if present {
		return 1, nil
	}
	return 0, nil
}

// Argmax returns the index of the largest value
func Argmax(vals []float32) int {
	mi := 0
	for i, v := range vals {
		if v > vals[mi] {
			mi = i
		}
	}
	return mi
}

// seedDropouts reseeds all dropout layers so that repeated forward
// passes draw identical masks
func seedDropouts(nn *nets.Network, seed uint64) {
	i := uint64(0)
	for _, ly := range nn.Layers {
		if d, ok := ly.(*nets.Dropout); ok {
			d.Rng = rand.New(rand.NewSource(seed + i))
			i++
		}
	}
}
