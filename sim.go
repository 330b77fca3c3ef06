// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchnets

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/NickleDave/searchnets/analysis"
	"github.com/NickleDave/searchnets/nets"
	"github.com/NickleDave/searchnets/searchstims"
	"github.com/NickleDave/searchnets/train"
	"github.com/emer/emergent/params"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/goki/gi/gi"
	"github.com/goki/ki/kit"
)

// LogPrec is precision for saving float values in logs
const LogPrec = 4

// Sim holds all the state for one experiment: the stimulus
// environments, the per-condition trainers, the logs, and the
// directory layout the pipeline reads and writes
type Sim struct {
	Nets     []string              `desc:"net architectures to run"`
	Methods  []string              `desc:"training methods to run"`
	Mode     string                `def:"classify" desc:"task mode"`
	Stims    []searchstims.StimType `desc:"stimulus types in the dataset"`
	SetSizes []int                 `desc:"set sizes in the dataset"`
	NPerCond int                   `def:"1200" desc:"trials per (stimulus, set size, target) condition in the split manifest"`
	Fracs    [3]float64            `desc:"train, val, test split fractions"`
	Lr       float64               `def:"0.001" desc:"learning rate"`
	Optim    string                `def:"SGD" desc:"optimizer name"`
	Loss     string                `def:"ce" desc:"loss function name"`
	BatchSize int                  `def:"64" desc:"minibatch size"`
	MaxEpcs  int                   `def:"200" desc:"max training epochs"`
	Patience int                   `def:"20" desc:"early-stop patience in epochs"`
	MaxRuns  int                   `def:"1" desc:"number of random-seed runs per condition"`
	UseV1    bool                  `desc:"feed V1 gabor-filtered input instead of raw pixels"`
	DataDir  string                `def:"data" desc:"where split manifests are written"`
	ModelsDir string               `def:"models" desc:"where checkpoints are written"`
	ResultsDir string              `def:"results" desc:"where per-trial results archives are written"`
	SourceDataDir string           `def:"source_data" desc:"where aggregated source data csvs are written"`
	Params   params.Sets           `view:"no-inline" desc:"hyperparameter sets"`
	ParamSet string                `desc:"which param set to apply on top of Base"`
	Tag      string                `desc:"extra tag to add to file names saved from this run"`
	TrainEnv searchstims.SearchEnv `desc:"training environment, renders manifest trials"`
	Trainer  *train.Trainer        `view:"-" desc:"trainer for the condition currently running"`
	TstTrlLog *etable.Table        `view:"no-inline" desc:"per-trial testing log for the current condition"`
	RunLog   *etable.Table         `view:"no-inline" desc:"summary log, one row per condition x run"`
	RndSeed  int64                 `desc:"the base random seed"`
}

// this registers the Sim Type for the params Apply pathways
var KiT_Sim = kit.Types.AddType(&Sim{}, nil)

// TheSim is the overall state for this simulation
var TheSim Sim

// New creates new blank elements and initializes defaults
func (ss *Sim) New() {
	ss.Nets = append([]string(nil), nets.NetNames...)
	ss.Methods = append([]string(nil), train.Methods...)
	ss.Mode = "classify"
	ss.Stims = []searchstims.StimType{searchstims.TwoVsFive, searchstims.RVvGV, searchstims.RVvRHGV}
	ss.SetSizes = []int{1, 2, 4, 8}
	ss.NPerCond = 1200
	ss.Fracs = [3]float64{0.8, 0.1, 0.1}
	ss.Lr = 0.001
	ss.Optim = "SGD"
	ss.Loss = "ce"
	ss.BatchSize = 64
	ss.MaxEpcs = 200
	ss.Patience = 20
	ss.MaxRuns = 1
	ss.DataDir = "data"
	ss.ModelsDir = "models"
	ss.ResultsDir = "results"
	ss.SourceDataDir = "source_data"
	ss.Params = ParamSets
	ss.TstTrlLog = &etable.Table{}
	ss.RunLog = &etable.Table{}
	ss.RndSeed = 1
}

// Config configures all the elements using the standard functions
func (ss *Sim) Config() {
	ss.ConfigEnv()
	ss.ConfigTstTrlLog(ss.TstTrlLog)
	ss.ConfigRunLog(ss.RunLog)
}

func (ss *Sim) ConfigEnv() {
	ss.TrainEnv.Nm = "TrainEnv"
	ss.TrainEnv.Dsc = "renders search display trials from the split manifest"
	ss.TrainEnv.Defaults()
	ss.TrainEnv.Stims = ss.Stims
	ss.TrainEnv.SetSizes = ss.SetSizes
	ss.TrainEnv.UseV1 = ss.UseV1
	if err := ss.TrainEnv.Validate(); err != nil {
		log.Println(err)
	}
	ss.TrainEnv.Init(0)
}

// SetParams sets the params for "Base" and then current ParamSet.
func (ss *Sim) SetParams(sheet string, setMsg bool) error {
	err := ss.SetParamsSet("Base", sheet, setMsg)
	if ss.ParamSet != "" && ss.ParamSet != "Base" {
		err = ss.SetParamsSet(ss.ParamSet, sheet, setMsg)
	}
	return err
}

// SetParamsSet sets the params for given params.Set name.
func (ss *Sim) SetParamsSet(setNm string, sheet string, setMsg bool) error {
	pset, err := ss.Params.SetByNameTry(setNm)
	if err != nil {
		return err
	}
	if sheet == "" || sheet == "Sim" {
		simp, ok := pset.Sheets["Sim"]
		if ok {
			simp.Apply(ss, setMsg)
		}
	}
	return err
}

//////////////////////////////////////////////
//  file names

// RunName returns a name for this run that combines Tag and ParamSet
func (ss *Sim) RunName() string {
	if ss.Tag != "" {
		return ss.Tag + "_" + ss.ParamsName()
	}
	return ss.ParamsName()
}

// ParamsName returns the name of the current set of parameters
func (ss *Sim) ParamsName() string {
	if ss.ParamSet == "" {
		return "Base"
	}
	return ss.ParamSet
}

// CondName names one net x method condition
func (ss *Sim) CondName(netNm, method string, run int) string {
	return fmt.Sprintf("%s_%s_%s_run%d", netNm, method, ss.Mode, run)
}

// WeightsFileName returns the checkpoint file name for a condition
func (ss *Sim) WeightsFileName(netNm, method string, run int) string {
	return filepath.Join(ss.ModelsDir, ss.CondName(netNm, method, run)+"_"+ss.RunName()+".wts.gz")
}

// ResultsFileName returns the results archive name for a condition.
// The aggregation glob matches on net and method in the base name.
func (ss *Sim) ResultsFileName(netNm, method string, run int) string {
	dir := ss.ResultsDir
	if ss.Mode == "detect" {
		dir = filepath.Join(dir, "detect")
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s_run%d_results.tsv.gz", netNm, method, run))
}

// LogFileName returns the epoch log file name for a condition
func (ss *Sim) LogFileName(netNm, method string, run int) string {
	return filepath.Join(ss.ModelsDir, ss.CondName(netNm, method, run)+"_"+ss.RunName()+"_epc.tsv")
}

// SplitCSVName returns the split manifest path for given net: nets
// share a manifest per input size (alexnet-sized vs VGG16-sized)
func (ss *Sim) SplitCSVName(netNm string) (string, error) {
	sz, err := nets.InputSize(netNm)
	if err != nil {
		return "", err
	}
	return filepath.Join(ss.DataDir, fmt.Sprintf("split_%d.csv", sz)), nil
}

//////////////////////////////////////////////
//  stims

// MakeStims generates a split manifest per input image size and saves
// them under DataDir
func (ss *Sim) MakeStims() error {
	if err := os.MkdirAll(ss.DataDir, 0755); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, netNm := range ss.Nets {
		fnm, err := ss.SplitCSVName(netNm)
		if err != nil {
			return err
		}
		if seen[fnm] {
			continue
		}
		seen[fnm] = true
		dt, err := searchstims.MakeSplitTable(ss.Stims, ss.SetSizes, ss.NPerCond, ss.Fracs, uint64(ss.RndSeed))
		if err != nil {
			return err
		}
		if err := searchstims.SaveSplit(dt, fnm); err != nil {
			return err
		}
		fmt.Printf("saved split manifest: %s (%d rows)\n", fnm, dt.Rows)
	}
	return nil
}

//////////////////////////////////////////////
//  training

// TrainCond trains one net x method condition for one run, saving the
// best checkpoint and the epoch log
func (ss *Sim) TrainCond(netNm, method string, run int) error {
	split, err := ss.OpenSplitFor(netNm)
	if err != nil {
		return err
	}
	if err := ss.SetEnvFor(netNm); err != nil {
		return err
	}
	if err := os.MkdirAll(ss.ModelsDir, 0755); err != nil {
		return err
	}
	cfg := train.Config{
		Net:       netNm,
		Loss:      ss.Loss,
		Optim:     ss.Optim,
		Lr:        ss.Lr,
		Method:    method,
		Mode:      ss.Mode,
		Epochs:    ss.MaxEpcs,
		BatchSize: ss.BatchSize,
		Patience:  ss.Patience,
		CkptPath:  ss.WeightsFileName(netNm, method, run),
		Seed:      uint64(ss.RndSeed) + uint64(run),
	}
	if method == "transfer" {
		cfg.BaseWts = ss.BaseWtsName(netNm)
		cfg.BaseClasses = ss.NumBaseClasses()
	}
	tr, err := train.New(cfg)
	if err != nil {
		return err
	}
	ss.Trainer = tr
	fmt.Printf("training %s\n", ss.CondName(netNm, method, run))
	if err := tr.Train(&ss.TrainEnv, split); err != nil {
		return err
	}
	fnm := ss.LogFileName(netNm, method, run)
	if err := tr.EpcLog.SaveCSV(gi.FileName(fnm), etable.Tab, etable.Headers); err != nil {
		log.Println(err)
	}
	ss.LogRun(netNm, method, run, tr.BestValAcc, tr.BestEpoch)
	return nil
}

// BaseWtsName is the pretrained base weights file used by transfer
// training for given net
func (ss *Sim) BaseWtsName(netNm string) string {
	return filepath.Join(ss.ModelsDir, "base", netNm+"_base.wts.gz")
}

// NumBaseClasses is the number of classes the pretrained bases were
// trained with
func (ss *Sim) NumBaseClasses() int {
	return 1000
}

//////////////////////////////////////////////
//  testing

// TestCond evaluates the saved checkpoint for one condition on the
// test split, logging each trial and writing the results archive
func (ss *Sim) TestCond(netNm, method string, run int) error {
	split, err := ss.OpenSplitFor(netNm)
	if err != nil {
		return err
	}
	if err := ss.SetEnvFor(netNm); err != nil {
		return err
	}
	nn, err := nets.Build(netNm, 2, uint64(ss.RndSeed))
	if err != nil {
		return err
	}
	if err := nn.OpenWtsJSON(ss.WeightsFileName(netNm, method, run)); err != nil {
		return err
	}
	nn.SetTrain(false)

	tsix := searchstims.SplitRows(split, searchstims.TestSplit)
	ss.TstTrlLog.SetNumRows(0)
	for ti, row := range tsix.Idxs {
		tgt, err := train.RenderRow(&ss.TrainEnv, split, row)
		if err != nil {
			return err
		}
		var in *etensor.Float32
		if ss.TrainEnv.UseV1 {
			ss.TrainEnv.FilterImg()
			in = &ss.TrainEnv.Vis.V1AllTsr
		} else {
			in = ss.TrainEnv.State("Image").(*etensor.Float32)
		}
		out := nn.Forward(in)
		pred := train.Argmax(out.Values)
		acc := 0.0
		if pred == tgt {
			acc = 1
		}
		ss.LogTstTrl(ti, split, row, pred, acc)
	}

	if err := os.MkdirAll(filepath.Dir(ss.ResultsFileName(netNm, method, run)), 0755); err != nil {
		return err
	}
	rdt := analysis.MakeResultsTable()
	rdt.SetNumRows(ss.TstTrlLog.Rows)
	for row := 0; row < ss.TstTrlLog.Rows; row++ {
		rdt.SetCellFloat("item", row, ss.TstTrlLog.CellFloat("item", row))
		rdt.SetCellFloat("trial", row, ss.TstTrlLog.CellFloat("Trial", row))
		rdt.SetCellFloat("accuracy", row, ss.TstTrlLog.CellFloat("accuracy", row))
	}
	fnm := ss.ResultsFileName(netNm, method, run)
	if err := analysis.WriteResults(rdt, fnm); err != nil {
		return err
	}
	fmt.Printf("saved results: %s (%d trials)\n", fnm, rdt.Rows)
	return nil
}

// SetEnvFor sizes the env's display for given net's input
func (ss *Sim) SetEnvFor(netNm string) error {
	sz, err := nets.InputSize(netNm)
	if err != nil {
		return err
	}
	ss.TrainEnv.Draw.ImgSize = image.Point{sz, sz}
	ss.TrainEnv.Vis.ImgSize = image.Point{sz, sz}
	ss.TrainEnv.Init(0)
	return nil
}

// OpenSplitFor loads the split manifest for given net's input size
func (ss *Sim) OpenSplitFor(netNm string) (*etable.Table, error) {
	fnm, err := ss.SplitCSVName(netNm)
	if err != nil {
		return nil, err
	}
	return searchstims.OpenSplit(fnm)
}

//////////////////////////////////////////////
//  aggregate

// Aggregate runs the source-data aggregation over ResultsDir, writing
// the csv files to SourceDataDir
func (ss *Sim) Aggregate() error {
	if err := os.MkdirAll(ss.SourceDataDir, 0755); err != nil {
		return err
	}
	alexCSV, err := ss.SplitCSVName("alexnet")
	if err != nil {
		return err
	}
	vggCSV, err := ss.SplitCSVName("VGG16")
	if err != nil {
		return err
	}
	cf := &analysis.SourceDataConfig{
		ResultsRoot:     ss.ResultsDir,
		SourceDataRoot:  ss.SourceDataDir,
		Nets:            ss.Nets,
		Methods:         ss.Methods,
		Modes:           []string{ss.Mode},
		AlexnetSplitCSV: alexCSV,
		VGG16SplitCSV:   vggCSV,
		LearningRate:    ss.Lr,
	}
	return analysis.GenerateSourceData(cf)
}

//////////////////////////////////////////////
//  logging

func (ss *Sim) ConfigTstTrlLog(dt *etable.Table) {
	dt.SetMetaData("name", "TstTrlLog")
	dt.SetMetaData("desc", "one row per test trial for current condition")
	dt.SetMetaData("precision", fmt.Sprintf("%d", LogPrec))
	sch := etable.Schema{
		{"Trial", etensor.INT64, nil, nil},
		{"item", etensor.INT64, nil, nil},
		{"stimulus", etensor.STRING, nil, nil},
		{"set_size", etensor.INT64, nil, nil},
		{"target_condition", etensor.STRING, nil, nil},
		{"pred", etensor.INT64, nil, nil},
		{"accuracy", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
}

// LogTstTrl adds one row to the test trial log
func (ss *Sim) LogTstTrl(trial int, split *etable.Table, srow, pred int, acc float64) {
	dt := ss.TstTrlLog
	row := dt.Rows
	dt.SetNumRows(row + 1)
	dt.SetCellFloat("Trial", row, float64(trial))
	dt.SetCellFloat("item", row, split.CellFloat("item", srow))
	dt.SetCellString("stimulus", row, split.CellString("stimulus", srow))
	dt.SetCellFloat("set_size", row, split.CellFloat("set_size", srow))
	dt.SetCellString("target_condition", row, split.CellString("target_condition", srow))
	dt.SetCellFloat("pred", row, float64(pred))
	dt.SetCellFloat("accuracy", row, acc)
}

func (ss *Sim) ConfigRunLog(dt *etable.Table) {
	dt.SetMetaData("name", "RunLog")
	dt.SetMetaData("desc", "one row per condition x run")
	dt.SetMetaData("precision", fmt.Sprintf("%d", LogPrec))
	sch := etable.Schema{
		{"Run", etensor.INT64, nil, nil},
		{"net_name", etensor.STRING, nil, nil},
		{"method", etensor.STRING, nil, nil},
		{"BestValAcc", etensor.FLOAT64, nil, nil},
		{"BestEpoch", etensor.INT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
}

// LogRun adds one row to the run log
func (ss *Sim) LogRun(netNm, method string, run int, bestAcc float64, bestEpc int) {
	dt := ss.RunLog
	row := dt.Rows
	dt.SetNumRows(row + 1)
	dt.SetCellFloat("Run", row, float64(run))
	dt.SetCellString("net_name", row, netNm)
	dt.SetCellString("method", row, method)
	dt.SetCellFloat("BestValAcc", row, bestAcc)
	dt.SetCellFloat("BestEpoch", row, float64(bestEpc))
}

//////////////////////////////////////////////
//  top level

// TrainAll trains every net x method condition for MaxRuns runs
func (ss *Sim) TrainAll() error {
	for _, netNm := range ss.Nets {
		for _, method := range ss.Methods {
			for run := 0; run < ss.MaxRuns; run++ {
				if err := ss.TrainCond(netNm, method, run); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// TestAll tests every net x method condition for MaxRuns runs
func (ss *Sim) TestAll() error {
	for _, netNm := range ss.Nets {
		for _, method := range ss.Methods {
			for run := 0; run < ss.MaxRuns; run++ {
				if err := ss.TestCond(netNm, method, run); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
