// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/NickleDave/searchnets/searchstims"
	"github.com/emer/etable/etable"
	"github.com/goki/gi/gi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic per-condition accuracies for transfer runs: set size 1 / 8
var testAccs = map[string]map[string][2]float64{
	"alexnet": {
		"2_v_5": {1.0, 0.5},
		"RVvGV": {1.0, 0.9},
	},
	"VGG16": {
		"2_v_5": {0.9, 0.6},
		"RVvGV": {0.8, 0.7},
	},
}

func testAcc(netNm, method, stim string, setSize int) float64 {
	if method != "transfer" {
		return 0.5
	}
	accs := testAccs[netNm][stim]
	if setSize == 1 {
		return accs[0]
	}
	return accs[1]
}

// writeTestResults writes a synthetic results archive covering every
// manifest row with accuracies from testAcc
func writeTestResults(t *testing.T, fname string, split *etable.Table, netNm, method string) {
	dt := MakeResultsTable()
	dt.SetNumRows(split.Rows)
	for row := 0; row < split.Rows; row++ {
		dt.SetCellFloat("item", row, split.CellFloat("item", row))
		dt.SetCellFloat("trial", row, float64(row))
		acc := testAcc(netNm, method, split.CellString("stimulus", row), int(split.CellFloat("set_size", row)))
		dt.SetCellFloat("accuracy", row, acc)
	}
	require.NoError(t, WriteResults(dt, fname))
}

// sourceDataSetup builds split csvs and a results tree in temp dirs
// and returns the config to aggregate them
func sourceDataSetup(t *testing.T) *SourceDataConfig {
	stims := []searchstims.StimType{searchstims.TwoVsFive, searchstims.RVvGV}
	split, err := searchstims.MakeSplitTable(stims, []int{1, 8}, 4, [3]float64{0.5, 0.25, 0.25}, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	resultsRoot := filepath.Join(dir, "results")
	srcRoot := filepath.Join(dir, "source_data")
	require.NoError(t, os.MkdirAll(resultsRoot, 0755))
	require.NoError(t, os.MkdirAll(srcRoot, 0755))

	alexCSV := filepath.Join(dir, "split_alexnet.csv")
	vggCSV := filepath.Join(dir, "split_vgg16.csv")
	require.NoError(t, searchstims.SaveSplit(split, alexCSV))
	require.NoError(t, searchstims.SaveSplit(split, vggCSV))

	for _, netNm := range []string{"alexnet", "VGG16"} {
		for _, method := range []string{"initialize", "transfer"} {
			fnm := filepath.Join(resultsRoot, fmt.Sprintf("%s_%s_results.tsv.gz", netNm, method))
			writeTestResults(t, fnm, split, netNm, method)
		}
	}
	return &SourceDataConfig{
		ResultsRoot:     resultsRoot,
		SourceDataRoot:  srcRoot,
		Nets:            []string{"alexnet", "VGG16"},
		AlexnetSplitCSV: alexCSV,
		VGG16SplitCSV:   vggCSV,
	}
}

func openCSV(t *testing.T, fname string) *etable.Table {
	dt := &etable.Table{}
	require.NoError(t, dt.OpenCSV(gi.FileName(fname), etable.Comma), fname)
	return dt
}

func TestGenerateSourceData(t *testing.T) {
	cf := sourceDataSetup(t)
	require.NoError(t, GenerateSourceData(cf))

	all := openCSV(t, filepath.Join(cf.SourceDataRoot, "all.csv"))
	// 2 nets x 2 methods x all manifest rows
	assert.Equal(t, 2*2*(2*2*2*4), all.Rows)

	adt := openCSV(t, filepath.Join(cf.SourceDataRoot, "acc_diff.csv"))
	require.Equal(t, 4, adt.Rows, "one row per net x stimulus")
	for row := 0; row < adt.Rows; row++ {
		netNm := adt.CellString("net_name", row)
		stim := adt.CellString("stimulus", row)
		accs := testAccs[netNm][stim]
		assert.InDelta(t, accs[0], adt.CellFloat("set_size_1_acc", row), 1e-6)
		assert.InDelta(t, accs[1], adt.CellFloat("set_size_8_acc", row), 1e-6)
		assert.InDelta(t, accs[0]-accs[1], adt.CellFloat("acc_diff", row), 1e-6)
	}

	stimDt := openCSV(t, filepath.Join(cf.SourceDataRoot, "stim_acc_diff.csv"))
	require.Equal(t, 2, stimDt.Rows)
	// 2_v_5 has mean set_size_1_acc 0.95 vs 0.9, so sorts first
	assert.Equal(t, "2_v_5", stimDt.CellString("stimulus", 0))
	assert.InDelta(t, 0.4, stimDt.CellFloat("acc_diff", 0), 1e-6)
	assert.Equal(t, "RVvGV", stimDt.CellString("stimulus", 1))

	netDt := openCSV(t, filepath.Join(cf.SourceDataRoot, "net_acc_diff.csv"))
	require.Equal(t, 2, netDt.Rows)
	// alexnet mean acc_diff 0.3 vs VGG16 0.2, descending
	assert.Equal(t, "alexnet", netDt.CellString("net_name", 0))
	assert.InDelta(t, 0.3, netDt.CellFloat("acc_diff", 0), 1e-6)

	pivot := openCSV(t, filepath.Join(cf.SourceDataRoot, "acc_diff_by_stim.csv"))
	require.Equal(t, 2, pivot.Rows)
	assert.Equal(t, "alexnet", pivot.CellString("net_name", 0))
	assert.InDelta(t, 0.5, pivot.CellFloat("2_v_5", 0), 1e-6)
	assert.InDelta(t, 0.1, pivot.CellFloat("RVvGV", 0), 1e-6)
	assert.InDelta(t, 0.3, pivot.CellFloat("2_v_5", 1), 1e-6)
}

func TestSourceDataRootMissing(t *testing.T) {
	cf := sourceDataSetup(t)
	cf.SourceDataRoot = filepath.Join(cf.SourceDataRoot, "no_such_dir")
	assert.Error(t, GenerateSourceData(cf))
}

func TestSourceDataBadMethodMode(t *testing.T) {
	cf := sourceDataSetup(t)
	cf.Methods = []string{"finetune"}
	assert.Error(t, GenerateSourceData(cf))

	cf = sourceDataSetup(t)
	cf.Modes = []string{"segment"}
	assert.Error(t, GenerateSourceData(cf))
}

func TestFindResults(t *testing.T) {
	cf := sourceDataSetup(t)
	path, err := FindResults(cf.ResultsRoot, "alexnet", "transfer", "classify")
	require.NoError(t, err)
	assert.Contains(t, path, "alexnet_transfer")

	_, err = FindResults(cf.ResultsRoot, "CORnet_Z", "transfer", "classify")
	assert.Error(t, err, "no matching archive must error")

	// a second matching archive makes the condition ambiguous
	dup := filepath.Join(cf.ResultsRoot, "alexnet_transfer_rerun_results.tsv.gz")
	require.NoError(t, os.WriteFile(dup, []byte("x"), 0644))
	_, err = FindResults(cf.ResultsRoot, "alexnet", "transfer", "classify")
	assert.Error(t, err, "multiple matching archives must error")
}

func TestFindResultsDetectMode(t *testing.T) {
	cf := sourceDataSetup(t)
	sub := filepath.Join(cf.ResultsRoot, "detect")
	require.NoError(t, os.MkdirAll(sub, 0755))
	fnm := filepath.Join(sub, "alexnet_transfer_results.tsv.gz")
	require.NoError(t, os.WriteFile(fnm, []byte("x"), 0644))

	path, err := FindResults(cf.ResultsRoot, "alexnet", "transfer", "detect")
	require.NoError(t, err)
	assert.Equal(t, fnm, path)

	// classify search must not pick up the detect archive
	path, err = FindResults(cf.ResultsRoot, "alexnet", "transfer", "classify")
	require.NoError(t, err)
	assert.NotContains(t, path, "detect")
}

func TestAccDiffRequiresSetSizes(t *testing.T) {
	split1, err := searchstims.MakeSplitTable([]searchstims.StimType{searchstims.RVvGV}, []int{1}, 2, [3]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	fnm := filepath.Join(t.TempDir(), "alexnet_transfer_results.tsv.gz")
	writeTestResults(t, fnm, split1, "alexnet", "transfer")
	dt, err := ResultsToTable(fnm, split1, "alexnet", "transfer", "classify", 0.001)
	require.NoError(t, err)
	_, err = AccDiff(dt)
	assert.Error(t, err, "missing set size 8 rows must error")
}

func TestAccDiffNoTransferRows(t *testing.T) {
	split1, err := searchstims.MakeSplitTable([]searchstims.StimType{searchstims.RVvGV}, []int{1, 8}, 2, [3]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	fnm := filepath.Join(t.TempDir(), "alexnet_initialize_results.tsv.gz")
	writeTestResults(t, fnm, split1, "alexnet", "initialize")
	dt, err := ResultsToTable(fnm, split1, "alexnet", "initialize", "classify", 0.001)
	require.NoError(t, err)
	_, err = AccDiff(dt)
	assert.Error(t, err)
}
