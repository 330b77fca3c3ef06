// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"path/filepath"
	"testing"

	"github.com/NickleDave/searchnets/searchstims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsRoundTrip(t *testing.T) {
	dt := MakeResultsTable()
	dt.SetNumRows(3)
	for row := 0; row < 3; row++ {
		dt.SetCellFloat("item", row, float64(10+row))
		dt.SetCellFloat("trial", row, float64(row))
		dt.SetCellFloat("accuracy", row, float64(row%2))
	}
	fnm := filepath.Join(t.TempDir(), "alexnet_transfer_results.tsv.gz")
	require.NoError(t, WriteResults(dt, fnm))
	ld, err := OpenResults(fnm)
	require.NoError(t, err)
	require.Equal(t, 3, ld.Rows)
	for row := 0; row < 3; row++ {
		assert.Equal(t, dt.CellFloat("item", row), ld.CellFloat("item", row))
		assert.Equal(t, dt.CellFloat("accuracy", row), ld.CellFloat("accuracy", row))
	}
}

func TestResultsToTableJoin(t *testing.T) {
	split, err := searchstims.MakeSplitTable([]searchstims.StimType{searchstims.TwoVsFive}, []int{1, 8}, 2, [3]float64{0.5, 0, 0.5}, 1)
	require.NoError(t, err)

	rdt := MakeResultsTable()
	rdt.SetNumRows(split.Rows)
	for row := 0; row < split.Rows; row++ {
		rdt.SetCellFloat("item", row, split.CellFloat("item", row))
		rdt.SetCellFloat("trial", row, float64(row))
		rdt.SetCellFloat("accuracy", row, 1)
	}
	fnm := filepath.Join(t.TempDir(), "alexnet_transfer_results.tsv.gz")
	require.NoError(t, WriteResults(rdt, fnm))

	dt, err := ResultsToTable(fnm, split, "alexnet", "transfer", "classify", 0.001)
	require.NoError(t, err)
	require.Equal(t, split.Rows, dt.Rows)
	for row := 0; row < dt.Rows; row++ {
		assert.Equal(t, "alexnet", dt.CellString("net_name", row))
		assert.Equal(t, "transfer", dt.CellString("method", row))
		assert.Equal(t, "2_v_5", dt.CellString("stimulus", row))
		assert.Equal(t, split.CellFloat("set_size", row), dt.CellFloat("set_size", row))
		assert.Equal(t, split.CellString("target_condition", row), dt.CellString("target_condition", row))
	}
}

func TestResultsToTableItemMissing(t *testing.T) {
	split, err := searchstims.MakeSplitTable([]searchstims.StimType{searchstims.TwoVsFive}, []int{1}, 2, [3]float64{1, 0, 0}, 1)
	require.NoError(t, err)

	rdt := MakeResultsTable()
	rdt.SetNumRows(1)
	rdt.SetCellFloat("item", 0, 9999)
	rdt.SetCellFloat("trial", 0, 0)
	rdt.SetCellFloat("accuracy", 0, 1)
	fnm := filepath.Join(t.TempDir(), "alexnet_transfer_results.tsv.gz")
	require.NoError(t, WriteResults(rdt, fnm))

	_, err = ResultsToTable(fnm, split, "alexnet", "transfer", "classify", 0.001)
	assert.Error(t, err, "result items must exist in the split manifest")
}
