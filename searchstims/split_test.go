// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSplitTableBalance(t *testing.T) {
	stims := []StimType{TwoVsFive, RVvGV}
	setSizes := []int{1, 8}
	nPer := 10
	dt, err := MakeSplitTable(stims, setSizes, nPer, [3]float64{0.6, 0.2, 0.2}, 1)
	require.NoError(t, err)
	assert.Equal(t, len(stims)*len(setSizes)*2*nPer, dt.Rows)

	// present and absent balanced within every (stimulus, set size, split)
	counts := map[[4]string]int{}
	for row := 0; row < dt.Rows; row++ {
		k := [4]string{
			dt.CellString("stimulus", row),
			fmt.Sprintf("%g", dt.CellFloat("set_size", row)),
			dt.CellString("split", row),
			dt.CellString("target_condition", row),
		}
		counts[k]++
	}
	for k, n := range counts {
		mirror := k
		if k[3] == "present" {
			mirror[3] = "absent"
		} else {
			mirror[3] = "present"
		}
		assert.Equal(t, counts[mirror], n, "present/absent must balance for %v", k)
	}

	// split fractions honored per condition block
	nTrain := 0
	for row := 0; row < dt.Rows; row++ {
		if dt.CellString("split", row) == TrainSplit {
			nTrain++
		}
	}
	assert.Equal(t, int(0.6*float64(dt.Rows)), nTrain)
}

func TestMakeSplitTableErrors(t *testing.T) {
	_, err := MakeSplitTable([]StimType{TwoVsFive}, []int{1}, 0, [3]float64{0.8, 0.1, 0.1}, 1)
	assert.Error(t, err)
	_, err = MakeSplitTable([]StimType{TwoVsFive}, []int{1}, 5, [3]float64{0.8, 0.3, 0.1}, 1)
	assert.Error(t, err)
}

func TestSplitSaveOpen(t *testing.T) {
	dt, err := MakeSplitTable([]StimType{RVvRHGV}, []int{2, 4}, 4, [3]float64{0.5, 0.25, 0.25}, 3)
	require.NoError(t, err)
	fnm := filepath.Join(t.TempDir(), "split.csv")
	require.NoError(t, SaveSplit(dt, fnm))
	ld, err := OpenSplit(fnm)
	require.NoError(t, err)
	require.Equal(t, dt.Rows, ld.Rows)
	for row := 0; row < dt.Rows; row++ {
		assert.Equal(t, dt.CellString("stimulus", row), ld.CellString("stimulus", row))
		assert.Equal(t, dt.CellFloat("seed", row), ld.CellFloat("seed", row))
	}
}

func TestSplitRows(t *testing.T) {
	dt, err := MakeSplitTable([]StimType{TwoVsFive}, []int{1}, 10, [3]float64{0.8, 0.1, 0.1}, 2)
	require.NoError(t, err)
	ix := SplitRows(dt, TestSplit)
	for _, row := range ix.Idxs {
		assert.Equal(t, TestSplit, dt.CellString("split", row))
	}
	assert.Equal(t, 2, ix.Len())
}
