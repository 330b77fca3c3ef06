// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"fmt"
	"math"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/goki/gi/gi"
	"golang.org/x/exp/rand"
)

// Split names used in the manifest table
const (
	TrainSplit = "train"
	ValSplit   = "val"
	TestSplit  = "test"
)

// MakeSplitTable generates the split manifest table for a dataset:
// one row per trial with columns item, stimulus, set_size,
// target_condition, seed, split.  Each (stimulus, set size) condition
// gets nPerCond target-present and nPerCond target-absent trials, so
// present and absent are always balanced within condition.  fracs are
// the train, val, test fractions, which must sum to 1; they are applied
// within each (stimulus, set size, target) block so every split keeps
// the balance.  The seed column lets SearchEnv.RenderTrial re-render
// any row's image exactly.
func MakeSplitTable(stims []StimType, setSizes []int, nPerCond int, fracs [3]float64, seed uint64) (*etable.Table, error) {
	if nPerCond < 1 {
		return nil, fmt.Errorf("searchstims: nPerCond must be >= 1, got %d", nPerCond)
	}
	fsum := fracs[0] + fracs[1] + fracs[2]
	if math.Abs(fsum-1) > 1e-6 {
		return nil, fmt.Errorf("searchstims: split fractions must sum to 1, got %v = %g", fracs, fsum)
	}
	for _, f := range fracs {
		if f < 0 {
			return nil, fmt.Errorf("searchstims: split fractions must be >= 0, got %v", fracs)
		}
	}
	nrows := len(stims) * len(setSizes) * 2 * nPerCond
	dt := &etable.Table{}
	sch := etable.Schema{
		{"item", etensor.INT64, nil, nil},
		{"stimulus", etensor.STRING, nil, nil},
		{"set_size", etensor.INT64, nil, nil},
		{"target_condition", etensor.STRING, nil, nil},
		{"seed", etensor.INT64, nil, nil},
		{"split", etensor.STRING, nil, nil},
	}
	dt.SetFromSchema(sch, nrows)
	dt.SetMetaData("name", "SplitTable")
	dt.SetMetaData("desc", "dataset split manifest for search stimuli")

	nTrain := int(math.Round(fracs[0] * float64(nPerCond)))
	nVal := int(math.Round(fracs[1] * float64(nPerCond)))
	if nTrain+nVal > nPerCond {
		nVal = nPerCond - nTrain
	}

	rng := rand.New(rand.NewSource(seed))
	row := 0
	for _, st := range stims {
		for _, ss := range setSizes {
			for _, tc := range []string{"present", "absent"} {
				ord := rng.Perm(nPerCond)
				for i := 0; i < nPerCond; i++ {
					sp := TestSplit
					switch {
					case ord[i] < nTrain:
						sp = TrainSplit
					case ord[i] < nTrain+nVal:
						sp = ValSplit
					}
					dt.SetCellFloat("item", row, float64(row))
					dt.SetCellString("stimulus", row, st.String())
					dt.SetCellFloat("set_size", row, float64(ss))
					dt.SetCellString("target_condition", row, tc)
					dt.SetCellFloat("seed", row, float64(rng.Int63()))
					dt.SetCellString("split", row, sp)
					row++
				}
			}
		}
	}
	return dt, nil
}

// SplitRows returns an indexed view of the manifest filtered to rows
// in the given split
func SplitRows(dt *etable.Table, split string) *etable.IdxView {
	ix := etable.NewIdxView(dt)
	ix.Filter(func(et *etable.Table, row int) bool {
		return et.CellString("split", row) == split
	})
	return ix
}

// SaveSplit saves the split manifest as a comma-separated csv file
func SaveSplit(dt *etable.Table, fname string) error {
	return dt.SaveCSV(gi.FileName(fname), etable.Comma, etable.Headers)
}

// OpenSplit loads a split manifest csv file
func OpenSplit(fname string) (*etable.Table, error) {
	dt := &etable.Table{}
	err := dt.OpenCSV(gi.FileName(fname), etable.Comma)
	if err != nil {
		return nil, err
	}
	return dt, nil
}

// RowForItem returns the manifest row index for given item number,
// -1 if not found
func RowForItem(dt *etable.Table, item int) int {
	ic := dt.ColByName("item")
	for row := 0; row < dt.Rows; row++ {
		if int(ic.FloatVal1D(row)) == item {
			return row
		}
	}
	return -1
}
