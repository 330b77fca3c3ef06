// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"compress/gzip"
	"fmt"
	"os"

	"github.com/NickleDave/searchnets/searchstims"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// Results archives are gzipped tab-separated tables with one row per
// test trial: the manifest item number, the trial index, and accuracy
// (1 = correct, 0 = incorrect).  Everything else about a trial comes
// from joining with the split manifest.

// MakeResultsTable returns an empty per-trial results table
func MakeResultsTable() *etable.Table {
	dt := &etable.Table{}
	sch := etable.Schema{
		{"item", etensor.INT64, nil, nil},
		{"trial", etensor.INT64, nil, nil},
		{"accuracy", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
	dt.SetMetaData("name", "Results")
	dt.SetMetaData("desc", "per-trial test results")
	return dt
}

// WriteResults writes a results table gzip-compressed tab-separated
func WriteResults(dt *etable.Table, fname string) error {
	fp, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fp.Close()
	gz := gzip.NewWriter(fp)
	defer gz.Close()
	dt.WriteCSVHeaders(gz, etable.Tab)
	for row := 0; row < dt.Rows; row++ {
		dt.WriteCSVRow(gz, row, etable.Tab)
	}
	return nil
}

// OpenResults loads a gzipped results archive
func OpenResults(fname string) (*etable.Table, error) {
	fp, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		return nil, fmt.Errorf("analysis: %s: %v", fname, err)
	}
	defer gz.Close()
	dt := &etable.Table{}
	if err := dt.ReadCSV(gz, etable.Tab); err != nil {
		return nil, fmt.Errorf("analysis: %s: %v", fname, err)
	}
	return dt, nil
}

// ResultsToTable loads one results archive and joins each trial with
// its split manifest metadata, returning the full per-trial table with
// the run's condition columns filled in
func ResultsToTable(resultsPath string, split *etable.Table, netName, method, mode string, lr float64) (*etable.Table, error) {
	rdt, err := OpenResults(resultsPath)
	if err != nil {
		return nil, err
	}
	dt := &etable.Table{}
	sch := etable.Schema{
		{"net_name", etensor.STRING, nil, nil},
		{"method", etensor.STRING, nil, nil},
		{"mode", etensor.STRING, nil, nil},
		{"learning_rate", etensor.FLOAT64, nil, nil},
		{"stimulus", etensor.STRING, nil, nil},
		{"set_size", etensor.INT64, nil, nil},
		{"target_condition", etensor.STRING, nil, nil},
		{"trial", etensor.INT64, nil, nil},
		{"accuracy", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, rdt.Rows)
	dt.SetMetaData("name", "SourceData")
	for row := 0; row < rdt.Rows; row++ {
		item := int(rdt.CellFloat("item", row))
		srow := searchstims.RowForItem(split, item)
		if srow < 0 {
			return nil, fmt.Errorf("analysis: %s: item %d not found in split manifest", resultsPath, item)
		}
		dt.SetCellString("net_name", row, netName)
		dt.SetCellString("method", row, method)
		dt.SetCellString("mode", row, mode)
		dt.SetCellFloat("learning_rate", row, lr)
		dt.SetCellString("stimulus", row, split.CellString("stimulus", srow))
		dt.SetCellFloat("set_size", row, split.CellFloat("set_size", srow))
		dt.SetCellString("target_condition", row, split.CellString("target_condition", srow))
		dt.SetCellFloat("trial", row, rdt.CellFloat("trial", row))
		dt.SetCellFloat("accuracy", row, rdt.CellFloat("accuracy", row))
	}
	return dt, nil
}
