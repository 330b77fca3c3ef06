// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/NickleDave/searchnets/train"
	"github.com/emer/etable/agg"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/emer/etable/split"
	"github.com/goki/gi/gi"
)

// SourceDataConfig specifies a source-data aggregation run
type SourceDataConfig struct {
	ResultsRoot     string   `desc:"directory searched recursively for results archives"`
	SourceDataRoot  string   `desc:"existing directory the source data csv files are written to"`
	Nets            []string `desc:"net names to aggregate"`
	Methods         []string `desc:"training methods to aggregate"`
	Modes           []string `desc:"task modes to aggregate"`
	AlexnetSplitCSV string   `desc:"split manifest for alexnet-sized stimuli (alexnet, CORnets)"`
	VGG16SplitCSV   string   `desc:"split manifest for VGG16-sized stimuli"`
	LearningRate    float64  `def:"0.001" desc:"learning rate the runs were trained with"`
}

// Defaults fills in the experiment-1 defaults: all four nets, both
// training methods, classify mode only
func (cf *SourceDataConfig) Defaults() {
	if cf.Nets == nil {
		cf.Nets = []string{"alexnet", "VGG16", "CORnet_Z", "CORnet_S"}
	}
	if cf.Methods == nil {
		cf.Methods = []string{"initialize", "transfer"}
	}
	if cf.Modes == nil {
		cf.Modes = []string{"classify"}
	}
	if cf.LearningRate == 0 {
		cf.LearningRate = 0.001
	}
}

// Validate checks methods and modes against the valid sets and that
// the source data root exists
func (cf *SourceDataConfig) Validate() error {
	for _, m := range cf.Methods {
		if !inList(m, train.Methods) {
			return fmt.Errorf("analysis: invalid method: %s, must be one of: %v", m, train.Methods)
		}
	}
	for _, m := range cf.Modes {
		if !inList(m, train.Modes) {
			return fmt.Errorf("analysis: invalid mode: %s, must be one of: %v", m, train.Modes)
		}
	}
	info, err := os.Stat(cf.SourceDataRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("analysis: source data root not found: %s", cf.SourceDataRoot)
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

// FindResults locates the single results archive for one
// net x method x mode condition under root: a .gz file whose name
// contains the net and method, with "detect" in its path exactly when
// mode is detect.  Zero or multiple matches error.
func FindResults(root, netNm, method, mode string) (string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, "gz") {
			return nil
		}
		base := filepath.Base(path)
		if !strings.Contains(base, netNm) || !strings.Contains(base, method) {
			return nil
		}
		if strings.Contains(path, "detect") != (mode == "detect") {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) != 1 {
		return "", fmt.Errorf("analysis: expected one results archive for net %s, method %s, mode %s under %s, found %d: %v",
			netNm, method, mode, root, len(found), found)
	}
	return found[0], nil
}

// splitCSVForNet maps a net name to the split manifest its stimuli
// were generated with: alexnet and the CORnets share the alexnet-sized
// manifest, VGG16 has its own
func (cf *SourceDataConfig) splitCSVForNet(netNm string) (string, error) {
	switch {
	case netNm == "alexnet" || strings.HasPrefix(netNm, "CORnet"):
		return cf.AlexnetSplitCSV, nil
	case netNm == "VGG16":
		return cf.VGG16SplitCSV, nil
	}
	return "", fmt.Errorf("analysis: no split csv known for net: %s", netNm)
}

// GenerateSourceData collects per-trial results for every
// net x method x mode condition, joins them with their split
// manifests, and writes the source data csv files to SourceDataRoot:
// all.csv (every trial), acc_diff.csv (per net x stimulus accuracy
// drop from set size 1 to 8, transfer runs), stim_acc_diff.csv and
// net_acc_diff.csv (that drop averaged by stimulus / by net, sorted),
// and acc_diff_by_stim.csv (nets x stimuli pivot of the drop)
func GenerateSourceData(cf *SourceDataConfig) error {
	cf.Defaults()
	if err := cf.Validate(); err != nil {
		return err
	}
	splits := map[string]*etable.Table{}
	var all *etable.Table
	for _, netNm := range cf.Nets {
		csv, err := cf.splitCSVForNet(netNm)
		if err != nil {
			return err
		}
		spdt, ok := splits[csv]
		if !ok {
			spdt = &etable.Table{}
			if err := spdt.OpenCSV(gi.FileName(csv), etable.Comma); err != nil {
				return fmt.Errorf("analysis: opening split csv %s: %v", csv, err)
			}
			splits[csv] = spdt
		}
		for _, method := range cf.Methods {
			for _, mode := range cf.Modes {
				path, err := FindResults(cf.ResultsRoot, netNm, method, mode)
				if err != nil {
					return err
				}
				dt, err := ResultsToTable(path, spdt, netNm, method, mode, cf.LearningRate)
				if err != nil {
					return err
				}
				if all == nil {
					all = dt
				} else {
					all.AppendRows(dt)
				}
			}
		}
	}
	if all == nil {
		return fmt.Errorf("analysis: no results found under %s", cf.ResultsRoot)
	}
	if err := all.SaveCSV(gi.FileName(filepath.Join(cf.SourceDataRoot, "all.csv")), etable.Comma, etable.Headers); err != nil {
		return err
	}

	adt, err := AccDiff(all)
	if err != nil {
		return err
	}
	if err := adt.SaveCSV(gi.FileName(filepath.Join(cf.SourceDataRoot, "acc_diff.csv")), etable.Comma, etable.Headers); err != nil {
		return err
	}

	stimDt := StimAccDiff(adt)
	if err := stimDt.SaveCSV(gi.FileName(filepath.Join(cf.SourceDataRoot, "stim_acc_diff.csv")), etable.Comma, etable.Headers); err != nil {
		return err
	}

	netDt := NetAccDiff(adt)
	if err := netDt.SaveCSV(gi.FileName(filepath.Join(cf.SourceDataRoot, "net_acc_diff.csv")), etable.Comma, etable.Headers); err != nil {
		return err
	}

	pivot, err := AccDiffByStim(adt, netDt, stimDt)
	if err != nil {
		return err
	}
	return pivot.SaveCSV(gi.FileName(filepath.Join(cf.SourceDataRoot, "acc_diff_by_stim.csv")), etable.Comma, etable.Headers)
}

// AccDiff computes, for each net x stimulus in the transfer runs, the
// drop in mean accuracy from set size 1 to set size 8.  Requires
// exactly one grouped accuracy per set size.
func AccDiff(all *etable.Table) (*etable.Table, error) {
	aix := etable.NewIdxView(all)
	aix.Filter(func(et *etable.Table, row int) bool {
		return et.CellString("method", row) == "transfer"
	})
	if aix.Len() == 0 {
		return nil, fmt.Errorf("analysis: no transfer-method rows to compute acc_diff from")
	}
	spl := split.GroupBy(aix, []string{"net_name", "stimulus", "set_size"})
	split.Agg(spl, "accuracy", agg.AggMean)
	gps := spl.AggsToTable(etable.ColNameOnly)

	// ordered unique (net, stimulus) pairs
	type pair struct{ net, stim string }
	var pairs []pair
	seen := map[pair]bool{}
	for row := 0; row < gps.Rows; row++ {
		pr := pair{gps.CellString("net_name", row), gps.CellString("stimulus", row)}
		if !seen[pr] {
			seen[pr] = true
			pairs = append(pairs, pr)
		}
	}

	adt := &etable.Table{}
	sch := etable.Schema{
		{"net_name", etensor.STRING, nil, nil},
		{"stimulus", etensor.STRING, nil, nil},
		{"set_size_1_acc", etensor.FLOAT64, nil, nil},
		{"set_size_8_acc", etensor.FLOAT64, nil, nil},
		{"acc_diff", etensor.FLOAT64, nil, nil},
	}
	adt.SetFromSchema(sch, len(pairs))
	adt.SetMetaData("name", "AccDiff")
	for i, pr := range pairs {
		acc1, err := setSizeAcc(gps, pr.net, pr.stim, 1)
		if err != nil {
			return nil, err
		}
		acc8, err := setSizeAcc(gps, pr.net, pr.stim, 8)
		if err != nil {
			return nil, err
		}
		adt.SetCellString("net_name", i, pr.net)
		adt.SetCellString("stimulus", i, pr.stim)
		adt.SetCellFloat("set_size_1_acc", i, acc1)
		adt.SetCellFloat("set_size_8_acc", i, acc8)
		adt.SetCellFloat("acc_diff", i, acc1-acc8)
	}
	return adt, nil
}

// setSizeAcc returns the grouped mean accuracy for one
// (net, stimulus, set size), requiring exactly one matching row
func setSizeAcc(gps *etable.Table, netNm, stim string, setSize int) (float64, error) {
	n := 0
	acc := 0.0
	for row := 0; row < gps.Rows; row++ {
		if gps.CellString("net_name", row) == netNm &&
			gps.CellString("stimulus", row) == stim &&
			int(gps.CellFloat("set_size", row)) == setSize {
			acc = gps.CellFloat("accuracy", row)
			n++
		}
	}
	if n != 1 {
		return 0, fmt.Errorf("analysis: expected one mean accuracy for net %s, stimulus %s, set size %d, got %d",
			netNm, stim, setSize, n)
	}
	return acc, nil
}

// StimAccDiff averages acc_diff and set_size_1_acc by stimulus,
// sorted descending by (set_size_1_acc, acc_diff)
func StimAccDiff(adt *etable.Table) *etable.Table {
	aix := etable.NewIdxView(adt)
	spl := split.GroupBy(aix, []string{"stimulus"})
	split.Agg(spl, "acc_diff", agg.AggMean)
	split.Agg(spl, "set_size_1_acc", agg.AggMean)
	gps := spl.AggsToTable(etable.ColNameOnly)
	gix := etable.NewIdxView(gps)
	gix.Sort(func(et *etable.Table, i, j int) bool {
		si := et.CellFloat("set_size_1_acc", i)
		sj := et.CellFloat("set_size_1_acc", j)
		if si != sj {
			return si > sj // descending
		}
		return et.CellFloat("acc_diff", i) > et.CellFloat("acc_diff", j)
	})
	return gix.NewTable()
}

// NetAccDiff averages acc_diff by net, sorted descending
func NetAccDiff(adt *etable.Table) *etable.Table {
	aix := etable.NewIdxView(adt)
	spl := split.GroupBy(aix, []string{"net_name"})
	split.Agg(spl, "acc_diff", agg.AggMean)
	gps := spl.AggsToTable(etable.ColNameOnly)
	gix := etable.NewIdxView(gps)
	gix.SortCol(gps.ColIdx("acc_diff"), false) // descending
	return gix.NewTable()
}

// AccDiffByStim pivots acc_diff into one row per net and one column
// per stimulus, rows in netOrder's net order and columns in
// stimOrder's stimulus order
func AccDiffByStim(adt, netOrder, stimOrder *etable.Table) (*etable.Table, error) {
	sch := etable.Schema{{"net_name", etensor.STRING, nil, nil}}
	for row := 0; row < stimOrder.Rows; row++ {
		sch = append(sch, etable.Column{stimOrder.CellString("stimulus", row), etensor.FLOAT64, nil, nil})
	}
	pivot := &etable.Table{}
	pivot.SetFromSchema(sch, netOrder.Rows)
	pivot.SetMetaData("name", "AccDiffByStim")
	for ni := 0; ni < netOrder.Rows; ni++ {
		netNm := netOrder.CellString("net_name", ni)
		pivot.SetCellString("net_name", ni, netNm)
		for si := 0; si < stimOrder.Rows; si++ {
			stim := stimOrder.CellString("stimulus", si)
			found := false
			for row := 0; row < adt.Rows; row++ {
				if adt.CellString("net_name", row) == netNm && adt.CellString("stimulus", row) == stim {
					pivot.SetCellFloat(stim, ni, adt.CellFloat("acc_diff", row))
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("analysis: no acc_diff for net %s, stimulus %s", netNm, stim)
			}
		}
	}
	return pivot, nil
}
