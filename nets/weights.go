// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nets

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emer/etable/etensor"
)

// netWts is the on-disk weights format: one record per parameter
// tensor, in network layer order
type netWts struct {
	Network string   `json:"network"`
	Params  []parWts `json:"params"`
}

type parWts struct {
	Shape  []int     `json:"shape"`
	Values []float32 `json:"values"`
}

// SaveWtsJSON saves network weights (and any other state that adapts
// over time) to a gzip-compressed JSON file.  Uses .wts.gz extension.
func (nn *Network) SaveWtsJSON(fname string) error {
	fp, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fp.Close()
	if strings.HasSuffix(fname, ".gz") {
		gz := gzip.NewWriter(fp)
		defer gz.Close()
		return nn.WriteWtsJSON(gz)
	}
	bw := bufio.NewWriter(fp)
	defer bw.Flush()
	return nn.WriteWtsJSON(bw)
}

// OpenWtsJSON loads network weights from a (possibly gzipped) JSON
// file, erroring if the saved shapes do not match this architecture
func (nn *Network) OpenWtsJSON(fname string) error {
	fp, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer fp.Close()
	if strings.HasSuffix(fname, ".gz") {
		gz, err := gzip.NewReader(fp)
		if err != nil {
			return err
		}
		defer gz.Close()
		return nn.ReadWtsJSON(gz)
	}
	return nn.ReadWtsJSON(bufio.NewReader(fp))
}

// WriteWtsJSON writes weights to given writer
func (nn *Network) WriteWtsJSON(w io.Writer) error {
	ps := nn.AllParams()
	nw := netWts{Network: nn.Nm, Params: make([]parWts, len(ps))}
	for i, p := range ps {
		nw.Params[i] = parWts{Shape: p.Shp, Values: p.Values}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(&nw)
}

// ReadWtsJSON reads weights from given reader into this network,
// which must already be built with matching architecture
func (nn *Network) ReadWtsJSON(r io.Reader) error {
	var nw netWts
	dec := json.NewDecoder(r)
	if err := dec.Decode(&nw); err != nil {
		return err
	}
	ps := nn.AllParams()
	if len(nw.Params) != len(ps) {
		return fmt.Errorf("nets: %s: weights file has %d param tensors, network has %d", nn.Nm, len(nw.Params), len(ps))
	}
	for i, p := range ps {
		if !etensor.EqualInts(nw.Params[i].Shape, p.Shp) {
			return fmt.Errorf("nets: %s: param %d shape mismatch: file %v vs network %v", nn.Nm, i, nw.Params[i].Shape, p.Shp)
		}
		copy(p.Values, nw.Params[i].Values)
	}
	return nil
}

// WtsFileName returns a weights file name in dir embedding the network
// name and tag, with the .wts.gz extension
func WtsFileName(dir, netNm, tag string) string {
	if tag != "" {
		return filepath.Join(dir, fmt.Sprintf("%s_%s.wts.gz", netNm, tag))
	}
	return filepath.Join(dir, netNm+".wts.gz")
}
