// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// searchnets runs the visual search experiment pipeline:
//
//	searchnets stims      generate the dataset split manifests
//	searchnets train      train nets on the search task
//	searchnets test       evaluate checkpoints, write results archives
//	searchnets aggregate  produce the source data csv files
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/NickleDave/searchnets"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	ss := &searchnets.TheSim
	ss.New()

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var netNms, methods string
	fs.StringVar(&ss.ParamSet, "params", "", "ParamSet name to use -- must be valid name as listed in compiled-in params")
	fs.StringVar(&ss.Tag, "tag", "", "extra tag to add to file names saved from this run")
	fs.StringVar(&netNms, "nets", strings.Join(ss.Nets, ","), "comma-separated net names to run")
	fs.StringVar(&methods, "methods", strings.Join(ss.Methods, ","), "comma-separated training methods to run")
	fs.StringVar(&ss.Mode, "mode", ss.Mode, "task mode: classify or detect")
	fs.IntVar(&ss.MaxRuns, "runs", ss.MaxRuns, "number of runs per condition")
	fs.IntVar(&ss.MaxEpcs, "epochs", ss.MaxEpcs, "max training epochs")
	fs.IntVar(&ss.NPerCond, "npercond", ss.NPerCond, "trials per (stimulus, set size, target) condition")
	fs.Int64Var(&ss.RndSeed, "seed", ss.RndSeed, "base random seed")
	fs.BoolVar(&ss.UseV1, "v1", ss.UseV1, "feed V1 gabor-filtered input instead of raw pixels")
	fs.StringVar(&ss.DataDir, "data", ss.DataDir, "directory for split manifests")
	fs.StringVar(&ss.ModelsDir, "models", ss.ModelsDir, "directory for checkpoints")
	fs.StringVar(&ss.ResultsDir, "results", ss.ResultsDir, "directory for results archives")
	fs.StringVar(&ss.SourceDataDir, "sourcedata", ss.SourceDataDir, "directory for source data csv files")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	ss.Nets = strings.Split(netNms, ",")
	ss.Methods = strings.Split(methods, ",")

	ss.Config()
	if err := ss.SetParams("", false); err != nil {
		log.Println(err)
	}

	var err error
	switch cmd {
	case "stims":
		err = ss.MakeStims()
	case "train":
		err = ss.TrainAll()
	case "test":
		err = ss.TestAll()
	case "aggregate":
		err = ss.Aggregate()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: searchnets {stims|train|test|aggregate} [flags]")
}
