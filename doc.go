// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/* Package searchnets trains convolutional neural networks on a classic
visual search task, and aggregates the per-trial results across experiment
conditions into the source data tables used to make figures.

Stimuli are generated by the searchstims subpackage: displays of simple
items (colored bars, LED-style digits) placed on a grid, with a target
either present or absent among 1-8 items ("set size").  Networks
(alexnet, VGG16, CORnet_Z, CORnet_S -- see the nets subpackage) are
trained either from randomly-initialized weights or by transfer from a
pre-trained base (the train subpackage), and tested per trial on a fixed
held-out split.  The analysis subpackage joins the per-run results with
the dataset split metadata and produces grouped summaries: mean accuracy
by (net, stimulus, set size), the drop in accuracy from set size 1 to
set size 8, and a pivoted net x stimulus table of those drops.

The cmd/searchnets command drives the full pipeline:

	searchnets stims      # generate the stimulus split table (and images)
	searchnets train      # train one net for a given condition
	searchnets test       # evaluate a checkpoint, write results .gz
	searchnets aggregate  # produce the source data csv files
*/
package searchnets
