// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchnets

import "github.com/emer/emergent/params"

// ParamSets is the default set of hyperparameters for the experiments,
// with named variants selectable via -params
var ParamSets = params.Sets{
	{Name: "Base", Desc: "the defaults used in experiment 1", Sheets: params.Sheets{
		"Sim": &params.Sheet{
			{Sel: "Sim", Desc: "training hyperparameters",
				Params: params.Params{
					"Sim.Lr":        "0.001",
					"Sim.BatchSize": "64",
					"Sim.MaxEpcs":   "200",
					"Sim.Patience":  "20",
				}},
		},
	}},
	{Name: "FastAdam", Desc: "Adam with a shorter patience, for quicker runs", Sheets: params.Sheets{
		"Sim": &params.Sheet{
			{Sel: "Sim", Desc: "adam trains in fewer epochs",
				Params: params.Params{
					"Sim.Optim":    "Adam",
					"Sim.MaxEpcs":  "100",
					"Sim.Patience": "10",
				}},
		},
	}},
}
