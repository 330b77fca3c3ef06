// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"fmt"
	"image"

	"github.com/emer/emergent/env"
	"github.com/emer/etable/etensor"
	"github.com/emer/vision/vfilter"
	"golang.org/x/exp/rand"
)

// SearchEnv generates visual search displays: a target item present or
// absent among distractors placed at random cells of a grid, across a
// range of set sizes.  Each Step draws a new random trial; RenderTrial
// re-renders any specific trial deterministically from its seed, so a
// split manifest of (stimulus, set size, target, seed) rows fully
// specifies a dataset without saving image files.
type SearchEnv struct {
	Nm         string          `desc:"name of this environment"`
	Dsc        string          `desc:"description of this environment"`
	Draw       StimDraw        `desc:"draws search displays onto image"`
	Vis        Vis             `desc:"visual processing params"`
	UseV1      bool            `desc:"present V1 gabor-filtered output instead of the raw image"`
	Stims      []StimType      `desc:"stimulus types to sample from"`
	SetSizes   []int           `desc:"set sizes to sample from"`
	Rand       *rand.Rand      `view:"-" desc:"random source for trial sampling"`
	CurStim    StimType        `inactive:"+" desc:"stimulus type drawn on current trial"`
	CurSetSize int             `inactive:"+" desc:"set size of current trial"`
	CurPresent bool            `inactive:"+" desc:"whether target is present on current trial"`
	CurSeed    uint64          `inactive:"+" desc:"render seed of current trial"`
	Run        env.Ctr         `view:"inline" desc:"current run of model as provided during Init"`
	Epoch      env.Ctr         `view:"inline" desc:"number of times through trials per epoch"`
	Trial      env.Ctr         `view:"inline" desc:"trial is the step counter within epoch"`
	ImgTsr     etensor.Float32 `desc:"rendered image as [3, Y, X] rgb tensor"`
	OrigImg    etensor.Float32 `desc:"greyscale version of image, input to V1 filtering"`
	Output     etensor.Float32 `desc:"target present / absent 2-unit output tensor"`
}

func (se *SearchEnv) Name() string { return se.Nm }
func (se *SearchEnv) Desc() string { return se.Dsc }

func (se *SearchEnv) Defaults() {
	se.Draw.Defaults()
	se.Vis.Defaults()
	se.Stims = []StimType{TwoVsFive, RVvGV, RVvRHGV}
	se.SetSizes = []int{1, 2, 4, 8}
	se.Rand = rand.New(rand.NewSource(1))
}

func (se *SearchEnv) Validate() error {
	if len(se.Stims) == 0 {
		return fmt.Errorf("SearchEnv: %s has no stimulus types", se.Nm)
	}
	if len(se.SetSizes) == 0 {
		return fmt.Errorf("SearchEnv: %s has no set sizes", se.Nm)
	}
	for _, ss := range se.SetSizes {
		if ss < 1 || ss > se.Draw.NCells() {
			return fmt.Errorf("SearchEnv: %s set size %d out of range 1..%d", se.Nm, ss, se.Draw.NCells())
		}
	}
	return nil
}

func (se *SearchEnv) Counters() []env.TimeScales {
	return []env.TimeScales{env.Run, env.Epoch, env.Trial}
}

func (se *SearchEnv) States() env.Elements {
	isz := se.Draw.ImgSize
	sz := se.Vis.V1AllTsr.Shapes()
	nms := se.Vis.V1AllTsr.DimNames()
	els := env.Elements{
		{"Image", []int{3, isz.Y, isz.X}, []string{"RGB", "Y", "X"}},
		{"V1", sz, nms},
		{"Output", []int{2}, []string{"Present"}},
	}
	return els
}

func (se *SearchEnv) State(element string) etensor.Tensor {
	switch element {
	case "Image":
		RGBToTensor(se.Draw.Image, &se.ImgTsr)
		return &se.ImgTsr
	case "V1":
		return &se.Vis.V1AllTsr
	case "Output":
		return &se.Output
	}
	return nil
}

func (se *SearchEnv) Actions() env.Elements {
	return nil
}

func (se *SearchEnv) Init(run int) {
	if se.Rand == nil {
		se.Defaults()
	}
	se.Draw.Init()
	se.Run.Scale = env.Run
	se.Epoch.Scale = env.Epoch
	se.Trial.Scale = env.Trial
	se.Run.Init()
	se.Epoch.Init()
	se.Trial.Init()
	se.Run.Cur = run
	se.Trial.Cur = -1 // init state -- key so that first Step() = 0
	se.Output.SetShape([]int{2}, nil, []string{"Present"})
}

func (se *SearchEnv) Step() bool {
	se.Epoch.Same() // good idea to just reset all non-inner-most counters at start
	if se.Trial.Incr() {
		se.Epoch.Incr()
	}
	se.DrawRndTrial()
	if se.UseV1 {
		se.FilterImg()
	}
	return true
}

func (se *SearchEnv) Action(element string, input etensor.Tensor) {
	// nop
}

func (se *SearchEnv) Counter(scale env.TimeScales) (cur, prv int, chg bool) {
	switch scale {
	case env.Run:
		return se.Run.Query()
	case env.Epoch:
		return se.Epoch.Query()
	case env.Trial:
		return se.Trial.Query()
	}
	return -1, -1, false
}

// Compile-time check that implements Env interface
var _ env.Env = (*SearchEnv)(nil)

// String returns the string rep of the current trial
func (se *SearchEnv) String() string {
	tc := "absent"
	if se.CurPresent {
		tc = "present"
	}
	return fmt.Sprintf("%s_set_size_%d_%s", se.CurStim, se.CurSetSize, tc)
}

// SetOutput sets the present / absent output bit
func (se *SearchEnv) SetOutput(present bool) {
	se.Output.SetZeros()
	if present {
		se.Output.SetFloat1D(1, 1)
	} else {
		se.Output.SetFloat1D(0, 1)
	}
}

// DrawRndTrial samples a random stimulus type, set size, and target
// condition and renders it with a fresh seed
func (se *SearchEnv) DrawRndTrial() {
	st := se.Stims[se.Rand.Intn(len(se.Stims))]
	ss := se.SetSizes[se.Rand.Intn(len(se.SetSizes))]
	present := se.Rand.Intn(2) == 1
	se.RenderTrial(st, ss, present, se.Rand.Uint64())
}

// RenderTrial renders the display for given stimulus type, set size,
// and target condition, with item placement determined by seed.
// The same arguments always produce the same image.
func (se *SearchEnv) RenderTrial(st StimType, setSize int, present bool, seed uint64) {
	rng := rand.New(rand.NewSource(seed))
	se.Draw.Clear()
	cells := rng.Perm(se.Draw.NCells())[:setSize]
	csz := se.Draw.CellSize()
	isz := 0.5 * se.Draw.ItemSize * csz
	jit := 0.5 * (csz - 2*isz)
	di := 0
	for i, cell := range cells {
		it := st.Distractor(di)
		if present && i == 0 {
			it = st.Target()
		} else {
			di++
		}
		x, y := se.Draw.CellCenter(cell)
		x += float32(rng.Float64()-0.5) * jit
		y += float32(rng.Float64()-0.5) * jit
		se.Draw.DrawItem(it, x, y, isz)
	}
	se.CurStim = st
	se.CurSetSize = setSize
	se.CurPresent = present
	se.CurSeed = seed
	se.SetOutput(present)
}

// FilterImg runs V1 gabor filtering on the current image
func (se *SearchEnv) FilterImg() {
	se.Vis.Filter(se.Draw.Image)
}

// RGBToTensor converts an image to a [3, Y, X] float32 tensor with
// values in 0..1.  vfilter only has a greyscale converter; color is
// what distinguishes the search stimuli so the rgb planes are kept.
func RGBToTensor(img image.Image, tsr *etensor.Float32) {
	bd := img.Bounds()
	sz := bd.Size()
	tsr.SetShape([]int{3, sz.Y, sz.X}, nil, []string{"RGB", "Y", "X"})
	for y := 0; y < sz.Y; y++ {
		for x := 0; x < sz.X; x++ {
			r, g, b, _ := img.At(bd.Min.X+x, bd.Min.Y+y).RGBA()
			tsr.Set([]int{0, y, x}, float32(r>>8)/255)
			tsr.Set([]int{1, y, x}, float32(g>>8)/255)
			tsr.Set([]int{2, y, x}, float32(b>>8)/255)
		}
	}
}

// GreyImg updates OrigImg with the greyscale version of the current image
func (se *SearchEnv) GreyImg() *etensor.Float32 {
	vfilter.RGBToGrey(se.Draw.Image, &se.OrigImg, 0, false) // pad for filt, bot zero
	return &se.OrigImg
}
