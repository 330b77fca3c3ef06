// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nets

import (
	"fmt"
	"math"

	"github.com/emer/etable/etensor"
	"golang.org/x/exp/rand"
)

// Layer is one stage of a feedforward network.  Layers operate on a
// single sample (no batch dimension): image-like tensors are [C, Y, X],
// vectors are [N].  Backward accumulates parameter gradients, so a
// caller sums gradients over a batch by running Backward per sample and
// calling ZeroGrads between batches.
type Layer interface {
	// Name returns the layer name, unique within a network
	Name() string

	// Init validates the input shape, computes the output shape, and
	// allocates parameters (unless shared)
	Init(inShape []int) (outShape []int, err error)

	// InitWts initializes parameters using the given random source
	InitWts(rng *rand.Rand)

	// Forward computes output activations for given input, caching
	// whatever Backward needs
	Forward(in *etensor.Float32) *etensor.Float32

	// Backward takes the gradient of the loss with respect to this
	// layer's output, accumulates parameter gradients, and returns
	// the gradient with respect to the input
	Backward(gradOut *etensor.Float32) *etensor.Float32

	// Params returns the parameter tensors (nil-safe, may be empty)
	Params() []*etensor.Float32

	// Grads returns gradient tensors parallel to Params
	Grads() []*etensor.Float32

	// Train sets training mode (affects Dropout)
	Train(on bool)
}

// sharer is implemented by layers whose parameters can be shared with
// another instance of the same layer type (weight tying)
type sharer interface {
	ShareParams(src Layer) error
}

func newTsr(shp []int, nms []string) *etensor.Float32 {
	tsr := &etensor.Float32{}
	tsr.SetShape(shp, nil, nms)
	return tsr
}

//////////////////////////////////////////////
//  Conv2D

// Conv2D is a 2D convolution over [C, Y, X] input
type Conv2D struct {
	Nm      string
	InC     int `desc:"number of input channels"`
	OutC    int `desc:"number of output channels (filters)"`
	Ksz     int `desc:"filter kernel size"`
	Stride  int `desc:"filter stride"`
	Pad     int `desc:"zero padding on each side"`
	Wts     *etensor.Float32
	Bias    *etensor.Float32
	DWts    *etensor.Float32
	DBias   *etensor.Float32
	inShape []int
	outY    int
	outX    int
	padIn   *etensor.Float32
	out     *etensor.Float32
	gradIn  *etensor.Float32
	shared  bool
}

// NewConv2D returns a conv layer with given filter geometry
func NewConv2D(nm string, outC, ksz, stride, pad int) *Conv2D {
	return &Conv2D{Nm: nm, OutC: outC, Ksz: ksz, Stride: stride, Pad: pad}
}

func (ly *Conv2D) Name() string { return ly.Nm }

func (ly *Conv2D) Init(inShape []int) ([]int, error) {
	if len(inShape) != 3 {
		return nil, fmt.Errorf("nets: %s: Conv2D input must be [C, Y, X], got %v", ly.Nm, inShape)
	}
	ly.InC = inShape[0]
	iy := inShape[1] + 2*ly.Pad
	ix := inShape[2] + 2*ly.Pad
	ly.outY = (iy-ly.Ksz)/ly.Stride + 1
	ly.outX = (ix-ly.Ksz)/ly.Stride + 1
	if ly.outY < 1 || ly.outX < 1 {
		return nil, fmt.Errorf("nets: %s: filter size %d exceeds padded input %dx%d", ly.Nm, ly.Ksz, iy, ix)
	}
	ly.inShape = inShape
	if !ly.shared {
		ly.Wts = newTsr([]int{ly.OutC, ly.InC, ly.Ksz, ly.Ksz}, []string{"Out", "In", "Y", "X"})
		ly.Bias = newTsr([]int{ly.OutC}, []string{"Out"})
		ly.DWts = newTsr([]int{ly.OutC, ly.InC, ly.Ksz, ly.Ksz}, []string{"Out", "In", "Y", "X"})
		ly.DBias = newTsr([]int{ly.OutC}, []string{"Out"})
	}
	ly.padIn = newTsr([]int{ly.InC, iy, ix}, []string{"C", "Y", "X"})
	ly.out = newTsr([]int{ly.OutC, ly.outY, ly.outX}, []string{"C", "Y", "X"})
	ly.gradIn = newTsr(inShape, []string{"C", "Y", "X"})
	return []int{ly.OutC, ly.outY, ly.outX}, nil
}

func (ly *Conv2D) InitWts(rng *rand.Rand) {
	if ly.shared {
		return
	}
	heInit(ly.Wts, ly.InC*ly.Ksz*ly.Ksz, rng)
	ly.Bias.SetZeros()
}

// ShareParams ties this layer's weights to src, which must be a Conv2D
// with the same geometry.  Gradients are shared too, so both layers
// accumulate into the same tensors.
func (ly *Conv2D) ShareParams(src Layer) error {
	sc, ok := src.(*Conv2D)
	if !ok {
		return fmt.Errorf("nets: %s: cannot share params with %s: not a Conv2D", ly.Nm, src.Name())
	}
	if sc.OutC != ly.OutC || sc.Ksz != ly.Ksz {
		return fmt.Errorf("nets: %s: cannot share params with %s: geometry differs", ly.Nm, src.Name())
	}
	ly.Wts = sc.Wts
	ly.Bias = sc.Bias
	ly.DWts = sc.DWts
	ly.DBias = sc.DBias
	ly.shared = true
	return nil
}

func (ly *Conv2D) pad(in *etensor.Float32) {
	ly.padIn.SetZeros()
	iy := ly.inShape[1]
	ix := ly.inShape[2]
	py := iy + 2*ly.Pad
	px := ix + 2*ly.Pad
	for c := 0; c < ly.InC; c++ {
		for y := 0; y < iy; y++ {
			si := (c*iy + y) * ix
			di := (c*py+y+ly.Pad)*px + ly.Pad
			copy(ly.padIn.Values[di:di+ix], in.Values[si:si+ix])
		}
	}
}

func (ly *Conv2D) Forward(in *etensor.Float32) *etensor.Float32 {
	ly.pad(in)
	py := ly.inShape[1] + 2*ly.Pad
	px := ly.inShape[2] + 2*ly.Pad
	for oc := 0; oc < ly.OutC; oc++ {
		bias := ly.Bias.Values[oc]
		for oy := 0; oy < ly.outY; oy++ {
			for ox := 0; ox < ly.outX; ox++ {
				sum := bias
				y0 := oy * ly.Stride
				x0 := ox * ly.Stride
				for ic := 0; ic < ly.InC; ic++ {
					for ky := 0; ky < ly.Ksz; ky++ {
						ii := (ic*py+y0+ky)*px + x0
						wi := ((oc*ly.InC+ic)*ly.Ksz + ky) * ly.Ksz
						for kx := 0; kx < ly.Ksz; kx++ {
							sum += ly.padIn.Values[ii+kx] * ly.Wts.Values[wi+kx]
						}
					}
				}
				ly.out.Values[(oc*ly.outY+oy)*ly.outX+ox] = sum
			}
		}
	}
	return ly.out
}

func (ly *Conv2D) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	py := ly.inShape[1] + 2*ly.Pad
	px := ly.inShape[2] + 2*ly.Pad
	gpad := make([]float32, ly.InC*py*px)
	for oc := 0; oc < ly.OutC; oc++ {
		for oy := 0; oy < ly.outY; oy++ {
			for ox := 0; ox < ly.outX; ox++ {
				g := gradOut.Values[(oc*ly.outY+oy)*ly.outX+ox]
				if g == 0 {
					continue
				}
				ly.DBias.Values[oc] += g
				y0 := oy * ly.Stride
				x0 := ox * ly.Stride
				for ic := 0; ic < ly.InC; ic++ {
					for ky := 0; ky < ly.Ksz; ky++ {
						ii := (ic*py+y0+ky)*px + x0
						wi := ((oc*ly.InC+ic)*ly.Ksz + ky) * ly.Ksz
						for kx := 0; kx < ly.Ksz; kx++ {
							ly.DWts.Values[wi+kx] += g * ly.padIn.Values[ii+kx]
							gpad[ii+kx] += g * ly.Wts.Values[wi+kx]
						}
					}
				}
			}
		}
	}
	iy := ly.inShape[1]
	ix := ly.inShape[2]
	for c := 0; c < ly.InC; c++ {
		for y := 0; y < iy; y++ {
			si := (c*py+y+ly.Pad)*px + ly.Pad
			di := (c*iy + y) * ix
			copy(ly.gradIn.Values[di:di+ix], gpad[si:si+ix])
		}
	}
	return ly.gradIn
}

func (ly *Conv2D) Params() []*etensor.Float32 { return []*etensor.Float32{ly.Wts, ly.Bias} }
func (ly *Conv2D) Grads() []*etensor.Float32  { return []*etensor.Float32{ly.DWts, ly.DBias} }
func (ly *Conv2D) Train(on bool)              {}

//////////////////////////////////////////////
//  MaxPool2D

// MaxPool2D takes the max over non-overlapping (or strided) windows
type MaxPool2D struct {
	Nm      string
	Ksz     int
	Stride  int
	inShape []int
	outY    int
	outX    int
	out     *etensor.Float32
	gradIn  *etensor.Float32
	argmax  []int
}

func NewMaxPool2D(nm string, ksz, stride int) *MaxPool2D {
	return &MaxPool2D{Nm: nm, Ksz: ksz, Stride: stride}
}

func (ly *MaxPool2D) Name() string { return ly.Nm }

func (ly *MaxPool2D) Init(inShape []int) ([]int, error) {
	if len(inShape) != 3 {
		return nil, fmt.Errorf("nets: %s: MaxPool2D input must be [C, Y, X], got %v", ly.Nm, inShape)
	}
	ly.inShape = inShape
	ly.outY = (inShape[1]-ly.Ksz)/ly.Stride + 1
	ly.outX = (inShape[2]-ly.Ksz)/ly.Stride + 1
	if ly.outY < 1 || ly.outX < 1 {
		return nil, fmt.Errorf("nets: %s: pool size %d exceeds input %v", ly.Nm, ly.Ksz, inShape)
	}
	oshp := []int{inShape[0], ly.outY, ly.outX}
	ly.out = newTsr(oshp, []string{"C", "Y", "X"})
	ly.gradIn = newTsr(inShape, []string{"C", "Y", "X"})
	ly.argmax = make([]int, inShape[0]*ly.outY*ly.outX)
	return oshp, nil
}

func (ly *MaxPool2D) InitWts(rng *rand.Rand) {}

func (ly *MaxPool2D) Forward(in *etensor.Float32) *etensor.Float32 {
	nc := ly.inShape[0]
	iy := ly.inShape[1]
	ix := ly.inShape[2]
	for c := 0; c < nc; c++ {
		for oy := 0; oy < ly.outY; oy++ {
			for ox := 0; ox < ly.outX; ox++ {
				mi := (c*iy+oy*ly.Stride)*ix + ox*ly.Stride
				mx := in.Values[mi]
				for ky := 0; ky < ly.Ksz; ky++ {
					ri := (c*iy + oy*ly.Stride + ky) * ix
					for kx := 0; kx < ly.Ksz; kx++ {
						ii := ri + ox*ly.Stride + kx
						if in.Values[ii] > mx {
							mx = in.Values[ii]
							mi = ii
						}
					}
				}
				oi := (c*ly.outY+oy)*ly.outX + ox
				ly.out.Values[oi] = mx
				ly.argmax[oi] = mi
			}
		}
	}
	return ly.out
}

func (ly *MaxPool2D) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	ly.gradIn.SetZeros()
	for oi, mi := range ly.argmax {
		ly.gradIn.Values[mi] += gradOut.Values[oi]
	}
	return ly.gradIn
}

func (ly *MaxPool2D) Params() []*etensor.Float32 { return nil }
func (ly *MaxPool2D) Grads() []*etensor.Float32  { return nil }
func (ly *MaxPool2D) Train(on bool)              {}

//////////////////////////////////////////////
//  ReLU

// ReLU is rectified linear activation
type ReLU struct {
	Nm     string
	out    *etensor.Float32
	gradIn *etensor.Float32
}

func NewReLU(nm string) *ReLU { return &ReLU{Nm: nm} }

func (ly *ReLU) Name() string { return ly.Nm }

func (ly *ReLU) Init(inShape []int) ([]int, error) {
	ly.out = newTsr(inShape, nil)
	ly.gradIn = newTsr(inShape, nil)
	return inShape, nil
}

func (ly *ReLU) InitWts(rng *rand.Rand) {}

func (ly *ReLU) Forward(in *etensor.Float32) *etensor.Float32 {
	for i, v := range in.Values {
		if v > 0 {
			ly.out.Values[i] = v
		} else {
			ly.out.Values[i] = 0
		}
	}
	return ly.out
}

func (ly *ReLU) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	for i, v := range ly.out.Values {
		if v > 0 {
			ly.gradIn.Values[i] = gradOut.Values[i]
		} else {
			ly.gradIn.Values[i] = 0
		}
	}
	return ly.gradIn
}

func (ly *ReLU) Params() []*etensor.Float32 { return nil }
func (ly *ReLU) Grads() []*etensor.Float32  { return nil }
func (ly *ReLU) Train(on bool)              {}

//////////////////////////////////////////////
//  Dropout

// Dropout zeroes units with probability P during training, scaling the
// survivors by 1/(1-P) so evaluation is a pass-through
type Dropout struct {
	Nm     string
	P      float64
	Rng    *rand.Rand
	train  bool
	mask   []float32
	out    *etensor.Float32
	gradIn *etensor.Float32
}

func NewDropout(nm string, p float64) *Dropout {
	return &Dropout{Nm: nm, P: p, Rng: rand.New(rand.NewSource(1))}
}

func (ly *Dropout) Name() string { return ly.Nm }

func (ly *Dropout) Init(inShape []int) ([]int, error) {
	if ly.P < 0 || ly.P >= 1 {
		return nil, fmt.Errorf("nets: %s: dropout P must be in [0, 1), got %g", ly.Nm, ly.P)
	}
	n := 1
	for _, d := range inShape {
		n *= d
	}
	ly.mask = make([]float32, n)
	ly.out = newTsr(inShape, nil)
	ly.gradIn = newTsr(inShape, nil)
	return inShape, nil
}

func (ly *Dropout) InitWts(rng *rand.Rand) {}

func (ly *Dropout) Forward(in *etensor.Float32) *etensor.Float32 {
	if !ly.train {
		copy(ly.out.Values, in.Values)
		return ly.out
	}
	scale := float32(1 / (1 - ly.P))
	for i := range ly.mask {
		if ly.Rng.Float64() < ly.P {
			ly.mask[i] = 0
		} else {
			ly.mask[i] = scale
		}
		ly.out.Values[i] = in.Values[i] * ly.mask[i]
	}
	return ly.out
}

func (ly *Dropout) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	if !ly.train {
		copy(ly.gradIn.Values, gradOut.Values)
		return ly.gradIn
	}
	for i := range ly.mask {
		ly.gradIn.Values[i] = gradOut.Values[i] * ly.mask[i]
	}
	return ly.gradIn
}

func (ly *Dropout) Params() []*etensor.Float32 { return nil }
func (ly *Dropout) Grads() []*etensor.Float32  { return nil }
func (ly *Dropout) Train(on bool)              { ly.train = on }

//////////////////////////////////////////////
//  Flatten

// Flatten reshapes any input to a 1D vector
type Flatten struct {
	Nm      string
	inShape []int
	out     *etensor.Float32
	gradIn  *etensor.Float32
}

func NewFlatten(nm string) *Flatten { return &Flatten{Nm: nm} }

func (ly *Flatten) Name() string { return ly.Nm }

func (ly *Flatten) Init(inShape []int) ([]int, error) {
	n := 1
	for _, d := range inShape {
		n *= d
	}
	ly.inShape = inShape
	ly.out = newTsr([]int{n}, []string{"N"})
	ly.gradIn = newTsr(inShape, nil)
	return []int{n}, nil
}

func (ly *Flatten) InitWts(rng *rand.Rand) {}

func (ly *Flatten) Forward(in *etensor.Float32) *etensor.Float32 {
	copy(ly.out.Values, in.Values)
	return ly.out
}

func (ly *Flatten) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	copy(ly.gradIn.Values, gradOut.Values)
	return ly.gradIn
}

func (ly *Flatten) Params() []*etensor.Float32 { return nil }
func (ly *Flatten) Grads() []*etensor.Float32  { return nil }
func (ly *Flatten) Train(on bool)              {}

//////////////////////////////////////////////
//  Linear

// Linear is a fully-connected layer on a 1D input
type Linear struct {
	Nm     string
	Out    int  `desc:"number of output units"`
	Glorot bool `desc:"use glorot instead of he initialization (for output layers)"`
	In     int
	Wts    *etensor.Float32
	Bias   *etensor.Float32
	DWts   *etensor.Float32
	DBias  *etensor.Float32
	in     *etensor.Float32
	out    *etensor.Float32
	gradIn *etensor.Float32
	shared bool
}

func NewLinear(nm string, out int) *Linear { return &Linear{Nm: nm, Out: out} }

func (ly *Linear) Name() string { return ly.Nm }

func (ly *Linear) Init(inShape []int) ([]int, error) {
	if len(inShape) != 1 {
		return nil, fmt.Errorf("nets: %s: Linear input must be 1D, got %v -- add a Flatten", ly.Nm, inShape)
	}
	ly.In = inShape[0]
	if !ly.shared {
		ly.Wts = newTsr([]int{ly.Out, ly.In}, []string{"Out", "In"})
		ly.Bias = newTsr([]int{ly.Out}, []string{"Out"})
		ly.DWts = newTsr([]int{ly.Out, ly.In}, []string{"Out", "In"})
		ly.DBias = newTsr([]int{ly.Out}, []string{"Out"})
	}
	ly.out = newTsr([]int{ly.Out}, []string{"N"})
	ly.gradIn = newTsr(inShape, nil)
	return []int{ly.Out}, nil
}

func (ly *Linear) InitWts(rng *rand.Rand) {
	if ly.shared {
		return
	}
	if ly.Glorot {
		glorotInit(ly.Wts, ly.In, ly.Out, rng)
	} else {
		heInit(ly.Wts, ly.In, rng)
	}
	ly.Bias.SetZeros()
}

func (ly *Linear) ShareParams(src Layer) error {
	sl, ok := src.(*Linear)
	if !ok {
		return fmt.Errorf("nets: %s: cannot share params with %s: not a Linear", ly.Nm, src.Name())
	}
	if sl.Out != ly.Out {
		return fmt.Errorf("nets: %s: cannot share params with %s: sizes differ", ly.Nm, src.Name())
	}
	ly.Wts = sl.Wts
	ly.Bias = sl.Bias
	ly.DWts = sl.DWts
	ly.DBias = sl.DBias
	ly.shared = true
	return nil
}

func (ly *Linear) Forward(in *etensor.Float32) *etensor.Float32 {
	ly.in = in
	for o := 0; o < ly.Out; o++ {
		sum := ly.Bias.Values[o]
		wi := o * ly.In
		for i := 0; i < ly.In; i++ {
			sum += ly.Wts.Values[wi+i] * in.Values[i]
		}
		ly.out.Values[o] = sum
	}
	return ly.out
}

func (ly *Linear) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	for i := range ly.gradIn.Values {
		ly.gradIn.Values[i] = 0
	}
	for o := 0; o < ly.Out; o++ {
		g := gradOut.Values[o]
		if g == 0 {
			continue
		}
		ly.DBias.Values[o] += g
		wi := o * ly.In
		for i := 0; i < ly.In; i++ {
			ly.DWts.Values[wi+i] += g * ly.in.Values[i]
			ly.gradIn.Values[i] += g * ly.Wts.Values[wi+i]
		}
	}
	return ly.gradIn
}

func (ly *Linear) Params() []*etensor.Float32 { return []*etensor.Float32{ly.Wts, ly.Bias} }
func (ly *Linear) Grads() []*etensor.Float32  { return []*etensor.Float32{ly.DWts, ly.DBias} }
func (ly *Linear) Train(on bool)              {}

//////////////////////////////////////////////
//  Recur

// Recur applies an inner stack of layers T times with shared weights,
// feeding each pass's output to the next.  The inner stack must be
// shape-preserving.  Used for the recurrent CORnet_S blocks, where the
// same conv block runs repeatedly over time steps.
type Recur struct {
	Nm     string
	T      int
	mk     func() []Layer
	Passes [][]Layer `desc:"per-time-step layer instances; pass 0 owns the parameters, the rest share them"`
}

// NewRecur returns a recurrent block running mk()'s layers T times
func NewRecur(nm string, t int, mk func() []Layer) *Recur {
	return &Recur{Nm: nm, T: t, mk: mk}
}

func (ly *Recur) Name() string { return ly.Nm }

func (ly *Recur) Init(inShape []int) ([]int, error) {
	if ly.T < 1 {
		return nil, fmt.Errorf("nets: %s: Recur T must be >= 1, got %d", ly.Nm, ly.T)
	}
	ly.Passes = make([][]Layer, ly.T)
	for p := 0; p < ly.T; p++ {
		lys := ly.mk()
		shp := inShape
		for _, l := range lys {
			var err error
			shp, err = l.Init(shp)
			if err != nil {
				return nil, err
			}
		}
		if !etensor.EqualInts(shp, inShape) {
			return nil, fmt.Errorf("nets: %s: Recur inner stack must preserve shape, got %v -> %v", ly.Nm, inShape, shp)
		}
		if p > 0 {
			for i, l := range lys {
				sh, ok := l.(sharer)
				if !ok {
					continue
				}
				if err := sh.ShareParams(ly.Passes[0][i]); err != nil {
					return nil, err
				}
				// re-init so shared tensors are used for caches too
				if _, err := l.Init(inShape); err != nil {
					return nil, err
				}
			}
		}
		ly.Passes[p] = lys
	}
	return inShape, nil
}

func (ly *Recur) InitWts(rng *rand.Rand) {
	for _, l := range ly.Passes[0] {
		l.InitWts(rng)
	}
}

func (ly *Recur) Forward(in *etensor.Float32) *etensor.Float32 {
	x := in
	for _, pass := range ly.Passes {
		for _, l := range pass {
			x = l.Forward(x)
		}
	}
	return x
}

func (ly *Recur) Backward(gradOut *etensor.Float32) *etensor.Float32 {
	g := gradOut
	for p := ly.T - 1; p >= 0; p-- {
		pass := ly.Passes[p]
		for i := len(pass) - 1; i >= 0; i-- {
			g = pass[i].Backward(g)
		}
	}
	return g
}

func (ly *Recur) Params() []*etensor.Float32 {
	var ps []*etensor.Float32
	for _, l := range ly.Passes[0] {
		ps = append(ps, l.Params()...)
	}
	return ps
}

func (ly *Recur) Grads() []*etensor.Float32 {
	var gs []*etensor.Float32
	for _, l := range ly.Passes[0] {
		gs = append(gs, l.Grads()...)
	}
	return gs
}

func (ly *Recur) Train(on bool) {
	for _, pass := range ly.Passes {
		for _, l := range pass {
			l.Train(on)
		}
	}
}

//////////////////////////////////////////////
//  weight init

// heInit initializes weights from N(0, sqrt(2/fanIn)), standard for
// layers followed by relu
func heInit(wts *etensor.Float32, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2 / float64(fanIn))
	for i := range wts.Values {
		wts.Values[i] = float32(rng.NormFloat64() * std)
	}
}

// glorotInit initializes weights from N(0, sqrt(2/(fanIn+fanOut)))
func glorotInit(wts *etensor.Float32, fanIn, fanOut int, rng *rand.Rand) {
	std := math.Sqrt(2 / float64(fanIn+fanOut))
	for i := range wts.Values {
		wts.Values[i] = float32(rng.NormFloat64() * std)
	}
}
