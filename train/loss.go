// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"math"

	"github.com/goki/ki/kit"
	"gonum.org/v1/gonum/stat/distuv"
)

// LossType is which loss function to train with
type LossType int32

var KiT_LossType = kit.Enums.AddEnum(LossTypeN, kit.NotBitFlag, nil)

const (
	// CE is softmax cross-entropy, computed per sample
	CE LossType = iota

	// InvDPrime is 1 / d', where d' = z(hit rate) - z(false alarm
	// rate) over a batch -- minimizing it maximizes discriminability
	InvDPrime

	// Triplet is batch-all margin triplet loss over output vectors
	Triplet

	LossTypeN
)

var lossNames = [LossTypeN]string{"ce", "invDprime", "triplet"}

func (lt LossType) String() string {
	if lt < 0 || lt >= LossTypeN {
		return fmt.Sprintf("LossType(%d)", lt)
	}
	return lossNames[lt]
}

// LossFromString returns the loss type for given name, erroring for
// unknown names
func LossFromString(nm string) (LossType, error) {
	for i, ln := range lossNames {
		if ln == nm {
			return LossType(i), nil
		}
	}
	return LossTypeN, fmt.Errorf("train: invalid loss function: %s, must be one of: %v", nm, lossNames)
}

// Loss computes a training loss and its gradient with respect to the
// network outputs.  Per-sample losses implement Grad; batch losses
// implement BatchGrad over all outputs at once (d' and triplet terms
// only exist at the batch level) and report Batch() == true.
type Loss interface {
	// Name returns the loss name
	Name() string

	// Batch returns true if the loss is computed over a whole batch
	Batch() bool

	// Grad returns loss and d loss / d out for one sample
	// (per-sample losses only)
	Grad(out []float32, target int) (float64, []float32)

	// BatchGrad returns total loss and per-sample output gradients
	// for a batch (batch losses only)
	BatchGrad(outs [][]float32, targets []int) (float64, [][]float32)
}

// NewLoss returns the loss function for given type
func NewLoss(lt LossType) (Loss, error) {
	switch lt {
	case CE:
		return &CELoss{}, nil
	case InvDPrime:
		return &InvDPrimeLoss{}, nil
	case Triplet:
		return &TripletLoss{Margin: 1}, nil
	}
	return nil, fmt.Errorf("train: invalid loss type: %d", lt)
}

// softmax computes softmax probabilities of given logits
func softmax(out []float32) []float64 {
	mx := out[0]
	for _, v := range out {
		if v > mx {
			mx = v
		}
	}
	ps := make([]float64, len(out))
	sum := 0.0
	for i, v := range out {
		ps[i] = math.Exp(float64(v - mx))
		sum += ps[i]
	}
	for i := range ps {
		ps[i] /= sum
	}
	return ps
}

//////////////////////////////////////////////
//  CELoss

// CELoss is softmax cross-entropy
type CELoss struct{}

func (ls *CELoss) Name() string { return "ce" }
func (ls *CELoss) Batch() bool  { return false }

func (ls *CELoss) Grad(out []float32, target int) (float64, []float32) {
	ps := softmax(out)
	loss := -math.Log(math.Max(ps[target], 1e-12))
	grad := make([]float32, len(out))
	for i, p := range ps {
		grad[i] = float32(p)
	}
	grad[target] -= 1
	return loss, grad
}

func (ls *CELoss) BatchGrad(outs [][]float32, targets []int) (float64, [][]float32) {
	loss := 0.0
	grads := make([][]float32, len(outs))
	for i, out := range outs {
		l, g := ls.Grad(out, targets[i])
		loss += l
		grads[i] = g
	}
	return loss, grads
}

//////////////////////////////////////////////
//  InvDPrimeLoss

// InvDPrimeLoss is 1/d' over a batch of 2-class (absent, present)
// outputs.  Hit and false-alarm rates are the mean softmax probability
// of "present" over target-present and target-absent samples, clamped
// away from 0 and 1 before the probit transform; the clamp bounds
// scale with batch size as in the standard log-linear correction.
type InvDPrimeLoss struct{}

func (ls *InvDPrimeLoss) Name() string { return "invDprime" }
func (ls *InvDPrimeLoss) Batch() bool  { return true }

func (ls *InvDPrimeLoss) Grad(out []float32, target int) (float64, []float32) {
	panic("train: invDprime is a batch loss, use BatchGrad")
}

func (ls *InvDPrimeLoss) BatchGrad(outs [][]float32, targets []int) (float64, [][]float32) {
	n := len(outs)
	grads := make([][]float32, n)
	for i := range grads {
		grads[i] = make([]float32, len(outs[i]))
	}
	ps := make([]float64, n)
	nPres, nAbs := 0, 0
	hit, fa := 0.0, 0.0
	for i, out := range outs {
		ps[i] = softmax(out)[1]
		if targets[i] == 1 {
			nPres++
			hit += ps[i]
		} else {
			nAbs++
			fa += ps[i]
		}
	}
	// both conditions are needed for d'; a one-sided batch gives no
	// discriminability signal
	if nPres == 0 || nAbs == 0 {
		return 0, grads
	}
	hit /= float64(nPres)
	fa /= float64(nAbs)

	lo := 1 / float64(2*n)
	hi := 1 - lo
	hitClamped := hit < lo || hit > hi
	faClamped := fa < lo || fa > hi
	h := math.Min(math.Max(hit, lo), hi)
	f := math.Min(math.Max(fa, lo), hi)

	norm := distuv.UnitNormal
	zh := norm.Quantile(h)
	zf := norm.Quantile(f)
	dp := zh - zf
	if math.Abs(dp) < 1e-3 {
		if dp < 0 {
			dp = -1e-3
		} else {
			dp = 1e-3
		}
	}
	loss := 1 / dp

	// d loss/dH = -(1/d'^2) / pdf(z(H)), chain through the probit;
	// clamped rates get no gradient
	dldh, dldf := 0.0, 0.0
	if !hitClamped {
		dldh = -1 / (dp * dp * norm.Prob(zh))
	}
	if !faClamped {
		dldf = 1 / (dp * dp * norm.Prob(zf))
	}
	for i := range outs {
		var dldp float64
		if targets[i] == 1 {
			dldp = dldh / float64(nPres)
		} else {
			dldp = dldf / float64(nAbs)
		}
		// 2-class softmax: dp1/dout1 = p(1-p), dp1/dout0 = -p(1-p)
		dsm := ps[i] * (1 - ps[i])
		grads[i][1] = float32(dldp * dsm)
		grads[i][0] = float32(-dldp * dsm)
	}
	return loss, grads
}

//////////////////////////////////////////////
//  TripletLoss

// TripletLoss is batch-all margin triplet loss treating network
// outputs as embeddings: for every (anchor, positive, negative)
// triplet with matching / mismatching targets, penalize
// margin + d(a,p) - d(a,n) when positive, averaged over the active
// triplets
type TripletLoss struct {
	Margin float64 `def:"1" desc:"margin enforced between positive and negative distances"`
}

func (ls *TripletLoss) Name() string { return "triplet" }
func (ls *TripletLoss) Batch() bool  { return true }

func (ls *TripletLoss) Grad(out []float32, target int) (float64, []float32) {
	panic("train: triplet is a batch loss, use BatchGrad")
}

func sqDist(a, b []float32) float64 {
	d := 0.0
	for i := range a {
		df := float64(a[i] - b[i])
		d += df * df
	}
	return d
}

func (ls *TripletLoss) BatchGrad(outs [][]float32, targets []int) (float64, [][]float32) {
	n := len(outs)
	grads := make([][]float32, n)
	for i := range grads {
		grads[i] = make([]float32, len(outs[i]))
	}
	loss := 0.0
	active := 0
	type trip struct{ a, p, ng int }
	var trips []trip
	for a := 0; a < n; a++ {
		for p := 0; p < n; p++ {
			if p == a || targets[p] != targets[a] {
				continue
			}
			for ng := 0; ng < n; ng++ {
				if targets[ng] == targets[a] {
					continue
				}
				l := ls.Margin + sqDist(outs[a], outs[p]) - sqDist(outs[a], outs[ng])
				if l > 0 {
					loss += l
					active++
					trips = append(trips, trip{a, p, ng})
				}
			}
		}
	}
	if active == 0 {
		return 0, grads
	}
	loss /= float64(active)
	scale := float32(1 / float64(active))
	for _, tr := range trips {
		oa, op, on := outs[tr.a], outs[tr.p], outs[tr.ng]
		for i := range oa {
			grads[tr.a][i] += 2 * scale * (on[i] - op[i])
			grads[tr.p][i] += 2 * scale * (op[i] - oa[i])
			grads[tr.ng][i] += 2 * scale * (oa[i] - on[i])
		}
	}
	return loss, grads
}
