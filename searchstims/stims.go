// Copyright (c) 2020, The Searchnets Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package searchstims

import (
	"fmt"
	"image"

	"github.com/goki/gi/gi"
	"github.com/goki/gi/girl"
	"github.com/goki/ki/kit"
)

// StimType is the type of visual search stimulus
type StimType int32

var KiT_StimType = kit.Enums.AddEnum(StimTypeN, kit.NotBitFlag, nil)

const (
	// TwoVsFive is feature search for an LED-style digit 2 target
	// among digit 5 distractors ("2_v_5")
	TwoVsFive StimType = iota

	// RVvGV is efficient color "pop-out" search for a red vertical
	// bar target among green vertical distractors
	RVvGV

	// RVvRHGV is conjunction search for a red vertical bar target among
	// red horizontal and green vertical distractors -- requires binding
	// color and orientation
	RVvRHGV

	StimTypeN
)

// stimNames are the canonical names used in file names and csv columns,
// matching the searchstims image directories
var stimNames = [StimTypeN]string{"2_v_5", "RVvGV", "RVvRHGV"}

func (st StimType) String() string {
	if st < 0 || st >= StimTypeN {
		return fmt.Sprintf("StimType(%d)", st)
	}
	return stimNames[st]
}

// StimTypeFromString returns the stimulus type for given name,
// erroring for unknown names.
func StimTypeFromString(nm string) (StimType, error) {
	for i, sn := range stimNames {
		if sn == nm {
			return StimType(i), nil
		}
	}
	return StimTypeN, fmt.Errorf("searchstims: invalid stimulus type: %s, must be one of: %v", nm, stimNames)
}

// Item is one drawable element of a search display
type Item int32

var KiT_Item = kit.Enums.AddEnum(ItemN, kit.NotBitFlag, nil)

const (
	Digit2 Item = iota
	Digit5
	RedVert
	GreenVert
	RedHoriz
	ItemN
)

func (it Item) String() string {
	switch it {
	case Digit2:
		return "Digit2"
	case Digit5:
		return "Digit5"
	case RedVert:
		return "RedVert"
	case GreenVert:
		return "GreenVert"
	case RedHoriz:
		return "RedHoriz"
	}
	return fmt.Sprintf("Item(%d)", it)
}

// Target returns the target item for this stimulus type
func (st StimType) Target() Item {
	switch st {
	case TwoVsFive:
		return Digit2
	default:
		return RedVert
	}
}

// Distractor returns the i-th distractor item for this stimulus type.
// For conjunction search the two distractor types alternate.
func (st StimType) Distractor(i int) Item {
	switch st {
	case TwoVsFive:
		return Digit5
	case RVvGV:
		return GreenVert
	default: // RVvRHGV
		if i%2 == 0 {
			return RedHoriz
		}
		return GreenVert
	}
}

// Seg is one segment of an LED-style digit, seven-segment layout
type Seg int32

const (
	SegTop Seg = iota
	SegTopLeft
	SegTopRight
	SegMid
	SegBotLeft
	SegBotRight
	SegBot
	SegN
)

// DigitSegs has the segments for the two digits used in the 2 v 5 stimulus
var DigitSegs = map[int][]Seg{
	2: {SegTop, SegTopRight, SegMid, SegBotLeft, SegBot},
	5: {SegTop, SegTopLeft, SegMid, SegBotRight, SegBot},
}

// StimDraw renders visual search displays: items placed in cells of a
// square grid on a dark background.
type StimDraw struct {
	Width    float32      `def:"2" desc:"line width as percent of display size"`
	ItemSize float32      `def:"0.7" desc:"size of an item as proportion of its grid cell"`
	GridSize int          `def:"5" desc:"number of grid cells along each axis"`
	Border   float32      `def:"0.05" desc:"border around the grid as proportion of image size"`
	BgColor  gi.ColorName `desc:"color name for background"`
	ImgSize  image.Point  `desc:"size of image to render"`
	Image    *image.RGBA  `view:"-" desc:"rendered image"`
	Paint    girl.Paint   `view:"+" desc:"painter object"`
	Render   girl.State   `view:"-" desc:"rendering state"`
}

func (sd *StimDraw) Defaults() {
	sd.ImgSize = image.Point{227, 227}
	sd.Width = 2
	sd.ItemSize = 0.7
	sd.GridSize = 5
	sd.Border = 0.05
	sd.BgColor = "black"
}

// NCells returns the total number of grid cells items can occupy
func (sd *StimDraw) NCells() int {
	return sd.GridSize * sd.GridSize
}

// Init ensures that the image is created and of the right size, and renderer is initialized
func (sd *StimDraw) Init() {
	if sd.ImgSize.X == 0 || sd.ImgSize.Y == 0 {
		sd.Defaults()
	}
	if sd.Image != nil {
		cs := sd.Image.Bounds().Size()
		if cs != sd.ImgSize {
			sd.Image = nil
		}
	}
	if sd.Image == nil {
		sd.Image = image.NewRGBA(image.Rectangle{Max: sd.ImgSize})
	}
	sd.Render.Init(sd.ImgSize.X, sd.ImgSize.Y, sd.Image)
	sd.Paint.Defaults()
	sd.Paint.StrokeStyle.Width.SetPct(sd.Width)
	sd.Paint.StrokeStyle.Color.SetName("white")
	sd.Paint.FillStyle.Color.SetName(string(sd.BgColor))
	sd.Paint.SetUnitContextExt(sd.ImgSize)
}

// Clear clears the image with BgColor
func (sd *StimDraw) Clear() {
	if sd.Image == nil {
		sd.Init()
	}
	sd.Paint.Clear(&sd.Render)
}

// CellCenter returns the center of given grid cell in pixels,
// with cells indexed row-major from the top left.
func (sd *StimDraw) CellCenter(cell int) (x, y float32) {
	bord := sd.Border * float32(sd.ImgSize.X)
	csz := (float32(sd.ImgSize.X) - 2*bord) / float32(sd.GridSize)
	cx := cell % sd.GridSize
	cy := cell / sd.GridSize
	x = bord + (float32(cx)+0.5)*csz
	y = bord + (float32(cy)+0.5)*csz
	return
}

// CellSize returns the size of one grid cell in pixels
func (sd *StimDraw) CellSize() float32 {
	bord := sd.Border * float32(sd.ImgSize.X)
	return (float32(sd.ImgSize.X) - 2*bord) / float32(sd.GridSize)
}

// DrawItem draws given item centered at x, y with given half-size in pixels
func (sd *StimDraw) DrawItem(it Item, x, y, sz float32) {
	switch it {
	case Digit2:
		sd.DrawDigit(2, x, y, sz)
	case Digit5:
		sd.DrawDigit(5, x, y, sz)
	case RedVert:
		sd.DrawBar(x, y, sz, true, "red")
	case GreenVert:
		sd.DrawBar(x, y, sz, true, "green")
	case RedHoriz:
		sd.DrawBar(x, y, sz, false, "red")
	}
}

// DrawBar draws a vertical or horizontal bar of given color,
// centered at x, y with half-length sz
func (sd *StimDraw) DrawBar(x, y, sz float32, vert bool, clr string) {
	rs := &sd.Render
	sd.Paint.StrokeStyle.Color.SetName(clr)
	sd.Paint.StrokeStyle.Width.SetPct(2 * sd.Width)
	if vert {
		sd.Paint.DrawLine(rs, x, y-sz, x, y+sz)
	} else {
		sd.Paint.DrawLine(rs, x-sz, y, x+sz, y)
	}
	sd.Paint.Stroke(rs)
}

// DrawDigit draws an LED-style digit (2 or 5) in white,
// centered at x, y with half-size sz
func (sd *StimDraw) DrawDigit(digit int, x, y, sz float32) {
	sd.Paint.StrokeStyle.Color.SetName("white")
	sd.Paint.StrokeStyle.Width.SetPct(sd.Width)
	for _, seg := range DigitSegs[digit] {
		sd.DrawSeg(seg, x, y, sz)
	}
}

// DrawSeg draws one digit segment, top-zero coordinates
func (sd *StimDraw) DrawSeg(seg Seg, x, y, sz float32) {
	rs := &sd.Render
	szX := sz * 0.6
	switch seg {
	case SegTop:
		sd.Paint.DrawLine(rs, x-szX, y-sz, x+szX, y-sz)
	case SegTopLeft:
		sd.Paint.DrawLine(rs, x-szX, y-sz, x-szX, y)
	case SegTopRight:
		sd.Paint.DrawLine(rs, x+szX, y-sz, x+szX, y)
	case SegMid:
		sd.Paint.DrawLine(rs, x-szX, y, x+szX, y)
	case SegBotLeft:
		sd.Paint.DrawLine(rs, x-szX, y, x-szX, y+sz)
	case SegBotRight:
		sd.Paint.DrawLine(rs, x+szX, y, x+szX, y+sz)
	case SegBot:
		sd.Paint.DrawLine(rs, x-szX, y+sz, x+szX, y+sz)
	}
	sd.Paint.Stroke(rs)
}
