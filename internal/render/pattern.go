// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package render produces raw video frames for the video FIFO.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// BytesPerPixel is the size of one rgb32 pixel.
const BytesPerPixel = 4

// Frame is a raw rgb32 frame. On little-endian hosts ffmpeg's rgb32 is laid
// out B, G, R, A in memory.
type Frame struct {
	Width, Height int
	Pix           []byte
}

// NewFrame allocates a black, opaque frame.
func NewFrame(width, height int) *Frame {
	f := &Frame{Width: width, Height: height, Pix: make([]byte, width*height*BytesPerPixel)}
	f.Fill(image.Rect(0, 0, width, height), color.RGBA{A: 0xff})
	return f
}

// Fill paints r (clipped to the frame) with c.
func (f *Frame) Fill(r image.Rectangle, c color.RGBA) {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if r.Empty() {
		return
	}
	px := [BytesPerPixel]byte{c.B, c.G, c.R, c.A}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[(y*f.Width+r.Min.X)*BytesPerPixel : (y*f.Width+r.Max.X)*BytesPerPixel]
		for x := 0; x < len(row); x += BytesPerPixel {
			copy(row[x:x+BytesPerPixel], px[:])
		}
	}
}

// At returns the colour of one pixel.
func (f *Frame) At(x, y int) color.RGBA {
	i := (y*f.Width + x) * BytesPerPixel
	return color.RGBA{B: f.Pix[i], G: f.Pix[i+1], R: f.Pix[i+2], A: f.Pix[i+3]}
}

var bars = []color.RGBA{
	{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0x00, A: 0xff},
	{R: 0x00, G: 0x00, B: 0xc0, A: 0xff},
}

// TestPattern renders colour bars with a white marker that advances one
// step per frame, so a viewer can tell a live stream from a frozen one.
type TestPattern struct {
	width, height int

	mu    sync.Mutex
	frame uint64
}

// NewTestPattern returns a renderer for width x height frames.
func NewTestPattern(width, height int) (*TestPattern, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	return &TestPattern{width: width, height: height}, nil
}

// FrameSize is the length in bytes of every rendered frame.
func (p *TestPattern) FrameSize() int {
	return p.width * p.height * BytesPerPixel
}

// Render draws the next frame. A fresh buffer is returned every call since
// the sink keeps a reference to it until the next frame arrives.
func (p *TestPattern) Render(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := p.frame
	p.frame++
	p.mu.Unlock()

	f := NewFrame(p.width, p.height)
	barHeight := p.height * 3 / 4
	for i, c := range bars {
		x0 := i * p.width / len(bars)
		x1 := (i + 1) * p.width / len(bars)
		f.Fill(image.Rect(x0, 0, x1, barHeight), c)
	}

	marker := max(p.width/32, 1)
	steps := uint64(max(p.width-marker, 1))
	x := int(n % steps)
	f.Fill(image.Rect(x, barHeight, x+marker, p.height), color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	return f.Pix, nil
}
