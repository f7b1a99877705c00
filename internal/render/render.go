// Package render paints a Profile onto a badge image and encodes it as PNG.
// Rendering is a pure function of the Profile and the optional background;
// it knows nothing about caching.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/leonardcser/retro-badge/internal/logger"
	"github.com/leonardcser/retro-badge/internal/profile"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultWidth  = 768
	DefaultHeight = 192
)

var (
	white      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	green      = color.RGBA{R: 128, G: 255, B: 128, A: 255}
	canvasFill = color.RGBA{R: 30, G: 30, B: 30, A: 255}
)

// Renderer produces image bytes for a profile.
type Renderer interface {
	Render(p profile.Profile) ([]byte, error)
}

type line struct {
	x, y  int
	scale int
	color color.Color
	text  string
}

// Badge draws the text layout with the 7x13 bitmap face. Headings are the
// same face scaled up 2x.
type Badge struct {
	background *image.RGBA
	face       font.Face
}

// New returns a Badge renderer. An unreadable background is logged and the
// plain canvas is used instead.
func New(backgroundPath string) *Badge {
	b := &Badge{face: basicfont.Face7x13}
	if backgroundPath == "" {
		return b
	}
	bg, err := loadBackground(backgroundPath)
	if err != nil {
		logger.Warnf("badge background %s unavailable, using plain canvas: %v", backgroundPath, err)
		return b
	}
	b.background = bg
	return b
}

func loadBackground(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst, nil
}

func (b *Badge) canvas() *image.RGBA {
	if b.background != nil {
		img := image.NewRGBA(b.background.Rect)
		copy(img.Pix, b.background.Pix)
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, DefaultWidth, DefaultHeight))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(canvasFill), image.Point{}, xdraw.Src)
	return img
}

func layout(p profile.Profile) []line {
	lines := []line{
		{10, 5, 2, white, fmt.Sprintf("%s's RetroAchievements", p.Username)},
		{10, 40, 1, white, fmt.Sprintf("Hardcore Points: %d", p.Stats.HardcorePoints)},
		{10, 60, 1, white, fmt.Sprintf("Softcore Points: %d", p.Stats.SoftcorePoints)},
		{10, 80, 1, white, fmt.Sprintf("Games Mastered: %d", p.Stats.MasteryCount)},
	}
	if a := p.Activity; a != nil {
		lines = append(lines,
			line{10, 105, 2, green, "Now Playing: " + a.Title},
			line{10, 140, 1, green, "Platform: " + a.Platform},
			line{10, 160, 1, green, "Currently: " + a.RichPresence},
		)
	}
	return lines
}

func (b *Badge) Render(p profile.Profile) ([]byte, error) {
	img := b.canvas()
	for _, l := range layout(p) {
		b.drawText(img, l)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode badge for %s: %w", p.Username, err)
	}
	return buf.Bytes(), nil
}

// drawText places l with its top-left corner at (l.x, l.y).
func (b *Badge) drawText(dst *image.RGBA, l line) {
	m := b.face.Metrics()
	src := image.NewUniform(l.color)
	if l.scale <= 1 {
		d := &font.Drawer{Dst: dst, Src: src, Face: b.face, Dot: fixed.P(l.x, l.y+m.Ascent.Ceil())}
		d.DrawString(l.text)
		return
	}
	w := font.MeasureString(b.face, l.text).Ceil()
	h := m.Height.Ceil()
	if w <= 0 || h <= 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{Dst: tmp, Src: src, Face: b.face, Dot: fixed.P(0, m.Ascent.Ceil())}
	d.DrawString(l.text)
	target := image.Rect(l.x, l.y, l.x+w*l.scale, l.y+h*l.scale)
	xdraw.NearestNeighbor.Scale(dst, target, tmp, tmp.Bounds(), xdraw.Over, nil)
}
