package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/banshee-data/sort.station/internal/detection"
)

// Style controls how detections are drawn.
type Style struct {
	Color          color.RGBA
	Thickness      int
	ShowConfidence bool
}

var (
	// LiveStyle is used on the live view: green boxes captioned "label 0.81".
	LiveStyle = Style{Color: color.RGBA{G: 255, A: 255}, Thickness: 2, ShowConfidence: true}
	// SnapshotStyle is used on the last capture: red boxes captioned with the label.
	SnapshotStyle = Style{Color: color.RGBA{R: 255, A: 255}, Thickness: 2}
)

var captionFace = basicfont.Face7x13

// Annotate returns a copy of img with every detection's box and caption drawn
// on it. img itself is not modified.
func Annotate(img image.Image, set detection.Set, style Style) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	if style.Thickness <= 0 {
		style.Thickness = 1
	}
	for _, d := range set {
		r := image.Rect(d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2).Intersect(b)
		if r.Empty() {
			continue
		}
		drawRect(dst, r, style.Color, style.Thickness)

		caption := d.Label
		if style.ShowConfidence {
			caption = d.String()
		}
		drawCaption(dst, r.Min, caption, style.Color)
	}
	return dst
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	src := image.NewUniform(c)
	t := thickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawCaption writes text just above the box corner at p, or just inside the
// box when there is no room above it.
func drawCaption(dst *image.RGBA, p image.Point, text string, c color.RGBA) {
	metrics := captionFace.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := metrics.Height.Ceil()

	baseline := p.Y - 5
	if baseline-ascent < dst.Bounds().Min.Y {
		baseline = p.Y + ascent + 2
	}

	width := font.MeasureString(captionFace, text).Ceil()
	bg := image.Rect(p.X, baseline-ascent-1, p.X+width+2, baseline-ascent-1+height+1).Intersect(dst.Bounds())
	draw.Draw(dst, bg, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: captionFace,
		Dot:  fixed.P(p.X+1, baseline),
	}
	d.DrawString(text)
}
