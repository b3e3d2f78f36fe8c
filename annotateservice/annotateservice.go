package annotateservice

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // snapshots may arrive as PNG

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bigjimnolan/sssaitrigger/detectionservice"
)

var (
	PredictionColor = color.RGBA{R: 192, G: 47, B: 29, A: 255}
	IgnoreColor     = color.RGBA{R: 255, G: 66, B: 66, A: 255}
)

const (
	lineWidth   = 2
	labelOffset = 10
)

// Annotator draws detection boxes and ignore regions onto snapshots.
type Annotator struct {
	Quality int
	Face    font.Face
}

func New() *Annotator {
	return &Annotator{
		Quality: 100,
		Face:    basicfont.Face7x13,
	}
}

// Annotate decodes src, draws every prediction and ignore region on a copy and
// returns the result as JPEG. src is never modified.
func (a *Annotator) Annotate(src []byte, predictions []detectionservice.Prediction, ignore []detectionservice.Region) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	bounds := decoded.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, decoded, bounds.Min, draw.Src)

	for _, p := range predictions {
		label := fmt.Sprintf("%s (%d%%)", p.Label, detectionservice.ConfidencePercent(p.Confidence))
		a.box(canvas, p.Box(), label, PredictionColor)
	}
	for _, region := range ignore {
		a.box(canvas, region, "ignore", IgnoreColor)
	}

	quality := a.Quality
	if quality <= 0 {
		quality = 100
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return out.Bytes(), nil
}

func (a *Annotator) box(img *image.RGBA, r detectionservice.Region, label string, c color.Color) {
	DrawRectangle(img, image.Rect(r.XMin, r.YMin, r.XMax, r.YMax), c, lineWidth)

	face := a.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(r.XMin+labelOffset, r.YMin+labelOffset+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)
}

// DrawRectangle outlines rect with the given stroke thickness, drawn inward.
func DrawRectangle(img draw.Image, rect image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(img, edge.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}
