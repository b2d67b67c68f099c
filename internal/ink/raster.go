package ink

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/vector"
)

const (
	canvasPadding = 20
	discSegments  = 24
)

// ErrNoStrokeData is returned when a note has no renderable ink. Requesting
// OCR on an inkless note is the expected trigger.
var ErrNoStrokeData = errors.New("ink: no stroke data available to render")

// Renderer rasterizes a note's stroke batches into PNG artifacts under its
// working directory, namespaced by note and job so historical runs never
// collide.
type Renderer struct {
	WorkDir string
}

type strokeSet struct {
	points []Point
	width  int
}

// Render paints every parseable stroke across the given payloads onto a
// white canvas sized to the ink's bounding box plus padding, and writes the
// result to <WorkDir>/note_<noteID>/<jobID>.png.
func (r *Renderer) Render(noteID, jobID uint, payloads []string) (string, error) {
	sets, bounds, ok := collectStrokes(payloads)
	if !ok {
		return "", ErrNoStrokeData
	}

	width := canvasExtent(bounds.maxX - bounds.minX)
	height := canvasExtent(bounds.maxY - bounds.minY)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	rast := vector.NewRasterizer(width, height)
	for _, set := range sets {
		translated := make([]Point, len(set.points))
		for i, p := range set.points {
			translated[i] = Point{
				X: p.X - bounds.minX + canvasPadding,
				Y: p.Y - bounds.minY + canvasPadding,
			}
		}
		if len(translated) == 1 {
			radius := math.Max(1, float64(set.width))
			addDisc(rast, translated[0], radius)
			continue
		}
		halfWidth := math.Max(0.5, float64(set.width)/2)
		for i := 0; i < len(translated)-1; i++ {
			addSegment(rast, translated[i], translated[i+1], halfWidth)
		}
		// Discs at every vertex give round joins and caps.
		for _, p := range translated {
			addDisc(rast, p, halfWidth)
		}
	}
	rast.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{})

	noteDir := filepath.Join(r.WorkDir, fmt.Sprintf("note_%d", noteID))
	if err := os.MkdirAll(noteDir, 0o755); err != nil {
		return "", fmt.Errorf("ink: create working directory: %w", err)
	}
	imagePath := filepath.Join(noteDir, fmt.Sprintf("%d.png", jobID))
	file, err := os.Create(imagePath)
	if err != nil {
		return "", fmt.Errorf("ink: create image file: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("ink: encode image: %w", err)
	}
	return imagePath, nil
}

type boundingBox struct {
	minX, minY, maxX, maxY float64
}

func collectStrokes(payloads []string) ([]strokeSet, boundingBox, bool) {
	var sets []strokeSet
	bounds := boundingBox{}
	seeded := false

	for _, payload := range payloads {
		batch, err := ParseBatch([]byte(payload))
		if err != nil {
			continue
		}
		for _, stroke := range batch.Strokes {
			points := StrokePoints(stroke)
			if len(points) == 0 {
				continue
			}
			sets = append(sets, strokeSet{points: points, width: StrokeWidth(stroke)})
			for _, p := range points {
				if !seeded {
					bounds = boundingBox{minX: p.X, minY: p.Y, maxX: p.X, maxY: p.Y}
					seeded = true
					continue
				}
				bounds.minX = math.Min(bounds.minX, p.X)
				bounds.minY = math.Min(bounds.minY, p.Y)
				bounds.maxX = math.Max(bounds.maxX, p.X)
				bounds.maxY = math.Max(bounds.maxY, p.Y)
			}
		}
	}
	return sets, bounds, seeded
}

func canvasExtent(extent float64) int {
	size := int(math.Ceil(extent + canvasPadding*2))
	if size < 1 {
		size = 1
	}
	return size
}

// addSegment contributes a filled quad covering the thick line between two
// points. Degenerate (zero-length) segments are left to the vertex discs.
func addSegment(rast *vector.Rasterizer, from, to Point, halfWidth float64) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	// Perpendicular unit vector scaled to half the stroke width.
	px := -dy / length * halfWidth
	py := dx / length * halfWidth

	rast.MoveTo(float32(from.X+px), float32(from.Y+py))
	rast.LineTo(float32(to.X+px), float32(to.Y+py))
	rast.LineTo(float32(to.X-px), float32(to.Y-py))
	rast.LineTo(float32(from.X-px), float32(from.Y-py))
	rast.ClosePath()
}

func addDisc(rast *vector.Rasterizer, center Point, radius float64) {
	for i := 0; i <= discSegments; i++ {
		angle := 2 * math.Pi * float64(i) / discSegments
		x := float32(center.X + radius*math.Cos(angle))
		y := float32(center.Y + radius*math.Sin(angle))
		if i == 0 {
			rast.MoveTo(x, y)
			continue
		}
		rast.LineTo(x, y)
	}
	rast.ClosePath()
}
