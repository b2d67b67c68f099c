package ink

import (
	"encoding/json"
	"math"
	"strconv"
)

const defaultStrokeWidth = 2

// Point is a single ink coordinate.
type Point struct {
	X float64
	Y float64
}

// Batch is one decoded capture event: a list of loosely structured strokes.
type Batch struct {
	Strokes []map[string]interface{}
}

// ParseBatch decodes a raw stroke-batch payload. Payloads come from a mix of
// client generations, so anything that is not a JSON object with a "strokes"
// array decodes to an empty batch rather than an error.
func ParseBatch(payload []byte) (Batch, error) {
	var raw struct {
		Strokes []json.RawMessage `json:"strokes"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Batch{}, err
	}

	batch := Batch{Strokes: make([]map[string]interface{}, 0, len(raw.Strokes))}
	for _, entry := range raw.Strokes {
		var stroke map[string]interface{}
		if err := json.Unmarshal(entry, &stroke); err != nil {
			continue
		}
		batch.Strokes = append(batch.Strokes, stroke)
	}
	return batch, nil
}

// StrokePoints extracts the ordered point list from a single stroke object.
// The point list may live under "points", "path", or "segments" (first
// non-empty wins), or as parallel "x"/"y" arrays which take precedence when
// both are present. Entries missing either coordinate are dropped. An empty
// result is a valid outcome, not an error.
func StrokePoints(stroke map[string]interface{}) []Point {
	var candidates []interface{}
	for _, key := range []string{"points", "path", "segments"} {
		if list, ok := stroke[key].([]interface{}); ok && len(list) > 0 {
			candidates = list
			break
		}
	}
	xs, xOK := stroke["x"].([]interface{})
	ys, yOK := stroke["y"].([]interface{})
	if xOK && yOK {
		n := len(xs)
		if len(ys) < n {
			n = len(ys)
		}
		candidates = make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			candidates = append(candidates, []interface{}{xs[i], ys[i]})
		}
	}

	points := make([]Point, 0, len(candidates))
	for _, entry := range candidates {
		var rawX, rawY interface{}
		switch value := entry.(type) {
		case map[string]interface{}:
			rawX, rawY = value["x"], value["y"]
		case []interface{}:
			if len(value) < 2 {
				continue
			}
			rawX, rawY = value[0], value[1]
		default:
			continue
		}
		x, okX := coerceFloat(rawX)
		y, okY := coerceFloat(rawY)
		if !okX || !okY {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

// StrokeWidth resolves the stroke's pen width from its legacy key spellings.
// The first truthy, numeric-coercible value wins; the result is rounded and
// floored at 1. Strokes without a usable width render at width 2.
func StrokeWidth(stroke map[string]interface{}) int {
	for _, key := range []string{"width", "stroke_width", "strokeWidth", "lineWidth", "size"} {
		value, ok := stroke[key]
		if !ok || !truthy(value) {
			continue
		}
		number, ok := coerceFloat(value)
		if !ok {
			continue
		}
		width := int(math.Round(number))
		if width < 1 {
			width = 1
		}
		return width
	}
	return defaultStrokeWidth
}

func coerceFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}
