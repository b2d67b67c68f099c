package ocr

import (
	"errors"
	"strings"
)

// ErrEngineUnavailable indicates the configured backend could not be
// constructed or used.
var ErrEngineUnavailable = errors.New("ocr: engine unavailable")

// Engine is a named OCR backend. Available is consulted on every registry
// lookup, not cached, so an engine may come and go over the process lifetime.
type Engine interface {
	Name() string
	Available() bool
	// Run recognizes text in the image at the given path. It returns the
	// normalized text and an average confidence in [0, 1], or nil when the
	// engine produced no confidence values. No detected text is not an
	// error: it yields ("", nil, nil).
	Run(imagePath string) (string, *float64, error)
}

// Detection is one recognized region before normalization. Confidence is nil
// when the backend did not report one for the region.
type Detection struct {
	Text       string
	Confidence *float64
}

// Normalize folds raw detections into the engine result contract: text lines
// joined by newlines and trimmed, confidence averaged over the detections
// that carry one. Detections without confidence are excluded from the
// average, not counted as zero. No text at all yields ("", nil).
func Normalize(detections []Detection) (string, *float64) {
	lines := make([]string, 0, len(detections))
	var sum float64
	var counted int
	for _, detection := range detections {
		if detection.Text != "" {
			lines = append(lines, detection.Text)
		}
		if detection.Confidence != nil {
			sum += *detection.Confidence
			counted++
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	var confidence *float64
	if counted > 0 {
		average := sum / float64(counted)
		confidence = &average
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), confidence
}
