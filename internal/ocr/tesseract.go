package ocr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngineName is the registry name of the built-in engine.
const TesseractEngineName = "tesseract"

// TesseractEngine recognizes handwriting raster images through a shared
// gosseract client. The client wraps a heavyweight native Tesseract API
// handle, so it is constructed lazily, exactly once per process, behind a
// lock. Inference also serializes on the same lock: the native handle is not
// safe for concurrent use.
type TesseractEngine struct {
	language string

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine constructs the engine. Language defaults to "eng".
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// Name implements Engine.
func (e *TesseractEngine) Name() string {
	return TesseractEngineName
}

// Available reports whether a usable Tesseract installation with trained
// data is present. Checked on every registry lookup.
func (e *TesseractEngine) Available() bool {
	languages, err := gosseract.GetAvailableLanguages()
	return err == nil && len(languages) > 0
}

// getClient returns the shared client, constructing it on first use. Racing
// callers serialize on the mutex; the loser of the race observes the holder
// already populated and reuses it. When construction fails because the
// native runtime reports it was already initialized elsewhere in the
// process, a populated holder is trusted over the error; any other failure
// surfaces as ErrEngineUnavailable.
func (e *TesseractEngine) getClient() (*gosseract.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(e.language); err != nil {
		client.Close()
		if isAlreadyInitialized(err) && e.client != nil {
			return e.client, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	e.client = client
	return e.client, nil
}

func isAlreadyInitialized(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already initialized")
}

// Run implements Engine. Per-line detections are normalized to the shared
// text/confidence contract; Tesseract confidences arrive in [0, 100] and are
// rescaled to [0, 1].
func (e *TesseractEngine) Run(imagePath string) (string, *float64, error) {
	client, err := e.getClient()
	if err != nil {
		return "", nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := client.SetImage(imagePath); err != nil {
		return "", nil, fmt.Errorf("ocr: set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return "", nil, fmt.Errorf("ocr: recognize: %w", err)
	}

	detections := make([]Detection, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		confidence := box.Confidence / 100
		detections = append(detections, Detection{Text: text, Confidence: &confidence})
	}
	text, confidence := Normalize(detections)
	return text, confidence, nil
}
