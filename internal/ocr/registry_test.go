package ocr

import "testing"

type stubEngine struct {
	name       string
	available  bool
	panics     bool
	text       string
	confidence *float64
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Available() bool {
	if e.panics {
		panic("availability probe exploded")
	}
	return e.available
}

func (e *stubEngine) Run(imagePath string) (string, *float64, error) {
	return e.text, e.confidence, nil
}

func TestRegistryGetUnknownEngine(t *testing.T) {
	registry := NewRegistry(nil)
	if engine := registry.Get("missing"); engine != nil {
		t.Fatalf("expected nil for unregistered engine")
	}
}

func TestRegistryGetRespectsAvailability(t *testing.T) {
	registry := NewRegistry(nil)
	engine := &stubEngine{name: "stub", available: false}
	registry.Register(engine)

	if got := registry.Get("stub"); got != nil {
		t.Fatalf("expected unavailable engine to be hidden")
	}

	engine.available = true
	if got := registry.Get("stub"); got == nil {
		t.Fatalf("expected engine once available")
	}
}

func TestRegistryGetTreatsPanicAsUnavailable(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&stubEngine{name: "volatile", panics: true})

	if got := registry.Get("volatile"); got != nil {
		t.Fatalf("expected panicking availability check to read as unavailable")
	}
}

func TestRegistryRegisterReplacesByName(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(&stubEngine{name: "stub", available: true, text: "first"})
	replacement := &stubEngine{name: "stub", available: true, text: "second"}
	registry.Register(replacement)

	engine := registry.Get("stub")
	if engine == nil {
		t.Fatalf("expected engine")
	}
	text, _, err := engine.Run("ignored.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "second" {
		t.Fatalf("expected replacement engine, got %q", text)
	}
}
