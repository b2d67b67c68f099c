package ocr

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds the named engines available to the process. It is built at
// startup and passed into the job orchestrator by reference, so tests can
// swap engines freely.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	logger  *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		engines: make(map[string]Engine),
		logger:  logger,
	}
}

// Register adds or replaces an engine under its own name.
func (r *Registry) Register(engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[engine.Name()] = engine
}

// Get returns the named engine only when it reports itself available right
// now. A panicking availability check is treated as unavailable, logged, and
// never propagated.
func (r *Registry) Get(name string) Engine {
	r.mu.RLock()
	engine := r.engines[name]
	r.mu.RUnlock()
	if engine == nil {
		return nil
	}

	available := r.checkAvailability(engine)
	if !available {
		return nil
	}
	return engine
}

func (r *Registry) checkAvailability(engine Engine) (available bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("ocr engine availability check panicked",
				zap.String("engine", engine.Name()),
				zap.Any("panic", recovered))
			available = false
		}
	}()
	return engine.Available()
}
