package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/ink"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/ocr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrJobNotFound indicates the job id does not exist.
	ErrJobNotFound = errors.New("jobs: job not found")

	errMissingDatabase = errors.New("jobs: database handle is required")
	errMissingNotes    = errors.New("jobs: notes service is required")
	errMissingRenderer = errors.New("jobs: renderer is required")
	errMissingRegistry = errors.New("jobs: engine registry is required")
	errMissingTasks    = errors.New("jobs: task queue is required")
)

// ServiceConfig describes the dependencies of the OCR job orchestrator.
type ServiceConfig struct {
	Database   *gorm.DB
	Notes      *notes.Service
	Renderer   *ink.Renderer
	Engines    *ocr.Registry
	EngineName string
	Tasks      TaskQueue
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service drives the OCR job state machine:
// queued -> running -> {succeeded, failed}.
type Service struct {
	db         *gorm.DB
	notes      *notes.Service
	renderer   *ink.Renderer
	engines    *ocr.Registry
	engineName string
	tasks      TaskQueue
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the orchestrator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Notes == nil {
		return nil, errMissingNotes
	}
	if cfg.Renderer == nil {
		return nil, errMissingRenderer
	}
	if cfg.Engines == nil {
		return nil, errMissingRegistry
	}
	if cfg.Tasks == nil {
		return nil, errMissingTasks
	}
	engineName := cfg.EngineName
	if engineName == "" {
		engineName = ocr.TesseractEngineName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		notes:      cfg.Notes,
		renderer:   cfg.Renderer,
		engines:    cfg.Engines,
		engineName: engineName,
		tasks:      cfg.Tasks,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Enqueue creates a queued OCR job for the note and schedules its execution.
// When an active (queued or running) job already exists for the note and
// user, that job is returned unchanged with created=false: at most one OCR
// job is in flight per note. The ownership check runs through the notebook
// join like every other note access.
func (s *Service) Enqueue(ctx context.Context, noteID, userID uint) (Job, bool, error) {
	note, err := s.notes.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return Job{}, false, err
	}

	var existing Job
	err = s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ? AND job_type = ? AND status IN ?",
			note.ID, userID, JobTypeOCR, []Status{StatusQueued, StatusRunning}).
		Take(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, false, err
	}

	now := s.clock().UTC()
	job := Job{
		NoteID:    note.ID,
		UserID:    userID,
		JobType:   JobTypeOCR,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return Job{}, false, err
	}

	jobID := job.ID
	s.tasks.Submit(func() {
		s.Execute(context.Background(), jobID)
	})
	return job, true, nil
}

// Execute runs one job to a terminal state. It is safe to invoke for a job
// that is already terminal or missing: the status check at entry is the sole
// guard against duplicate scheduling, and such calls return silently with no
// side effect. Every failure after the transition to running is absorbed
// into the job row; there is no caller to propagate to.
func (s *Service) Execute(ctx context.Context, jobID uint) {
	var job Job
	err := s.db.WithContext(ctx).Take(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("ocr job load failed", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}
	if !job.Status.Active() {
		return
	}

	now := s.clock().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&job).Error; err != nil {
		s.logger.Error("ocr job transition to running failed",
			zap.Uint("job_id", jobID), zap.Error(err))
		return
	}

	text, engineName, confidence, runErr := s.run(ctx, job)
	if runErr != nil {
		s.markFailed(ctx, jobID, runErr)
		return
	}

	finished := s.clock().UTC()
	if err := s.notes.ApplyOCRResult(ctx, job.NoteID, text, engineName, confidence, finished); err != nil {
		s.markFailed(ctx, jobID, err)
		return
	}
	job.Status = StatusSucceeded
	job.FinishedAt = &finished
	job.UpdatedAt = finished
	if err := s.db.WithContext(ctx).Save(&job).Error; err != nil {
		s.logger.Error("ocr job transition to succeeded failed",
			zap.Uint("job_id", jobID), zap.Error(err))
	}
}

// run performs rasterization and recognition. Panics from the renderer or
// the engine are converted to errors so the job still reaches a terminal
// state with the failure detail preserved.
func (s *Service) run(ctx context.Context, job Job) (text, engineName string, confidence *float64, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("ocr job panicked: %v", recovered)
		}
	}()
	return s.runSteps(ctx, job)
}

func (s *Service) runSteps(ctx context.Context, job Job) (string, string, *float64, error) {
	// Re-resolve the note through the ownership join; the notebook may have
	// changed hands or vanished since enqueue.
	note, err := s.notes.GetOwnedNote(ctx, job.NoteID, job.UserID)
	if err != nil {
		return "", "", nil, fmt.Errorf("note not found for OCR job: %w", err)
	}

	strokes, err := s.notes.StrokesForNote(ctx, note.ID)
	if err != nil {
		return "", "", nil, err
	}
	payloads := make([]string, 0, len(strokes))
	for _, stroke := range strokes {
		payloads = append(payloads, stroke.Payload)
	}

	imagePath, err := s.renderer.Render(note.ID, job.ID, payloads)
	if err != nil {
		return "", "", nil, err
	}

	engine := s.engines.Get(s.engineName)
	if engine == nil {
		return "", "", nil, fmt.Errorf("%w: %s", ocr.ErrEngineUnavailable, s.engineName)
	}
	text, confidence, err := engine.Run(imagePath)
	if err != nil {
		return "", "", nil, err
	}
	return text, engine.Name(), confidence, nil
}

func (s *Service) markFailed(ctx context.Context, jobID uint, cause error) {
	now := s.clock().UTC()
	updates := map[string]interface{}{
		"status":      StatusFailed,
		"error":       cause.Error(),
		"finished_at": now,
		"updated_at":  now,
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", jobID).
		Updates(updates).Error; err != nil {
		s.logger.Error("ocr job transition to failed failed",
			zap.Uint("job_id", jobID), zap.Error(err))
	}
	s.logger.Warn("ocr job failed", zap.Uint("job_id", jobID), zap.Error(cause))
}

// Query returns the note's current OCR fields together with the most
// recently created job for the note and user, whatever its state. Callers
// poll this to observe in-flight, succeeded, or failed attempts.
func (s *Service) Query(ctx context.Context, noteID, userID uint) (notes.Note, *Job, error) {
	note, err := s.notes.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return notes.Note{}, nil, err
	}

	var job Job
	err = s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ? AND job_type = ?", note.ID, userID, JobTypeOCR).
		Order("created_at DESC, id DESC").
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return note, nil, nil
	}
	if err != nil {
		return notes.Note{}, nil, err
	}
	return note, &job, nil
}
