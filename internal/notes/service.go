package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/library"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultNoteTitle = "Untitled Note"

var (
	// ErrNoteNotFound indicates the note is absent or not owned by the caller.
	ErrNoteNotFound = errors.New("notes: note not found")

	errMissingDatabase = errors.New("notes: database handle is required")
	errMissingLibrary  = errors.New("notes: library service is required")
)

// ServiceConfig describes the dependencies of the notes service.
type ServiceConfig struct {
	Database *gorm.DB
	Library  *library.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages notes, strokes, uploads, and flashcards.
type Service struct {
	db      *gorm.DB
	library *library.Service
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService constructs the notes service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Library == nil {
		return nil, errMissingLibrary
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, library: cfg.Library, clock: clock, logger: logger}, nil
}

// GetOwnedNote resolves a note through its notebook's owner column. Every
// note access in the system, the OCR orchestrator included, goes through
// this join; notes carry no owner column of their own.
func (s *Service) GetOwnedNote(ctx context.Context, noteID, userID uint) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Joins("JOIN notebooks ON notebooks.id = notes.notebook_id").
		Where("notes.id = ? AND notebooks.user_id = ?", noteID, userID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// Create adds a note to the given notebook, or to the tablet inbox when no
// notebook is specified.
func (s *Service) Create(ctx context.Context, userID uint, title, device string, notebookID uint) (Note, error) {
	var notebook library.Notebook
	var err error
	if notebookID != 0 {
		notebook, err = s.library.OwnedNotebook(ctx, userID, notebookID)
	} else {
		notebook, err = s.library.EnsureInbox(ctx, userID, "tablet")
	}
	if err != nil {
		return Note{}, err
	}
	return s.createInNotebook(ctx, notebook.ID, title, device)
}

// CreateForDevice adds a note to the inbox notebook for the device type.
func (s *Service) CreateForDevice(ctx context.Context, userID uint, title, deviceType string) (Note, uint, error) {
	notebook, err := s.library.EnsureInbox(ctx, userID, deviceType)
	if err != nil {
		return Note{}, 0, err
	}
	note, err := s.createInNotebook(ctx, notebook.ID, title, strings.ToLower(strings.TrimSpace(deviceType)))
	if err != nil {
		return Note{}, 0, err
	}
	return note, notebook.ID, nil
}

func (s *Service) createInNotebook(ctx context.Context, notebookID uint, title, device string) (Note, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultNoteTitle
	}
	if strings.TrimSpace(device) == "" {
		device = "unknown"
	}
	now := s.clock().UTC()
	note := Note{
		Title:      title,
		Device:     device,
		NotebookID: notebookID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListNotebookNotes returns the notebook's notes with flashcard counts,
// most recently updated first.
func (s *Service) ListNotebookNotes(ctx context.Context, userID, notebookID uint) ([]NoteSummary, error) {
	if _, err := s.library.OwnedNotebook(ctx, userID, notebookID); err != nil {
		return nil, err
	}

	var list []Note
	if err := s.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID).
		Order("updated_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}

	summaries := make([]NoteSummary, 0, len(list))
	for _, note := range list {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Flashcard{}).
			Where("note_id = ?", note.ID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		summaries = append(summaries, NoteSummary{Note: note, FlashcardCount: count})
	}
	return summaries, nil
}

// Detail loads a note with its subject, notebook, and flashcards.
func (s *Service) Detail(ctx context.Context, noteID, userID uint) (NoteDetail, error) {
	note, err := s.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return NoteDetail{}, err
	}

	notebook, err := s.library.OwnedNotebook(ctx, userID, note.NotebookID)
	if err != nil {
		return NoteDetail{}, err
	}

	var subject library.Subject
	if err := s.db.WithContext(ctx).Take(&subject, notebook.SubjectID).Error; err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		return NoteDetail{}, err
	}

	var cards []Flashcard
	if err := s.db.WithContext(ctx).
		Where("note_id = ?", note.ID).
		Order("created_at ASC, id ASC").
		Find(&cards).Error; err != nil {
		return NoteDetail{}, err
	}

	return NoteDetail{
		Note:         note,
		SubjectID:    subject.ID,
		SubjectName:  subject.Name,
		NotebookID:   notebook.ID,
		NotebookName: notebook.Name,
		Cards:        cards,
	}, nil
}

// AppendStrokes stores one raw stroke batch payload against the note and
// bumps the note's updated_at. Batches are never rewritten afterwards.
func (s *Service) AppendStrokes(ctx context.Context, noteID, userID uint, payload string) error {
	note, err := s.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stroke := Stroke{NoteID: note.ID, Payload: payload, CreatedAt: now}
		if err := tx.Create(&stroke).Error; err != nil {
			return err
		}
		return tx.Model(&Note{}).Where("id = ?", note.ID).
			Update("updated_at", now).Error
	})
}

// ListStrokes returns the note's stroke batches in replay order.
func (s *Service) ListStrokes(ctx context.Context, noteID, userID uint) ([]Stroke, error) {
	note, err := s.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return s.StrokesForNote(ctx, note.ID)
}

// StrokesForNote returns a note's stroke batches ordered (created_at, id)
// ascending. Callers are responsible for the ownership check.
func (s *Service) StrokesForNote(ctx context.Context, noteID uint) ([]Stroke, error) {
	var strokes []Stroke
	if err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("created_at ASC, id ASC").
		Find(&strokes).Error; err != nil {
		return nil, err
	}
	return strokes, nil
}

// AttachFile records an uploaded file against the note.
func (s *Service) AttachFile(ctx context.Context, noteID, userID uint, stored, original, contentType string) error {
	note, err := s.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		file := File{
			NoteID:           note.ID,
			StoredFilename:   stored,
			OriginalFilename: original,
			ContentType:      contentType,
			CreatedAt:        now,
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		return tx.Model(&Note{}).Where("id = ?", note.ID).
			Update("updated_at", now).Error
	})
}

// ReplaceFlashcards swaps the note's flashcard set for the provided cards.
func (s *Service) ReplaceFlashcards(ctx context.Context, noteID, userID uint, cards []Flashcard) error {
	note, err := s.GetOwnedNote(ctx, noteID, userID)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", note.ID).Delete(&Flashcard{}).Error; err != nil {
			return err
		}
		for i := range cards {
			cards[i].ID = 0
			cards[i].NoteID = note.ID
			cards[i].CreatedAt = now
			if err := tx.Create(&cards[i]).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Note{}).Where("id = ?", note.ID).
			Update("updated_at", now).Error
	})
}

// ApplyOCRResult writes a successful OCR outcome onto the note. This is the
// only code path that touches the note's OCR columns.
func (s *Service) ApplyOCRResult(ctx context.Context, noteID uint, text, engine string, confidence *float64, at time.Time) error {
	updates := map[string]interface{}{
		"ocr_text":       text,
		"ocr_engine":     engine,
		"ocr_confidence": confidence,
		"ocr_updated_at": at,
	}
	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ?", noteID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}
