package library

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSubjectNotFound indicates the subject is absent or owned by another user.
	ErrSubjectNotFound = errors.New("library: subject not found")
	// ErrNotebookNotFound indicates the notebook is absent or owned by another user.
	ErrNotebookNotFound = errors.New("library: notebook not found")
	// ErrNameRequired indicates an empty name was supplied.
	ErrNameRequired = errors.New("library: name is required")
	// ErrUnsupportedInboxType indicates an inbox type without a configured notebook.
	ErrUnsupportedInboxType = errors.New("library: unsupported inbox type")

	errMissingDatabase = errors.New("library: database handle is required")
)

// inboxNotebooks maps device inbox types to notebook names.
var inboxNotebooks = map[string]string{
	"tablet": "Tablet Inbox",
}

// ServiceConfig describes the dependencies of the library service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages subjects and notebooks.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the library service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// EnsureDefaults provisions the "Unsorted" subject and notebook for a user.
// It is idempotent and runs inside the caller's transaction.
func (s *Service) EnsureDefaults(ctx context.Context, tx *gorm.DB, userID uint) error {
	subject, err := s.findOrCreateSubject(ctx, tx, userID, "Unsorted")
	if err != nil {
		return err
	}

	var notebook Notebook
	err = tx.WithContext(ctx).
		Where("user_id = ? AND subject_id = ? AND name = ?", userID, subject.ID, "Unsorted").
		Take(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notebook = Notebook{
			Name:      "Unsorted",
			Color:     DefaultNotebookColor,
			Icon:      DefaultNotebookIcon,
			UserID:    userID,
			SubjectID: subject.ID,
			CreatedAt: s.clock().UTC(),
		}
		return tx.WithContext(ctx).Create(&notebook).Error
	}
	return err
}

// EnsureInbox provisions (or refreshes) the inbox notebook for a device type
// and returns it.
func (s *Service) EnsureInbox(ctx context.Context, userID uint, inboxType string) (Notebook, error) {
	normalized := strings.ToLower(strings.TrimSpace(inboxType))
	inboxName, ok := inboxNotebooks[normalized]
	if !ok {
		return Notebook{}, ErrUnsupportedInboxType
	}

	var notebook Notebook
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subject, err := s.findOrCreateSubject(ctx, tx, userID, "Inbox")
		if err != nil {
			return err
		}

		err = tx.Where("user_id = ? AND subject_id = ? AND name = ?", userID, subject.ID, inboxName).
			Take(&notebook).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notebook = Notebook{
				Name:      inboxName,
				Color:     DefaultNotebookColor,
				Icon:      DefaultNotebookIcon,
				IsInbox:   true,
				InboxType: normalized,
				UserID:    userID,
				SubjectID: subject.ID,
				CreatedAt: s.clock().UTC(),
			}
			return tx.Create(&notebook).Error
		}
		if err != nil {
			return err
		}

		notebook.IsInbox = true
		notebook.InboxType = normalized
		return tx.Save(&notebook).Error
	})
	if txErr != nil {
		return Notebook{}, txErr
	}
	return notebook, nil
}

func (s *Service) findOrCreateSubject(ctx context.Context, tx *gorm.DB, userID uint, name string) (Subject, error) {
	var subject Subject
	err := tx.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Take(&subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		subject = Subject{Name: name, UserID: userID, CreatedAt: s.clock().UTC()}
		if err := tx.WithContext(ctx).Create(&subject).Error; err != nil {
			return Subject{}, err
		}
		return subject, nil
	}
	if err != nil {
		return Subject{}, err
	}
	return subject, nil
}

// ListSubjects returns the user's subjects with notebook counts, oldest first.
func (s *Service) ListSubjects(ctx context.Context, userID uint) ([]SubjectSummary, error) {
	var subjects []Subject
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&subjects).Error; err != nil {
		return nil, err
	}

	summaries := make([]SubjectSummary, 0, len(subjects))
	for _, subject := range subjects {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Notebook{}).
			Where("subject_id = ?", subject.ID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		summaries = append(summaries, SubjectSummary{Subject: subject, NotebookCount: count})
	}
	return summaries, nil
}

// CreateSubject adds a subject for the user.
func (s *Service) CreateSubject(ctx context.Context, userID uint, name string) (Subject, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Subject{}, ErrNameRequired
	}
	subject := Subject{Name: trimmed, UserID: userID, CreatedAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&subject).Error; err != nil {
		return Subject{}, err
	}
	return subject, nil
}

// RenameSubject updates the subject name.
func (s *Service) RenameSubject(ctx context.Context, userID, subjectID uint, name string) (Subject, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Subject{}, ErrNameRequired
	}
	subject, err := s.ownedSubject(ctx, userID, subjectID)
	if err != nil {
		return Subject{}, err
	}
	subject.Name = trimmed
	if err := s.db.WithContext(ctx).Save(&subject).Error; err != nil {
		return Subject{}, err
	}
	return subject, nil
}

// DeleteSubject removes the subject and everything beneath it.
func (s *Service) DeleteSubject(ctx context.Context, userID, subjectID uint) error {
	subject, err := s.ownedSubject(ctx, userID, subjectID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subject_id = ?", subject.ID).Delete(&Notebook{}).Error; err != nil {
			return err
		}
		return tx.Delete(&subject).Error
	})
}

// SubjectNotebooks returns the subject and its notebooks with note statistics.
func (s *Service) SubjectNotebooks(ctx context.Context, userID, subjectID uint) (Subject, []NotebookSummary, error) {
	subject, err := s.ownedSubject(ctx, userID, subjectID)
	if err != nil {
		return Subject{}, nil, err
	}

	var notebooks []Notebook
	if err := s.db.WithContext(ctx).
		Where("subject_id = ? AND user_id = ?", subject.ID, userID).
		Order("created_at ASC, id ASC").
		Find(&notebooks).Error; err != nil {
		return Subject{}, nil, err
	}

	summaries := make([]NotebookSummary, 0, len(notebooks))
	for _, notebook := range notebooks {
		summary, err := s.notebookSummary(ctx, notebook)
		if err != nil {
			return Subject{}, nil, err
		}
		summaries = append(summaries, summary)
	}
	return subject, summaries, nil
}

// CreateNotebook adds a notebook under the subject.
func (s *Service) CreateNotebook(ctx context.Context, userID, subjectID uint, name, color, icon string) (Notebook, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Notebook{}, ErrNameRequired
	}
	subject, err := s.ownedSubject(ctx, userID, subjectID)
	if err != nil {
		return Notebook{}, err
	}
	if color == "" {
		color = DefaultNotebookColor
	}
	if icon == "" {
		icon = DefaultNotebookIcon
	}
	notebook := Notebook{
		Name:      trimmed,
		Color:     color,
		Icon:      icon,
		UserID:    userID,
		SubjectID: subject.ID,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&notebook).Error; err != nil {
		return Notebook{}, err
	}
	return notebook, nil
}

// NotebookUpdate carries optional notebook field changes.
type NotebookUpdate struct {
	Name  *string
	Color *string
	Icon  *string
}

// UpdateNotebook applies the provided field changes.
func (s *Service) UpdateNotebook(ctx context.Context, userID, notebookID uint, update NotebookUpdate) (Notebook, error) {
	notebook, err := s.OwnedNotebook(ctx, userID, notebookID)
	if err != nil {
		return Notebook{}, err
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return Notebook{}, ErrNameRequired
		}
		notebook.Name = trimmed
	}
	if update.Color != nil {
		notebook.Color = *update.Color
	}
	if update.Icon != nil {
		notebook.Icon = *update.Icon
	}
	if err := s.db.WithContext(ctx).Save(&notebook).Error; err != nil {
		return Notebook{}, err
	}
	return notebook, nil
}

// DeleteNotebook removes the notebook.
func (s *Service) DeleteNotebook(ctx context.Context, userID, notebookID uint) error {
	notebook, err := s.OwnedNotebook(ctx, userID, notebookID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&notebook).Error
}

// Overview returns the user's subjects and notebooks with counts for the
// library screen.
func (s *Service) Overview(ctx context.Context, userID uint) ([]SubjectSummary, []NotebookSummary, error) {
	subjects, err := s.ListSubjects(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var notebooks []Notebook
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&notebooks).Error; err != nil {
		return nil, nil, err
	}
	summaries := make([]NotebookSummary, 0, len(notebooks))
	for _, notebook := range notebooks {
		summary, err := s.notebookSummary(ctx, notebook)
		if err != nil {
			return nil, nil, err
		}
		summaries = append(summaries, summary)
	}
	return subjects, summaries, nil
}

// OwnedNotebook loads a notebook only when it belongs to the user.
func (s *Service) OwnedNotebook(ctx context.Context, userID, notebookID uint) (Notebook, error) {
	var notebook Notebook
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notebookID, userID).
		Take(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notebook{}, ErrNotebookNotFound
	}
	if err != nil {
		return Notebook{}, err
	}
	return notebook, nil
}

func (s *Service) ownedSubject(ctx context.Context, userID, subjectID uint) (Subject, error) {
	var subject Subject
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", subjectID, userID).
		Take(&subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Subject{}, ErrSubjectNotFound
	}
	if err != nil {
		return Subject{}, err
	}
	return subject, nil
}

func (s *Service) notebookSummary(ctx context.Context, notebook Notebook) (NotebookSummary, error) {
	var count int64
	row := s.db.WithContext(ctx).Table("notes").
		Select("COUNT(id) AS note_count, MAX(updated_at) AS last_updated").
		Where("notebook_id = ?", notebook.ID).
		Row()
	var lastUpdated *time.Time
	if err := row.Scan(&count, &lastUpdated); err != nil {
		return NotebookSummary{}, err
	}
	summary := NotebookSummary{Notebook: notebook, NoteCount: count}
	if lastUpdated != nil {
		summary.LastUpdatedAt = *lastUpdated
	}
	return summary, nil
}
