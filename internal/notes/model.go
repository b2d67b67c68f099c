package notes

import "time"

// Note is a single page of handwriting, uploads, and derived text. The OCR
// result columns are written exclusively by the job orchestrator; no user
// facing endpoint mutates them directly.
type Note struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string     `gorm:"column:title;size:190;not null;default:'Untitled Note'"`
	Device       string     `gorm:"column:device;size:64;not null;default:'unknown'"`
	Summary      string     `gorm:"column:summary;type:text;not null;default:''"`
	OCRText      string     `gorm:"column:ocr_text;type:text;not null;default:''"`
	OCREngine    string     `gorm:"column:ocr_engine;size:64;not null;default:''"`
	OCRConfidence *float64  `gorm:"column:ocr_confidence"`
	OCRUpdatedAt *time.Time `gorm:"column:ocr_updated_at"`
	NotebookID   uint       `gorm:"column:notebook_id;not null;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Stroke is one captured batch of freehand ink. Rows are append-only; replay
// order is (created_at, id) ascending.
type Stroke struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	NoteID    uint      `gorm:"column:note_id;not null;index"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Stroke) TableName() string {
	return "note_strokes"
}

// File records an upload attached to a note. The blob itself lives in the
// storage collaborator under StoredFilename.
type File struct {
	ID               uint      `gorm:"column:id;primaryKey;autoIncrement"`
	NoteID           uint      `gorm:"column:note_id;not null;index"`
	StoredFilename   string    `gorm:"column:stored_filename;size:190;not null"`
	OriginalFilename string    `gorm:"column:original_filename;size:320;not null"`
	ContentType      string    `gorm:"column:content_type;size:190;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (File) TableName() string {
	return "note_files"
}

// Flashcard is a question/answer pair derived from a note.
type Flashcard struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	NoteID    uint      `gorm:"column:note_id;not null;index"`
	Question  string    `gorm:"column:question;type:text;not null"`
	Answer    string    `gorm:"column:answer;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Flashcard) TableName() string {
	return "flashcards"
}

// NoteSummary pairs a note with its flashcard count for notebook listings.
type NoteSummary struct {
	Note           Note
	FlashcardCount int64
}

// NoteDetail bundles a note with its library context and flashcards.
type NoteDetail struct {
	Note         Note
	SubjectID    uint
	SubjectName  string
	NotebookID   uint
	NotebookName string
	Cards        []Flashcard
}
