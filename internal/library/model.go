package library

import "time"

const (
	// DefaultNotebookColor is applied when a client omits a color.
	DefaultNotebookColor = "#14b8a6"
	// DefaultNotebookIcon is applied when a client omits an icon.
	DefaultNotebookIcon = "Atom"
)

// Subject groups notebooks under a user-chosen name.
type Subject struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:190;not null"`
	UserID    uint      `gorm:"column:user_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Subject) TableName() string {
	return "subjects"
}

// Notebook holds notes and carries the owner column every note access
// is authorized against.
type Notebook struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:190;not null"`
	Color     string    `gorm:"column:color;size:32;not null;default:'#14b8a6'"`
	Icon      string    `gorm:"column:icon;size:64;not null;default:'Atom'"`
	IsInbox   bool      `gorm:"column:is_inbox;not null;default:false"`
	InboxType string    `gorm:"column:inbox_type;size:64"`
	UserID    uint      `gorm:"column:user_id;not null;index"`
	SubjectID uint      `gorm:"column:subject_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Notebook) TableName() string {
	return "notebooks"
}

// SubjectSummary pairs a subject with its notebook count.
type SubjectSummary struct {
	Subject       Subject
	NotebookCount int64
}

// NotebookSummary pairs a notebook with its note count and most recent
// note update time (zero when the notebook is empty).
type NotebookSummary struct {
	Notebook      Notebook
	NoteCount     int64
	LastUpdatedAt time.Time
}
