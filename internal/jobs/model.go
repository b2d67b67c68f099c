package jobs

import "time"

// JobTypeOCR is the only job type this service schedules.
const JobTypeOCR = "ocr"

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is created but not yet picked up.
	StatusQueued Status = "queued"
	// StatusRunning means execution has started.
	StatusRunning Status = "running"
	// StatusSucceeded is terminal: the note carries the OCR result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed is terminal: Error holds the failure detail.
	StatusFailed Status = "failed"
)

// Active reports whether the status blocks a new job for the same note.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// Terminal reports whether the job has finished, successfully or not.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job tracks one asynchronous OCR attempt against a note. Rows are immutable
// history once terminal and are never deleted.
type Job struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement"`
	NoteID     uint       `gorm:"column:note_id;not null;index"`
	UserID     uint       `gorm:"column:user_id;not null;index"`
	JobType    string     `gorm:"column:job_type;size:32;not null"`
	Status     Status     `gorm:"column:status;size:16;not null"`
	Error      string     `gorm:"column:error;type:text"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	StartedAt  *time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

// TableName provides the explicit table binding for GORM.
func (Job) TableName() string {
	return "ai_jobs"
}
