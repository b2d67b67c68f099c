package server

import (
	"time"

	"github.com/atlasnotes/atlas/backend/internal/jobs"
	"github.com/atlasnotes/atlas/backend/internal/library"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/users"
	"github.com/gin-gonic/gin"
)

func formatTimePtr(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}

func serializeUser(user users.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func serializeSubject(summary library.SubjectSummary) gin.H {
	return gin.H{
		"id":             summary.Subject.ID,
		"name":           summary.Subject.Name,
		"notebook_count": summary.NotebookCount,
	}
}

func serializeSubjects(summaries []library.SubjectSummary) []gin.H {
	payload := make([]gin.H, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, serializeSubject(summary))
	}
	return payload
}

func serializeNotebookFields(notebook library.Notebook) gin.H {
	return gin.H{
		"id":         notebook.ID,
		"name":       notebook.Name,
		"color":      notebook.Color,
		"icon":       notebook.Icon,
		"is_inbox":   notebook.IsInbox,
		"inbox_type": notebook.InboxType,
		"subject_id": notebook.SubjectID,
	}
}

func serializeNotebook(summary library.NotebookSummary) gin.H {
	var lastUpdated interface{}
	if !summary.LastUpdatedAt.IsZero() {
		lastUpdated = summary.LastUpdatedAt.UTC().Format(time.RFC3339)
	}
	return gin.H{
		"id":           summary.Notebook.ID,
		"name":         summary.Notebook.Name,
		"color":        summary.Notebook.Color,
		"icon":         summary.Notebook.Icon,
		"is_inbox":     summary.Notebook.IsInbox,
		"inbox_type":   summary.Notebook.InboxType,
		"subject_id":   summary.Notebook.SubjectID,
		"note_count":   summary.NoteCount,
		"last_updated": lastUpdated,
	}
}

func serializeNotebooks(summaries []library.NotebookSummary) []gin.H {
	payload := make([]gin.H, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, serializeNotebook(summary))
	}
	return payload
}

func serializeNoteDetail(detail notes.NoteDetail) gin.H {
	cards := make([]gin.H, 0, len(detail.Cards))
	for _, card := range detail.Cards {
		cards = append(cards, gin.H{
			"id":       card.ID,
			"question": card.Question,
			"answer":   card.Answer,
		})
	}
	return gin.H{
		"id":             detail.Note.ID,
		"title":          detail.Note.Title,
		"device":         detail.Note.Device,
		"summary":        detail.Note.Summary,
		"ocr_text":       detail.Note.OCRText,
		"ocr_engine":     detail.Note.OCREngine,
		"ocr_confidence": detail.Note.OCRConfidence,
		"ocr_updated_at": formatTimePtr(detail.Note.OCRUpdatedAt),
		"subject_id":     detail.SubjectID,
		"subject_name":   detail.SubjectName,
		"notebook_id":    detail.NotebookID,
		"notebook_name":  detail.NotebookName,
		"created_at":     detail.Note.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     detail.Note.UpdatedAt.UTC().Format(time.RFC3339),
		"flashcards":     cards,
	}
}

func serializeStrokes(strokes []notes.Stroke) []gin.H {
	payload := make([]gin.H, 0, len(strokes))
	for _, stroke := range strokes {
		payload = append(payload, gin.H{
			"id":         stroke.ID,
			"payload":    stroke.Payload,
			"created_at": stroke.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return payload
}

func serializeJob(job jobs.Job) gin.H {
	return gin.H{
		"id":          job.ID,
		"note_id":     job.NoteID,
		"job_type":    job.JobType,
		"status":      string(job.Status),
		"error":       job.Error,
		"created_at":  job.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  job.UpdatedAt.UTC().Format(time.RFC3339),
		"started_at":  formatTimePtr(job.StartedAt),
		"finished_at": formatTimePtr(job.FinishedAt),
	}
}
