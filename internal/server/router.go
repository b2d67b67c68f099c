package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/jobs"
	"github.com/atlasnotes/atlas/backend/internal/library"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/storage"
	"github.com/atlasnotes/atlas/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userIDContextKey = "atlas_user_id"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingUsersService = errors.New("users service dependency required")
	errMissingLibrary      = errors.New("library service dependency required")
	errMissingNotesService = errors.New("notes service dependency required")
	errMissingJobsService  = errors.New("jobs service dependency required")
	errMissingBlobStore    = errors.New("blob store dependency required")
)

// TokenManager issues and validates the bearer tokens used by all protected
// routes.
type TokenManager interface {
	IssueToken(userID uint) (string, int64, error)
	ValidateToken(token string) (uint, error)
}

// Dependencies wires the HTTP surface to the services beneath it.
type Dependencies struct {
	TokenManager TokenManager
	Users        *users.Service
	Library      *library.Service
	Notes        *notes.Service
	Jobs         *jobs.Service
	Blobs        storage.BlobStore
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Library == nil {
		return nil, errMissingLibrary
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Jobs == nil {
		return nil, errMissingJobsService
	}
	if deps.Blobs == nil {
		return nil, errMissingBlobStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:  deps.TokenManager,
		users:   deps.Users,
		library: deps.Library,
		notes:   deps.Notes,
		jobs:    deps.Jobs,
		blobs:   deps.Blobs,
		logger:  logger,
	}

	api := router.Group("/api")
	api.POST("/auth/signup", handler.handleSignup)
	api.POST("/auth/login", handler.handleLogin)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/auth/change-password", handler.handleChangePassword)

	protected.GET("/library", handler.handleLibrary)
	protected.GET("/subjects", handler.handleListSubjects)
	protected.POST("/subjects", handler.handleCreateSubject)
	protected.PATCH("/subjects/:id", handler.handleUpdateSubject)
	protected.DELETE("/subjects/:id", handler.handleDeleteSubject)
	protected.GET("/subjects/:id/notebooks", handler.handleSubjectNotebooks)
	protected.POST("/subjects/:id/notebooks", handler.handleCreateNotebook)

	protected.GET("/notebooks/inbox", handler.handleInboxNotebook)
	protected.PATCH("/notebooks/:id", handler.handleUpdateNotebook)
	protected.DELETE("/notebooks/:id", handler.handleDeleteNotebook)
	protected.GET("/notebooks/:id/notes", handler.handleNotebookNotes)

	protected.POST("/notes", handler.handleCreateNote)
	protected.POST("/device/notes", handler.handleCreateDeviceNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.POST("/notes/:id/strokes", handler.handleAddStrokes)
	protected.GET("/notes/:id/strokes", handler.handleListStrokes)
	protected.POST("/notes/:id/upload", handler.handleUpload)
	protected.POST("/notes/:id/flashcards", handler.handleReplaceFlashcards)

	protected.POST("/notes/:id/ocr/enqueue", handler.handleEnqueueOCR)
	protected.GET("/notes/:id/ocr", handler.handleGetOCR)

	return router, nil
}

type httpHandler struct {
	tokens  TokenManager
	users   *users.Service
	library *library.Service
	notes   *notes.Service
	jobs    *jobs.Service
	blobs   storage.BlobStore
	logger  *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) currentUserID(c *gin.Context) uint {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0
	}
	userID, _ := value.(uint)
	return userID
}

func pathID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return uint(parsed), true
}

// failFromError maps service sentinels onto HTTP statuses. Anything
// unrecognized is a 500.
func (h *httpHandler) failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
	case errors.Is(err, library.ErrSubjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subject not found"})
	case errors.Is(err, library.ErrNotebookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Notebook not found"})
	case errors.Is(err, library.ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
	case errors.Is(err, library.ErrUnsupportedInboxType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported inbox type"})
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
	case errors.Is(err, users.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password is too short"})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ---------------------------------------------------------------
// Auth
// ---------------------------------------------------------------

type authPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *httpHandler) issueTokenResponse(c *gin.Context, user users.User) {
	token, _, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         serializeUser(user),
	})
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var payload authPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.users.Signup(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	h.issueTokenResponse(c, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var payload authPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.users.Login(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	h.issueTokenResponse(c, user)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), h.currentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": serializeUser(user)})
}

type changePasswordPayload struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var payload changePasswordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.users.ChangePassword(c.Request.Context(), h.currentUserID(c),
		payload.CurrentPassword, payload.NewPassword)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---------------------------------------------------------------
// Library
// ---------------------------------------------------------------

func (h *httpHandler) handleLibrary(c *gin.Context) {
	subjects, notebooks, err := h.library.Overview(c.Request.Context(), h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subjects":  serializeSubjects(subjects),
		"notebooks": serializeNotebooks(notebooks),
	})
}

func (h *httpHandler) handleListSubjects(c *gin.Context) {
	subjects, err := h.library.ListSubjects(c.Request.Context(), h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": serializeSubjects(subjects)})
}

type subjectPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateSubject(c *gin.Context) {
	var payload subjectPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	subject, err := h.library.CreateSubject(c.Request.Context(), h.currentUserID(c), payload.Name)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": subject.ID, "name": subject.Name})
}

func (h *httpHandler) handleUpdateSubject(c *gin.Context) {
	subjectID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subject not found"})
		return
	}
	var payload subjectPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	subject, err := h.library.RenameSubject(c.Request.Context(), h.currentUserID(c), subjectID, payload.Name)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": subject.ID, "name": subject.Name})
}

func (h *httpHandler) handleDeleteSubject(c *gin.Context) {
	subjectID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subject not found"})
		return
	}
	if err := h.library.DeleteSubject(c.Request.Context(), h.currentUserID(c), subjectID); err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSubjectNotebooks(c *gin.Context) {
	subjectID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subject not found"})
		return
	}
	subject, notebooks, err := h.library.SubjectNotebooks(c.Request.Context(), h.currentUserID(c), subjectID)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject":   gin.H{"id": subject.ID, "name": subject.Name},
		"notebooks": serializeNotebooks(notebooks),
	})
}

type notebookPayload struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Icon  *string `json:"icon"`
}

func (h *httpHandler) handleCreateNotebook(c *gin.Context) {
	subjectID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subject not found"})
		return
	}
	var payload notebookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, color, icon := "", "", ""
	if payload.Name != nil {
		name = *payload.Name
	}
	if payload.Color != nil {
		color = *payload.Color
	}
	if payload.Icon != nil {
		icon = *payload.Icon
	}
	notebook, err := h.library.CreateNotebook(c.Request.Context(), h.currentUserID(c), subjectID, name, color, icon)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializeNotebookFields(notebook))
}

func (h *httpHandler) handleInboxNotebook(c *gin.Context) {
	inboxType := c.Query("type")
	notebook, err := h.library.EnsureInbox(c.Request.Context(), h.currentUserID(c), inboxType)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializeNotebookFields(notebook))
}

func (h *httpHandler) handleUpdateNotebook(c *gin.Context) {
	notebookID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notebook not found"})
		return
	}
	var payload notebookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	notebook, err := h.library.UpdateNotebook(c.Request.Context(), h.currentUserID(c), notebookID, library.NotebookUpdate{
		Name:  payload.Name,
		Color: payload.Color,
		Icon:  payload.Icon,
	})
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializeNotebookFields(notebook))
}

func (h *httpHandler) handleDeleteNotebook(c *gin.Context) {
	notebookID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notebook not found"})
		return
	}
	if err := h.library.DeleteNotebook(c.Request.Context(), h.currentUserID(c), notebookID); err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleNotebookNotes(c *gin.Context) {
	notebookID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notebook not found"})
		return
	}
	summaries, err := h.notes.ListNotebookNotes(c.Request.Context(), h.currentUserID(c), notebookID)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	payload := make([]gin.H, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, gin.H{
			"id":              summary.Note.ID,
			"title":           summary.Note.Title,
			"updated_at":      summary.Note.UpdatedAt.Format(time.RFC3339),
			"flashcard_count": summary.FlashcardCount,
		})
	}
	c.JSON(http.StatusOK, payload)
}

// ---------------------------------------------------------------
// Notes
// ---------------------------------------------------------------

type notePayload struct {
	Title      string `json:"title"`
	Device     string `json:"device"`
	NotebookID uint   `json:"notebook_id"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.notes.Create(c.Request.Context(), h.currentUserID(c), payload.Title, payload.Device, payload.NotebookID)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": note.ID, "title": note.Title})
}

type deviceNotePayload struct {
	Title      string `json:"title"`
	DeviceType string `json:"device_type" binding:"required"`
}

func (h *httpHandler) handleCreateDeviceNote(c *gin.Context) {
	var payload deviceNotePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device type is required"})
		return
	}
	note, notebookID, err := h.notes.CreateForDevice(c.Request.Context(), h.currentUserID(c), payload.Title, payload.DeviceType)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note_id": note.ID, "notebook_id": notebookID})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	detail, err := h.notes.Detail(c.Request.Context(), noteID, h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializeNoteDetail(detail))
}

func (h *httpHandler) handleAddStrokes(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.notes.AppendStrokes(c.Request.Context(), noteID, h.currentUserID(c), string(body)); err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListStrokes(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	strokes, err := h.notes.ListStrokes(c.Request.Context(), noteID, h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, serializeStrokes(strokes))
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.failFromError(c, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.failFromError(c, err)
		return
	}

	stored := strings.ReplaceAll(uuid.NewString(), "-", "") + filepath.Ext(fileHeader.Filename)
	if err := h.blobs.Save(stored, content); err != nil {
		h.failFromError(c, err)
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	err = h.notes.AttachFile(c.Request.Context(), noteID, h.currentUserID(c),
		stored, fileHeader.Filename, contentType)
	if err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type flashcardsPayload struct {
	Cards []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"cards"`
}

func (h *httpHandler) handleReplaceFlashcards(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	var payload flashcardsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	cards := make([]notes.Flashcard, 0, len(payload.Cards))
	for _, card := range payload.Cards {
		cards = append(cards, notes.Flashcard{Question: card.Question, Answer: card.Answer})
	}
	if err := h.notes.ReplaceFlashcards(c.Request.Context(), noteID, h.currentUserID(c), cards); err != nil {
		h.failFromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---------------------------------------------------------------
// OCR
// ---------------------------------------------------------------

func (h *httpHandler) handleEnqueueOCR(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	job, created, err := h.jobs.Enqueue(c.Request.Context(), noteID, h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"job": serializeJob(job)})
}

func (h *httpHandler) handleGetOCR(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	note, job, err := h.jobs.Query(c.Request.Context(), noteID, h.currentUserID(c))
	if err != nil {
		h.failFromError(c, err)
		return
	}
	response := gin.H{
		"note_id":        note.ID,
		"ocr_text":       note.OCRText,
		"ocr_engine":     note.OCREngine,
		"ocr_confidence": note.OCRConfidence,
		"ocr_updated_at": formatTimePtr(note.OCRUpdatedAt),
		"job":            nil,
	}
	if job != nil {
		response["job"] = serializeJob(*job)
	}
	c.JSON(http.StatusOK, response)
}
