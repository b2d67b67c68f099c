package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/atlasnotes/atlas/backend/internal/auth"
	"github.com/atlasnotes/atlas/backend/internal/ink"
	"github.com/atlasnotes/atlas/backend/internal/jobs"
	"github.com/atlasnotes/atlas/backend/internal/library"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/ocr"
	"github.com/atlasnotes/atlas/backend/internal/server"
	"github.com/atlasnotes/atlas/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jsonContentType = "application/json"

// slowEngine records the image it was given and answers after a short delay
// so the test observes the job passing through its active states.
type slowEngine struct {
	imagePath string
}

func (e *slowEngine) Name() string    { return "integration" }
func (e *slowEngine) Available() bool { return true }

func (e *slowEngine) Run(imagePath string) (string, *float64, error) {
	e.imagePath = imagePath
	time.Sleep(20 * time.Millisecond)
	confidence := 0.5
	return "INTEGRATION TEXT", &confidence, nil
}

func TestOCRPipelineEndToEnd(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:atlas_integration?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&users.User{}, &library.Subject{}, &library.Notebook{},
		&notes.Note{}, &notes.Stroke{}, &notes.File{}, &notes.Flashcard{},
		&jobs.Job{},
	); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	libraryService, err := library.NewService(library.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build library service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Seeder: libraryService, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Library: libraryService, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build notes service: %v", err)
	}

	engine := &slowEngine{}
	registry := ocr.NewRegistry(zap.NewNop())
	registry.Register(engine)

	runner := jobs.NewRunner(1, 4, zap.NewNop())
	defer runner.Close()

	jobsService, err := jobs.NewService(jobs.ServiceConfig{
		Database:   db,
		Notes:      notesService,
		Renderer:   &ink.Renderer{WorkDir: testContext.TempDir()},
		Engines:    registry,
		EngineName: engine.Name(),
		Tasks:      runner,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build jobs service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte("integration-secret"),
			TokenTTL:      time.Hour,
		}),
		Users:   usersService,
		Library: libraryService,
		Notes:   notesService,
		Jobs:    jobsService,
		Blobs:   discardBlobs{},
		Logger:  zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	token := postForToken(testContext, testServer.URL+"/api/auth/signup", map[string]string{
		"email":    "integration@example.com",
		"password": "integration-pass",
	})

	noteBody := postJSON(testContext, testServer.URL+"/api/notes", token, map[string]any{
		"title":  "Whiteboard photo",
		"device": "tablet",
	})
	noteID := int(noteBody["id"].(float64))

	strokePayload := map[string]any{
		"strokes": []any{
			map[string]any{
				"points": []any{
					map[string]any{"x": 0, "y": 0},
					map[string]any{"x": 40, "y": 10},
					map[string]any{"x": 80, "y": 0},
				},
				"width": 3,
			},
		},
	}
	postJSON(testContext, fmt.Sprintf("%s/api/notes/%d/strokes", testServer.URL, noteID), token, strokePayload)

	enqueueResp := doRequest(testContext, http.MethodPost,
		fmt.Sprintf("%s/api/notes/%d/ocr/enqueue", testServer.URL, noteID), token, nil)
	if enqueueResp.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected enqueue status: %d", enqueueResp.StatusCode)
	}
	enqueueResp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	var final map[string]any
	for {
		resp := doRequest(testContext, http.MethodGet,
			fmt.Sprintf("%s/api/notes/%d/ocr", testServer.URL, noteID), token, nil)
		body := decodeResponse(testContext, resp)

		job, _ := body["job"].(map[string]any)
		if job == nil {
			testContext.Fatalf("expected a job in the OCR status response")
		}
		status, _ := job["status"].(string)
		if status == string(jobs.StatusSucceeded) {
			final = body
			break
		}
		if status == string(jobs.StatusFailed) {
			testContext.Fatalf("job failed: %v", job["error"])
		}
		if time.Now().After(deadline) {
			testContext.Fatalf("job did not finish in time, last status %q", status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if final["ocr_text"] != "INTEGRATION TEXT" {
		testContext.Fatalf("unexpected OCR text: %v", final["ocr_text"])
	}
	if final["ocr_engine"] != "integration" {
		testContext.Fatalf("unexpected OCR engine: %v", final["ocr_engine"])
	}
	if final["ocr_confidence"] != 0.5 {
		testContext.Fatalf("unexpected OCR confidence: %v", final["ocr_confidence"])
	}
	if final["ocr_updated_at"] == nil {
		testContext.Fatalf("expected an OCR timestamp")
	}

	if engine.imagePath == "" {
		testContext.Fatalf("engine never received a rendered image")
	}
	if _, err := os.Stat(engine.imagePath); err != nil {
		testContext.Fatalf("rendered image missing: %v", err)
	}
}

type discardBlobs struct{}

func (discardBlobs) Save(storedName string, content []byte) error { return nil }

func postForToken(testContext *testing.T, url string, payload map[string]string) string {
	testContext.Helper()
	body, _ := json.Marshal(payload)
	resp, err := http.Post(url, jsonContentType, bytes.NewReader(body))
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	decoded := decodeResponse(testContext, resp)
	token, _ := decoded["access_token"].(string)
	if token == "" {
		testContext.Fatalf("expected access token, got %v", decoded)
	}
	return token
}

func postJSON(testContext *testing.T, url, token string, payload any) map[string]any {
	testContext.Helper()
	resp := doRequest(testContext, http.MethodPost, url, token, payload)
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		testContext.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, raw)
	}
	return decodeResponse(testContext, resp)
}

func doRequest(testContext *testing.T, method, url, token string, payload any) *http.Response {
	testContext.Helper()
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			testContext.Fatalf("failed to encode payload: %v", err)
		}
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeResponse(testContext *testing.T, resp *http.Response) map[string]any {
	testContext.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		testContext.Fatalf("failed to read body: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		testContext.Fatalf("failed to decode %q: %v", raw, err)
	}
	return decoded
}
