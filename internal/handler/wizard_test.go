package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/repository/memory"
	"github.com/eduadocs/backend/internal/service"
	"github.com/eduadocs/backend/internal/service/draftgen"
	"github.com/eduadocs/backend/internal/service/exporter"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/wizard"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingGenerator struct{}

func (failingGenerator) GenerateDraft(context.Context, domain.GenerationRequest) (string, error) {
	return "", errors.New("provider unavailable")
}

func setupRouter(t *testing.T, generator wizard.DraftGenerator) *gin.Engine {
	return setupRouterWithLimits(t, generator, ingest.Options{MaxFiles: 5, MaxFileBytes: 1 << 20})
}

func setupRouterWithLimits(t *testing.T, generator wizard.DraftGenerator, limits ingest.Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := eventbus.NewWizardEventBus()
	svc := service.NewWizardService(
		memory.NewSessionRepository(time.Hour, time.Hour),
		wizard.NewController(generator, exporter.New()),
		ingest.New(limits),
		bus,
	)

	r := gin.New()
	NewWizardHandler(svc, bus, domain.FormatMarkdown).WithUploadLimits(limits).RegisterRoutes(r.Group("/api"))
	return r
}

func uploadFile(t *testing.T, r *gin.Engine, id, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeSession(t, w)
	require.Equal(t, domain.StepInput, resp.Step)
	return resp.ID
}

var validForm = map[string]any{
	"document_type": "Summary",
	"subject":       "Biology",
	"topic":         "Photosynthesis",
	"audience":      "High School",
	"language":      "English",
	"llm_provider":  "OpenAI",
}

func TestWizardHandlerFullFlow(t *testing.T) {
	r := setupRouter(t, draftgen.NewTemplateGenerator())
	id := createSession(t, r)
	base := "/api/sessions/" + id

	w := do(t, r, http.MethodPost, base+"/submit", validForm)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeSession(t, w)
	assert.Equal(t, domain.StepDraft, resp.Step)
	assert.Contains(t, resp.GeneratedDraft, "Photosynthesis")
	assert.True(t, resp.Editable)
	assert.ElementsMatch(t, []domain.Action{domain.ActionRegenerate, domain.ActionSave, domain.ActionApprove, domain.ActionBack}, resp.AvailableActions)

	w = do(t, r, http.MethodPost, base+"/save", map[string]string{"content": "Edited body"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Edited body", decodeSession(t, w).GeneratedDraft)

	w = do(t, r, http.MethodPost, base+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeSession(t, w)
	assert.Equal(t, domain.StepApproved, resp.Step)
	assert.Equal(t, "Edited body", resp.ApprovedContent)
	assert.False(t, resp.Editable)

	w = do(t, r, http.MethodPost, base+"/generate", map[string]any{"format": "md"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeSession(t, w)
	assert.Equal(t, domain.StepFinal, resp.Step)
	require.NotNil(t, resp.Artifact)
	assert.Equal(t, "Biology_Photosynthesis.md", resp.Artifact.Filename)
	assert.Empty(t, resp.Artifact.Content)

	w = do(t, r, http.MethodGet, base+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Biology_Photosynthesis.md"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, w.Body.String(), "Edited body")

	w = do(t, r, http.MethodPost, base+"/create-new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeSession(t, w)
	assert.Equal(t, domain.StepInput, resp.Step)
	assert.Nil(t, resp.Form)
	assert.Nil(t, resp.Artifact)
}

func TestWizardHandlerErrorMapping(t *testing.T) {
	r := setupRouter(t, draftgen.NewTemplateGenerator())
	id := createSession(t, r)
	base := "/api/sessions/" + id

	// 缺少必填字段
	w := do(t, r, http.MethodPost, base+"/submit", map[string]any{"subject": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "topic")
	assert.Equal(t, "input", body["state"].(map[string]any)["generation_step"])

	// 当前步骤不允许的动作
	w = do(t, r, http.MethodPost, base+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, base+"/download", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/sessions/missing/back", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, base+"/save", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWizardHandlerGeneratorFailure(t *testing.T) {
	r := setupRouter(t, failingGenerator{})
	id := createSession(t, r)

	w := do(t, r, http.MethodPost, "/api/sessions/"+id+"/submit", validForm)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, r, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, domain.StepInput, resp.Step)
	assert.Nil(t, resp.Form)
}

func TestWizardHandlerUpload(t *testing.T) {
	r := setupRouter(t, draftgen.NewTemplateGenerator())
	id := createSession(t, r)

	upload := func(name string, data []byte) *httptest.ResponseRecorder {
		return uploadFile(t, r, id, name, data)
	}

	w := upload("image.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload("notes.txt", []byte("Chlorophyll absorbs light.\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/sessions/"+id, nil)
	assert.True(t, decodeSession(t, w).DocumentsAvailable)

	w = do(t, r, http.MethodGet, "/api/sessions/"+id+"/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []domain.UploadedDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Name)
}

func TestWizardHandlerDeleteAndOptions(t *testing.T) {
	r := setupRouter(t, draftgen.NewTemplateGenerator())
	id := createSession(t, r)

	w := do(t, r, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var opts OptionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opts))
	assert.Equal(t, domain.Providers, opts.Providers)
	assert.Equal(t, domain.OutputFormats, opts.Formats)
	assert.Len(t, opts.Languages, len(domain.Languages))
}

func TestWizardHandlerUploadLimits(t *testing.T) {
	r := setupRouterWithLimits(t, draftgen.NewTemplateGenerator(), ingest.Options{MaxFiles: 1, MaxFileBytes: 16})
	id := createSession(t, r)

	// 单个文件超过大小限制，读取内容之前即被拒绝
	w := uploadFile(t, r, id, "notes.txt", bytes.Repeat([]byte("a"), 100))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ingest.ErrFileTooLarge.Error())

	// 整个请求体超过上限
	w = uploadFile(t, r, id, "big.txt", bytes.Repeat([]byte("a"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, r, http.MethodGet, "/api/sessions/"+id, nil)
	assert.False(t, decodeSession(t, w).DocumentsAvailable)
}
