package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	importapp "github.com/salesplan/backend/internal/application/import"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

const exportHeader = "Opportunity Name,Stage,Opportunity Owner,Link\n"

type importServer struct {
	router *gin.Engine
	db     *gorm.DB
	sam    uuid.UUID
}

func newImportServer(t *testing.T) *importServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), persistence.GormConfig(nil, false))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	sam := models.NewUserModel("Sam Lee", "sales")
	require.NoError(t, db.Create(sam).Error)

	batches := persistence.NewGormImportBatchRepository(db)
	rows := persistence.NewGormStagingRowRepository(db)
	opps := persistence.NewGormOpportunityRepository(db)
	leads := persistence.NewGormLeadRepository(db)
	golives := persistence.NewGormGoLiveRepository(db)
	users := persistence.NewGormUserRepository(db)

	h := NewImportHandler(
		importapp.NewImportService(batches, rows, opps, users, importapp.Config{MaxFileSize: 1 << 20, MaxRows: 1000}),
		importapp.NewCommitEngine(batches, rows, opps, leads, 0),
		importapp.NewRollbackEngine(batches, opps, leads, golives),
		4096,
	)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return &importServer{router: r, db: db, sam: sam.ID}
}

func (s *importServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp dto.Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (s *importServer) json(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func uploadRequest(t *testing.T, csv string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *importServer) upload(t *testing.T, rows string) string {
	t.Helper()
	w, resp := s.do(t, uploadRequest(t, exportHeader+rows, nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp.Data.(map[string]any)["id"].(string)
}

func dataMap(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestImportHandler_UploadCommitRollback(t *testing.T) {
	s := newImportServer(t)
	id := s.upload(t,
		"Globex,Closed Won,Jane Doe,https://crm.example.com/opp/OPP-9\n"+
			"Initech,Proposal,Sam Lee,https://crm.example.com/opp/OPP-10\n")

	w, resp := s.json(t, http.MethodGet, "/api/v1/imports/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, dataMap(t, resp)["id"])

	w, resp = s.json(t, http.MethodGet, "/api/v1/imports/"+id+"/rows?match_status=new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 2)

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := dataMap(t, resp)
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, float64(2), result["inserted"])

	w, resp = s.json(t, http.MethodGet, "/api/v1/imports/"+id+"/rollback-preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["opportunities_to_delete"])

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rolled_back", dataMap(t, resp)["status"])

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.ErrCodeImportAlreadyRolledBack, resp.Error.Code)

	w, resp = s.json(t, http.MethodGet, "/api/v1/imports?status=rolled_back", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestImportHandler_UploadErrors(t *testing.T) {
	s := newImportServer(t)

	t.Run("schema", func(t *testing.T) {
		w, resp := s.do(t, uploadRequest(t, "Name,Stage\nAcme,Proposal\n", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "ERR_IMPORT_SCHEMA", resp.Error.Code)
		assert.Contains(t, resp.Error.Details, "missing")
	})

	t.Run("too large", func(t *testing.T) {
		big := exportHeader + strings.Repeat("Acme,Proposal,Sam Lee,https://crm.example.com/opp/OPP-1\n", 100)
		w, resp := s.do(t, uploadRequest(t, big, nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.NotEmpty(t, resp.Error.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w, _ := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad actor", func(t *testing.T) {
		req := uploadRequest(t, exportHeader+"Acme,Proposal,Sam Lee,https://crm.example.com/opp/OPP-1\n", nil)
		req.Header.Set(UserIDHeader, "operator-1")
		w, resp := s.do(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
	})

	t.Run("second open batch", func(t *testing.T) {
		s.upload(t, "Acme,Proposal,Sam Lee,https://crm.example.com/opp/OPP-1\n")
		w, resp := s.do(t, uploadRequest(t, exportHeader+"Acme,Proposal,Sam Lee,https://crm.example.com/opp/OPP-2\n", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeImportBatchOpen, resp.Error.Code)
		assert.Contains(t, resp.Error.Details, "batch_id")
	})
}

func TestImportHandler_ReviewAndAssign(t *testing.T) {
	s := newImportServer(t)
	id := s.upload(t,
		"Acme,Proposal,Hans Müller,https://crm.example.com/opp/OPP-1\n"+
			"Initech,Proposal,Sam Lee,https://crm.example.com/opp/OPP-2\n")

	w, resp := s.json(t, http.MethodGet, "/api/v1/imports/"+id+"/rows?match_status=conflict", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := resp.Data.([]any)
	require.Len(t, rows, 1)
	rowID := rows[0].(map[string]any)["id"].(string)

	w, resp = s.json(t, http.MethodPut, "/api/v1/imports/"+id+"/rows/"+rowID+"/selection",
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	w, _ = s.json(t, http.MethodPut, "/api/v1/imports/"+id+"/rows/"+rowID+"/selection",
		map[string]any{"selected": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/commit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeImportOwnerUnresolved, resp.Error.Code)
	assert.Equal(t, rowID, resp.Error.Details["row_id"])
	assert.Equal(t, "OPP-1", resp.Error.Details["external_id"])

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/assignments/owner",
		map[string]any{"owner_name": "Hans Müller", "user_id": s.sam.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), dataMap(t, resp)["assigned"])

	w, resp = s.json(t, http.MethodPut, "/api/v1/imports/"+id+"/selection",
		map[string]any{"selected": false, "match_status": "new"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["affected"])

	w, _ = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/discard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = s.json(t, http.MethodPost, "/api/v1/imports/"+id+"/rematch", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.ErrCodeImportBatchNotOpen, resp.Error.Code)
}

func TestImportHandler_StreamedCommit(t *testing.T) {
	s := newImportServer(t)
	id := s.upload(t,
		"Globex,Closed Won,Jane Doe,https://crm.example.com/opp/OPP-9\n"+
			"Initech,Proposal,Sam Lee,https://crm.example.com/opp/OPP-10\n")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+id+"/commit", nil)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{commitEventProgress, commitEventProgress, commitEventCompleted}, events)
}

func TestImportHandler_BadIDs(t *testing.T) {
	s := newImportServer(t)

	w, resp := s.json(t, http.MethodGet, "/api/v1/imports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	w, resp = s.json(t, http.MethodGet, "/api/v1/imports/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)

	w, resp = s.json(t, http.MethodGet, "/api/v1/imports/open", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}

func TestImportHandler_ExportNotArchived(t *testing.T) {
	s := newImportServer(t)
	id := s.upload(t, "Acme,Proposal,Sam Lee,https://crm.example.com/opp/OPP-1\n")

	w, resp := s.json(t, http.MethodGet, "/api/v1/imports/"+id+"/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeImportNotArchived, resp.Error.Code)
}
