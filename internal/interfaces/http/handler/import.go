package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	importapp "github.com/salesplan/backend/internal/application/import"
	csvimport "github.com/salesplan/backend/internal/infrastructure/import"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Default upload limit when none is configured (10MB)
const defaultMaxUploadSize = 10 << 20

// SSE event names of a streamed commit
const (
	commitEventProgress  = "progress"
	commitEventCompleted = "completed"
	commitEventError     = "error"
)

// ImportHandler serves the import batch lifecycle: upload, review, commit,
// discard and rollback
type ImportHandler struct {
	BaseHandler
	service       *importapp.ImportService
	commit        *importapp.CommitEngine
	rollback      *importapp.RollbackEngine
	maxUploadSize int64
}

// NewImportHandler creates a new ImportHandler. maxUploadSize <= 0 uses the default.
func NewImportHandler(
	service *importapp.ImportService,
	commit *importapp.CommitEngine,
	rollback *importapp.RollbackEngine,
	maxUploadSize int64,
) *ImportHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &ImportHandler{
		service:       service,
		commit:        commit,
		rollback:      rollback,
		maxUploadSize: maxUploadSize,
	}
}

// RegisterRoutes mounts the import endpoints
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/imports")
	imports.POST("", h.Upload)
	imports.GET("", h.List)
	imports.GET("/open", h.GetOpen)
	imports.GET("/:id", h.Get)
	imports.GET("/:id/rows", h.ListRows)
	imports.PUT("/:id/rows/:rowId/selection", h.SetRowSelection)
	imports.PUT("/:id/rows/:rowId/assignee", h.AssignUser)
	imports.PUT("/:id/selection", h.BulkSelection)
	imports.POST("/:id/assignments/owner", h.AssignByOwner)
	imports.POST("/:id/assignments/conflicts", h.AssignConflicts)
	imports.POST("/:id/rematch", h.Rematch)
	imports.POST("/:id/commit", h.Commit)
	imports.POST("/:id/discard", h.Discard)
	imports.GET("/:id/rollback-preview", h.RollbackPreview)
	imports.POST("/:id/rollback", h.Rollback)
	imports.GET("/:id/export", h.Export)
}

// Upload stages an export file as the new open batch.
// POST /imports (multipart: file, encoding, delimiter)
func (h *ImportHandler) Upload(c *gin.Context) {
	var form dto.UploadForm
	if err := c.ShouldBind(&form); err != nil {
		h.BindingError(c, err)
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxUploadSize))
		return
	}
	data, err := readUpload(file, h.maxUploadSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	batch, err := h.service.Upload(c.Request.Context(), importapp.UploadInput{
		FileName:   header.Filename,
		Data:       data,
		Encoding:   form.Encoding,
		Delimiter:  form.Delimiter,
		UploadedBy: actor,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, batch)
}

func readUpload(file multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, csvimport.ErrFileTooLarge
	}
	return data, nil
}

// List returns the batch history, newest first.
// GET /imports?status=&page=&page_size=
func (h *ImportHandler) List(c *gin.Context) {
	var q importapp.BatchListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}
	page, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.TotalCount, page.Page, page.PageSize)
}

// GetOpen returns the open batch with its row summary.
// GET /imports/open
func (h *ImportHandler) GetOpen(c *gin.Context) {
	batch, err := h.service.GetOpen(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Get returns one batch.
// GET /imports/:id
func (h *ImportHandler) Get(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	batch, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// ListRows returns the staging rows of an open batch.
// GET /imports/:id/rows?match_status=
func (h *ImportHandler) ListRows(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	var q importapp.RowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}
	rows, err := h.service.ListRows(c.Request.Context(), id, q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// SetRowSelection selects or deselects one row.
// PUT /imports/:id/rows/:rowId/selection
func (h *ImportHandler) SetRowSelection(c *gin.Context) {
	batchID, rowID, ok := h.rowID(c)
	if !ok {
		return
	}
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	row, err := h.service.SetRowSelection(c.Request.Context(), batchID, rowID, *req.Selected)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// BulkSelection toggles every row of the batch, optionally one match status only.
// PUT /imports/:id/selection
func (h *ImportHandler) BulkSelection(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	var req dto.BulkSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	result, err := h.service.BulkSelection(c.Request.Context(), id, importapp.BulkSelectionInput{
		Selected:    *req.Selected,
		MatchStatus: req.MatchStatus,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AssignUser assigns a directory user to one row.
// PUT /imports/:id/rows/:rowId/assignee
func (h *ImportHandler) AssignUser(c *gin.Context) {
	batchID, rowID, ok := h.rowID(c)
	if !ok {
		return
	}
	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	row, err := h.service.AssignUser(c.Request.Context(), batchID, rowID, uuid.MustParse(req.UserID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, row)
}

// AssignByOwner assigns a user to every conflict row with the given export owner.
// POST /imports/:id/assignments/owner
func (h *ImportHandler) AssignByOwner(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	var req dto.AssignByOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	result, err := h.service.AssignByOwnerName(c.Request.Context(), id, req.OwnerName, uuid.MustParse(req.UserID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// AssignConflicts assigns a user to every remaining conflict row.
// POST /imports/:id/assignments/conflicts
func (h *ImportHandler) AssignConflicts(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	result, err := h.service.AssignAllConflicts(c.Request.Context(), id, uuid.MustParse(req.UserID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Rematch re-runs owner matching against the current directory.
// POST /imports/:id/rematch
func (h *ImportHandler) Rematch(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	batch, err := h.service.Rematch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Discard closes the open batch without writing anything.
// POST /imports/:id/discard
func (h *ImportHandler) Discard(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	batch, err := h.service.Discard(c.Request.Context(), id, actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Commit writes the selected rows. Clients sending Accept: text/event-stream
// receive one "progress" event per row followed by "completed" or "error".
// POST /imports/:id/commit
func (h *ImportHandler) Commit(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if wantsEventStream(c) {
		h.streamCommit(c, id, actor)
		return
	}

	result, err := h.commit.Commit(c.Request.Context(), id, actor, nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// streamCommit runs the commit in the request goroutine and writes progress as
// server-sent events. A client disconnect does not stop the commit.
func (h *ImportHandler) streamCommit(c *gin.Context, id uuid.UUID, actor *uuid.UUID) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	send := func(event string, data any) {
		if ctx.Err() != nil {
			return
		}
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	result, err := h.commit.Commit(ctx, id, actor, func(p importapp.CommitProgress) {
		send(commitEventProgress, dto.CommitEvent{
			Completed:  p.Completed,
			Total:      p.Total,
			RowIndex:   p.RowIndex,
			ExternalID: p.ExternalID,
		})
	})
	if err != nil {
		_ = c.Error(err)
		apiErr := toAPIError(err)
		logger.GetGinLogger(c).Warn("streamed commit failed", zap.String("code", apiErr.Code), zap.Error(err))
		send(commitEventError, dto.ErrorInfo{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			RequestID: getRequestID(c),
			Details:   apiErr.Details,
		})
		return
	}
	send(commitEventCompleted, result)
}

// RollbackPreview lists what rolling back a completed batch would do.
// GET /imports/:id/rollback-preview
func (h *ImportHandler) RollbackPreview(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	preview, err := h.rollback.Preview(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// Rollback undoes a completed batch. Records that could not be cleaned up are
// listed in the result.
// POST /imports/:id/rollback
func (h *ImportHandler) Rollback(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	result, err := h.rollback.Rollback(c.Request.Context(), id, actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Export downloads the archived raw export of a batch.
// GET /imports/:id/export
func (h *ImportHandler) Export(c *gin.Context) {
	id, ok := h.batchID(c)
	if !ok {
		return
	}
	name, data, err := h.service.FetchExport(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *ImportHandler) batchID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindingError(c, err)
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}

func (h *ImportHandler) rowID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	var req dto.RowIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BindingError(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	return uuid.MustParse(req.ID), uuid.MustParse(req.RowID), true
}

func (h *ImportHandler) actor(c *gin.Context) (*uuid.UUID, bool) {
	id, err := actorID(c)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, UserIDHeader+" must be a UUID")
		return nil, false
	}
	return id, true
}
