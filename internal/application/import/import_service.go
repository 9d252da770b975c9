package importapp

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
	csvimport "github.com/salesplan/backend/internal/infrastructure/import"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const serviceName = "ImportService"

// Config bounds what an upload may contain
type Config struct {
	MaxFileSize     int64
	MaxRows         int
	DefaultEncoding string
}

// ServiceOption configures the import services
type ServiceOption func(*options)

type options struct {
	archive ExportArchive
	events  shared.EventPublisher
	metrics *telemetry.ImportMetrics
	logger  *zap.Logger
}

func defaultOptions() options {
	return options{logger: zap.NewNop()}
}

// WithArchive stores every uploaded export
func WithArchive(a ExportArchive) ServiceOption {
	return func(o *options) { o.archive = a }
}

// WithEventPublisher publishes batch lifecycle events after they were persisted
func WithEventPublisher(p shared.EventPublisher) ServiceOption {
	return func(o *options) { o.events = p }
}

// WithMetrics records import metrics
func WithMetrics(m *telemetry.ImportMetrics) ServiceOption {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(l *zap.Logger) ServiceOption {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func (o *options) log(ctx context.Context) *logger.ContextLogger {
	if l, ok := ctx.Value(logger.LoggerKey).(*zap.Logger); ok {
		return logger.WithLogger(ctx, l)
	}
	return logger.WithLogger(ctx, o.logger)
}

// publish hands the recorded events of a persisted batch to the event bus
func (o *options) publish(ctx context.Context, batch *bulk.ImportBatch) {
	events := batch.GetDomainEvents()
	batch.ClearDomainEvents()
	if o.events == nil || len(events) == 0 {
		return
	}
	if err := o.events.Publish(ctx, events...); err != nil {
		o.log(ctx).Warn("failed to publish batch events", zap.Error(err))
	}
}

// ImportService stages uploaded exports and serves the operator's review
// actions on the open batch
type ImportService struct {
	batches bulk.ImportBatchRepository
	rows    bulk.StagingRowRepository
	opps    crm.OpportunityRepository
	users   crm.UserRepository
	cfg     Config
	options
}

// NewImportService creates a new ImportService
func NewImportService(
	batches bulk.ImportBatchRepository,
	rows bulk.StagingRowRepository,
	opps crm.OpportunityRepository,
	users crm.UserRepository,
	cfg Config,
	opts ...ServiceOption,
) *ImportService {
	s := &ImportService{
		batches: batches,
		rows:    rows,
		opps:    opps,
		users:   users,
		cfg:     cfg,
		options: defaultOptions(),
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s
}

// Upload parses an export, matches it against the directory and the
// permanent store, and stages it as the new open batch. Nothing is persisted
// when parsing fails.
func (s *ImportService) Upload(ctx context.Context, in UploadInput) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Upload",
		telemetry.WithAttribute(telemetry.SpanAttrFileName, in.FileName),
		telemetry.WithAttribute(telemetry.SpanAttrFileSize, len(in.Data)),
	)
	defer span.End()

	if s.cfg.MaxFileSize > 0 && int64(len(in.Data)) > s.cfg.MaxFileSize {
		telemetry.RecordError(span, csvimport.ErrFileTooLarge)
		return nil, csvimport.ErrFileTooLarge
	}

	// fail fast; CreateOpen enforces the invariant atomically
	if open, err := s.batches.FindOpen(ctx); err == nil {
		return nil, &bulk.OpenBatchExistsError{BatchID: open.ID}
	} else if !errors.Is(err, shared.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, err
	}

	parser, err := s.parser(in)
	if err != nil {
		return nil, err
	}
	parsed, err := parser.Parse(in.Data)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Info("export rejected",
			zap.String("file_name", in.FileName),
			zap.String("code", csvimport.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}
	if unknown := parsed.UnknownStages(); len(unknown) > 0 {
		s.log(ctx).Warn("export carries stages outside the pipeline vocabulary",
			zap.String("file_name", in.FileName),
			zap.Strings("stages", unknown),
		)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEncoding, parsed.Encoding,
		telemetry.SpanAttrRowCount, len(parsed.Records),
	)

	existing, err := s.opps.FindByExternalIDs(ctx, externalIDs(parsed.Records))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load existing opportunities: %w", err)
	}
	directory, err := s.users.FindAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load user directory: %w", err)
	}

	batch, err := bulk.NewImportBatch(in.FileName, int64(len(in.Data)), in.UploadedBy)
	if err != nil {
		return nil, err
	}
	rows := bulk.NewMatcher(directory).Match(batch, parsed.Records, existing)
	batch.Staged(parsed.Encoding, string(parsed.Delimiter), len(rows))
	telemetry.SetAttribute(span, telemetry.SpanAttrBatchID, batch.ID.String())

	if s.archive != nil {
		key, err := s.archive.Store(ctx, batch.ID, in.FileName, in.Data)
		if err != nil {
			// the staged rows do not depend on the archive
			s.log(ctx).Warn("failed to archive export", zap.String("batch_id", batch.ID.String()), zap.Error(err))
		} else if key != "" {
			batch.SetArchiveKey(key)
		}
	}

	if err := s.batches.CreateOpen(ctx, batch, rows); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	summary := bulk.Summarize(rows)
	s.publish(ctx, batch)
	s.metrics.RecordBatch(ctx, telemetry.ActionCreated)
	s.metrics.RecordRowsStaged(ctx, summaryByStatus(summary))
	s.log(ctx).Info("export staged",
		zap.String("batch_id", batch.ID.String()),
		zap.String("file_name", batch.FileName),
		zap.String("encoding", batch.Encoding),
		zap.Int("rows", summary.Total),
		zap.Int("new", summary.New),
		zap.Int("changed", summary.Changed),
		zap.Int("conflict", summary.Conflict),
	)
	telemetry.SetOK(span)
	return ToBatchResponse(batch, &summary), nil
}

func (s *ImportService) parser(in UploadInput) (*csvimport.ExportParser, error) {
	opts := []csvimport.ExportOption{csvimport.WithMaxRows(s.cfg.MaxRows)}

	encoding := in.Encoding
	if encoding == "" {
		encoding = s.cfg.DefaultEncoding
	}
	if encoding != "" {
		opts = append(opts, csvimport.WithEncoding(encoding))
	}

	if in.Delimiter != "" {
		d, size := utf8.DecodeRuneInString(in.Delimiter)
		if size != len(in.Delimiter) || d == utf8.RuneError || d == '"' || d == '\n' || d == '\r' {
			return nil, shared.NewDomainError("INVALID_DELIMITER", fmt.Sprintf("Delimiter %q must be a single character", in.Delimiter))
		}
		opts = append(opts, csvimport.WithExportDelimiter(d))
	}
	return csvimport.NewExportParser(opts...), nil
}

// Get returns a batch; open batches include their row summary
func (s *ImportService) Get(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, batch)
}

// GetOpen returns the open batch or shared.ErrNotFound
func (s *ImportService) GetOpen(ctx context.Context) (*BatchResponse, error) {
	batch, err := s.batches.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, batch)
}

func (s *ImportService) describe(ctx context.Context, batch *bulk.ImportBatch) (*BatchResponse, error) {
	if !batch.IsOpen() {
		return ToBatchResponse(batch, nil), nil
	}
	rows, err := s.rows.FindByBatch(ctx, batch.ID, bulk.RowFilter{})
	if err != nil {
		return nil, err
	}
	summary := bulk.Summarize(rows)
	return ToBatchResponse(batch, &summary), nil
}

// List returns the batch history, newest first unless a sort is given
func (s *ImportService) List(ctx context.Context, q BatchListQuery) (*BatchListResponse, error) {
	filter := bulk.BatchFilter{SortBy: q.SortBy, SortOrder: q.SortOrder}
	if q.Status != "" {
		status := bulk.BatchStatus(q.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown batch status %q", q.Status))
		}
		filter.Status = &status
	}
	page, pageSize := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	result, err := s.batches.FindAll(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	items := make([]*BatchResponse, len(result.Items))
	for i, b := range result.Items {
		items[i] = ToBatchResponse(b, nil)
	}
	return &BatchListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
	}, nil
}

// Discard abandons an open batch and purges its staging rows. The permanent
// store is not touched.
func (s *ImportService) Discard(ctx context.Context, id uuid.UUID, by *uuid.UUID) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Discard",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, id.String()),
	)
	defer span.End()

	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := batch.Discard(by); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.batches.Close(ctx, batch); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, batch)
	s.metrics.RecordBatch(ctx, telemetry.ActionDiscarded)
	s.metrics.RecordBatchClosed(ctx)
	s.log(ctx).Info("batch discarded", zap.String("batch_id", batch.ID.String()))
	telemetry.SetOK(span)
	return ToBatchResponse(batch, nil), nil
}

// Rematch reclassifies every row of the open batch against the current
// directory and permanent store
func (s *ImportService) Rematch(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Rematch",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, id.String()),
	)
	defer span.End()

	batch, rows, err := s.openBatchRows(ctx, id, bulk.RowFilter{})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	records := make([]bulk.ExportRecord, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}
	existing, err := s.opps.FindByExternalIDs(ctx, externalIDs(records))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load existing opportunities: %w", err)
	}
	if inv, ok := s.users.(DirectoryInvalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.log(ctx).Warn("directory cache not invalidated, rematching against cached users", zap.Error(err))
		}
	}
	directory, err := s.users.FindAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load user directory: %w", err)
	}

	matcher := bulk.NewMatcher(directory)
	for _, r := range rows {
		matcher.Rematch(r, existing)
	}
	if err := s.rows.SaveAll(ctx, rows); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	summary := bulk.Summarize(rows)
	s.log(ctx).Info("batch rematched",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("conflict", summary.Conflict),
		zap.Int("changed", summary.Changed),
	)
	telemetry.SetOK(span)
	return ToBatchResponse(batch, &summary), nil
}

// ListRows lists the rows of an open batch in parse order
func (s *ImportService) ListRows(ctx context.Context, id uuid.UUID, q RowQuery) ([]*RowResponse, error) {
	filter, err := q.toFilter()
	if err != nil {
		return nil, err
	}
	_, rows, err := s.openBatchRows(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	return ToRowResponses(rows), nil
}

func (q RowQuery) toFilter() (bulk.RowFilter, error) {
	var filter bulk.RowFilter
	if q.MatchStatus != "" {
		status, err := parseMatchStatus(q.MatchStatus)
		if err != nil {
			return filter, err
		}
		filter.MatchStatus = &status
	}
	filter.Selected = q.Selected
	if q.OwnerName != "" {
		owner := q.OwnerName
		filter.OwnerName = &owner
	}
	return filter, nil
}

// SetRowSelection selects or deselects one row. Selecting an unchanged row
// fails with bulk.ErrSelectionNotAllowed.
func (s *ImportService) SetRowSelection(ctx context.Context, batchID, rowID uuid.UUID, selected bool) (*RowResponse, error) {
	if _, err := s.openBatch(ctx, batchID); err != nil {
		return nil, err
	}
	row, err := s.rows.FindByID(ctx, batchID, rowID)
	if err != nil {
		return nil, err
	}
	if err := row.SetSelected(selected); err != nil {
		return nil, err
	}
	if err := s.rows.SaveAll(ctx, []*bulk.StagingRow{row}); err != nil {
		return nil, err
	}
	return ToRowResponse(row), nil
}

// BulkSelection toggles every row of the open batch, or only the rows in one
// match status. Unchanged rows are skipped when selecting; naming the
// unchanged status explicitly fails.
func (s *ImportService) BulkSelection(ctx context.Context, batchID uuid.UUID, in BulkSelectionInput) (*BulkSelectionResult, error) {
	var filter bulk.RowFilter
	if in.MatchStatus != "" {
		status, err := parseMatchStatus(in.MatchStatus)
		if err != nil {
			return nil, err
		}
		if status == bulk.MatchStatusUnchanged && in.Selected {
			return nil, bulk.ErrSelectionNotAllowed
		}
		filter.MatchStatus = &status
	}

	_, rows, err := s.openBatchRows(ctx, batchID, filter)
	if err != nil {
		return nil, err
	}

	result := &BulkSelectionResult{}
	changed := make([]*bulk.StagingRow, 0, len(rows))
	for _, r := range rows {
		if r.IsSelected == in.Selected {
			continue
		}
		if err := r.SetSelected(in.Selected); err != nil {
			result.Skipped++
			continue
		}
		changed = append(changed, r)
	}
	if len(changed) > 0 {
		if err := s.rows.SaveAll(ctx, changed); err != nil {
			return nil, err
		}
	}
	result.Affected = len(changed)
	return result, nil
}

// AssignUser sets the owner of one row. A row leaving the conflict state
// becomes selected when it is committable.
func (s *ImportService) AssignUser(ctx context.Context, batchID, rowID, userID uuid.UUID) (*RowResponse, error) {
	if _, err := s.openBatch(ctx, batchID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	row, err := s.rows.FindByID(ctx, batchID, rowID)
	if err != nil {
		return nil, err
	}
	assign(row, userID)
	if err := s.rows.SaveAll(ctx, []*bulk.StagingRow{row}); err != nil {
		return nil, err
	}
	return ToRowResponse(row), nil
}

// AssignByOwnerName assigns a user to every conflict row whose export owner
// name is exactly ownerName
func (s *ImportService) AssignByOwnerName(ctx context.Context, batchID uuid.UUID, ownerName string, userID uuid.UUID) (*AssignmentResult, error) {
	if ownerName == "" {
		return nil, shared.NewDomainError("INVALID_OWNER_NAME", "Owner name cannot be empty")
	}
	return s.assignConflicts(ctx, batchID, userID, &ownerName)
}

// AssignAllConflicts assigns a user to every conflict row of the open batch
func (s *ImportService) AssignAllConflicts(ctx context.Context, batchID, userID uuid.UUID) (*AssignmentResult, error) {
	return s.assignConflicts(ctx, batchID, userID, nil)
}

func (s *ImportService) assignConflicts(ctx context.Context, batchID, userID uuid.UUID, ownerName *string) (*AssignmentResult, error) {
	if _, err := s.openBatch(ctx, batchID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	conflict := bulk.MatchStatusConflict
	targets, err := s.rows.FindByBatch(ctx, batchID, bulk.RowFilter{MatchStatus: &conflict, OwnerName: ownerName})
	if err != nil {
		return nil, err
	}
	for _, r := range targets {
		assign(r, userID)
	}
	if len(targets) > 0 {
		if err := s.rows.SaveAll(ctx, targets); err != nil {
			return nil, err
		}
	}

	all, err := s.rows.FindByBatch(ctx, batchID, bulk.RowFilter{})
	if err != nil {
		return nil, err
	}
	summary := bulk.Summarize(all)
	s.log(ctx).Info("conflicts assigned",
		zap.String("batch_id", batchID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("assigned", len(targets)),
	)
	return &AssignmentResult{Assigned: len(targets), Rows: &summary}, nil
}

func assign(row *bulk.StagingRow, userID uuid.UUID) {
	wasConflict := row.MatchStatus == bulk.MatchStatusConflict
	row.AssignUser(userID)
	if wasConflict && row.MatchStatus.IsCommittable() {
		_ = row.SetSelected(true)
	}
}

// FetchExport returns the archived raw export of a batch
func (s *ImportService) FetchExport(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if batch.ArchiveKey == "" || s.archive == nil {
		return "", nil, ErrNotArchived
	}
	data, err := s.archive.Fetch(ctx, batch.ArchiveKey)
	if err != nil {
		return "", nil, err
	}
	return batch.FileName, data, nil
}

func (s *ImportService) openBatch(ctx context.Context, id uuid.UUID) (*bulk.ImportBatch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := batch.EnsureOpen(); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *ImportService) openBatchRows(ctx context.Context, id uuid.UUID, filter bulk.RowFilter) (*bulk.ImportBatch, []*bulk.StagingRow, error) {
	batch, err := s.openBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.rows.FindByBatch(ctx, id, filter)
	if err != nil {
		return nil, nil, err
	}
	return batch, rows, nil
}

func parseMatchStatus(v string) (bulk.MatchStatus, error) {
	status := bulk.MatchStatus(v)
	if !status.IsValid() {
		return "", shared.NewDomainError("INVALID_MATCH_STATUS", fmt.Sprintf("Unknown match status %q", v))
	}
	return status, nil
}

func externalIDs(records []bulk.ExportRecord) []string {
	seen := make(map[string]bool, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.ExternalID == "" || seen[r.ExternalID] {
			continue
		}
		seen[r.ExternalID] = true
		ids = append(ids, r.ExternalID)
	}
	return ids
}

func summaryByStatus(s bulk.RowSummary) map[string]int {
	return map[string]int{
		string(bulk.MatchStatusNew):       s.New,
		string(bulk.MatchStatusChanged):   s.Changed,
		string(bulk.MatchStatusUnchanged): s.Unchanged,
		string(bulk.MatchStatusConflict):  s.Conflict,
		string(bulk.MatchStatusPending):   s.Pending,
	}
}
