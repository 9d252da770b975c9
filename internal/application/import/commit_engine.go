package importapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrOwnerUnresolved is the row error of a selected row that still has no owner
var ErrOwnerUnresolved = shared.NewDomainError("OWNER_UNRESOLVED", "Row owner is not resolved")

// CommitEngine applies the selected rows of the open batch to the permanent
// store, one row at a time in parse order.
type CommitEngine struct {
	batches bulk.ImportBatchRepository
	rows    bulk.StagingRowRepository
	opps    crm.OpportunityRepository
	leads   crm.LeadRepository
	timeout time.Duration
	options
}

// NewCommitEngine creates a CommitEngine. A positive timeout bounds a whole
// commit; the caller's cancellation is otherwise ignored once rows are being
// written.
func NewCommitEngine(
	batches bulk.ImportBatchRepository,
	rows bulk.StagingRowRepository,
	opps crm.OpportunityRepository,
	leads crm.LeadRepository,
	timeout time.Duration,
	opts ...ServiceOption,
) *CommitEngine {
	e := &CommitEngine{
		batches: batches,
		rows:    rows,
		opps:    opps,
		leads:   leads,
		timeout: timeout,
		options: defaultOptions(),
	}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

type rowOutcome int

const (
	outcomeInserted rowOutcome = iota
	outcomeUpdated
	outcomeAlreadyApplied
)

// Commit writes every selected, committable row. The first failing row stops
// the commit with a *bulk.RowCommitError: earlier rows stay written and the
// batch stays open, so a retry resumes at the failed row. When every row
// succeeded the batch is completed and its staging rows are purged.
func (e *CommitEngine) Commit(ctx context.Context, batchID uuid.UUID, by *uuid.UUID, progress ProgressFunc) (*CommitResult, error) {
	ctx = context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "CommitEngine", "Commit",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, batchID.String()),
	)
	defer span.End()
	ctx = context.WithValue(ctx, logger.BatchIDKey, batchID.String())

	start := time.Now()
	result, err := e.commit(ctx, batchID, by, progress)
	if result != nil {
		result.Duration = time.Since(start)
	}

	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeFailed
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}
	e.metrics.RecordCommit(ctx, time.Since(start), outcome)
	return result, err
}

func (e *CommitEngine) commit(ctx context.Context, batchID uuid.UUID, by *uuid.UUID, progress ProgressFunc) (*CommitResult, error) {
	batch, err := e.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := batch.EnsureOpen(); err != nil {
		return nil, err
	}

	all, err := e.rows.FindByBatch(ctx, batchID, bulk.RowFilter{})
	if err != nil {
		return nil, err
	}
	selected := make([]*bulk.StagingRow, 0, len(all))
	for _, r := range all {
		if r.IsSelected && r.MatchStatus != bulk.MatchStatusUnchanged {
			selected = append(selected, r)
		}
	}

	result := &CommitResult{BatchID: batch.ID, Status: string(batch.Status), Total: len(selected)}
	e.log(ctx).Info("commit started", zap.Int("selected", len(selected)), zap.Int("rows", len(all)))

	for _, row := range selected {
		outcome, err := e.commitRow(ctx, batch, row)
		if err != nil {
			rowErr := &bulk.RowCommitError{
				RowIndex:   row.Record.RowIndex,
				RowID:      row.ID,
				ExternalID: row.Record.ExternalID,
				Committed:  result.Committed,
				Err:        err,
			}
			e.log(ctx).Warn("commit stopped",
				zap.Int("row_index", row.Record.RowIndex),
				zap.String("external_id", row.Record.ExternalID),
				zap.Int("committed", result.Committed),
				zap.Error(err),
			)
			return result, rowErr
		}

		result.Committed++
		switch outcome {
		case outcomeInserted:
			result.Inserted++
		case outcomeUpdated:
			result.Updated++
		case outcomeAlreadyApplied:
			result.AlreadyApplied++
		}
		e.metrics.RecordRowCommitted(ctx, string(row.MatchStatus))
		if progress != nil {
			progress(CommitProgress{
				Completed:  result.Committed,
				Total:      result.Total,
				RowID:      row.ID,
				RowIndex:   row.Record.RowIndex,
				ExternalID: row.Record.ExternalID,
			})
		}
	}

	if err := batch.Complete(by, bulk.CompletionCounts(all)); err != nil {
		return result, err
	}
	if err := e.batches.Close(ctx, batch); err != nil {
		return result, fmt.Errorf("rows committed but batch could not be completed: %w", err)
	}

	result.Status = string(batch.Status)
	result.Counts = batch.Counts
	e.publish(ctx, batch)
	e.metrics.RecordBatch(ctx, telemetry.ActionCommitted)
	e.metrics.RecordBatchClosed(ctx)
	e.log(ctx).Info("commit completed",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("already_applied", result.AlreadyApplied),
		zap.Int("skipped", batch.Counts.Skipped),
	)
	return result, nil
}

func (e *CommitEngine) commitRow(ctx context.Context, batch *bulk.ImportBatch, row *bulk.StagingRow) (rowOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "import.commit_row",
		telemetry.WithAttribute(telemetry.SpanAttrRowID, row.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRowIndex, row.Record.RowIndex),
	)
	defer span.End()

	var (
		outcome rowOutcome
		err     error
	)
	switch row.MatchStatus {
	case bulk.MatchStatusNew:
		outcome, err = e.insert(ctx, batch, row)
	case bulk.MatchStatusChanged:
		outcome, err = e.update(ctx, batch, row)
	default:
		err = fmt.Errorf("%w: owner %q of row %d needs a user assignment (%s)",
			ErrOwnerUnresolved, row.Record.OwnerName, row.Record.RowIndex, row.MatchStatus)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return outcome, err
}

// insert creates the opportunity of a new row, attached to the lead of the
// same company or to a new lead tagged with the batch
func (e *CommitEngine) insert(ctx context.Context, batch *bulk.ImportBatch, row *bulk.StagingRow) (rowOutcome, error) {
	if _, err := e.opps.FindByImportRow(ctx, row.ID); err == nil {
		return outcomeAlreadyApplied, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}

	rec := row.Record
	var newLead *crm.Lead
	lead, err := e.leads.FindByCompanyName(ctx, rec.CompanyName)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		newLead = crm.NewLead(rec.CompanyName, row.MatchedUserID)
		newLead.ImportBatchID = &batch.ID
		lead = newLead
	case err != nil:
		return 0, fmt.Errorf("failed to look up lead: %w", err)
	}

	opp, err := crm.NewOpportunity(rec.ExternalID, rec.CompanyName, rec.Stage)
	if err != nil {
		return 0, err
	}
	opp.CloseDate = rec.CloseDate
	opp.CreatedDate = rec.CreatedDate
	opp.Rating = rec.Rating
	opp.NextStep = rec.NextStep
	opp.Amount = rec.Amount
	opp.OwnerID = row.MatchedUserID
	opp.Note = row.Note
	opp.LeadID = &lead.ID
	opp.ImportBatchID = &batch.ID
	rowID := row.ID
	opp.ImportRowID = &rowID

	if err := e.opps.Create(ctx, opp, newLead); err != nil {
		return 0, err
	}
	return outcomeInserted, nil
}

// update writes the changed tracked fields of a changed row and records what
// they were before, so a rollback can restore them. Rows of one export that
// share an external id each apply their own changes in parse order.
func (e *CommitEngine) update(ctx context.Context, batch *bulk.ImportBatch, row *bulk.StagingRow) (rowOutcome, error) {
	if row.OpportunityID == nil {
		return 0, errors.New("changed row has no opportunity")
	}
	if _, err := e.opps.FindRevisionByImportRow(ctx, row.ID); err == nil {
		return outcomeAlreadyApplied, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}

	opp, err := e.opps.FindByID(ctx, *row.OpportunityID)
	if err != nil {
		return 0, fmt.Errorf("failed to load opportunity %s: %w", row.Record.ExternalID, err)
	}
	applied, err := opp.ApplyChanges(row.Changes)
	if err != nil {
		return 0, err
	}
	if len(applied) == 0 {
		return outcomeAlreadyApplied, nil
	}

	rev := crm.NewOpportunityRevision(batch.ID, opp.ID, row.ID, row.Record.RowIndex, applied)
	if err := e.opps.UpdateWithRevision(ctx, opp, rev); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}
