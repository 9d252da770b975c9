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

// RollbackEngine undoes a completed batch: it reverts the fields the batch
// overwrote, deletes the opportunities and leads it created and detaches
// go-lives from deleted opportunities. Go-lives are never deleted.
type RollbackEngine struct {
	batches bulk.ImportBatchRepository
	opps    crm.OpportunityRepository
	leads   crm.LeadRepository
	golives crm.GoLiveRepository
	options
}

// NewRollbackEngine creates a RollbackEngine
func NewRollbackEngine(
	batches bulk.ImportBatchRepository,
	opps crm.OpportunityRepository,
	leads crm.LeadRepository,
	golives crm.GoLiveRepository,
	opts ...ServiceOption,
) *RollbackEngine {
	e := &RollbackEngine{
		batches: batches,
		opps:    opps,
		leads:   leads,
		golives: golives,
		options: defaultOptions(),
	}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

// loadCompleted returns the batch when it may be rolled back
func (e *RollbackEngine) loadCompleted(ctx context.Context, batchID uuid.UUID) (*bulk.ImportBatch, error) {
	batch, err := e.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status == bulk.BatchStatusRolledBack {
		return nil, bulk.ErrAlreadyRolledBack
	}
	if !batch.Status.CanTransitionTo(bulk.BatchStatusRolledBack) {
		return nil, &bulk.InvalidTransitionError{BatchID: batch.ID, From: batch.Status, To: bulk.BatchStatusRolledBack}
	}
	return batch, nil
}

// Preview counts what Rollback would do, without changing anything
func (e *RollbackEngine) Preview(ctx context.Context, batchID uuid.UUID) (*RollbackPreview, error) {
	batch, err := e.loadCompleted(ctx, batchID)
	if err != nil {
		return nil, err
	}

	opps, err := e.opps.FindByImportBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	revisions, err := e.opps.FindRevisionsByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	leads, err := e.leads.FindByImportBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	preview := &RollbackPreview{BatchID: batch.ID, OpportunitiesToDelete: len(opps)}
	toRevert := make(map[uuid.UUID]struct{})
	for _, rev := range revisions {
		if !rev.IsReverted() {
			toRevert[rev.OpportunityID] = struct{}{}
		}
	}
	preview.OpportunitiesToRevert = len(toRevert)

	oppIDs := make([]uuid.UUID, len(opps))
	fromBatch := make(map[uuid.UUID]int64)
	for i, o := range opps {
		oppIDs[i] = o.ID
		if o.LeadID != nil {
			fromBatch[*o.LeadID]++
		}
	}
	if len(oppIDs) > 0 {
		if preview.GoLivesToDecouple, err = e.golives.CountByOpportunities(ctx, oppIDs); err != nil {
			return nil, err
		}
	}

	for _, l := range leads {
		n, err := e.leads.CountOpportunities(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		if n > fromBatch[l.ID] {
			preview.LeadsToKeep++
		} else {
			preview.LeadsToDelete++
		}
	}
	return preview, nil
}

// Rollback undoes a completed batch. Records that cannot be cleaned up are
// reported in the result instead of aborting; the batch is marked rolled
// back either way. A second rollback fails with bulk.ErrAlreadyRolledBack.
func (e *RollbackEngine) Rollback(ctx context.Context, batchID uuid.UUID, by *uuid.UUID) (*RollbackResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartServiceSpan(ctx, "RollbackEngine", "Rollback",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, batchID.String()),
	)
	defer span.End()
	ctx = context.WithValue(ctx, logger.BatchIDKey, batchID.String())

	start := time.Now()
	result, err := e.rollback(ctx, batchID, by)

	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeFailed
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetAttribute(span, "import.rollback.errors", len(result.Errors))
		telemetry.SetOK(span)
	}
	e.metrics.RecordRollback(ctx, time.Since(start), outcome)
	return result, err
}

func (e *RollbackEngine) rollback(ctx context.Context, batchID uuid.UUID, by *uuid.UUID) (*RollbackResult, error) {
	batch, err := e.loadCompleted(ctx, batchID)
	if err != nil {
		return nil, err
	}
	result := &RollbackResult{BatchID: batch.ID}

	if err := e.revertUpdates(ctx, batch, result); err != nil {
		return nil, err
	}
	if err := e.deleteOpportunities(ctx, batch, result); err != nil {
		return nil, err
	}
	if err := e.deleteLeads(ctx, batch, result); err != nil {
		return nil, err
	}

	if err := batch.RollBack(by); err != nil {
		return nil, err
	}
	if err := e.batches.Save(ctx, batch); err != nil {
		return nil, fmt.Errorf("records rolled back but batch could not be saved: %w", err)
	}
	result.Status = string(batch.Status)

	e.publish(ctx, batch)
	e.metrics.RecordBatch(ctx, telemetry.ActionRolledBack)
	e.recordCounts(ctx, result)
	e.log(ctx).Info("batch rolled back",
		zap.Int("opportunities_deleted", result.OpportunitiesDeleted),
		zap.Int("opportunities_reverted", result.OpportunitiesReverted),
		zap.Int("leads_deleted", result.LeadsDeleted),
		zap.Int("leads_kept", result.LeadsKept),
		zap.Int64("go_lives_decoupled", result.GoLivesDecoupled),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// revertUpdates restores the fields of every revision not reverted yet, last
// row first. Fields edited since the import are kept and reported.
func (e *RollbackEngine) revertUpdates(ctx context.Context, batch *bulk.ImportBatch, result *RollbackResult) error {
	revisions, err := e.opps.FindRevisionsByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	reverted := make(map[uuid.UUID]struct{})
	for _, rev := range revisions {
		if rev.IsReverted() {
			continue
		}
		opp, err := e.opps.FindByID(ctx, rev.OpportunityID)
		if err != nil {
			e.recordError(ctx, result, RecordError{Kind: RecordKindRevision, ID: rev.OpportunityID, Reason: err.Error()})
			continue
		}

		restored, conflicts, err := rev.Revert(opp)
		if err != nil {
			e.recordError(ctx, result, RecordError{Kind: RecordKindRevision, ID: opp.ID, Reason: err.Error()})
			continue
		}
		if err := e.opps.SaveReverted(ctx, opp, rev); err != nil {
			e.recordError(ctx, result, RecordError{Kind: RecordKindRevision, ID: opp.ID, Reason: err.Error()})
			continue
		}
		if len(restored) > 0 {
			reverted[opp.ID] = struct{}{}
		}
		if len(conflicts) > 0 {
			e.recordError(ctx, result, RecordError{
				Kind:   RecordKindRevision,
				ID:     opp.ID,
				Fields: conflicts,
				Reason: "fields were edited after the import and were left unchanged",
			})
		}
	}
	result.OpportunitiesReverted = len(reverted)
	return nil
}

func (e *RollbackEngine) deleteOpportunities(ctx context.Context, batch *bulk.ImportBatch, result *RollbackResult) error {
	opps, err := e.opps.FindByImportBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	for _, opp := range opps {
		decoupled, err := e.opps.Delete(ctx, opp.ID)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, shared.ErrNotFound) {
				reason = "opportunity was already deleted"
			}
			e.recordError(ctx, result, RecordError{Kind: RecordKindOpportunity, ID: opp.ID, Reason: reason})
			continue
		}
		result.OpportunitiesDeleted++
		result.GoLivesDecoupled += decoupled
	}
	return nil
}

// deleteLeads deletes the leads the batch created unless opportunities
// outside the batch still reference them
func (e *RollbackEngine) deleteLeads(ctx context.Context, batch *bulk.ImportBatch, result *RollbackResult) error {
	leads, err := e.leads.FindByImportBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		n, err := e.leads.CountOpportunities(ctx, lead.ID)
		if err != nil {
			e.recordError(ctx, result, RecordError{Kind: RecordKindLead, ID: lead.ID, Reason: err.Error()})
			continue
		}
		if n > 0 {
			result.LeadsKept++
			continue
		}
		if err := e.leads.Delete(ctx, lead.ID); err != nil {
			e.recordError(ctx, result, RecordError{Kind: RecordKindLead, ID: lead.ID, Reason: err.Error()})
			continue
		}
		result.LeadsDeleted++
	}
	return nil
}

func (e *RollbackEngine) recordError(ctx context.Context, result *RollbackResult, recErr RecordError) {
	result.Errors = append(result.Errors, recErr)
	e.log(ctx).Warn("rollback left a record behind",
		zap.String("kind", recErr.Kind),
		zap.String("id", recErr.ID.String()),
		zap.Strings("fields", recErr.Fields),
		zap.String("reason", recErr.Reason),
	)
}

func (e *RollbackEngine) recordCounts(ctx context.Context, result *RollbackResult) {
	failed := make(map[string]int)
	for _, recErr := range result.Errors {
		failed[recErr.Kind]++
	}
	e.metrics.RecordRollbackRecords(ctx, RecordKindOpportunity, "deleted", result.OpportunitiesDeleted)
	e.metrics.RecordRollbackRecords(ctx, RecordKindOpportunity, "reverted", result.OpportunitiesReverted)
	e.metrics.RecordRollbackRecords(ctx, RecordKindLead, "deleted", result.LeadsDeleted)
	e.metrics.RecordRollbackRecords(ctx, RecordKindLead, "kept", result.LeadsKept)
	for kind, n := range failed {
		e.metrics.RecordRollbackRecords(ctx, kind, telemetry.OutcomeFailed, n)
	}
}
