package importapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesplan/backend/internal/domain/bulk"
	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
)

// flakyOpportunities fails inserts of one external id while armed
type flakyOpportunities struct {
	crm.OpportunityRepository
	failExternalID string
	armed          bool
}

func (f *flakyOpportunities) Create(ctx context.Context, opp *crm.Opportunity, lead *crm.Lead) error {
	if f.armed && opp.ExternalID == f.failExternalID {
		return errors.New("connection reset by peer")
	}
	return f.OpportunityRepository.Create(ctx, opp, lead)
}

func tenNewRows() string {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("Company %d,Proposal,Sam Lee,%s", i+1, link(fmt.Sprintf("OPP-%d", 100+i+1)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestCommit_InsertsNewRowWithoutOwner(t *testing.T) {
	env := newTestEnv(t)
	resp := env.upload(t, "Globex,Closed Won,Jane Doe,"+link("OPP-9")+"\n")

	result, err := env.commit.Commit(context.Background(), resp.ID, &env.sam, nil)
	require.NoError(t, err)
	assert.Equal(t, string(bulk.BatchStatusCompleted), result.Status)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, bulk.BatchCounts{New: 1}, result.Counts)

	opp := env.opportunity(t, "OPP-9")
	assert.Nil(t, opp.OwnerID)
	assert.Contains(t, opp.Note, "Jane Doe")
	assert.Equal(t, crm.StageClosedWon, opp.Stage)
	require.NotNil(t, opp.LeadID)
	assert.Equal(t, resp.ID, *opp.ImportBatchID)

	lead, err := env.leads.FindByCompanyName(context.Background(), "globex")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, *opp.LeadID)
	assert.Equal(t, resp.ID, *lead.ImportBatchID)

	_, err = env.service.GetOpen(context.Background())
	assert.ErrorIs(t, err, shared.ErrNotFound, "a completed batch frees the open slot")

	got, err := env.service.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Rows)
	assert.NotNil(t, got.CompletedAt)
}

func TestCommit_UpdatesOnlyChangedFields(t *testing.T) {
	env := newTestEnv(t)
	existing := env.seedOpportunity(t, "OPP-4", "Acme Corp", crm.StageQualification)

	resp := env.upload(t, "Acme Corp,Proposal,Sam Lee,"+link("OPP-4")+"\n")
	result, err := env.commit.Commit(context.Background(), resp.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, bulk.BatchCounts{Updated: 1}, result.Counts)

	opp := env.opportunity(t, "OPP-4")
	assert.Equal(t, crm.StageProposal, opp.Stage)
	assert.Equal(t, existing.LeadID, opp.LeadID)
	assert.Nil(t, opp.ImportBatchID, "updated opportunities are not owned by the batch")

	revs, err := env.opps.FindRevisionsByBatch(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, opp.ID, revs[0].OpportunityID)
	assert.Equal(t, 1, revs[0].RowIndex)
	assert.Equal(t, map[string]crm.FieldChange{
		crm.FieldStage: {From: "Qualification", To: "Proposal"},
	}, revs[0].Changes)
}

func TestCommit_RowsSharingAnExternalIDApplyInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOpportunity(t, "OPP-4", "Acme Corp", crm.StageQualification)

	resp, err := env.service.Upload(ctx, UploadInput{
		FileName: "export.csv",
		Data: []byte("Opportunity Name,Stage,Opportunity Owner,Link,Next Step\n" +
			"Acme Corp,Proposal,Sam Lee," + link("OPP-4") + ",\n" +
			"Acme Corp,Negotiation,Sam Lee," + link("OPP-4") + ",Send contract\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Rows.Selected)

	result, err := env.commit.Commit(ctx, resp.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Zero(t, result.AlreadyApplied)

	opp := env.opportunity(t, "OPP-4")
	assert.Equal(t, crm.StageNegotiation, opp.Stage)
	assert.Equal(t, "Send contract", opp.NextStep)

	revs, err := env.opps.FindRevisionsByBatch(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, crm.FieldChange{From: "Proposal", To: "Negotiation"}, revs[0].Changes[crm.FieldStage])
	assert.Equal(t, crm.FieldChange{From: "Qualification", To: "Proposal"}, revs[1].Changes[crm.FieldStage])

	rolledBack, err := env.rollback.Rollback(ctx, resp.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rolledBack.OpportunitiesReverted)
	assert.Empty(t, rolledBack.Errors)

	opp = env.opportunity(t, "OPP-4")
	assert.Equal(t, crm.StageQualification, opp.Stage)
	assert.Empty(t, opp.NextStep)
}

func TestCommit_ReusesLeadOfSameCompany(t *testing.T) {
	env := newTestEnv(t)
	existing := env.seedOpportunity(t, "OPP-4", "Acme Corp", crm.StageQualification)

	resp := env.upload(t, "ACME  corp,Proposal,Sam Lee,"+link("OPP-30")+"\n")
	_, err := env.commit.Commit(context.Background(), resp.ID, nil, nil)
	require.NoError(t, err)

	opp := env.opportunity(t, "OPP-30")
	assert.Equal(t, existing.LeadID, opp.LeadID)
	assert.Equal(t, env.sam, *opp.OwnerID)

	leads, err := env.leads.FindByImportBatch(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestCommit_StopsAtFailingRowAndResumes(t *testing.T) {
	env := newTestEnv(t)
	flaky := &flakyOpportunities{OpportunityRepository: env.opps, failExternalID: "OPP-106", armed: true}
	env.build(flaky)

	resp := env.upload(t, tenNewRows())
	require.Equal(t, 10, resp.Rows.Selected)

	var progress []CommitProgress
	result, err := env.commit.Commit(context.Background(), resp.ID, nil, func(p CommitProgress) {
		progress = append(progress, p)
	})

	var rowErr *bulk.RowCommitError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 6, rowErr.RowIndex, "sixth row")
	assert.Equal(t, "OPP-106", rowErr.ExternalID)
	assert.Equal(t, 5, rowErr.Committed)
	assert.Contains(t, rowErr.Error(), "connection reset")

	require.NotNil(t, result)
	assert.Equal(t, 5, result.Committed)
	assert.Equal(t, 10, result.Total)
	require.Len(t, progress, 5)
	assert.Equal(t, 5, progress[4].Completed)
	assert.Equal(t, 10, progress[4].Total)

	open, err := env.service.GetOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.ID, open.ID)
	assert.Equal(t, string(bulk.BatchStatusOpen), open.Status)

	flaky.armed = false
	result, err = env.commit.Commit(context.Background(), resp.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, result.AlreadyApplied)
	assert.Equal(t, 5, result.Inserted)
	assert.Equal(t, string(bulk.BatchStatusCompleted), result.Status)
	assert.Equal(t, bulk.BatchCounts{New: 10}, result.Counts)

	opps, err := env.opps.FindByImportBatch(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Len(t, opps, 10, "a retry never duplicates rows")
}

func TestCommit_UnresolvedSelectedRowFails(t *testing.T) {
	env := newTestEnv(t)
	resp := env.upload(t, strings.Join([]string{
		"Initech,Proposal,Sam Lee," + link("OPP-31"),
		"Umbrella,Proposal,Hans Müller," + link("OPP-32"),
	}, "\n")+"\n")

	conflict := env.rowByExternalID(t, resp.ID, "OPP-32")
	_, err := env.service.SetRowSelection(context.Background(), resp.ID, conflict.ID, true)
	require.NoError(t, err)

	_, err = env.commit.Commit(context.Background(), resp.ID, nil, nil)
	assert.ErrorIs(t, err, ErrOwnerUnresolved)
	assert.Contains(t, err.Error(), "Hans Müller")

	var rowErr *bulk.RowCommitError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 1, rowErr.Committed)
}

func TestCommit_SkipsDeselectedAndUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpportunity(t, "OPP-5", "Soylent", crm.StageProposal)
	resp := env.upload(t, strings.Join([]string{
		"Soylent,Proposal,Sam Lee," + link("OPP-5"),
		"Initech,Proposal,Sam Lee," + link("OPP-31"),
		"Hooli,Proposal,Ana Costa," + link("OPP-33"),
	}, "\n")+"\n")

	hooli := env.rowByExternalID(t, resp.ID, "OPP-33")
	_, err := env.service.SetRowSelection(context.Background(), resp.ID, hooli.ID, false)
	require.NoError(t, err)

	result, err := env.commit.Commit(context.Background(), resp.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, bulk.BatchCounts{New: 1, Skipped: 2}, result.Counts)

	found, err := env.opps.FindByExternalIDs(context.Background(), []string{"OPP-33"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCommit_ClosedBatch(t *testing.T) {
	env := newTestEnv(t)
	resp := env.upload(t, "Globex,Closed Won,Jane Doe,"+link("OPP-9")+"\n")
	_, err := env.commit.Commit(context.Background(), resp.ID, nil, nil)
	require.NoError(t, err)

	_, err = env.commit.Commit(context.Background(), resp.ID, nil, nil)
	var notOpen *bulk.BatchNotOpenError
	assert.ErrorAs(t, err, &notOpen)

	_, err = env.commit.Commit(context.Background(), uuid.New(), nil, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCommit_IgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	resp := env.upload(t, tenNewRows())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result, err := env.commit.Commit(ctx, resp.ID, nil, func(CommitProgress) {
		calls++
		if calls == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Committed)
	assert.Equal(t, []string{bulk.EventTypeBatchCreated, bulk.EventTypeBatchCommitted}, env.events.types())
}
