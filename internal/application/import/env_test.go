package importapp

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/salesplan/backend/internal/domain/crm"
	"github.com/salesplan/backend/internal/domain/shared"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/internal/infrastructure/persistence/models"
)

const exportHeader = "Opportunity Name,Stage,Opportunity Owner,Link\n"

// capturedEvents records published domain events
type capturedEvents struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (c *capturedEvents) Publish(_ context.Context, events ...shared.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

func (c *capturedEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType()
	}
	return out
}

// testEnv wires the import services to an in-memory SQLite database
type testEnv struct {
	db       *gorm.DB
	batches  *persistence.GormImportBatchRepository
	rows     *persistence.GormStagingRowRepository
	opps     *persistence.GormOpportunityRepository
	leads    *persistence.GormLeadRepository
	golives  *persistence.GormGoLiveRepository
	users    *persistence.GormUserRepository
	events   *capturedEvents
	service  *ImportService
	commit   *CommitEngine
	rollback *RollbackEngine

	sam uuid.UUID
	ana uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), persistence.GormConfig(nil, false))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	sam := models.NewUserModel("Sam Lee", "sales")
	ana := models.NewUserModel("Ana Costa", "sales")
	require.NoError(t, db.Create(sam).Error)
	require.NoError(t, db.Create(ana).Error)

	env := &testEnv{
		db:      db,
		batches: persistence.NewGormImportBatchRepository(db),
		rows:    persistence.NewGormStagingRowRepository(db),
		opps:    persistence.NewGormOpportunityRepository(db),
		leads:   persistence.NewGormLeadRepository(db),
		golives: persistence.NewGormGoLiveRepository(db),
		users:   persistence.NewGormUserRepository(db),
		events:  &capturedEvents{},
		sam:     sam.ID,
		ana:     ana.ID,
	}
	env.build(env.opps)
	return env
}

// build (re)creates the services, optionally around a decorated opportunity repository
func (e *testEnv) build(opps crm.OpportunityRepository) {
	opts := []ServiceOption{WithEventPublisher(e.events)}
	e.service = NewImportService(e.batches, e.rows, opps, e.users, Config{MaxFileSize: 1 << 20, MaxRows: 1000}, opts...)
	e.commit = NewCommitEngine(e.batches, e.rows, opps, e.leads, 0, opts...)
	e.rollback = NewRollbackEngine(e.batches, opps, e.leads, e.golives, opts...)
}

// seedOpportunity stores an opportunity that exists before any import
func (e *testEnv) seedOpportunity(t *testing.T, externalID, company string, stage crm.Stage) *crm.Opportunity {
	t.Helper()
	opp, err := crm.NewOpportunity(externalID, company, stage)
	require.NoError(t, err)
	lead := crm.NewLead(company, nil)
	opp.LeadID = &lead.ID
	require.NoError(t, e.opps.Create(context.Background(), opp, lead))
	return opp
}

func (e *testEnv) upload(t *testing.T, body string) *BatchResponse {
	t.Helper()
	resp, err := e.service.Upload(context.Background(), UploadInput{
		FileName: "export.csv",
		Data:     []byte(exportHeader + body),
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) opportunity(t *testing.T, externalID string) *crm.Opportunity {
	t.Helper()
	found, err := e.opps.FindByExternalIDs(context.Background(), []string{externalID})
	require.NoError(t, err)
	opp, ok := found[externalID]
	require.True(t, ok, "opportunity %s not found", externalID)
	return opp
}

func (e *testEnv) rowByExternalID(t *testing.T, batchID uuid.UUID, externalID string) *RowResponse {
	t.Helper()
	rows, err := e.service.ListRows(context.Background(), batchID, RowQuery{})
	require.NoError(t, err)
	for _, r := range rows {
		if r.ExternalID == externalID {
			return r
		}
	}
	t.Fatalf("row %s not staged", externalID)
	return nil
}

func link(externalID string) string {
	return "https://crm.example.com/opp/" + externalID
}
