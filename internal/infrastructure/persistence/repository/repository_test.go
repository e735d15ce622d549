package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
	"github.com/qanoonhq/lexflow/pkg/database"
)

// newTestDB opens an in-memory database capped at one connection so every
// statement observes the same memory store.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../../../migrations"))
	return db
}

func seedInstance(t *testing.T, repo port.InstanceRepository) *entity.Instance {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	inst := &entity.Instance{
		ID:            "inst-1",
		TenantID:      "firm-1",
		DefinitionID:  "def-1",
		EntityType:    "case",
		EntityID:      "case-42",
		Status:        workflow.StatusRunning,
		CurrentStepID: "intake",
		Steps: map[string]*entity.Step{
			"intake": {ID: "intake", Name: "Intake", Order: 0, Trigger: entity.TriggerManual, IsInitial: true},
			"close":  {ID: "close", Name: "Close", Order: 1, Trigger: entity.TriggerManual, IsFinal: true, DependsOn: []string{"intake"}},
		},
		Variables: map[string]interface{}{"priority": "high"},
		History: []entity.HistoryEntry{{
			Action:    entity.ActionStarted,
			Timestamp: now,
			Actor:     "paralegal-1",
			Started:   &entity.StartedDetails{DefinitionID: "def-1", InitialStepID: "intake"},
		}},
		StartedAt: now,
		StartedBy: "paralegal-1",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), inst))
	return inst
}

func TestInstanceRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	seeded := seedInstance(t, repo)

	got, err := repo.GetByID(context.Background(), "firm-1", "inst-1")
	require.NoError(t, err)

	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, workflow.StatusRunning, got.Status)
	assert.Equal(t, "intake", got.CurrentStepID)
	assert.Equal(t, "high", got.Variables["priority"])
	require.Len(t, got.History, 1)
	require.NotNil(t, got.History[0].Started)
	assert.Equal(t, "intake", got.History[0].Started.InitialStepID)
	require.Contains(t, got.Steps, "close")
	assert.Equal(t, []string{"intake"}, got.Steps["close"].DependsOn)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.CancelledAt)

	_, err = repo.GetByID(context.Background(), "firm-1", "inst-absent")
	assert.True(t, workflow.IsNotFound(err))

	// Tenant scoping: another tenant cannot see the record.
	_, err = repo.GetByID(context.Background(), "firm-2", "inst-1")
	assert.True(t, workflow.IsNotFound(err))
}

func TestInstanceRepository_AtomicUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	seedInstance(t, repo)
	ctx := context.Background()

	t.Run("mutation persists and bumps version", func(t *testing.T) {
		updated, err := repo.AtomicUpdate(ctx, "firm-1", "inst-1",
			[]workflow.Status{workflow.StatusRunning},
			func(inst *entity.Instance) error {
				inst.CurrentStepID = "close"
				inst.Variables["filed"] = true
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		stored, err := repo.GetByID(ctx, "firm-1", "inst-1")
		require.NoError(t, err)
		assert.Equal(t, "close", stored.CurrentStepID)
		assert.Equal(t, true, stored.Variables["filed"])
		assert.Equal(t, int64(2), stored.Version)
	})

	t.Run("status precondition", func(t *testing.T) {
		_, err := repo.AtomicUpdate(ctx, "firm-1", "inst-1",
			[]workflow.Status{workflow.StatusPaused},
			func(inst *entity.Instance) error { return nil })
		assert.True(t, workflow.IsInvalidState(err))
	})

	t.Run("no change skips the write", func(t *testing.T) {
		before, err := repo.GetByID(ctx, "firm-1", "inst-1")
		require.NoError(t, err)

		result, err := repo.AtomicUpdate(ctx, "firm-1", "inst-1", nil,
			func(inst *entity.Instance) error { return port.ErrNoChange })
		require.NoError(t, err)
		assert.Equal(t, before.Version, result.Version)

		after, err := repo.GetByID(ctx, "firm-1", "inst-1")
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("concurrent write conflicts", func(t *testing.T) {
		// Bump the stored version behind the update's back, between its
		// read and its conditional write.
		_, err := repo.AtomicUpdate(ctx, "firm-1", "inst-1", nil,
			func(inst *entity.Instance) error {
				_, execErr := db.ExecContext(ctx,
					"UPDATE workflow_instances SET version = version + 1 WHERE id = ?", "inst-1")
				return execErr
			})
		assert.True(t, workflow.IsConflict(err))
	})
}

func TestProgressRepository_UniquePerCase(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	progress := &entity.StageProgress{
		ID:             "prog-1",
		TenantID:       "firm-1",
		CaseID:         "case-9",
		TemplateID:     "tpl-1",
		Status:         entity.CaseActive,
		CurrentStageID: "intake",
		Mode:           entity.ModeLinear,
		Stages: map[string]*entity.Stage{
			"intake": {ID: "intake", Name: "Intake", Order: 0, IsInitial: true},
		},
		StartedAt: now,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, progress))

	duplicate := *progress
	duplicate.ID = "prog-2"
	err := repo.Create(ctx, &duplicate)
	assert.True(t, workflow.IsConflict(err))

	// The same case id under another tenant is a different case.
	other := *progress
	other.ID = "prog-3"
	other.TenantID = "firm-2"
	assert.NoError(t, repo.Create(ctx, &other))

	count, err := repo.CountByTemplate(ctx, "firm-1", "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProgressRepository_AtomicUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Create(ctx, &entity.StageProgress{
		ID:             "prog-1",
		TenantID:       "firm-1",
		CaseID:         "case-9",
		TemplateID:     "tpl-1",
		Status:         entity.CaseActive,
		CurrentStageID: "intake",
		Mode:           entity.ModeLinear,
		Stages: map[string]*entity.Stage{
			"intake": {ID: "intake", Name: "Intake", Order: 0, IsInitial: true},
			"close":  {ID: "close", Name: "Close", Order: 1, IsFinal: true},
		},
		StartedAt: now,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	updated, err := repo.AtomicUpdate(ctx, "firm-1", "case-9",
		[]entity.CaseStatus{entity.CaseActive},
		func(p *entity.StageProgress) error {
			p.CurrentStageID = "close"
			p.Status = entity.CaseCompleted
			completedAt := now
			p.CompletedAt = &completedAt
			p.AddRequirement("signed-order")
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	stored, err := repo.GetByCaseID(ctx, "firm-1", "case-9")
	require.NoError(t, err)
	assert.Equal(t, entity.CaseCompleted, stored.Status)
	assert.Equal(t, "close", stored.CurrentStageID)
	assert.Equal(t, []string{"signed-order"}, stored.CompletedRequirements)
	require.NotNil(t, stored.CompletedAt)

	// The completed record no longer satisfies an active-only update.
	_, err = repo.AtomicUpdate(ctx, "firm-1", "case-9",
		[]entity.CaseStatus{entity.CaseActive},
		func(p *entity.StageProgress) error { return nil })
	assert.True(t, workflow.IsInvalidState(err))

	_, err = repo.GetByCaseID(ctx, "firm-1", "case-none")
	assert.True(t, workflow.IsNotFound(err))
}
