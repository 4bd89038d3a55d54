package invocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"actionflow/internal/tools"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestGormStore(t *testing.T) {
	store := NewGormStore(setupTestDB(t))
	require.NoError(t, store.AutoMigrate())
	ctx := context.Background()

	p := newPending("inv-1", "emfatic2ecore", nil)
	require.NoError(t, store.Save(ctx, snapshotRecord(p, "/emfatic2ecore", actionOrigin{panelID: "emfatic", buttonID: "b"})))

	require.NoError(t, p.transition(StateResolving))
	p.setPayload(map[string]any{"emfatic": "class A {}"})
	p.settle(map[string]any{"output": "<ecore/>"}, nil, StageNone)
	require.NoError(t, store.Save(ctx, snapshotRecord(p, "/emfatic2ecore", actionOrigin{})))

	rec, err := store.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
	assert.Equal(t, "class A {}", rec.Payload["emfatic"])
	assert.JSONEq(t, `{"output":"<ecore/>"}`, string(rec.Result))
	require.NotNil(t, rec.CompletedAt)

	other := newPending("inv-2", "validate", nil)
	require.NoError(t, store.Save(ctx, snapshotRecord(other, "/validate", actionOrigin{})))

	list, err := store.List(ctx, "emfatic2ecore", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "inv-1", list[0].ID)

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, tools.ErrNotFound))
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Save(ctx, &Record{ID: "a", FunctionID: "f", StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, &Record{ID: "b", FunctionID: "f", StartedAt: now}))
	require.NoError(t, store.Save(ctx, &Record{ID: "c", FunctionID: "g", StartedAt: now}))

	list, err := store.List(ctx, "f", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, tools.ErrNotFound))
}
