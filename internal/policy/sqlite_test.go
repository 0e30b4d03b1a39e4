package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "policy-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "policies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	policy := builtinPolicies()[1] // BCBS Wegovy
	require.NoError(t, store.SavePolicy(ctx, policy))

	got, err := store.GetPolicy(ctx, "BlueCross BlueShield", "Wegovy")
	require.NoError(t, err)
	assert.Equal(t, policy.Insurer, got.Insurer)
	assert.Equal(t, policy.DrugName, got.DrugName)
	assert.Equal(t, domain.IndicationWeightLoss, got.Indication)
	assert.Len(t, got.DoseSchedule, len(policy.DoseSchedule))
	assert.Len(t, got.PACriteria, len(policy.PACriteria))
	assert.NoError(t, got.Validate())
}

func TestSQLiteStore_Get_CaseInsensitive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePolicy(ctx, builtinPolicies()[1]))

	got, err := store.GetPolicy(ctx, "BLUECROSS BLUESHIELD", "wegovy")
	require.NoError(t, err)
	assert.Equal(t, "Wegovy", got.DrugName)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.GetPolicy(context.Background(), "Nobody", "Nothing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_Save_Upsert(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	policy := builtinPolicies()[1].Clone()
	require.NoError(t, store.SavePolicy(ctx, policy))

	policy.Tier = 1
	policy.CopayAmount = 10
	require.NoError(t, store.SavePolicy(ctx, policy))

	got, err := store.GetPolicy(ctx, policy.Insurer, policy.DrugName)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Tier)
	assert.Equal(t, 10.0, got.CopayAmount)

	all, err := store.ListPolicies(ctx, policy.Insurer)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate")
}

func TestSQLiteStore_Save_RejectsInvalid(t *testing.T) {
	store := createTestStore(t)

	bad := &domain.CoveragePolicy{
		Insurer:    "Acme Health",
		DrugName:   "Wegovy",
		PACriteria: []domain.CriterionSpec{{Type: domain.CriterionType("astrology")}},
	}
	assert.Error(t, store.SavePolicy(context.Background(), bad))
}

func TestSQLiteStore_ListPolicies(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, p := range builtinPolicies() {
		require.NoError(t, store.SavePolicy(ctx, p))
	}

	bcbs, err := store.ListPolicies(ctx, "BlueCross BlueShield")
	require.NoError(t, err)
	assert.Len(t, bcbs, 3)
}
