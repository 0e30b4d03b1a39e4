package policy

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
)

func newTestResolver(t *testing.T) *TableResolver {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTableResolver(logger, nil)
}

func TestResolve_ExactMatch(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.Resolve(context.Background(), "BlueCross BlueShield", "Wegovy", domain.IndicationWeightLoss)
	require.NoError(t, err)
	assert.Equal(t, domain.IndicationWeightLoss, p.Indication)
	assert.True(t, p.Covered)
	assert.NotEmpty(t, p.DoseSchedule)
	assert.NotEmpty(t, p.PACriteria)
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.Resolve(context.Background(), "bluecross blueshield", "WEGOVY", domain.IndicationWeightLoss)
	require.NoError(t, err)
	assert.Equal(t, "Wegovy", p.DrugName)
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "Unknown Payer", "Wegovy", domain.IndicationWeightLoss)
	assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
}

func TestResolve_DualIndicationOverride(t *testing.T) {
	r := newTestResolver(t)

	// Ozempic is diabetes-labeled; a weight-loss request gets the
	// weight-management criteria with the drug's own dose schedule.
	p, err := r.Resolve(context.Background(), "BlueCross BlueShield", "Ozempic", domain.IndicationWeightLoss)
	require.NoError(t, err)

	assert.Equal(t, domain.IndicationWeightLoss, p.Indication)
	assert.True(t, p.Covered)

	var hasBMI, hasDiabetesDiagnosis bool
	for _, spec := range p.PACriteria {
		if spec.Type == domain.CriterionBMI {
			hasBMI = true
		}
		if spec.Type == domain.CriterionDiagnosis && spec.RequiredDiagnosis == "type 2 diabetes" {
			hasDiabetesDiagnosis = true
		}
	}
	assert.True(t, hasBMI, "override should swap in weight-management criteria")
	assert.False(t, hasDiabetesDiagnosis, "diabetes criteria should be replaced")

	// Dose schedule stays the drug's own.
	assert.Equal(t, "0.25 mg", p.DoseSchedule[0].Value)
}

func TestResolve_MedicareWeightLossExclusion(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.Resolve(context.Background(), "Medicare", "Ozempic", domain.IndicationWeightLoss)
	require.NoError(t, err)
	assert.False(t, p.Covered, "Medicare cannot cover weight-loss use")

	// The same drug for diabetes stays covered.
	p, err = r.Resolve(context.Background(), "Medicare", "Ozempic", domain.IndicationDiabetes)
	require.NoError(t, err)
	assert.True(t, p.Covered)
}

func TestResolve_NoIndicationUsesLabeled(t *testing.T) {
	r := newTestResolver(t)

	p, err := r.Resolve(context.Background(), "UnitedHealthcare", "Ozempic", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IndicationDiabetes, p.Indication)
}

func TestResolve_ReturnsClone(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	p1, err := r.Resolve(ctx, "BlueCross BlueShield", "Wegovy", domain.IndicationWeightLoss)
	require.NoError(t, err)
	p1.Covered = false
	p1.PACriteria[0].MinAge = 99

	p2, err := r.Resolve(ctx, "BlueCross BlueShield", "Wegovy", domain.IndicationWeightLoss)
	require.NoError(t, err)
	assert.True(t, p2.Covered, "table must not observe caller mutations")
	assert.NotEqual(t, 99, p2.PACriteria[0].MinAge)
}

func TestApplyIndicationOverride_DoesNotMutateInput(t *testing.T) {
	base := builtinPolicies()[0] // BCBS Ozempic, diabetes
	require.Equal(t, domain.IndicationDiabetes, base.Indication)

	out := ApplyIndicationOverride(base, domain.IndicationWeightLoss)
	assert.Equal(t, domain.IndicationWeightLoss, out.Indication)
	assert.Equal(t, domain.IndicationDiabetes, base.Indication)
	assert.NotEmpty(t, base.PACriteria)
}

func TestBuiltinPolicies_AllValid(t *testing.T) {
	for _, p := range builtinPolicies() {
		assert.NoError(t, p.Validate(), "%s/%s", p.Insurer, p.DrugName)
	}
}
