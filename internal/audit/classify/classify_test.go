package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"starline/internal/audit"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		resourceType string
		want         audit.Classification
	}{
		{"client", audit.ClassificationPHI},
		{"vitals", audit.ClassificationPHI},
		{"medication", audit.ClassificationPHI},
		{"incident_report", audit.ClassificationPHI},
		{"phi_access", audit.ClassificationPHI},
		{"user", audit.ClassificationPII},
		{"staff", audit.ClassificationPII},
		{"billing", audit.ClassificationFinancial},
		{"payment", audit.ClassificationFinancial},
		{"organization", audit.ClassificationAdministrative},
		{"role", audit.ClassificationAdministrative},
		{"shift", audit.ClassificationGeneral},
		{"", audit.ClassificationGeneral},
		{"CLIENT", audit.ClassificationPHI}, // case-insensitive
	}
	for _, tt := range tests {
		t.Run(tt.resourceType, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.resourceType))
		})
	}
}

func TestMaskValues(t *testing.T) {
	t.Run("masks denylisted fields only", func(t *testing.T) {
		got := MaskValues(map[string]any{
			"password":  "hunter2",
			"ssn":       "123-45-6789",
			"diagnosis": "stable",
		})
		assert.Equal(t, Mask, got["password"])
		assert.Equal(t, Mask, got["ssn"])
		assert.Equal(t, "stable", got["diagnosis"])
	})

	t.Run("is idempotent", func(t *testing.T) {
		once := MaskValues(map[string]any{"token": "abc", "api_key": "xyz"})
		twice := MaskValues(once)
		assert.Equal(t, once, twice)
		assert.Equal(t, Mask, twice["token"])
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := map[string]any{"password": "hunter2"}
		_ = MaskValues(in)
		assert.Equal(t, "hunter2", in["password"])
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, MaskValues(nil))
	})
}

func TestSummarize(t *testing.T) {
	t.Run("create and delete have fixed summaries", func(t *testing.T) {
		assert.Equal(t, "Record created", Summarize(audit.ActionCreate, nil, map[string]any{"a": 1}))
		assert.Equal(t, "Record deleted", Summarize(audit.ActionDelete, map[string]any{"a": 1}, nil))
	})

	t.Run("update lists changed fields in order", func(t *testing.T) {
		prior := map[string]any{"diagnosis": "A", "name": "Ann", "age": 40}
		next := map[string]any{"diagnosis": "B", "name": "Ann", "age": 41}
		got := Summarize(audit.ActionUpdate, prior, next)
		assert.Equal(t, "age: 40 → 41; diagnosis: A → B", got)
	})

	t.Run("update with equal snapshots reports no changes", func(t *testing.T) {
		snap := map[string]any{"x": "1"}
		assert.Equal(t, "No changes detected", Summarize(audit.ActionUpdate, snap, map[string]any{"x": "1"}))
	})

	t.Run("fields only on one side are skipped", func(t *testing.T) {
		prior := map[string]any{"a": 1}
		next := map[string]any{"b": 2}
		assert.Equal(t, "No changes detected", Summarize(audit.ActionUpdate, prior, next))
	})

	t.Run("other actions fall back to generic text", func(t *testing.T) {
		assert.Equal(t, "Performed login action", Summarize(audit.ActionLogin, nil, nil))
	})
}
