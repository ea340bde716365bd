package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codeplane/internal/model"
)

func TestBehaviorRisk(t *testing.T) {
	cases := []struct {
		change   string
		refCount int
		want     string
	}{
		{"added", 0, "low"},
		{"removed", 0, "high"},
		{"renamed", 0, "high"},
		{"signature_changed", 0, "high"},
		{"body_changed", 11, "medium"},
		{"body_changed", 2, "unknown"},
	}
	for _, c := range cases {
		got := behaviorRisk(StructuralChange{Change: c.change}, c.refCount)
		assert.Equal(t, c.want, got, "change=%s refCount=%d", c.change, c.refCount)
	}
}

func TestTierBreakdown_Total(t *testing.T) {
	tb := TierBreakdown{Proven: 1, Strong: 2, Anchored: 3, Unknown: 4}
	assert.Equal(t, 10, tb.Total())
}

func TestNestMethodChanges_GroupsByParentType(t *testing.T) {
	changes := []StructuralChange{
		{Path: "a.go", QualifiedName: "Server.Start", Change: "body_changed"},
		{Path: "a.go", QualifiedName: "Server.Stop", Change: "added"},
		{Path: "a.go", QualifiedName: "Standalone", Change: "added"},
	}

	grouped := NestMethodChanges(changes)

	assert.Len(t, grouped["Server"], 2)
	assert.Len(t, grouped["a.go"], 1) // ungrouped top-level def falls back to its file path
}

func TestVisibilityAndStatic_FallsBackToDefFields(t *testing.T) {
	def := model.DefFact{DefUID: "x", Visibility: model.VisibilityPrivate, IsStatic: true}

	vis, static := VisibilityAndStatic(def, nil)

	assert.Equal(t, model.VisibilityPrivate, vis)
	assert.True(t, static)
}
