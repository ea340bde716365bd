package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreshness_StringCoversEveryValue(t *testing.T) {
	assert.Equal(t, "unindexed", Unindexed.String())
	assert.Equal(t, "dirty", Dirty.String())
	assert.Equal(t, "clean", Clean.String())
	assert.Equal(t, "unknown", Freshness(99).String())
}

func TestRefTier_StringCoversEveryValue(t *testing.T) {
	assert.Equal(t, "unknown", TierUnknown.String())
	assert.Equal(t, "anchored", TierAnchored.String())
	assert.Equal(t, "strong", TierStrong.String())
	assert.Equal(t, "proven", TierProven.String())
}

func TestRefTier_LadderIsMonotonicallyOrdered(t *testing.T) {
	assert.True(t, TierUnknown < TierAnchored)
	assert.True(t, TierAnchored < TierStrong)
	assert.True(t, TierStrong < TierProven)
}
