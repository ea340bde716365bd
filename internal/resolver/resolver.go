// Package resolver implements the multi-pass reference resolver
// (spec.md §4.C7): passes 2-5 run after structural extraction (pass 1,
// internal/indexer) to climb each RefFact up a strict confidence ladder —
// PROVEN > STRONG > ANCHORED > UNKNOWN — that a later pass never lowers.
// ANCHORED is never auto-upgraded to STRONG by a later pass (see
// DESIGN.md Open Questions): shape inference's own output tier is capped
// at ANCHORED regardless of match confidence, because a structural match
// is never proof of identity the way a statically-traced type is.
package resolver

import (
	"codeplane/internal/config"
	"codeplane/internal/logging"
	"codeplane/internal/model"
	"codeplane/internal/store"
)

// Resolver runs passes 2-5 over a batch of files.
type Resolver struct {
	st  *store.Store
	cfg config.ResolverConfig
}

func New(st *store.Store, cfg config.ResolverConfig) *Resolver {
	return &Resolver{st: st, cfg: cfg}
}

// Stats summarizes one Resolve call across all four passes.
type Stats struct {
	ImportsResolved   int
	TypeTraceResolved int
	ConfigRefsResolved int
	ShapeStats        ShapeInferenceStats
}

// Resolve runs import resolution, type-traced access, config-file
// reference extraction, and shape inference in order over fileIDs.
func (r *Resolver) Resolve(fileIDs []int64) (Stats, error) {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	var stats Stats

	n, err := r.resolveImports(fileIDs)
	if err != nil {
		return stats, err
	}
	stats.ImportsResolved = n

	n, err = r.resolveTypeTraced(fileIDs)
	if err != nil {
		return stats, err
	}
	stats.TypeTraceResolved = n

	n, err = r.resolveConfigRefs(fileIDs)
	if err != nil {
		return stats, err
	}
	stats.ConfigRefsResolved = n

	shapeStats, err := r.ResolveShapesForFiles(fileIDs)
	if err != nil {
		return stats, err
	}
	stats.ShapeStats = shapeStats

	return stats, nil
}

// upgradeTier applies the resolver's monotonic-upgrade invariant: never
// lower an existing tier, and never let shape inference push past
// ANCHORED (see package doc).
func upgradeTier(current, proposed model.RefTier, viaShapeInference bool) model.RefTier {
	if viaShapeInference && proposed > model.TierAnchored {
		proposed = model.TierAnchored
	}
	if proposed <= current {
		return current
	}
	return proposed
}
