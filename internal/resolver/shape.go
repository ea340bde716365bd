package resolver

import (
	"sort"

	"codeplane/internal/model"
)

// ShapeInferenceStats mirrors original_source's ShapeInferenceStats.
type ShapeInferenceStats struct {
	ShapesProcessed  int
	ShapesMatched    int
	ShapesAmbiguous  int
	ShapesUnmatched  int
	AccessesUpgraded int
}

// typeMatch mirrors TypeMatch: one candidate type for a shape, ranked by
// confidence = min(1.0, |matched|/|observed| + 0.1*|method_matches|).
type typeMatch struct {
	typeName   string
	confidence float64
}

// ResolveShapesForFiles runs Pass 5 (shape-based type inference) over the
// unresolved MemberAccessFacts of fileIDs, grouped by file and receiver
// expression hash, ported from
// original_source/.../shape_resolver.py's ShapeInferenceResolver.
func (r *Resolver) ResolveShapesForFiles(fileIDs []int64) (ShapeInferenceStats, error) {
	var stats ShapeInferenceStats

	typeNames, err := r.st.AllTypeNames()
	if err != nil {
		return stats, err
	}
	typeShapeCache := make(map[string]map[string]bool, len(typeNames))
	typeMethodCache := make(map[string]map[string]bool, len(typeNames))
	typeMemberUIDCache := make(map[string]map[string]string, len(typeNames))
	for _, tn := range typeNames {
		members, err := r.st.TypeMemberFactsByType(tn)
		if err != nil {
			return stats, err
		}
		fields := make(map[string]bool)
		methods := make(map[string]bool)
		memberUIDs := make(map[string]string)
		for _, m := range members {
			if m.IsMethod {
				methods[m.MemberName] = true
			} else {
				fields[m.MemberName] = true
			}
			if m.DefUID != "" {
				memberUIDs[m.MemberName] = m.DefUID
			}
		}
		all := make(map[string]bool, len(fields)+len(methods))
		for k := range fields {
			all[k] = true
		}
		for k := range methods {
			all[k] = true
		}
		typeShapeCache[tn] = all
		typeMethodCache[tn] = methods
		typeMemberUIDCache[tn] = memberUIDs
	}

	accesses, err := r.st.MemberAccessFactsByFiles(fileIDs)
	if err != nil {
		return stats, err
	}

	// Group accesses by receiver shape (file + receiver hash): one shape =
	// one receiver expression's observed member set across the whole file,
	// not split by scope.
	type shapeKey struct {
		fileID int64
		hash   string
	}
	grouped := make(map[shapeKey][]model.MemberAccessFact)
	for _, acc := range accesses {
		if acc.ResolvedTypeName != "" {
			continue
		}
		k := shapeKey{fileID: acc.FileID, hash: acc.ReceiverExprHash}
		grouped[k] = append(grouped[k], acc)
	}

	for _, group := range grouped {
		stats.ShapesProcessed++

		observed := make(map[string]bool)
		observedMethods := make(map[string]bool)
		for _, acc := range group {
			observed[acc.MemberName] = true
			observedMethods[acc.MemberName] = true
		}
		if len(observed) == 0 {
			stats.ShapesUnmatched++
			continue
		}

		var matches []typeMatch
		for typeName, typeMembers := range typeShapeCache {
			if len(typeMembers) == 0 {
				continue
			}
			matchedCount := 0
			for m := range observed {
				if typeMembers[m] {
					matchedCount++
				}
			}
			if matchedCount == 0 {
				continue
			}
			methodMatches := 0
			for m := range observedMethods {
				if typeMethodCache[typeName][m] {
					methodMatches++
				}
			}
			confidence := float64(matchedCount) / float64(len(observed))
			confidence += 0.1 * float64(methodMatches)
			if confidence > 1.0 {
				confidence = 1.0
			}
			matches = append(matches, typeMatch{typeName: typeName, confidence: confidence})
		}

		if len(matches) == 0 {
			stats.ShapesUnmatched++
			continue
		}

		sort.Slice(matches, func(i, j int) bool { return matches[i].confidence > matches[j].confidence })
		best := matches[0]

		highConfidence := 0
		for _, m := range matches {
			if m.confidence >= r.cfg.ShapeMatchThreshold {
				highConfidence++
			}
		}
		if highConfidence > 1 {
			stats.ShapesAmbiguous++
			continue
		}
		if best.confidence < r.cfg.ShapeMatchThreshold {
			stats.ShapesUnmatched++
			continue
		}

		stats.ShapesMatched++
		for _, acc := range group {
			if err := r.st.UpdateMemberAccessResolution(acc.ID, best.typeName, "shape_matched", best.confidence); err != nil {
				return stats, err
			}
			memberUID := typeMemberUIDCache[best.typeName][acc.MemberName]
			if err := r.upgradeRefForAccess(acc, memberUID); err != nil {
				return stats, err
			}
			stats.AccessesUpgraded++
		}
	}

	return stats, nil
}

// upgradeRefForAccess mirrors shape_resolver.py's _upgrade_ref: a
// shape-matched member access also upgrades the RefFact recorded at the
// same file/line/token, if one is still unresolved. ANCHORED, not PROVEN —
// shape matching is corroborating evidence, never as certain as a
// statically traced type.
func (r *Resolver) upgradeRefForAccess(acc model.MemberAccessFact, resolvedDefUID string) error {
	ref, err := r.st.RefByFileLineName(acc.FileID, acc.Line, acc.MemberName)
	if err != nil || ref == nil {
		return err
	}
	if ref.ResolvedDefUID != "" {
		return nil
	}
	tier := upgradeTier(ref.Tier, model.TierAnchored, true)
	return r.st.UpdateRefResolution(ref.ID, tier, resolvedDefUID, "shape_matched")
}
