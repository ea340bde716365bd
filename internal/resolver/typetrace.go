package resolver

import (
	"codeplane/internal/model"
	"codeplane/internal/parser"
)

// resolveTypeTraced is Pass 3: for each unresolved MemberAccessFact, check
// whether its receiver expression has a LocalBindFact in the same file
// recording a statically-known bound type; if so, and that type has a
// matching TypeMemberFact, the access is resolved to that type and the
// RefFact at the same file, line and member name is upgraded to PROVEN
// (traced through an explicit local binding, not inferred from usage shape).
func (r *Resolver) resolveTypeTraced(fileIDs []int64) (int, error) {
	accesses, err := r.st.MemberAccessFactsByFiles(fileIDs)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, acc := range accesses {
		boundType, ok := r.boundTypeFor(acc)
		if !ok {
			continue
		}
		members, err := r.st.TypeMemberFactsByType(boundType)
		if err != nil {
			return count, err
		}
		if !hasMember(members, acc.MemberName) {
			continue
		}
		if err := r.st.UpdateMemberAccessResolution(acc.ID, boundType, "type_traced", 1.0); err != nil {
			return count, err
		}
		ref, err := r.st.RefByFileLineName(acc.FileID, acc.Line, acc.MemberName)
		if err != nil {
			return count, err
		}
		if ref != nil && upgradeTier(ref.Tier, model.TierProven, false) != ref.Tier {
			defUID := ""
			for _, m := range members {
				if m.MemberName == acc.MemberName {
					defUID = m.DefUID
					break
				}
			}
			if err := r.st.UpdateRefResolution(ref.ID, model.TierProven, defUID, "type_traced"); err != nil {
				return count, err
			}
		}
		count++
	}
	return count, nil
}

func (r *Resolver) boundTypeFor(acc model.MemberAccessFact) (string, bool) {
	binds, err := r.localBindsByHash(acc.FileID, acc.ReceiverExprHash)
	if err != nil || len(binds) == 0 {
		return "", false
	}
	// Last binding before the access line wins; LocalBindFacts are
	// ordered by line in the query below.
	var best *model.LocalBindFact
	for i := range binds {
		if binds[i].Line <= acc.Line && (best == nil || binds[i].Line >= best.Line) {
			best = &binds[i]
		}
	}
	if best == nil || best.BoundTypeName == "" {
		return "", false
	}
	return best.BoundTypeName, true
}

func (r *Resolver) localBindsByHash(fileID int64, exprHash string) ([]model.LocalBindFact, error) {
	all, err := r.st.LocalBindFactsByFile(fileID)
	if err != nil {
		return nil, err
	}
	var out []model.LocalBindFact
	for _, b := range all {
		if parser.ExprHash(b.Name) == exprHash {
			out = append(out, b)
		}
	}
	return out, nil
}

func hasMember(members []model.TypeMemberFact, name string) bool {
	for _, m := range members {
		if m.MemberName == name {
			return true
		}
	}
	return false
}
