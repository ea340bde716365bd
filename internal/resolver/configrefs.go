package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"codeplane/internal/model"
)

// resolveConfigRefs is Pass 4: scanning config manifests (pyproject.toml,
// package.json-adjacent yaml/toml configs) for string values that name a
// tracked file path, and anchoring any ref whose name matches a value
// found there. This is weaker evidence than an import statement — the
// string could name anything — so matches land at ANCHORED, never higher.
func (r *Resolver) resolveConfigRefs(fileIDs []int64) (int, error) {
	files, err := r.st.AllFiles()
	if err != nil {
		return 0, err
	}
	pathSet := make(map[string]bool, len(files))
	for _, f := range files {
		pathSet[f.Path] = true
	}

	inSet := toSet(fileIDs)
	count := 0
	for _, f := range files {
		if len(inSet) > 0 && !inSet[f.ID] {
			continue
		}
		if !isConfigRefExtension(f.Path, r.cfg.ConfigRefExtensions) {
			continue
		}
		literals, err := extractConfigLiterals(f.Path)
		if err != nil {
			continue
		}
		refs, err := r.st.RefFactsUnresolved(model.TierProven)
		if err != nil {
			return count, err
		}
		for _, lit := range literals {
			if !pathSet[lit] {
				continue
			}
			for _, ref := range refs {
				if ref.FileID != f.ID || ref.Name != filepath.Base(lit) {
					continue
				}
				tier := upgradeTier(ref.Tier, model.TierAnchored, false)
				if tier == ref.Tier {
					continue
				}
				if err := r.st.UpdateRefResolution(ref.ID, tier, "", "config_ref"); err != nil {
					return count, err
				}
				count++
			}
		}
	}
	return count, nil
}

func isConfigRefExtension(path string, exts []string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(path)
	for _, e := range exts {
		if e == base || e == ext {
			return true
		}
	}
	return false
}

// extractConfigLiterals reads a config file and returns every string value
// found in it, a best-effort source of path-like references.
func extractConfigLiterals(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".toml":
		var raw map[string]any
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, err
		}
		return collectStrings(raw), nil
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, err
		}
		return collectStrings(raw), nil
	default:
		return nil, nil
	}
}

func collectStrings(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if strings.Contains(t, "/") || strings.Contains(t, ".") {
			out = append(out, t)
		}
	case map[string]any:
		for _, vv := range t {
			out = append(out, collectStrings(vv)...)
		}
	case []any:
		for _, vv := range t {
			out = append(out, collectStrings(vv)...)
		}
	}
	return out
}
