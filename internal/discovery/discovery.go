// Package discovery implements language-family context discovery and file
// routing (spec.md §4.C4): walking the repo tree for manifest markers,
// probing candidate roots, and routing discovered files to the context
// that owns them.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeplane/internal/config"
	"codeplane/internal/logging"
	"codeplane/internal/model"
)

// Unrouted is a file that no discovered context claimed, with the reason.
type Unrouted struct {
	Path   string
	Reason string
}

// Result is the outcome of one Discover+Route pass.
type Result struct {
	Contexts []model.Context
	Routed   map[string]int // path -> context index into Contexts
	Unrouted []Unrouted
}

// Discoverer walks a repo root for manifest markers and routes files to
// the longest-matching context root.
type Discoverer struct {
	cfg         config.DiscoveryConfig
	prunableDirs map[string]bool
}

func New(cfg config.DiscoveryConfig, prunableDirs []string) *Discoverer {
	prune := make(map[string]bool, len(prunableDirs))
	for _, d := range prunableDirs {
		prune[d] = true
	}
	return &Discoverer{cfg: cfg, prunableDirs: prune}
}

// Discover walks repoRoot and returns one Context per (language family,
// directory) pair whose directory contains a marker of that family, each
// marked Probed once its marker read succeeds (spec.md §4.C4: discover
// then probe).
func (d *Discoverer) Discover(repoRoot string) ([]model.Context, error) {
	timer := logging.StartTimer(logging.CategoryDiscovery, "Discover")
	defer timer.Stop()

	var contexts []model.Context
	seen := make(map[string]bool)

	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if d.prunableDirs[info.Name()] && path != repoRoot {
				return filepath.SkipDir
			}
			return nil
		}
		dir := filepath.Dir(path)
		base := filepath.Base(path)
		for lang, markers := range d.cfg.Markers {
			for _, marker := range markers {
				if base != marker {
					continue
				}
				rel, relErr := filepath.Rel(repoRoot, dir)
				if relErr != nil {
					continue
				}
				rel = filepath.ToSlash(rel)
				key := lang + ":" + rel
				if seen[key] {
					continue
				}
				seen[key] = true
				probed := d.probe(path)
				contexts = append(contexts, model.Context{
					Root:     rel,
					Language: lang,
					Probed:   probed,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(contexts, func(i, j int) bool {
		return len(contexts[i].Root) > len(contexts[j].Root) // deepest first for routing precedence
	})
	return contexts, nil
}

// probe validates that a discovered marker file is actually readable and
// non-empty-looking, distinguishing a real manifest from a stray zero-byte
// placeholder.
func (d *Discoverer) probe(markerPath string) bool {
	data, err := os.ReadFile(markerPath)
	if err != nil {
		return false
	}
	return len(data) > 0
}

// Route assigns every path in paths to the context whose root is the
// longest path-segment-safe prefix of it. A path not under any discovered
// context root is returned as Unrouted.
func (d *Discoverer) Route(contexts []model.Context, paths []string) Result {
	res := Result{Contexts: contexts, Routed: make(map[string]int)}
	for _, p := range paths {
		p = filepath.ToSlash(p)
		idx, ok := bestContext(contexts, p)
		if !ok {
			res.Unrouted = append(res.Unrouted, Unrouted{Path: p, Reason: "no discovered context root contains this path"})
			continue
		}
		res.Routed[p] = idx
	}
	return res
}

// bestContext finds the context with the longest root that is a
// segment-safe ancestor of path (never matching "foobar" against root
// "foo").
func bestContext(contexts []model.Context, path string) (int, bool) {
	best := -1
	bestLen := -1
	for i, c := range contexts {
		if !isSegmentPrefix(c.Root, path) {
			continue
		}
		if len(c.Root) > bestLen {
			bestLen = len(c.Root)
			best = i
		}
	}
	return best, best >= 0
}

func isSegmentPrefix(root, path string) bool {
	if root == "." || root == "" {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	rest := path[len(root):]
	return rest == "" || strings.HasPrefix(rest, "/")
}
