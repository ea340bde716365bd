// Package reconcile implements filesystem reconciliation (spec.md §4.C5):
// comparing current file content hashes against stored hashes and marking
// changed files, faithfully following
// original_source/.../db/reconcile.py's Reconciler.
//
// INVARIANT: reconcile must be serialized by the coordinator. Only one
// Reconcile call may run at a time against a given store.
package reconcile

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeplane/internal/logging"
	"codeplane/internal/model"
	"codeplane/internal/store"
	"codeplane/internal/vcs"
)

// ChangedFile describes one file that changed between reconciliations.
type ChangedFile struct {
	Path       string
	OldHash    string
	NewHash    string
	ChangeType string // "added" | "modified" | "deleted"
}

// Result is the outcome of one Reconcile call.
type Result struct {
	FilesChecked   int
	FilesAdded     int
	FilesModified  int
	FilesRemoved   int
	FilesUnchanged int
	HeadBefore     string
	HeadAfter      string
	Duration       time.Duration
	Errors         []string
	CplignoreChanged bool
}

// FilesChanged is the total count of files that changed in a reconcile.
func (r Result) FilesChanged() int {
	return r.FilesAdded + r.FilesModified + r.FilesRemoved
}

// extToLanguage mirrors reconcile.py's _detect_language extension map.
var extToLanguage = map[string]string{
	".py": "python", ".pyi": "python",
	".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript",
	".go": "go",
	".rs": "rust",
	".java": "java", ".kt": "kotlin", ".scala": "scala",
	".cs": "csharp", ".fs": "fsharp",
	".rb": "ruby", ".php": "php", ".swift": "swift",
	".ex": "elixir", ".exs": "elixir",
	".hs": "haskell", ".tf": "terraform", ".sql": "sql",
	".md": "markdown", ".json": "json",
	".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".proto": "protobuf", ".graphql": "graphql", ".gql": "graphql",
	".nix": "nix",
}

func detectLanguage(path string) string {
	return extToLanguage[strings.ToLower(filepath.Ext(path))]
}

// Reconciler compares filesystem state against the store.
type Reconciler struct {
	st       *store.Store
	repoRoot string
	repo     vcs.Repository
	ignore   *IgnoreChecker
}

func New(st *store.Store, repoRoot string, repo vcs.Repository) *Reconciler {
	return &Reconciler{st: st, repoRoot: repoRoot, repo: repo, ignore: NewIgnoreChecker(repoRoot)}
}

// Reconcile checks the given paths (or every git-tracked file, if paths is
// nil) against stored content hashes and applies the delta. It also hashes
// every .cplignore file hierarchically; any change sets CplignoreChanged,
// on which the coordinator reconciles every tracked file on its next cycle.
func (r *Reconciler) Reconcile(paths []string) (Result, error) {
	timer := logging.StartTimer(logging.CategoryReconcile, "Reconcile")
	defer timer.Stop()

	start := time.Now()
	var result Result

	currentHead, err := r.repo.Head()
	if err != nil {
		currentHead = ""
	}
	result.HeadAfter = currentHead

	currentCplignoreHash, err := r.ignore.CombinedHash()
	if err != nil {
		logging.Get(logging.CategoryReconcile).Warn("cplignore hash: %v", err)
	}

	prevState, err := r.st.RepoState()
	if err != nil {
		return result, err
	}
	result.HeadBefore = prevState.LastHead
	if prevState.CplignoreHash != currentCplignoreHash {
		result.CplignoreChanged = true
	}

	newState := model.RepoState{
		LastHead:         currentHead,
		CplignoreHash:    currentCplignoreHash,
		LastReconciledAt: time.Now(),
	}
	if err := r.st.WithWriteTx(func(tx *sql.Tx) error {
		return store.PutRepoState(tx, newState)
	}); err != nil {
		return result, err
	}

	var filesToCheck []string
	if paths == nil {
		all, err := r.repo.TrackedFiles()
		if err != nil {
			all, err = r.walkAllFiles()
			if err != nil {
				return result, err
			}
		}
		filesToCheck = all
	} else {
		for _, p := range paths {
			filesToCheck = append(filesToCheck, normalizePath(p))
		}
	}

	dbHashes, err := r.dbHashes(filesToCheck)
	if err != nil {
		return result, err
	}

	type added struct {
		path, hash, language string
	}
	type modified struct {
		path, hash string
	}
	var addedFiles []added
	var modifiedFiles []modified
	var removedPaths []string

	for _, relPath := range filesToCheck {
		if r.ignore.Matches(relPath) {
			continue
		}
		result.FilesChecked++
		absPath := filepath.Join(r.repoRoot, relPath)
		info, statErr := os.Stat(absPath)
		if statErr != nil || info.IsDir() {
			if _, ok := dbHashes[relPath]; ok {
				removedPaths = append(removedPaths, relPath)
				result.FilesRemoved++
			}
			continue
		}

		hash, err := computeHash(absPath)
		if err != nil {
			result.Errors = append(result.Errors, "reading "+relPath+": "+err.Error())
			continue
		}
		oldHash, existed := dbHashes[relPath]
		switch {
		case !existed:
			addedFiles = append(addedFiles, added{path: relPath, hash: hash, language: detectLanguage(relPath)})
			result.FilesAdded++
		case oldHash != hash:
			modifiedFiles = append(modifiedFiles, modified{path: relPath, hash: hash})
			result.FilesModified++
		default:
			result.FilesUnchanged++
		}
	}

	bw, err := r.st.NewBulkWriter()
	if err != nil {
		return result, err
	}
	for _, a := range addedFiles {
		if err := bw.UpsertFile(0, a.path, a.language, a.hash); err != nil {
			bw.Close(r.st)
			return result, err
		}
	}
	for _, m := range modifiedFiles {
		if err := bw.UpsertFile(0, m.path, detectLanguage(m.path), m.hash); err != nil {
			bw.Close(r.st)
			return result, err
		}
	}
	for _, p := range removedPaths {
		if err := bw.DeleteFileByPath(r.st, p); err != nil {
			bw.Close(r.st)
			return result, err
		}
	}
	if err := bw.Close(r.st); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// GetFileState reports the freshness of a single tracked path without
// running a full reconcile (spec.md §4.C5).
func (r *Reconciler) GetFileState(path string) (model.Freshness, error) {
	f, err := r.st.FileByPath(normalizePath(path))
	if err != nil {
		return model.Unindexed, err
	}
	if f == nil {
		return model.Unindexed, nil
	}
	absPath := filepath.Join(r.repoRoot, path)
	if _, err := os.Stat(absPath); err != nil {
		return model.Dirty, nil
	}
	hash, err := computeHash(absPath)
	if err != nil {
		return model.Dirty, nil
	}
	if hash != f.ContentHash {
		return model.Dirty, nil
	}
	if f.LastIndexedEpoch == 0 {
		return model.Unindexed, nil
	}
	return model.Clean, nil
}

func (r *Reconciler) dbHashes(paths []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, p := range paths {
		f, err := r.st.FileByPath(p)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out[p] = f.ContentHash
		}
	}
	return out, nil
}

func (r *Reconciler) walkAllFiles() ([]string, error) {
	var out []string
	err := filepath.Walk(r.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.repoRoot, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalizePath(p string) string {
	return filepath.ToSlash(p)
}
