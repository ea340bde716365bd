package mutate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Apply writes every hunk in edits whose file's current content hash still
// matches the edit's recorded ContentHash; any file that drifted is
// reported in Diverged instead of being overwritten.
func (e *FileEngine) Apply(ctx context.Context, edits []FileEdit) (ApplyResult, error) {
	var result ApplyResult

	for _, edit := range edits {
		abs := filepath.Join(e.RepoRoot, edit.Path)
		content, err := os.ReadFile(abs)
		if err != nil {
			return result, fmt.Errorf("read %s: %w", edit.Path, err)
		}

		if hashContent(content) != edit.ContentHash {
			for _, h := range edit.Hunks {
				result.Diverged = append(result.Diverged, DivergedHunk{Path: edit.Path, Hunk: h})
			}
			continue
		}

		updated, err := applyHunks(string(content), edit.Hunks)
		if err != nil {
			return result, fmt.Errorf("apply hunks to %s: %w", edit.Path, err)
		}
		if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", edit.Path, err)
		}
		result.Applied = append(result.Applied, edit.Path)
	}

	return result, nil
}

// MoveFile relocates a file within the repo root, creating any missing
// parent directory for to and refusing to overwrite an existing file there.
func (e *FileEngine) MoveFile(ctx context.Context, from, to string) error {
	absFrom := filepath.Join(e.RepoRoot, from)
	absTo := filepath.Join(e.RepoRoot, to)

	if _, err := os.Stat(absTo); err == nil {
		return fmt.Errorf("move %s -> %s: destination already exists", from, to)
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absTo), 0o755); err != nil {
		return err
	}
	return os.Rename(absFrom, absTo)
}

// applyHunks replaces the exact text of each hunk's Old with New, scoped
// to the hunk's recorded line for disambiguation when Old repeats.
func applyHunks(content string, hunks []EditHunk) (string, error) {
	lines := strings.Split(content, "\n")
	for _, h := range hunks {
		idx := h.Line - 1
		if idx < 0 || idx >= len(lines) {
			return "", fmt.Errorf("hunk line %d out of range (file has %d lines)", h.Line, len(lines))
		}
		if !strings.Contains(lines[idx], h.Old) {
			return "", fmt.Errorf("hunk at line %d: expected text %q not found", h.Line, h.Old)
		}
		lines[idx] = strings.Replace(lines[idx], h.Old, h.New, 1)
	}
	return strings.Join(lines, "\n"), nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
