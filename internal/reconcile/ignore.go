package reconcile

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreChecker discovers every .cplignore file hierarchically under a
// repo root and matches paths against the union of their patterns,
// grounded on original_source/.../ignore.py's IgnoreChecker.
type IgnoreChecker struct {
	repoRoot string
	files    []string // .cplignore file paths, sorted
	patterns []compiledPattern
}

type compiledPattern struct {
	dir     string // directory the pattern file lives in, relative to repoRoot
	pattern string
}

func NewIgnoreChecker(repoRoot string) *IgnoreChecker {
	c := &IgnoreChecker{repoRoot: repoRoot}
	c.discover()
	return c
}

func (c *IgnoreChecker) discover() {
	var files []string
	filepath.Walk(c.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == ".cplignore" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	c.files = files

	for _, f := range files {
		dir, _ := filepath.Rel(c.repoRoot, filepath.Dir(f))
		dir = filepath.ToSlash(dir)
		lines, err := readLines(f)
		if err != nil {
			continue
		}
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			c.patterns = append(c.patterns, compiledPattern{dir: dir, pattern: line})
		}
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

// Matches reports whether relPath (repo-root-relative, forward-slash) is
// ignored by any discovered .cplignore, scoped hierarchically: a pattern
// from a .cplignore in directory D only applies to paths under D.
func (c *IgnoreChecker) Matches(relPath string) bool {
	for _, p := range c.patterns {
		scoped := relPath
		if p.dir != "." && p.dir != "" {
			if !strings.HasPrefix(relPath, p.dir+"/") {
				continue
			}
			scoped = strings.TrimPrefix(relPath, p.dir+"/")
		}
		if matched, _ := filepath.Match(p.pattern, scoped); matched {
			return true
		}
		if matched, _ := filepath.Match(p.pattern, filepath.Base(scoped)); matched {
			return true
		}
		if strings.HasPrefix(scoped, strings.TrimSuffix(p.pattern, "/")+"/") {
			return true
		}
	}
	return false
}

// CombinedHash returns a single hash over the content of every discovered
// .cplignore file; any change to any file anywhere in the repo changes
// this hash, and the coordinator then runs a full reconcile on its next
// cycle. Returns
// "" if no .cplignore files exist, matching the original's None return.
func (c *IgnoreChecker) CombinedHash() (string, error) {
	if len(c.files) == 0 {
		return "", nil
	}
	h := sha256.New()
	for _, f := range c.files {
		content, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		h.Write([]byte(f))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
