// Package indexer implements batch structural indexing (spec.md §4.C6):
// parsing a batch of files and replacing their structural facts in the
// store, delete-then-insert per file so a partial re-parse never leaves
// stale facts behind.
package indexer

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"codeplane/internal/errs"
	"codeplane/internal/lexical"
	"codeplane/internal/logging"
	"codeplane/internal/model"
	"codeplane/internal/parser"
	"codeplane/internal/store"
)

// Result summarizes one IndexBatch call.
type Result struct {
	FilesIndexed int
	ParseErrors  []*errs.ParseError
	Skipped      []string // paths with no registered parser, still lexically indexed
}

// Indexer parses files and writes their structural facts.
type Indexer struct {
	st       *store.Store
	registry *parser.Registry
	lex      *lexical.Index
	repoRoot string
	// Concurrency bounds how many files are parsed in parallel; facts are
	// still written to the store from a single bulk-writer goroutine to
	// respect the store's single-writer contract.
	Concurrency int
}

func New(st *store.Store, registry *parser.Registry, lex *lexical.Index, repoRoot string) *Indexer {
	return &Indexer{st: st, registry: registry, lex: lex, repoRoot: repoRoot, Concurrency: 8}
}

// FileByPath is a thin passthrough so callers that only hold an Indexer
// (e.g. the coordinator, resolving paths to file ids after a batch) don't
// need their own store handle.
func (ix *Indexer) FileByPath(path string) (*model.File, error) {
	return ix.st.FileByPath(path)
}

type parsedFile struct {
	fileID  int64
	path    string
	content []byte
	ext     parser.Extraction
	err     error
}

// IndexBatch parses every path in paths concurrently, then replaces each
// file's structural facts in a single bulk write. contextID is recorded
// on the file rows this batch creates; files already in the store keep
// their existing context.
func (ix *Indexer) IndexBatch(ctx context.Context, paths []string, contextID int64) (Result, error) {
	timer := logging.StartTimer(logging.CategoryIndexer, "IndexBatch")
	defer timer.Stop()

	var result Result

	fileRows := make([]*parsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, ix.Concurrency)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			content, err := os.ReadFile(filepath.Join(ix.repoRoot, p))
			if err != nil {
				fileRows[i] = &parsedFile{path: p, err: err}
				return nil
			}
			ext := filepath.Ext(p)
			extraction, perr := ix.registry.Parse(p, ext, content)
			fileRows[i] = &parsedFile{path: p, content: content, ext: extraction, err: perr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	bw, err := ix.st.NewBulkWriter()
	if err != nil {
		return result, err
	}
	committed := false
	defer func() {
		if !committed {
			bw.Close(ix.st)
		}
	}()

	var lexBatch = make(map[string]lexicalDoc)

	for _, row := range fileRows {
		if row.err != nil {
			if _, ok := row.err.(*parser.ErrSkippedNoGrammar); ok {
				result.Skipped = append(result.Skipped, row.path)
				if row.content != nil {
					lexBatch[row.path] = lexicalDoc{content: string(row.content)}
				}
				continue
			}
			result.ParseErrors = append(result.ParseErrors, &errs.ParseError{Path: row.path, Err: row.err})
			continue
		}

		f, err := ix.st.FileByPath(row.path)
		if err != nil {
			return result, err
		}
		var fileID int64
		if f != nil {
			fileID = f.ID
			if err := bw.ClearStructuralFacts(fileID); err != nil {
				return result, err
			}
		} else {
			if err := bw.UpsertFile(contextID, row.path, ix.registry.Language(filepath.Ext(row.path)), parser.HashContent(row.content)); err != nil {
				return result, err
			}
			nf, err := ix.st.FileByPath(row.path)
			if err != nil {
				return result, err
			}
			fileID = nf.ID
		}

		var symbols []string
		for _, d := range row.ext.Defs {
			d.FileID = fileID
			if _, err := bw.InsertDefFact(store.DefFactRow{
				FileID: fileID, DefUID: d.DefUID, Kind: d.Kind, Name: d.Name,
				LexicalPath: d.LexicalPath, Signature: d.Signature, SignatureHash: d.SignatureHash,
				Body: d.Body, StartLine: d.StartLine, EndLine: d.EndLine,
				Visibility: int(d.Visibility), IsStatic: d.IsStatic, ParentDefUID: d.ParentDefUID,
			}); err != nil {
				return result, err
			}
			symbols = append(symbols, d.Name)
		}
		for _, imp := range row.ext.Imports {
			if err := bw.Exec(
				`INSERT INTO import_facts (file_id, source_literal, imported_names, line) VALUES (?, ?, ?, ?)`,
				fileID, imp.SourceLiteral, joinNames(imp.ImportedNames), imp.Line); err != nil {
				return result, err
			}
		}
		for _, tm := range row.ext.TypeMembers {
			if err := bw.Exec(
				`INSERT INTO type_member_facts (file_id, type_name, member_name, is_method, def_uid) VALUES (?, ?, ?, ?, ?)`,
				fileID, tm.TypeName, tm.MemberName, boolToInt(tm.IsMethod), tm.DefUID); err != nil {
				return result, err
			}
		}
		for _, sc := range row.ext.Scopes {
			if err := bw.Exec(
				`INSERT INTO scope_facts (file_id, def_uid, start_line, end_line) VALUES (?, ?, ?, ?)`,
				fileID, sc.DefUID, sc.StartLine, sc.EndLine); err != nil {
				return result, err
			}
		}
		for _, ref := range row.ext.Refs {
			if err := bw.Exec(
				`INSERT INTO ref_facts (file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				fileID, ref.FromDefUID, ref.Name, ref.Line, int(model.TierUnknown), ref.ResolvedDefUID, ref.ResolutionMethod); err != nil {
				return result, err
			}
		}
		for _, acc := range row.ext.MemberAccess {
			if err := bw.Exec(
				`INSERT INTO member_access_facts (file_id, receiver_expr_hash, member_name, line, resolved_type_name, resolution_method, resolution_confidence)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				fileID, acc.ReceiverExprHash, acc.MemberName, acc.Line, acc.ResolvedTypeName, acc.ResolutionMethod, acc.ResolutionConfidence); err != nil {
				return result, err
			}
		}
		for _, sh := range row.ext.ReceiverShape {
			if err := bw.Exec(
				`INSERT INTO receiver_shape_facts (file_id, scope_def_uid, receiver_expr_hash, observed_fields, observed_methods)
				 VALUES (?, ?, ?, ?, ?)`,
				fileID, sh.ScopeDefUID, sh.ReceiverExprHash, joinNames(sh.ObservedFields), joinNames(sh.ObservedMethods)); err != nil {
				return result, err
			}
		}
		for _, lb := range row.ext.LocalBinds {
			if err := bw.Exec(
				`INSERT INTO local_bind_facts (file_id, scope_def_uid, name, bound_type_name, line) VALUES (?, ?, ?, ?, ?)`,
				fileID, lb.ScopeDefUID, lb.Name, lb.BoundTypeName, lb.Line); err != nil {
				return result, err
			}
		}
		for _, ds := range row.ext.Dynamic {
			if err := bw.Exec(
				`INSERT INTO dynamic_access_sites (file_id, line, reason) VALUES (?, ?, ?)`,
				fileID, ds.Line, ds.Reason); err != nil {
				return result, err
			}
		}

		lexBatch[row.path] = lexicalDoc{content: string(row.content), symbols: symbols}
		result.FilesIndexed++
	}

	if err := bw.Close(ix.st); err != nil {
		return result, err
	}
	committed = true

	for path, doc := range lexBatch {
		ix.lex.AddFile(path, doc.content, doc.symbols)
	}

	return result, nil
}

type lexicalDoc struct {
	content string
	symbols []string
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
