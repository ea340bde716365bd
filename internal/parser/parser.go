// Package parser implements structural extraction (spec.md §4.C3): turning
// file content into DefFacts, RefFacts, ImportFacts and the other facts the
// resolver and query layers consume. Go source is parsed natively with
// go/parser; Python, JavaScript, TypeScript and Rust are parsed with
// tree-sitter, matching the teacher's dual-strategy CodeParser design.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"codeplane/internal/model"
)

// Extraction is everything one Parse call produces for a single file.
type Extraction struct {
	Defs          []model.DefFact
	Refs          []model.RefFact
	Scopes        []model.ScopeFact
	Imports       []model.ImportFact
	TypeMembers   []model.TypeMemberFact
	MemberAccess  []model.MemberAccessFact
	ReceiverShape []model.ReceiverShapeFact
	LocalBinds    []model.LocalBindFact
	Dynamic       []model.DynamicAccessSite
}

// CodeParser extracts structural facts from one file's content. Each
// implementation owns exactly the language family named by Language().
type CodeParser interface {
	Parse(path string, content []byte) (Extraction, error)
	SupportedExtensions() []string
	Language() string
}

// ErrSkippedNoGrammar is returned by Registry.Parse when no
// parser claims an extension; the caller treats the file as untyped
// content for the lexical index only, never a fatal error.
type ErrSkippedNoGrammar struct {
	Ext string
}

func (e *ErrSkippedNoGrammar) Error() string {
	return fmt.Sprintf("parser: no grammar registered for extension %q", e.Ext)
}

// Registry dispatches to the CodeParser registered for a file's extension.
type Registry struct {
	byExt map[string]CodeParser
}

// NewRegistry builds a registry from the given parsers, indexed by every
// extension each one declares.
func NewRegistry(parsers ...CodeParser) *Registry {
	r := &Registry{byExt: make(map[string]CodeParser)}
	for _, p := range parsers {
		for _, ext := range p.SupportedExtensions() {
			r.byExt[ext] = p
		}
	}
	return r
}

// Parse dispatches by extension. Returns ErrSkippedNoGrammar (check with
// errors.As) when the extension is untracked by any registered parser.
func (r *Registry) Parse(path, ext string, content []byte) (Extraction, error) {
	p, ok := r.byExt[ext]
	if !ok {
		return Extraction{}, &ErrSkippedNoGrammar{Ext: ext}
	}
	return p.Parse(path, content)
}

// Language returns the language family name for an extension, or "" if
// untracked.
func (r *Registry) Language(ext string) string {
	if p, ok := r.byExt[ext]; ok {
		return p.Language()
	}
	return ""
}

// HashContent computes the content hash the reconciler compares against
// the store's recorded hash for a file (spec.md §4.C5).
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SignatureHash is the identity key component semantic diff and def_facts
// indexing use to detect a pure rename (matching signature, new lexical
// path) versus a signature change.
func SignatureHash(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}

// ExprHash identifies a receiver expression (usually just a variable name)
// for grouping MemberAccessFacts, ReceiverShapeFacts and LocalBindFacts that
// all refer to the same runtime value across a scope.
func ExprHash(expr string) string {
	sum := sha256.Sum256([]byte(expr))
	return hex.EncodeToString(sum[:])
}
