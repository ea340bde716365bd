// Package model defines the data model shared by every component: files,
// contexts, facts extracted from source, and the records that back the
// epoch/reconcile/resolver/query layers (spec.md §3).
package model

import "time"

// Freshness classifies a tracked file relative to the store's last-seen
// hash for it (spec.md §4.C5).
type Freshness int

const (
	Unindexed Freshness = iota
	Dirty
	Clean
)

func (f Freshness) String() string {
	switch f {
	case Unindexed:
		return "unindexed"
	case Dirty:
		return "dirty"
	case Clean:
		return "clean"
	default:
		return "unknown"
	}
}

// RefTier is the confidence ladder a RefFact's resolution climbs during the
// multi-pass resolver (C7). It is monotonic: a later pass never lowers a
// tier, and ANCHORED is never auto-upgraded to STRONG by a later pass.
type RefTier int

const (
	TierUnknown RefTier = iota
	TierAnchored
	TierStrong
	TierProven
)

func (t RefTier) String() string {
	switch t {
	case TierProven:
		return "proven"
	case TierStrong:
		return "strong"
	case TierAnchored:
		return "anchored"
	default:
		return "unknown"
	}
}

// Visibility mirrors the source language's exported/unexported distinction.
type Visibility int

const (
	VisibilityUnknown Visibility = iota
	VisibilityPublic
	VisibilityPrivate
)

// Context is a discovered language-family root (spec.md §4.C4): a directory
// containing a manifest marker (go.mod, pyproject.toml, package.json, ...).
type Context struct {
	ID       int64
	Root     string
	Language string
	Probed   bool
}

// File is a tracked source file within a Context.
type File struct {
	ID              int64
	ContextID       int64
	Path            string // repo-relative, normalized to forward slashes
	Language        string
	ContentHash     string // sha-256 hex
	LastIndexedEpoch int64
	Freshness       Freshness
}

// RepoState holds singleton reconciliation bookkeeping: the git HEAD and
// .cplignore hash observed at the last reconcile (spec.md §4.C5).
type RepoState struct {
	LastHead          string
	CplignoreHash     string
	LastReconciledAt  time.Time
	CurrentEpochID    int64
}

// Epoch is a published, immutable point-in-time snapshot marker
// (spec.md §4.C8).
type Epoch struct {
	ID         int64
	CreatedAt  time.Time
	FileCount  int
	CommitHash string
}

// DefFact is a structural definition extracted from a file: a function,
// method, type, class, variable, or constant.
type DefFact struct {
	ID            int64
	FileID        int64
	DefUID        string // stable identity across renames when possible
	Kind          string // "function" | "method" | "type" | "class" | "variable" | "constant"
	Name          string
	LexicalPath   string // dotted path from file root, e.g. "Server.Start"
	Signature     string
	SignatureHash string
	Body          string
	StartLine     int
	EndLine       int
	Visibility    Visibility
	IsStatic      bool
	ParentDefUID  string
}

// RefFact is a reference from one def (or file scope) to a name that may
// resolve to a DefFact elsewhere.
type RefFact struct {
	ID                  int64
	FileID              int64
	FromDefUID          string
	Name                string
	Line                int
	Tier                RefTier
	ResolvedDefUID      string
	ResolutionMethod    string
}

// ScopeFact records a lexical scope boundary used by import/local-binding
// resolution passes.
type ScopeFact struct {
	ID        int64
	FileID    int64
	DefUID    string
	StartLine int
	EndLine   int
}

// ImportFact is an import/require/use statement. SourceLiteral is the raw
// module string as written (e.g. "src.pkg.mod" or "./util"); it is the join
// key the import graph (C10) matches against.
type ImportFact struct {
	ID            int64
	FileID        int64
	SourceLiteral string
	ImportedNames []string
	Line          int
	Resolved      bool
	ResolvedFileID int64
}

// TypeMemberFact records a field or method belonging to a named type, used
// by shape inference (C7 pass 5) to build the type -> member-set cache.
type TypeMemberFact struct {
	ID         int64
	FileID     int64
	TypeName   string
	MemberName string
	IsMethod   bool
	DefUID     string
}

// MemberAccessFact is a `recv.member` access whose receiver type is not
// statically known; shape inference may resolve it structurally.
type MemberAccessFact struct {
	ID                 int64
	FileID             int64
	ReceiverExprHash    string
	MemberName         string
	Line               int
	ResolvedTypeName   string
	ResolutionMethod   string
	ResolutionConfidence float64
}

// ReceiverShapeFact captures the observed fields/methods used on a receiver
// within one scope, the input to shape inference's matching step.
type ReceiverShapeFact struct {
	ID           int64
	FileID       int64
	ScopeDefUID  string
	ReceiverExprHash string
	ObservedFields  []string
	ObservedMethods []string
}

// LocalBindFact records a local name binding (assignment, parameter,
// destructure) used to trace receiver types intra-procedurally.
type LocalBindFact struct {
	ID         int64
	FileID     int64
	ScopeDefUID string
	Name       string
	BoundTypeName string
	Line       int
}

// DynamicAccessSite records a reflective/dynamic-dispatch access the
// resolver cannot trace statically (kept as UNKNOWN tier permanently).
type DynamicAccessSite struct {
	ID     int64
	FileID int64
	Line   int
	Reason string
}

// ExportEntry is one symbol in a file's export surface.
type ExportEntry struct {
	Name       string
	DefUID     string
	Visibility Visibility
}

// ExportSurface is the set of symbols a file/context exposes to importers.
type ExportSurface struct {
	FileID  int64
	Entries []ExportEntry
}

// AnchorGroup clusters DefFacts across an epoch boundary that the resolver
// believes are the "same" definition despite a rename, used to stabilize
// DefUID continuity.
type AnchorGroup struct {
	ID      int64
	DefUIDs []string
}

// DefSnapshotRecord is a point-in-time copy of a DefFact taken at publish
// time, the basis for semantic diff's "base" side (C10).
type DefSnapshotRecord struct {
	EpochID       int64
	DefUID        string
	FileID        int64
	Kind          string
	Name          string
	LexicalPath   string
	Signature     string
	SignatureHash string
	Body          string
	StartLine     int
	EndLine       int
}
