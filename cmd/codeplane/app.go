package main

import (
	"path/filepath"

	"codeplane/internal/config"
	"codeplane/internal/coordinator"
	"codeplane/internal/discovery"
	"codeplane/internal/epoch"
	"codeplane/internal/indexer"
	"codeplane/internal/lexical"
	"codeplane/internal/logging"
	"codeplane/internal/parser"
	"codeplane/internal/reconcile"
	"codeplane/internal/resolver"
	"codeplane/internal/store"
	"codeplane/internal/vcs"
	"codeplane/internal/watcher"
)

// app bundles every component a CLI command needs, wired the same way
// regardless of which subcommand runs.
type app struct {
	repoRoot string
	cfg      config.Config

	st       *store.Store
	lex      *lexical.Index
	registry *parser.Registry

	disc  *discovery.Discoverer
	rec   *reconcile.Reconciler
	idx   *indexer.Indexer
	res   *resolver.Resolver
	ep    *epoch.Manager
	watch *watcher.Watcher
	coord *coordinator.Coordinator
}

var prunableDirs = []string{".git", "node_modules", ".codeplane", "vendor", "__pycache__", "target", "dist", "build", ".venv", ".cache"}

func newApp(repoRoot string, cfg config.Config) (*app, error) {
	if err := logging.Initialize(repoRoot, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		logger.Sugar().Warnf("file logging init failed: %v", err)
	}

	dbPath := cfg.Store.DBPath
	if dbPath == "" {
		dbPath = config.DefaultStoreConfig().DBPath
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(repoRoot, dbPath)
	}
	storeCfg := cfg.Store
	storeCfg.DBPath = dbPath
	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, err
	}

	lexPath := filepath.Join(repoRoot, ".codeplane", "lexical.jsonl")
	lex := lexical.New(lexPath)
	_ = lex.Reload()

	registry := parser.NewRegistry(
		parser.NewGoParser(),
		parser.NewPythonParser(),
		parser.NewJavaScriptParser(),
		parser.NewTypeScriptParser(),
		parser.NewRustParser(),
	)

	disc := discovery.New(cfg.Discovery, prunableDirs)
	rec := reconcile.New(st, repoRoot, vcs.NullRepository{})
	idx := indexer.New(st, registry, lex, repoRoot)
	res := resolver.New(st, cfg.Resolver)
	journalDir := filepath.Join(repoRoot, ".codeplane", "journals")
	ep := epoch.New(st, lex, journalDir)

	w, err := watcher.New(cfg.Watcher, repoRoot)
	if err != nil {
		st.Close()
		return nil, err
	}
	coord := coordinator.New(disc, rec, idx, res, ep, w)

	return &app{
		repoRoot: repoRoot, cfg: cfg,
		st: st, lex: lex, registry: registry,
		disc: disc, rec: rec, idx: idx, res: res, ep: ep, watch: w, coord: coord,
	}, nil
}

func (a *app) close() {
	a.st.Close()
}
