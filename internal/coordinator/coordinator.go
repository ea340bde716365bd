// Package coordinator serializes the reconcile -> route -> extract ->
// resolve -> publish cycle behind a single lock (spec.md §4.C9), draining
// the watcher's debounced change queue in batches.
package coordinator

import (
	"context"
	"time"

	"codeplane/internal/discovery"
	"codeplane/internal/epoch"
	"codeplane/internal/indexer"
	"codeplane/internal/logging"
	"codeplane/internal/reconcile"
	"codeplane/internal/resolver"
	"codeplane/internal/watcher"
)

// CycleResult summarizes one coordinator cycle.
type CycleResult struct {
	Reconcile reconcile.Result
	Unrouted  []discovery.Unrouted
	Indexed   indexer.Result
	Resolved  resolver.Stats
	Epoch     epoch.Stats
}

// Coordinator owns the single reconcile_lock serializing all index
// mutation so no two cycles (or a cycle and a manual reindex request) run
// concurrently.
type Coordinator struct {
	lock chan struct{} // 1-buffered: acts as a non-reentrant mutex with a Try variant

	fullReconcilePending bool // set when a cycle sees a .cplignore change; guarded by lock

	disc  *discovery.Discoverer
	rec   *reconcile.Reconciler
	idx   *indexer.Indexer
	res   *resolver.Resolver
	ep    *epoch.Manager
	watch *watcher.Watcher
}

func New(disc *discovery.Discoverer, rec *reconcile.Reconciler, idx *indexer.Indexer, res *resolver.Resolver, ep *epoch.Manager, w *watcher.Watcher) *Coordinator {
	return &Coordinator{
		lock:  make(chan struct{}, 1),
		disc:  disc,
		rec:   rec,
		idx:   idx,
		res:   res,
		ep:    ep,
		watch: w,
	}
}

// RunCycle executes one reconcile->route->extract->resolve->publish pass
// over the given paths. The reconcile step covers every tracked file when
// paths is nil, and also on the first cycle after one that saw a
// .cplignore change. It blocks until the lock is free.
func (c *Coordinator) RunCycle(ctx context.Context, repoRoot string, paths []string) (CycleResult, error) {
	c.lock <- struct{}{}
	defer func() { <-c.lock }()

	timer := logging.StartTimer(logging.CategoryCoordinator, "RunCycle")
	defer timer.Stop()

	var result CycleResult

	recPaths := paths
	if c.fullReconcilePending {
		recPaths = nil
	}
	recResult, err := c.rec.Reconcile(recPaths)
	if err != nil {
		return result, err
	}
	result.Reconcile = recResult
	c.fullReconcilePending = recResult.CplignoreChanged

	if recResult.CplignoreChanged {
		logging.Get(logging.CategoryCoordinator).Info("cplignore changed, next cycle will do a full reconcile")
	}

	contexts, err := c.disc.Discover(repoRoot)
	if err != nil {
		return result, err
	}
	routeResult := c.disc.Route(contexts, paths)
	result.Unrouted = routeResult.Unrouted

	indexed, err := c.idx.IndexBatch(ctx, paths, 0)
	if err != nil {
		return result, err
	}
	result.Indexed = indexed

	fileIDs, err := c.fileIDsForPaths(paths)
	if err != nil {
		return result, err
	}
	resolved, err := c.res.Resolve(fileIDs)
	if err != nil {
		return result, err
	}
	result.Resolved = resolved

	epochStats, err := c.ep.Publish(indexed.FilesIndexed, recResult.HeadAfter, paths)
	if err != nil {
		return result, err
	}
	result.Epoch = epochStats

	return result, nil
}

// RunWatchLoop drains the watcher's debounced queue and runs one cycle per
// batch until ctx is canceled, coalescing events that land within a short
// window into a single batch so a burst of saves yields one cycle.
func (c *Coordinator) RunWatchLoop(ctx context.Context, repoRoot string) error {
	batch := make([]string, 0, 64)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-c.watch.Queue():
			batch = append(batch, path)
		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
			toRun := batch
			batch = make([]string, 0, 64)
			if _, err := c.RunCycle(ctx, repoRoot, toRun); err != nil {
				logging.Get(logging.CategoryCoordinator).Error("watch cycle failed: %v", err)
			}
		}
	}
}

func (c *Coordinator) fileIDsForPaths(paths []string) ([]int64, error) {
	ids := make([]int64, 0, len(paths))
	for _, p := range paths {
		f, err := c.idx.FileByPath(p)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}
