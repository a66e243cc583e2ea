package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hybscloud/spiral/pkg/canon"
	"github.com/hybscloud/spiral/pkg/canon/cache"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/logging"
)

// RunFunc evaluates doc end to end, as Server.evaluateDocument does for the
// synchronous HTTP path.
type RunFunc func(ctx context.Context, doc *ir.Document) (any, error)

// CronScheduler re-submits a registered document on a cron expression,
// generalizing the teacher's trigger.CronScheduler from
// database-backed workflow triggers to in-memory documents keyed by a
// caller-supplied id.
type CronScheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	docs     map[string]*ir.Document
	maxJobs  int
	run      RunFunc
	cache    *cache.Cache
	logger   *logging.Logger
}

func NewCronScheduler(maxJobs int, run RunFunc, resultCache *cache.Cache, log *logging.Logger) *CronScheduler {
	cs := &CronScheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
		docs:    make(map[string]*ir.Document),
		maxJobs: maxJobs,
		run:     run,
		cache:   resultCache,
		logger:  log,
	}
	cs.cron.Start()
	return cs
}

// Schedule registers doc under id to run on cronExpr, replacing any
// prior schedule for the same id.
func (cs *CronScheduler) Schedule(id, cronExpr string, doc *ir.Document) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[id]; !exists && len(cs.entries) >= cs.maxJobs {
		return fmt.Errorf("cron: max scheduled jobs (%d) reached", cs.maxJobs)
	}
	if prev, exists := cs.entries[id]; exists {
		cs.cron.Remove(prev)
	}

	entryID, err := cs.cron.AddFunc(cronExpr, func() { cs.fire(id) })
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q: %w", cronExpr, err)
	}
	cs.entries[id] = entryID
	cs.docs[id] = doc
	return nil
}

// Unschedule cancels id's job, if any. It reports false if id had no
// active schedule.
func (cs *CronScheduler) Unschedule(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	entryID, ok := cs.entries[id]
	if !ok {
		return false
	}
	cs.cron.Remove(entryID)
	delete(cs.entries, id)
	delete(cs.docs, id)
	return true
}

func (cs *CronScheduler) fire(id string) {
	cs.mu.Lock()
	doc := cs.docs[id]
	cs.mu.Unlock()
	if doc == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := cs.run(ctx, doc)
	if err != nil {
		cs.logger.Error("scheduled evaluation failed", "document_id", id, "error", err)
		return
	}
	cs.logger.Info("scheduled evaluation completed", "document_id", id)

	if cs.cache == nil {
		return
	}
	digest, err := canon.Digest(result)
	if err != nil {
		cs.logger.Warn("scheduled evaluation: failed to digest result", "document_id", id, "error", err)
		return
	}
	if err := cs.cache.Set(ctx, digest, result); err != nil {
		cs.logger.Warn("scheduled evaluation: failed to cache result", "document_id", id, "error", err)
	}
}

// Stop drains and stops the underlying cron, waiting for any in-flight
// job to finish.
func (cs *CronScheduler) Stop() {
	<-cs.cron.Stop().Done()
}
