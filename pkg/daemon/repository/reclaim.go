package repository

import (
	"context"
	"time"

	"github.com/jamesainslie/sysprint/pkg/daemon/broadcaster"
)

// Reclaim deletes projects whose last access is older than the retention
// period and returns their ids. A zero retention disables reclamation.
func (r *Repository) Reclaim(ctx context.Context) ([]string, error) {
	if r.retention <= 0 {
		return nil, nil
	}

	projects, err := r.store.ListProjects()
	if err != nil {
		return nil, err
	}

	var reclaimed []string
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		if !r.expired(p.LastAccess) {
			continue
		}
		ok, err := r.reclaim(ctx, p.ID)
		if err != nil {
			r.log.Warn("failed to reclaim project", "project", p.ID, "error", err)
			continue
		}
		if ok {
			reclaimed = append(reclaimed, p.ID)
		}
	}
	return reclaimed, nil
}

func (r *Repository) expired(lastAccess time.Time) bool {
	return r.now().Sub(lastAccess) > r.retention
}

// reclaim re-checks expiry under the write lock, since a read may have
// touched the project after it was listed.
func (r *Repository) reclaim(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	p, err := r.store.GetProject(id)
	if err != nil {
		return false, nil
	}
	if !r.expired(p.LastAccess) {
		return false, nil
	}
	if err := r.remove(ctx, p); err != nil {
		return false, err
	}

	r.log.Info("project reclaimed", "project", id, "last_access", p.LastAccess)
	r.notify(broadcaster.EventReclaimed, id)
	return true, nil
}

// RunReclaimer calls Reclaim every interval until ctx is cancelled.
func (r *Repository) RunReclaimer(ctx context.Context, interval time.Duration) {
	if r.retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("reclaimer started", "interval", interval, "retention", r.retention)
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("reclaimer stopped")
			return
		case <-ticker.C:
			ids, err := r.Reclaim(ctx)
			if err != nil && ctx.Err() == nil {
				r.log.Error("reclaim failed", "error", err)
			}
			if len(ids) > 0 {
				r.log.Info("reclaimed idle projects", "count", len(ids))
			}
		}
	}
}
