package services

import (
	"context"
	"time"

	"github.com/clouddrive/backend/internal/config"
	"github.com/clouddrive/backend/internal/models"
	"github.com/clouddrive/backend/internal/storage"
	"github.com/clouddrive/backend/pkg/logger"
	"gorm.io/gorm"
)

// Reconciler sweeps the object store for orphaned blobs. The blob write and
// the metadata write are two separate operations; a crash between them leaves
// an object no file record points at. The sweep deletes such objects once
// they are older than the configured grace period, so a blob belonging to an
// upload still in flight is never collected.
type Reconciler struct {
	DB    *gorm.DB
	Store storage.ObjectStore

	interval time.Duration
	grace    time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReconciler(db *gorm.DB, store storage.ObjectStore, cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		DB:       db,
		Store:    store,
		interval: cfg.Interval,
		grace:    cfg.GracePeriod,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed, err := r.Sweep(context.Background()); err != nil {
					logger.Error("reconcile_sweep_failed", err, nil)
				} else if removed > 0 {
					logger.Info("reconcile_sweep_done", map[string]interface{}{
						"orphans_removed": removed,
					})
				}
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

// Sweep deletes objects older than the grace period that no live file record
// references. Returns the number of orphans removed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	objects, err := r.Store.List(ctx, "")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-r.grace)
	removed := 0

	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}

		var count int64
		if err := r.DB.WithContext(ctx).
			Model(&models.File{}).
			Where("storage_path = ?", obj.Key).
			Count(&count).Error; err != nil {
			return removed, err
		}
		if count > 0 {
			continue
		}

		if err := r.Store.Delete(ctx, obj.Key); err != nil {
			logger.Error("reconcile_orphan_delete_failed", err, map[string]interface{}{
				"object_key": obj.Key,
			})
			continue
		}

		logger.Info("reconcile_orphan_removed", map[string]interface{}{
			"object_key": obj.Key,
			"size":       obj.Size,
		})
		removed++
	}

	return removed, nil
}
