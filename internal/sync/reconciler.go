package sync

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/store"
)

const resyncPrefix = "last_resync:"

// Reconciler manages per-chat resync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger, now: time.Now}
}

// MarkResynced records that chatID's history was just merged from the
// backend.
func (r *Reconciler) MarkResynced(chatID string) error {
	ts := r.now().UnixMilli()
	if err := r.db.SetState(resyncPrefix+chatID, strconv.FormatInt(ts, 10)); err != nil {
		return err
	}
	r.logger.Debug("resync checkpoint", zap.String("chat_id", chatID), zap.Int64("ts_ms", ts))
	return nil
}

// LastResync returns when chatID was last resynced, or the zero time.
func (r *Reconciler) LastResync(chatID string) (time.Time, error) {
	v, ok, err := r.db.State(resyncPrefix + chatID)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.logger.Warn("bad resync checkpoint", zap.String("chat_id", chatID), zap.String("value", v))
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
