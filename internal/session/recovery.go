// internal/session/recovery.go
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/store"
)

// cleanupTimeout bounds zombie termination when the invocation context is
// already done.
const cleanupTimeout = 5 * time.Second

// Engine reattaches to a session whose id was stored by an earlier invocation.
//
// WebDriver offers no way to ask whether session X is alive without first
// creating a session, so every attempt allocates a zombie that must be
// terminated whatever the outcome.
type Engine struct {
	dialer  Dialer
	store   store.SessionStore
	key     string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine wires the recovery engine. metrics may be nil.
func NewEngine(dialer Dialer, st store.SessionStore, key string, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dialer:  dialer,
		store:   st,
		key:     key,
		logger:  logger.Named("recovery"),
		metrics: metrics,
	}
}

// Recover returns a handle addressed by storedID when that session is still
// alive. Any failure evicts storedID from the store and yields a
// *RecoveryError; the caller is expected to create a fresh session instead.
// Every connection opened here that is not returned has been closed.
func (e *Engine) Recover(ctx context.Context, endpoint string, opts *chromeopts.LaunchOptions, storedID string) (Handle, error) {
	log := e.logger.With(zap.String("session_id", storedID), zap.String("endpoint", endpoint))

	zombie, err := open(ctx, e.dialer, endpoint, opts)
	if err != nil {
		log.Info("Could not open a connection to reattach through.", zap.Error(err))
		e.evict(ctx, log)
		e.metrics.RecordRecovery(observability.OutcomeFailure)
		return Handle{}, &RecoveryError{SessionID: storedID, Err: err}
	}
	log = log.With(zap.String("zombie_id", zombie.SessionID()))

	handle := zombie.WithSessionID(storedID)
	probeErr := handle.Probe(ctx)

	e.terminate(ctx, zombie, log)

	if probeErr != nil {
		_ = handle.Close()
		log.Info("Stored session is gone; it will be replaced.", zap.Error(probeErr))
		e.evict(ctx, log)
		e.metrics.RecordRecovery(observability.OutcomeFailure)
		return Handle{}, &RecoveryError{SessionID: storedID, Err: probeErr}
	}

	log.Debug("Reattached to stored session.")
	e.metrics.RecordRecovery(observability.OutcomeSuccess)
	return handle, nil
}

// terminate quits the zombie session. Failures are swallowed; the server
// reaps abandoned sessions on its own timeout.
func (e *Engine) terminate(ctx context.Context, zombie Handle, log *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := zombie.Quit(cctx); err != nil {
		log.Debug("Zombie session cleanup failed.", zap.Error(err))
		e.metrics.RecordZombieCleanup(observability.OutcomeFailure)
		return
	}
	e.metrics.RecordZombieCleanup(observability.OutcomeSuccess)
}

// evict removes the stored id. A missing key counts as success; any other
// failure is reported through logs and metrics but never returned.
func (e *Engine) evict(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		// A cancelled invocation proves nothing about the stored session.
		log.Debug("Invocation cancelled; keeping stored session id.")
		return
	}
	deleted, err := store.DeleteIgnoringNotFound(ctx, e.store, e.key)
	switch {
	case err != nil:
		log.Warn("Failed to evict stale session id.", zap.String("key", e.key), zap.Error(err))
		e.metrics.RecordEviction(observability.OutcomeFailure)
	case deleted:
		e.metrics.RecordEviction(observability.OutcomeSuccess)
	default:
		e.metrics.RecordEviction(observability.OutcomeNotFound)
	}
}
