package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/store"
)

// Factory creates fresh sessions and records their ids.
type Factory struct {
	dialer  Dialer
	store   store.SessionStore
	key     string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewFactory wires the session factory. metrics may be nil.
func NewFactory(dialer Dialer, st store.SessionStore, key string, logger *zap.Logger, metrics *observability.Metrics) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		dialer:  dialer,
		store:   st,
		key:     key,
		logger:  logger.Named("factory"),
		metrics: metrics,
	}
}

// Create opens a new session and persists its id under the factory's key.
func (f *Factory) Create(ctx context.Context, endpoint string, opts *chromeopts.LaunchOptions) (Handle, error) {
	h, err := open(ctx, f.dialer, endpoint, opts)
	if err != nil {
		f.metrics.RecordCreation(observability.OutcomeFailure)
		return Handle{}, &CreationError{Err: err}
	}

	if err := f.store.Set(ctx, f.key, []byte(h.SessionID())); err != nil {
		// The remote session stays alive but nothing points at it any more.
		f.logger.Warn("Created a session but could not record it.",
			zap.String("orphaned_session_id", h.SessionID()),
			zap.String("key", f.key),
			zap.Error(err))
		_ = h.Close()
		f.metrics.RecordCreation(observability.OutcomeFailure)
		return Handle{}, &CreationError{Err: fmt.Errorf("failed to store session id: %w", err)}
	}

	f.logger.Info("Created new browser session.", zap.String("session_id", h.SessionID()), zap.String("endpoint", endpoint))
	f.metrics.RecordCreation(observability.OutcomeSuccess)
	return h, nil
}
