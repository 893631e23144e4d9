// File: internal/orchestrator/orchestrator.go
// Description: Runs one tool invocation end to end. It is injected with the
// transport dialer and session store, so it holds no state between calls.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/cdp"
	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/session"
	"github.com/xkilldash9x/chromelink/internal/store"
)

var (
	// ErrConfiguration means the credentials lack a WebDriver endpoint.
	ErrConfiguration = errors.New("chromedriver_uri is not configured")

	errMissingCommandParam = errors.New("'command' parameter is required")
)

const (
	msgMissingURI     = "Error: chromedriver_uri is not configured."
	msgMissingCommand = "Error: 'command' parameter is required."
)

// sessionLocks is shared by every Orchestrator in the process so two of them
// using the same store key still take turns.
var sessionLocks session.KeyedMutex

// Credentials are supplied per invocation and never persisted.
type Credentials struct {
	URI     string
	Options string
}

// Validate reports ErrConfiguration when URI is blank.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.URI) == "" {
		return ErrConfiguration
	}
	return nil
}

// MessageKind says how a Message should be delivered.
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageJSON
	MessageBlob
)

// Message is the single response of one invocation. Err is set when Text
// reports a failure rather than a command result.
type Message struct {
	Kind     MessageKind
	Text     string
	Blob     []byte
	MimeType string
	Err      error
}

func failure(text string, err error) Message {
	return Message{Kind: MessageText, Text: text, Err: err}
}

// Orchestrator wires the options parser, the session engines and the CDP
// executor together.
type Orchestrator struct {
	key      string
	store    store.SessionStore
	parser   *chromeopts.Parser
	engine   *session.Engine
	factory  *session.Factory
	executor *cdp.Executor
	locks    *session.KeyedMutex
	logger   *zap.Logger
}

// New creates an Orchestrator that keeps its session id under key. metrics
// may be nil.
func New(dialer session.Dialer, st store.SessionStore, key string, logger *zap.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	if dialer == nil || st == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if key == "" {
		key = store.SessionKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		key:      key,
		store:    st,
		parser:   chromeopts.NewParser(logger),
		engine:   session.NewEngine(dialer, st, key, logger, metrics),
		factory:  session.NewFactory(dialer, st, key, logger, metrics),
		executor: cdp.NewExecutor(logger, metrics),
		locks:    &sessionLocks,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// Invoke forwards command to the browser session described by creds and
// always produces exactly one message. Failures are reported as text.
func (o *Orchestrator) Invoke(ctx context.Context, creds Credentials, command string) Message {
	log := o.logger.With(zap.String("invocation_id", uuid.NewString()))
	started := time.Now()

	if err := creds.Validate(); err != nil {
		log.Debug("Rejected invocation.", zap.Error(err))
		return failure(msgMissingURI, err)
	}
	if strings.TrimSpace(command) == "" {
		return failure(msgMissingCommand, errMissingCommandParam)
	}

	// Validate the command before touching the network or the store.
	cmd, err := cdp.ParseCommand(command)
	if err != nil {
		log.Info("Rejected malformed command.", zap.Error(err))
		return failure(err.Error(), err)
	}

	opts := o.parser.Parse(creds.Options)
	handle, err := o.Driver(ctx, creds.URI, opts)
	if err != nil {
		var creationErr *session.CreationError
		if errors.As(err, &creationErr) {
			log.Error("Could not obtain a browser session.", zap.Error(err))
			return failure(fmt.Sprintf("Error: Failed to create a new session: %v", creationErr), err)
		}
		log.Warn("Invocation aborted before a session was available.", zap.Error(err))
		return failure("Error: "+err.Error(), err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			log.Debug("Failed to close session connection.", zap.Error(err))
		}
	}()

	res, err := o.executor.Run(ctx, handle, cmd)
	if err != nil {
		log.Warn("Command failed.", zap.String("method", cmd.Method), zap.String("session_id", handle.SessionID()), zap.Error(err))
		return failure(err.Error(), err)
	}

	log.Info("Invocation completed.",
		zap.String("method", cmd.Method),
		zap.String("session_id", handle.SessionID()),
		zap.Duration("elapsed", time.Since(started)))
	return ResultMessage(res)
}

// Driver returns a handle for the stored session when it is still alive and
// otherwise a freshly created one. Recovery and creation are each attempted
// at most once, under a per-key lock. The caller owns the returned handle and
// must Close it.
func (o *Orchestrator) Driver(ctx context.Context, endpoint string, opts *chromeopts.LaunchOptions) (session.Handle, error) {
	unlock, err := o.locks.Lock(ctx, o.key)
	if err != nil {
		return session.Handle{}, err
	}
	defer unlock()

	if storedID := o.storedID(ctx); storedID != "" {
		h, err := o.engine.Recover(ctx, endpoint, opts, storedID)
		if err == nil {
			return h, nil
		}
		if ctx.Err() != nil {
			return session.Handle{}, ctx.Err()
		}
		o.logger.Info("Falling back to a new session.", zap.Error(err))
	}
	return o.factory.Create(ctx, endpoint, opts)
}

// storedID reads the remembered session id. Read failures are treated as if
// nothing was stored.
func (o *Orchestrator) storedID(ctx context.Context) string {
	ok, err := o.store.Exists(ctx, o.key)
	if err != nil {
		o.logger.Warn("Could not check for a stored session.", zap.String("key", o.key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	raw, err := o.store.Get(ctx, o.key)
	if err != nil {
		o.logger.Warn("Could not read the stored session.", zap.String("key", o.key), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// ResultMessage converts a command result into a Message.
func ResultMessage(res cdp.Result) Message {
	switch res.Kind {
	case cdp.ResultImage:
		return Message{Kind: MessageBlob, Blob: res.Data, MimeType: res.MimeType}
	case cdp.ResultJSON:
		return Message{Kind: MessageJSON, Text: res.Text}
	default:
		return Message{Kind: MessageText, Text: res.Text}
	}
}
