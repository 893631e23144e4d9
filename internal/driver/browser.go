package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

const quitTimeout = 10 * time.Second

// Browser is a session opened on a launched service.
type Browser struct {
	client *webdriver.Client
	id     string
	logger *zap.Logger
}

// OpenBrowser creates a session with opts and, when startURL is not empty,
// navigates it there. A failed navigation quits the new session.
func OpenBrowser(ctx context.Context, client *webdriver.Client, opts *chromeopts.LaunchOptions, startURL string, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = chromeopts.New()
	}
	caps, err := opts.Capabilities()
	if err != nil {
		return nil, err
	}
	id, err := client.NewSession(ctx, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	b := &Browser{client: client, id: id, logger: logger.With(zap.String("session_id", id))}
	b.logger.Info("Opened browser session.")

	if startURL != "" {
		if err := client.Navigate(ctx, id, startURL); err != nil {
			b.Quit(ctx)
			return nil, fmt.Errorf("failed to navigate to %s: %w", startURL, err)
		}
		b.logger.Info("Navigated.", zap.String("url", startURL))
	}
	return b, nil
}

func (b *Browser) SessionID() string { return b.id }

// Quit ends the session. It runs even when ctx is already cancelled.
func (b *Browser) Quit(ctx context.Context) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quitTimeout)
	defer cancel()
	if err := b.client.DeleteSession(qctx, b.id); err != nil {
		b.logger.Warn("Failed to quit browser session.", zap.Error(err))
		return
	}
	b.logger.Info("Quit browser session.")
}
