// File: cmd/exec.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/orchestrator"
	"github.com/xkilldash9x/chromelink/internal/session"
	"github.com/xkilldash9x/chromelink/internal/store"
)

const stdoutTarget = "-"

// Replaced in tests.
var (
	openSessionStore = store.New
	newDialer        = session.NewWebDriverDialer
)

func newExecCmd() *cobra.Command {
	var command, output string

	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Forward one CDP command to the remembered remote browser session.",
		Long: `Forward one Chrome DevTools Protocol command to the browser session stored
under the current scope, creating a new session when none is stored or the
stored one is gone.

The command is a JSON object: {"cmd": "Domain.method", "args": {...}}.
Screenshots are written to --output; everything else is printed.`,
		Example: `  chromelink exec --uri http://127.0.0.1:4444 --command '{"cmd": "Page.navigate", "args": {"url": "https://example.com"}}'
  chromelink exec --command '{"cmd": "Page.captureScreenshot"}' --output page.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runExec(cmd.Context(), cfg, command, output, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	execCmd.Flags().StringVarP(&command, "command", "x", "", `CDP command as JSON, e.g. {"cmd": "Page.reload"}`)
	execCmd.Flags().StringVarP(&output, "output", "o", "screenshot.png", `where image results are written ("-" for stdout)`)
	return execCmd
}

// runExec performs one invocation against the configured store and endpoint.
func runExec(ctx context.Context, cfg *config.Config, command, output string, out io.Writer, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	defer flushMetrics(metrics, cfg.Metrics, logger)

	st, err := openSessionStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close session store.", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(newDialer(cfg.WebDriver, logger), st, store.Key(cfg.Session.Scope), logger, metrics)
	if err != nil {
		return err
	}

	creds := orchestrator.Credentials{URI: cfg.ChromeDriver.URI, Options: cfg.ChromeDriver.Options}
	msg := orch.Invoke(ctx, creds, command)
	return writeMessage(out, msg, output, logger)
}

// writeMessage delivers msg. Image blobs go to output unless it is "-".
func writeMessage(out io.Writer, msg orchestrator.Message, output string, logger *zap.Logger) error {
	switch msg.Kind {
	case orchestrator.MessageBlob:
		if output == stdoutTarget {
			_, err := out.Write(msg.Blob)
			return err
		}
		if err := os.WriteFile(output, msg.Blob, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		logger.Info("Wrote image result.", zap.String("path", output), zap.String("mime_type", msg.MimeType), zap.Int("bytes", len(msg.Blob)))
		fmt.Fprintf(out, "Saved %s (%d bytes) to %s\n", msg.MimeType, len(msg.Blob), output)
		return nil
	default:
		if _, err := fmt.Fprintln(out, msg.Text); err != nil {
			return err
		}
		if msg.Err != nil {
			return fmt.Errorf("%w: %v", errReported, msg.Err)
		}
		return nil
	}
}

func flushMetrics(metrics *observability.Metrics, cfg config.MetricsConfig, logger *zap.Logger) {
	if err := metrics.WriteTextfile(cfg.TextfilePath); err != nil {
		logger.Warn("Failed to flush metrics.", zap.Error(err))
	}
}
