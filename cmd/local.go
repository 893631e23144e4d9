// File: cmd/local.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/cdp"
	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/orchestrator"
)

// localTarget is a CDP target that must be closed after use.
type localTarget interface {
	cdp.Target
	Close() error
}

// Replaced in tests.
var launchLocalBrowser = func(ctx context.Context, opts *chromeopts.LaunchOptions, cfg config.LocalConfig, logger *zap.Logger) (localTarget, error) {
	return cdp.NewLocalBrowser(ctx, opts, cfg, logger)
}

func newLocalCmd(v *viper.Viper) *cobra.Command {
	var command, output string

	localCmd := &cobra.Command{
		Use:   "local",
		Short: "Run one CDP command in a locally launched Chrome.",
		Long: `Launch Chrome with the configured options (or attach to the one named by
debugger_address), run one Chrome DevTools Protocol command, and exit.
No WebDriver server and no session store are involved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runLocal(cmd.Context(), cfg, command, output, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	localCmd.Flags().StringVarP(&command, "command", "x", "", `CDP command as JSON, e.g. {"cmd": "Browser.getVersion"}`)
	localCmd.Flags().StringVarP(&output, "output", "o", "screenshot.png", `where image results are written ("-" for stdout)`)
	localCmd.Flags().Bool("headless", true, "run Chrome without a window")
	localCmd.Flags().Duration("timeout", 0, "overall limit for browser start and command")
	_ = v.BindPFlag("local.headless", localCmd.Flags().Lookup("headless"))
	_ = v.BindPFlag("local.timeout", localCmd.Flags().Lookup("timeout"))
	return localCmd
}

func runLocal(ctx context.Context, cfg *config.Config, command, output string, out io.Writer, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	defer flushMetrics(metrics, cfg.Metrics, logger)

	if command == "" {
		return writeMessage(out, orchestrator.Message{Text: "Error: 'command' parameter is required.", Err: fmt.Errorf("missing command")}, output, logger)
	}
	cmd, err := cdp.ParseCommand(command)
	if err != nil {
		return writeMessage(out, orchestrator.Message{Text: err.Error(), Err: err}, output, logger)
	}

	opts := chromeopts.NewParser(logger).Parse(cfg.ChromeDriver.Options)
	browser, err := launchLocalBrowser(ctx, opts, cfg.Local, logger)
	if err != nil {
		return err
	}
	defer browser.Close()

	res, err := cdp.NewExecutor(logger, metrics).Run(ctx, browser, cmd)
	if err != nil {
		return writeMessage(out, orchestrator.Message{Text: err.Error(), Err: err}, output, logger)
	}
	return writeMessage(out, orchestrator.ResultMessage(res), output, logger)
}
