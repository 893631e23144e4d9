// File: cmd/driver.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/driver"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

func newDriverCmd(v *viper.Viper) *cobra.Command {
	var (
		open     bool
		startURL string
	)

	driverCmd := &cobra.Command{
		Use:   "driver",
		Short: "Start a local chromedriver service and keep it running.",
		Long: `Start chromedriver on the configured port, print its URL once it is ready,
and keep it running until interrupted. With --open a browser session is
created with the configured launch options and, if --url is given, navigated.
The session is quit before the service stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runDriver(cmd.Context(), cfg, open, startURL, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	flags := driverCmd.Flags()
	flags.String("path", "", "chromedriver binary")
	flags.Int("port", 0, "port to listen on")
	flags.String("allowed-ips", "", "comma separated IPs allowed to connect (empty: local only)")
	flags.BoolVar(&open, "open", false, "open a browser session once the service is ready")
	flags.StringVar(&startURL, "url", "", "navigate the opened session to this URL")
	_ = v.BindPFlag("driver.path", flags.Lookup("path"))
	_ = v.BindPFlag("driver.port", flags.Lookup("port"))
	_ = v.BindPFlag("driver.allowed_ips", flags.Lookup("allowed-ips"))
	return driverCmd
}

func runDriver(ctx context.Context, cfg *config.Config, open bool, startURL string, out io.Writer, logger *zap.Logger) error {
	if startURL != "" && !open {
		return fmt.Errorf("--url requires --open")
	}

	launcher := driver.NewLauncher(cfg.Driver, cfg.WebDriver, logger)
	launcher.Stderr = os.Stderr

	return launcher.Run(ctx, func(ctx context.Context, client *webdriver.Client) error {
		fmt.Fprintln(out, launcher.URL())
		if !open {
			return nil
		}

		opts := chromeopts.NewParser(logger).Parse(cfg.ChromeDriver.Options)
		browser, err := driver.OpenBrowser(ctx, client, opts, startURL, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "session: %s\n", browser.SessionID())

		<-ctx.Done()
		browser.Quit(ctx)
		return nil
	})
}
