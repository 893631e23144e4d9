// File: cmd/validate.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/observability"
	"github.com/xkilldash9x/chromelink/internal/orchestrator"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

func newValidateCmd() *cobra.Command {
	var probe bool

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configured credentials and launch options.",
		Long: `Check that chromedriver.uri is set, report how chromedriver.options will be
read, and (unless --probe=false) ask the WebDriver server whether it is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, probe, cmd.OutOrStdout(), observability.GetLogger())
		},
	}
	validateCmd.Flags().BoolVar(&probe, "probe", true, "query the endpoint's /status")
	return validateCmd
}

func runValidate(ctx context.Context, cfg *config.Config, probe bool, out io.Writer, logger *zap.Logger) error {
	creds := orchestrator.Credentials{URI: cfg.ChromeDriver.URI, Options: cfg.ChromeDriver.Options}
	if err := creds.Validate(); err != nil {
		fmt.Fprintln(out, "Error: chromedriver_uri is not configured.")
		return fmt.Errorf("%w: %v", errReported, err)
	}
	fmt.Fprintf(out, "endpoint: %s\n", creds.URI)

	reportOptions(out, creds.Options)

	if !probe {
		return nil
	}
	client, err := webdriver.NewClient(creds.URI, cfg.WebDriver, logger)
	if err != nil {
		fmt.Fprintf(out, "endpoint is invalid: %v\n", err)
		return fmt.Errorf("%w: %v", errReported, err)
	}
	defer client.Close()

	st, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(out, "endpoint unreachable: %v\n", err)
		return fmt.Errorf("%w: %v", errReported, err)
	}
	if !st.Ready {
		fmt.Fprintf(out, "endpoint not ready: %s\n", st.Message)
		return fmt.Errorf("%w: endpoint not ready", errReported)
	}
	fmt.Fprintf(out, "endpoint ready: %s\n", st.Message)
	return nil
}

// reportOptions explains how the raw option string will be interpreted.
func reportOptions(out io.Writer, raw string) {
	if strings.TrimSpace(raw) == "" {
		fmt.Fprintln(out, "options: none")
		return
	}
	opts, rejected, err := chromeopts.ParseStrict(raw)
	if err != nil {
		fmt.Fprintf(out, "options: not keyword assignments (%v); passed as raw arguments: %q\n", err, strings.Fields(raw))
		return
	}
	fmt.Fprintf(out, "options: %s\n", opts)
	for _, r := range rejected {
		fmt.Fprintf(out, "  ignored %s: %s\n", r.Keyword, r.Reason)
	}
}
