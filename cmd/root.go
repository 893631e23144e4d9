// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// errReported marks a failure whose message has already been written to the
// command's output; Execute only sets the exit code for it.
var errReported = errors.New("invocation failed")

// NewRootCommand builds a fresh command tree. Each call owns its own viper
// instance, so commands built for tests do not share state.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "chromelink",
		Short: "Forward Chrome DevTools commands to a persistent remote browser session.",
		Long: `chromelink runs one Chrome DevTools Protocol command per invocation against a
browser managed by a remote WebDriver server. The session id is remembered
between runs, so consecutive invocations drive the same browser.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "chromelink"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting chromelink", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./chromelink.yaml)")
	flags.String("uri", "", "WebDriver endpoint, e.g. http://127.0.0.1:4444")
	flags.String("options", "", "Chrome launch options as keyword assignments or raw arguments")
	flags.String("scope", "", "namespace for the stored session id")
	flags.String("store", "", "session store backend: memory, sqlite, postgres or nats")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file after each run")

	_ = v.BindPFlag("chromedriver.uri", flags.Lookup("uri"))
	_ = v.BindPFlag("chromedriver.options", flags.Lookup("options"))
	_ = v.BindPFlag("session.scope", flags.Lookup("scope"))
	_ = v.BindPFlag("store.type", flags.Lookup("store"))
	_ = v.BindPFlag("logger.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("metrics.textfile", flags.Lookup("metrics-textfile"))

	rootCmd.AddCommand(
		newExecCmd(),
		newLocalCmd(v),
		newValidateCmd(),
		newDriverCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and logs any unreported failure.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the optional config file and environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("chromelink")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHROMELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults, env and flags still apply.
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
