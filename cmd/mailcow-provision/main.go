// Package main is the entry point the billing platform invokes to run one
// lifecycle call of the mailcow provisioning module.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/websavers/mailcow-provision/internal/calllog"
	"github.com/websavers/mailcow-provision/internal/calllog/console"
	"github.com/websavers/mailcow-provision/internal/calllog/file"
	"github.com/websavers/mailcow-provision/internal/calllog/ses"
	"github.com/websavers/mailcow-provision/internal/config"
	"github.com/websavers/mailcow-provision/internal/module"
	"github.com/websavers/mailcow-provision/internal/panel"
	paneltls "github.com/websavers/mailcow-provision/internal/tls"
)

var (
	configPath string
	paramsPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mailcow-provision",
		Short:         "Provision mail domains on a mailcow panel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&paramsPath, "params", "-", "path to the JSON parameter bag, - for stdin")

	root.AddCommand(
		lifecycleCmd("create", "Create the domain", module.ActionCreateAccount, (*module.Module).CreateAccount),
		lifecycleCmd("suspend", "Deactivate the domain", module.ActionSuspendAccount, (*module.Module).SuspendAccount),
		lifecycleCmd("unsuspend", "Reactivate the domain", module.ActionUnsuspendAccount, (*module.Module).UnsuspendAccount),
		lifecycleCmd("terminate", "Delete the domain", module.ActionTerminateAccount, (*module.Module).TerminateAccount),
		lifecycleCmd("change-package", "Apply a new mailbox count", module.ActionChangePackage, (*module.Module).ChangePackage),
		testConnectionCmd(),
		&cobra.Command{
			Use:   "metadata",
			Short: "Print module metadata",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return writeJSON(cmd.OutOrStdout(), module.Describe())
			},
		},
		&cobra.Command{
			Use:   "config-options",
			Short: "Print product configuration options",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return writeJSON(cmd.OutOrStdout(), module.ConfigOptions())
			},
		},
	)

	return root
}

type lifecycleFunc func(m *module.Module, ctx context.Context, p module.Params) string

func lifecycleCmd(use, short, action string, fn lifecycleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withModule(cmd, action,
				func(m *module.Module, p module.Params) any {
					return map[string]string{"result": fn(m, cmd.Context(), p)}
				},
				func(msg string) any {
					return map[string]string{"result": msg}
				},
			)
		},
	}
}

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Log in to the panel with the server credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withModule(cmd, module.ActionTestConnection,
				func(m *module.Module, p module.Params) any {
					return m.TestConnection(cmd.Context(), p)
				},
				func(msg string) any {
					return module.ConnectionResult{Success: false, Error: msg}
				},
			)
		},
	}
}

// withModule loads configuration, wires the module and its call log sinks,
// reads the params and prints the result of run as JSON. A params file that
// cannot be read or decoded is recorded under action and printed through
// rejected. Configuration errors are returned, since the call log sinks
// depend on the configuration.
func withModule(cmd *cobra.Command, action string, run func(*module.Module, module.Params) any, rejected func(msg string) any) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogger(cfg.Logging.Level)

	tlsConfig, err := paneltls.ClientConfig(cfg.Panel.CAFile, cfg.Panel.InsecureSkipVerify)
	if err != nil {
		return fmt.Errorf("failed to setup panel TLS: %w", err)
	}

	sinks, closeSinks, err := selectSinks(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	m := module.New(panel.Config{
		Scheme:         cfg.Panel.Scheme,
		MailboxQuota:   cfg.Panel.MailboxQuota,
		Aliases:        &cfg.Panel.Aliases,
		VerifyResponse: cfg.Panel.VerifyResponse,
		Timeout:        cfg.Panel.Timeout,
		TLSConfig:      tlsConfig,
	}, sinks)

	params, err := readParams(cmd.InOrStdin(), paramsPath)
	if err != nil {
		return writeJSON(cmd.OutOrStdout(), rejected(m.Reject(cmd.Context(), action, params, err)))
	}

	return writeJSON(cmd.OutOrStdout(), run(m, params))
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func readParams(stdin io.Reader, path string) (module.Params, error) {
	if path == "-" {
		return module.DecodeParams(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return module.Params{}, fmt.Errorf("failed to open params file: %w", err)
	}
	defer f.Close()

	return module.DecodeParams(f)
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level. Logs go to stderr; stdout carries the call result.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectSinks builds the call log backends from configuration. The console
// sink is always present; file and SES alerts are added when configured.
func selectSinks(ctx context.Context, cfg *config.Config) (calllog.Multi, func(), error) {
	sinks := calllog.Multi{console.New()}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("failed to close call log sink", "error", err)
			}
		}
	}

	if cfg.CallLog.File != "" {
		slog.Debug("using call log file", "path", cfg.CallLog.File)
		fs := file.New(file.Config{
			Path:       cfg.CallLog.File,
			MaxSizeMB:  cfg.CallLog.MaxSizeMB,
			MaxBackups: cfg.CallLog.MaxBackups,
			MaxAgeDays: cfg.CallLog.MaxAgeDays,
			Compress:   cfg.CallLog.Compress,
		})
		sinks = append(sinks, fs)
		closers = append(closers, fs.Close)
	}

	if cfg.AlertsConfigured() {
		slog.Debug("using SES failure alerts",
			"region", cfg.Alerts.Region,
			"sender", cfg.Alerts.Sender,
		)
		s, err := ses.New(ctx, ses.Config{
			Region:          cfg.Alerts.Region,
			AccessKeyID:     cfg.Alerts.AccessKeyID,
			SecretAccessKey: cfg.Alerts.SecretAccessKey,
			Sender:          cfg.Alerts.Sender,
			Recipients:      cfg.Alerts.Recipients,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create SES alert sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, closeAll, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
