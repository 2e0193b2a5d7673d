package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/fmusd"
	"pkt.systems/fmusd/internal/loggingutil"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("FMUSD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "fmusd")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			loggingutil.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg fmusd.Config

	cmd := &cobra.Command{
		Use:           "fmusd",
		Short:         "fmusd serves the local FMU settings API: sessions, project locks, and RMS project access",
		SilenceErrors: true,
		Example: `
  # Serve on the default loopback port with sessions expiring after an hour
  fmusd

  # Require a frontend token and expire sessions after 15 minutes
  FMUSD_API_TOKEN=s3cret fmusd --session-ttl 15m

  # Expose Prometheus metrics on a side listener
  fmusd --metrics-listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := loggingutil.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}
			if err := bindConfig(&cfg); err != nil {
				return err
			}

			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
				cliLogger = loggingutil.WithSubsystem(logger, "cli.root")
			}

			loggingutil.WithSubsystem(logger, "server.lifecycle.init").Info("starting fmusd",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"listen", cfg.Listen,
				"session_ttl", cfg.SessionTTL,
			)

			server, err := fmusd.NewServer(cfg, fmusd.WithLogger(logger))
			if err != nil {
				return err
			}

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					cliLogger.Error("shutdown failed", "error", err)
				}
			}()

			err = server.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")

	flags := cmd.Flags()
	flags.String("listen", fmusd.DefaultListen, "listen address")
	flags.String("listen-proto", fmusd.DefaultListenProto, "listen network (tcp, tcp4, tcp6, unix)")
	flags.Duration("session-ttl", fmusd.DefaultSessionTTL, "hard session lifetime (sessions expire this long after creation)")
	flags.String("api-token", "", "shared token required in the X-FMU-Settings-API header (empty disables)")
	flags.String("user-home", "", "home directory holding the user's .fmu settings (defaults to the process owner's home)")
	flags.String("rms-version", "", "RMS version used when a caller does not pick one")
	flags.String("metrics-listen", fmusd.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("max-body", humanizeBytes(fmusd.DefaultMaxBodyBytes), "maximum JSON request body size")
	flags.Duration("shutdown-timeout", fmusd.DefaultShutdownTimeout, "graceful shutdown timeout")
	flags.Bool("enable-tracing", false, "emit OpenTelemetry spans around API operations")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	lookupFlag := func(name string) *pflag.Flag {
		if flag := flags.Lookup(name); flag != nil {
			return flag
		}
		return persistentFlags.Lookup(name)
	}
	bindFlag := func(name string) {
		flag := lookupFlag(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("FMUSD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	names := []string{
		"config",
		"listen", "listen-proto", "session-ttl", "api-token", "user-home",
		"rms-version", "metrics-listen", "max-body", "shutdown-timeout",
		"enable-tracing", "log-level",
	}
	for _, name := range names {
		bindFlag(name)
	}

	cmd.AddCommand(newVersionCommand())

	return cmd
}

func bindConfig(cfg *fmusd.Config) error {
	cfg.Listen = viper.GetString("listen")
	cfg.ListenProto = viper.GetString("listen-proto")
	cfg.SessionTTL = viper.GetDuration("session-ttl")
	cfg.APIToken = viper.GetString("api-token")
	cfg.RMSVersion = viper.GetString("rms-version")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	cfg.EnableTracing = viper.GetBool("enable-tracing")

	if home := strings.TrimSpace(viper.GetString("user-home")); home != "" {
		expanded, err := expandPath(home)
		if err != nil {
			return fmt.Errorf("expand user-home %q: %w", home, err)
		}
		cfg.UserHome = expanded
	}
	if maxBody := viper.GetString("max-body"); maxBody != "" {
		size, err := humanize.ParseBytes(maxBody)
		if err != nil {
			return fmt.Errorf("parse max-body: %w", err)
		}
		cfg.MaxBodyBytes = int64(size)
	}
	cfg.ApplyDefaults()
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
