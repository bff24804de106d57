// Command beacon-node runs a Simple Beacon server node.
//
// The node hosts one beacon server model. Clients reach it over the TCP
// stream bearer (announced via mDNS) or a SLIP serial line. Without a
// provisioner, the provisioning block of the config file assigns addresses.
//
// Usage:
//
//	beacon-node [flags]
//	beacon-node reset [flags]
//
// Examples:
//
//	# Start with defaults (stream bearer on :7755, mDNS on)
//	beacon-node
//
//	# Start from a config file with the interactive console
//	beacon-node --config /etc/beacon/node.yaml --interactive
//
//	# Attach a serial gateway and capture traffic
//	beacon-node --serial /dev/ttyACM0 --capture node.sbl
//
//	# Forget the persisted configuration and UUID
//	beacon-node reset --state beacon-state.cbor
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simple-beacon/beacon-go/cmd/beacon-node/interactive"
	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/persistence"
)

// flagValues holds command-line overrides of the config file.
type flagValues struct {
	configFile  string
	stateFile   string
	listen      string
	serialPort  string
	baud        int
	metrics     string
	capture     string
	logLevel    string
	noDiscovery bool
	interactive bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	root := &cobra.Command{
		Use:           "beacon-node",
		Short:         "Simple Beacon server node",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags(), &fv)
			if err != nil {
				return err
			}
			return run(cfg, fv.interactive)
		},
	}
	bindFlags(root.PersistentFlags(), &fv)
	root.Flags().BoolVarP(&fv.interactive, "interactive", "i", false, "start the interactive console")

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted node state, including the UUID",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Flags(), &fv)
			if err != nil {
				return err
			}
			store := persistence.NewNodeStateStore(cfg.StateFile)
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "cleared %s\n", store.Path())
			return nil
		},
	})

	return root
}

func bindFlags(fs *pflag.FlagSet, fv *flagValues) {
	fs.StringVarP(&fv.configFile, "config", "c", "", "configuration file (YAML)")
	fs.StringVar(&fv.stateFile, "state", "", "node state file")
	fs.StringVar(&fv.listen, "listen", "", "stream bearer address")
	fs.StringVar(&fv.serialPort, "serial", "", "serial bearer device")
	fs.IntVar(&fv.baud, "baud", 0, "serial line speed")
	fs.StringVar(&fv.metrics, "metrics", "", "Prometheus endpoint address")
	fs.StringVar(&fv.capture, "capture", "", "protocol capture file")
	fs.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&fv.noDiscovery, "no-discovery", false, "do not announce the node over mDNS")
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(fs *pflag.FlagSet, fv *flagValues) (*Config, error) {
	cfg, err := LoadConfig(fv.configFile)
	if err != nil {
		return nil, err
	}
	applyFlags(fs, cfg, fv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *Config, fv *flagValues) {
	if fs.Changed("state") {
		cfg.StateFile = fv.stateFile
	}
	if fs.Changed("listen") {
		cfg.Stream.Listen = fv.listen
	}
	if fs.Changed("serial") {
		cfg.Serial.Port = fv.serialPort
	}
	if fs.Changed("baud") {
		cfg.Serial.Baud = fv.baud
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Listen = fv.metrics
	}
	if fs.Changed("capture") {
		cfg.Capture.File = fv.capture
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = fv.logLevel
	}
	if fv.noDiscovery {
		cfg.Discovery.Enabled = false
	}
}

func run(cfg *Config, withConsole bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *interactive.Console
	if withConsole {
		var err error
		if console, err = interactive.New(); err != nil {
			return err
		}
	}

	logger, closer, err := newLogger(cfg.Log, console)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()
	if err := app.Start(ctx); err != nil {
		return err
	}

	if console != nil {
		go console.Run(ctx, cancel, app)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	return nil
}

// newLogger sends log output through the console when there is one, so the
// prompt stays intact.
func newLogger(c logging.Config, console *interactive.Console) (*slog.Logger, io.Closer, error) {
	if console == nil || c.File != "" {
		return logging.New(c)
	}
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(logging.NewHandler(console.Stdout(), c.Format, level)), io.NopCloser(nil), nil
}
