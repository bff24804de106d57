// Command beacon-client talks to Simple Beacon servers.
//
// It runs a one-element node with a beacon client model and reaches the
// network through a beacon-node stream bearer or a serial gateway. Without
// --connect or --serial the node announcing --target is found over mDNS.
//
// Usage:
//
//	beacon-client <command> [flags]
//
// Examples:
//
//	# Read the flag of node 0x0010, found via mDNS
//	beacon-client get --target 0x0010
//
//	# Switch it on through a known proxy
//	beacon-client set on --target 0x0010 --connect 192.0.2.1:7755
//
//	# Switch a whole group off without waiting for answers
//	beacon-client set off --unreliable --target 0xC001 --connect 192.0.2.1:7755
//
//	# Print reports published to group 0xC001
//	beacon-client watch --group 0xC001 --connect 192.0.2.1:7755
//
//	# List nodes on the local network
//	beacon-client browse
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
)

type flagValues struct {
	configFile string
	connect    string
	serialPort string
	baud       int
	iface      string
	capture    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		fv  flagValues
		cfg = DefaultConfig()
	)

	root := &cobra.Command{
		Use:           "beacon-client",
		Short:         "Simple Beacon client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFlags(root.PersistentFlags(), &fv, cfg)

	// prepare loads the config file and re-applies the flags on top.
	prepare := func(c *cobra.Command) (*Config, *slog.Logger, io.Closer, error) {
		loaded, err := LoadConfig(fv.configFile)
		if err != nil {
			return nil, nil, nil, err
		}
		applyFlags(c.Flags(), loaded, cfg, &fv)
		if err := loaded.Validate(); err != nil {
			return nil, nil, nil, err
		}
		logger, closer, err := logging.New(loaded.Log)
		if err != nil {
			return nil, nil, nil, err
		}
		return loaded, logger, closer, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Read the beacon flag of the target",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			loaded, logger, closer, err := prepare(c)
			if err != nil {
				return err
			}
			defer closer.Close()
			return withSession(c.Context(), loaded, logger, c.OutOrStdout(), func(ctx context.Context, s *Session) error {
				return runGet(ctx, s, c.OutOrStdout())
			})
		},
	})

	var unreliable bool
	setCmd := &cobra.Command{
		Use:       "set on|off",
		Short:     "Write the beacon flag of the target",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(c *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			loaded, logger, closer, err := prepare(c)
			if err != nil {
				return err
			}
			defer closer.Close()
			return withSession(c.Context(), loaded, logger, c.OutOrStdout(), func(ctx context.Context, s *Session) error {
				return runSet(ctx, s, on, unreliable, c.OutOrStdout())
			})
		},
	}
	setCmd.Flags().BoolVarP(&unreliable, "unreliable", "u", false, "do not wait for a status")
	root.AddCommand(setCmd)

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print status and report publications until interrupted, redialing dropped bearers",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			loaded, logger, closer, err := prepare(c)
			if err != nil {
				return err
			}
			defer closer.Close()
			if len(loaded.Groups) == 0 {
				logger.Warn("no --group given, only messages to the client address are shown")
			}
			ctx, stop := signalContext(c.Context())
			defer stop()
			s, err := NewSession(loaded, logger, c.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Watch(ctx, newBrowser(loaded)); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "browse",
		Short: "List beacon nodes announced over mDNS",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			loaded, _, closer, err := prepare(c)
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, stop := signalContext(c.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, loaded.Discovery.Timeout)
			defer cancel()
			return runBrowse(ctx, newBrowser(loaded), c.OutOrStdout())
		},
	})

	return root
}

func bindFlags(fs *pflag.FlagSet, fv *flagValues, cfg *Config) {
	fs.StringVarP(&fv.configFile, "config", "c", "", "configuration file (YAML)")
	fs.VarP(addressValue{&cfg.Target}, "target", "t", "server or group address")
	fs.Var(addressValue{&cfg.Unicast}, "unicast", "client address")
	fs.Uint16Var(&cfg.AppKeyIndex, "app-key", cfg.AppKeyIndex, "application key index")
	fs.Var(addressListValue{&cfg.Groups}, "group", "group to listen to (repeatable)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "reliable request timeout")
	fs.StringVar(&fv.connect, "connect", "", "stream bearer address host:port")
	fs.StringVar(&fv.serialPort, "serial", "", "serial gateway device")
	fs.IntVar(&fv.baud, "baud", 0, "serial line speed")
	fs.StringVar(&fv.iface, "interface", "", "network interface for mDNS")
	fs.StringVar(&fv.capture, "capture", "", "protocol capture file")
	fs.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
}

// applyFlags copies the flags that were set from the flag-bound config and
// values into the loaded config.
func applyFlags(fs *pflag.FlagSet, loaded, flagged *Config, fv *flagValues) {
	if fs.Changed("target") {
		loaded.Target = flagged.Target
	}
	if fs.Changed("unicast") {
		loaded.Unicast = flagged.Unicast
	}
	if fs.Changed("app-key") {
		loaded.AppKeyIndex = flagged.AppKeyIndex
	}
	if fs.Changed("group") {
		loaded.Groups = flagged.Groups
	}
	if fs.Changed("timeout") {
		loaded.Timeout = flagged.Timeout
	}
	if fs.Changed("connect") {
		loaded.Connect = fv.connect
	}
	if fs.Changed("serial") {
		loaded.Serial.Port = fv.serialPort
	}
	if fs.Changed("baud") {
		loaded.Serial.Baud = fv.baud
	}
	if fs.Changed("interface") {
		loaded.Discovery.Interface = fv.iface
	}
	if fs.Changed("capture") {
		loaded.Capture = fv.capture
	}
	if fs.Changed("log-level") {
		loaded.Log.Level = fv.logLevel
	}
}

func newBrowser(cfg *Config) *discovery.MDNSBrowser {
	return discovery.NewMDNSBrowser(discovery.BrowserConfig{
		Interface: cfg.Discovery.Interface,
		Timeout:   cfg.Discovery.Timeout,
	})
}

// withSession connects a session, runs fn and closes the session again.
func withSession(parent context.Context, cfg *Config, logger *slog.Logger, out io.Writer, fn func(context.Context, *Session) error) error {
	ctx, stop := signalContext(parent)
	defer stop()

	s, err := NewSession(cfg, logger, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Connect(ctx, newBrowser(cfg)); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return fn(ctx, s)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runGet(ctx context.Context, s *Session, w io.Writer) error {
	v, err := s.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", s.config.Target, onOff(v))
	return nil
}

func runSet(ctx context.Context, s *Session, on, unreliable bool, w io.Writer) error {
	v, err := s.Set(ctx, on, unreliable)
	if err != nil {
		return err
	}
	if unreliable {
		fmt.Fprintf(w, "%s: sent %s\n", s.config.Target, onOff(on))
		return nil
	}
	fmt.Fprintf(w, "%s: %s\n", s.config.Target, onOff(v))
	return nil
}

// runBrowse lists nodes until ctx ends.
func runBrowse(ctx context.Context, browser discovery.Browser, w io.Writer) error {
	results, err := browser.Browse(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tUNICAST\tELEMENTS\tNAME\tADDRESS")
	n := 0
	for svc := range results {
		unicast := "-"
		if svc.Provisioned() {
			unicast = svc.UnicastAddress.String()
		}
		addr, err := serviceAddress(svc)
		if err != nil {
			addr = "-"
		}
		name := svc.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", svc.InstanceName, unicast, svc.ElementCount, name, addr)
		n++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "no beacon nodes found")
	}
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}
