// Command beacon-log views and analyzes beacon protocol capture files.
//
// Capture files are written by beacon-node and beacon-client when run with
// --capture.
//
// Usage:
//
//	beacon-log <command> [flags] <file.sbl>
//
// Examples:
//
//	# View all events
//	beacon-log view node.sbl
//
//	# View only access-layer Status messages
//	beacon-log view --layer access --opcode Status node.sbl
//
//	# Keep traffic to or from 0x0010 in a new file
//	beacon-log filter --address 0x0010 -o node-0010.sbl node.sbl
//
//	# Show statistics
//	beacon-log stats node.sbl
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simple-beacon/beacon-go/cmd/beacon-log/commands"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts commands.FilterOptions

	root := &cobra.Command{
		Use:           "beacon-log",
		Short:         "Beacon protocol capture analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFilterFlags(root.PersistentFlags(), &opts)

	root.AddCommand(&cobra.Command{
		Use:   "view <file.sbl>",
		Short: "View capture file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return commands.RunView(args[0], opts, c.OutOrStdout())
		},
	})

	var output string
	filterCmd := &cobra.Command{
		Use:   "filter <file.sbl>",
		Short: "Write matching events to a new capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			return commands.RunFilter(args[0], output, opts, c.OutOrStdout())
		},
	}
	filterCmd.Flags().StringVarP(&output, "output", "o", "", "output capture file")
	root.AddCommand(filterCmd)

	root.AddCommand(&cobra.Command{
		Use:   "stats <file.sbl>",
		Short: "Show statistics about the capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return commands.RunStats(args[0], opts, c.OutOrStdout())
		},
	})

	return root
}

func bindFilterFlags(fs *pflag.FlagSet, opts *commands.FilterOptions) {
	fs.StringVar(&opts.BearerID, "bearer", "", "bearer or connection ID")
	fs.StringVar(&opts.NodeUUID, "node", "", "capturing node UUID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "first event time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "end time, exclusive (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "bearer, access or model")
	fs.StringVar(&opts.Direction, "direction", "", "in or out")
	fs.StringVar(&opts.Category, "category", "", "message, state or error")
	fs.StringVar(&opts.Opcode, "opcode", "", "message name (Set, Status, ...) or hex code")
	fs.StringVar(&opts.Address, "address", "", "source or destination address (hex)")
}
