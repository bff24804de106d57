// Package interactive implements the beacon-node console. Its number keys
// stand in for the buttons of a development kit.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Node is what the console drives.
type Node interface {
	// Press runs the function of button n.
	Press(n int) error

	// Status summarizes the node.
	Status() Status
}

// Status is a snapshot of the node shown by the status command.
type Status struct {
	UUID    string
	Unicast model.Address
	Publish model.Address
	Beacon  bool
	Bearers int
	Peers   int
}

// Console handles interactive mode for beacon-node.
type Console struct {
	rl  *readline.Instance
	out io.Writer
}

// New creates the console. Create it before the logger so log output can go
// through Stdout.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "beacon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, node Node) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.execute(node, line); quit {
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the console should exit.
func (c *Console) execute(node Node, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "0", "report":
		c.press(node, 0, "report published")

	case "1", "toggle":
		c.press(node, 1, "")
		fmt.Fprintf(c.out, "beacon %s\n", onOff(node.Status().Beacon))

	case "3", "reset":
		c.press(node, 3, "node reset")

	case "press", "p":
		c.cmdPress(node, args)

	case "status", "s":
		c.cmdStatus(node)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Beacon Node Commands:
  Buttons:
    0 | report         - Publish the "Hello world !!!" report
    1 | toggle         - Toggle the beacon flag and publish its status
    3 | reset          - Clear the configuration (node reset)
    press <n>          - Press button n

  General:
    status             - Show node status
    help               - Show this help
    quit               - Exit node`)
}

func (c *Console) cmdPress(node Node, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: press <button>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid button: %s\n", args[0])
		return
	}
	c.press(node, n, fmt.Sprintf("button %d pressed", n))
}

func (c *Console) press(node Node, n int, done string) {
	if err := node.Press(n); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if done != "" {
		fmt.Fprintln(c.out, done)
	}
}

func (c *Console) cmdStatus(node Node) {
	st := node.Status()
	fmt.Fprintf(c.out, "UUID:       %s\n", st.UUID)
	if st.Unicast == model.AddressUnassigned {
		fmt.Fprintln(c.out, "Unicast:    (unprovisioned)")
	} else {
		fmt.Fprintf(c.out, "Unicast:    %s\n", st.Unicast)
	}
	if st.Publish == model.AddressUnassigned {
		fmt.Fprintln(c.out, "Publish:    (none)")
	} else {
		fmt.Fprintf(c.out, "Publish:    %s\n", st.Publish)
	}
	fmt.Fprintf(c.out, "Beacon:     %s\n", onOff(st.Beacon))
	fmt.Fprintf(c.out, "Bearers:    %d (%d stream peers)\n", st.Bearers, st.Peers)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
