package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// Filter converts the flag values into a log.Filter.
func (opts FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{
		BearerID: opts.BearerID,
		NodeUUID: opts.NodeUUID,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Layer != "" {
		l, err := log.ParseLayer(strings.ToUpper(opts.Layer))
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := log.ParseCategory(strings.ToUpper(opts.Category))
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	if opts.Opcode != "" {
		op, err := parseOpcode(opts.Opcode)
		if err != nil {
			return filter, err
		}
		filter.Opcode = &op
	}

	if opts.Address != "" {
		a, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(opts.Address), "0x"), 16, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid address %q: %w", opts.Address, err)
		}
		addr := uint16(a)
		filter.Address = &addr
	}

	return filter, nil
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (want in or out)", s)
	}
}

// parseOpcode accepts a message name such as "Status" or a hex code such as "0xC4".
func parseOpcode(s string) (uint8, error) {
	for _, op := range append(wire.ServerOpcodes(), wire.ClientOpcodes()...) {
		if strings.EqualFold(op.String(), s) {
			return uint8(op), nil
		}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
	return uint8(v), nil
}

// RunFilter copies matching events into a new capture file.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
