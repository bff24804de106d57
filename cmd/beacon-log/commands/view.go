// Package commands implements the beacon-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// FilterOptions holds the filter flags shared by view, filter and stats.
type FilterOptions struct {
	BearerID  string
	NodeUUID  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Opcode    string
	Address   string
}

// RunView prints every matching event in human-readable form.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [bearer:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Message != nil:
		typeLabel = messageLabel(event.Message)
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [bearer:%s] %-3s %s %s\n",
		ts, shortenID(event.BearerID), event.Direction, event.Layer, typeLabel)
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a bearer ID.
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

// messageLabel names beacon opcodes and falls back to hex for anything else.
func messageLabel(msg *log.MessageEvent) string {
	op := wire.Opcode(msg.Opcode)
	if msg.CompanyID == model.CompanyNordic && op.IsValid() {
		return op.String()
	}
	return fmt.Sprintf("0x%02X/%04X", msg.Opcode, msg.CompanyID)
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  Kind: %s\n", msg.Kind)
	fmt.Fprintf(w, "  %s -> %s  TTL: %d  AppKey: %d\n",
		model.Address(msg.Src), model.Address(msg.Dst), msg.TTL, msg.AppKeyIndex)
	if msg.ModelHandle != nil {
		fmt.Fprintf(w, "  Model: %d\n", *msg.ModelHandle)
	}
	if len(msg.Params) == 0 {
		return
	}
	fmt.Fprintf(w, "  Params: %s\n", hex.EncodeToString(msg.Params))
	if msg.CompanyID != model.CompanyNordic {
		return
	}
	if m, err := wire.Decode(wire.Opcode(msg.Opcode), msg.Params); err == nil {
		fmt.Fprintf(w, "  Decoded: %s\n", describe(m))
	}
}

// describe renders a decoded beacon message.
func describe(m wire.Message) string {
	switch v := m.(type) {
	case wire.SetRequest:
		return fmt.Sprintf("set %t", v.Requested())
	case wire.SetUnreliableRequest:
		return fmt.Sprintf("set (unreliable) %t", v.Requested())
	case wire.GetRequest:
		return "get"
	case wire.StatusReply:
		return fmt.Sprintf("status %t", v.Value())
	case wire.ReportStatus:
		return fmt.Sprintf("report %q", strings.TrimRight(string(v.CustomData[:]), "\x00"))
	default:
		return m.Opcode().String()
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
