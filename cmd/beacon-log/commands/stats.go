package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Messages          map[string]int
	Bearers           map[string]*BearerStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// BearerStats holds statistics for a single bearer.
type BearerStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Bytes     int
	Remote    string
}

// CollectStats reads the whole file and aggregates it.
func CollectStats(path string, opts FilterOptions) (*Stats, error) {
	filter, err := opts.Filter()
	if err != nil {
		return nil, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Messages:          make(map[string]int),
		Bearers:           make(map[string]*BearerStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	if event.Error != nil {
		s.Errors++
	}
	if event.Message != nil {
		s.Messages[messageLabel(event.Message)]++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.BearerID == "" {
		return
	}
	b, ok := s.Bearers[event.BearerID]
	if !ok {
		b = &BearerStats{FirstSeen: event.Timestamp}
		s.Bearers[event.BearerID] = b
	}
	b.Events++
	b.LastSeen = event.Timestamp
	if event.Frame != nil {
		b.Bytes += event.Frame.Size
	}
	if event.RemoteAddr != "" {
		b.Remote = event.RemoteAddr
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, opts FilterOptions, w io.Writer) error {
	stats, err := CollectStats(path, opts)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", s.TotalEvents)
	if s.TotalEvents == 0 {
		return
	}
	fmt.Fprintf(w, "Time range:   %s .. %s (%s)\n",
		s.TimeRange.Start.UTC().Format(time.RFC3339),
		s.TimeRange.End.UTC().Format(time.RFC3339),
		s.TimeRange.End.Sub(s.TimeRange.Start).Round(time.Millisecond))
	fmt.Fprintf(w, "Errors:       %d\n", s.Errors)

	fmt.Fprintln(w, "\nBy layer:")
	for _, l := range []log.Layer{log.LayerBearer, log.LayerAccess, log.LayerModel} {
		if n := s.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", l, n)
		}
	}

	fmt.Fprintln(w, "\nBy direction:")
	fmt.Fprintf(w, "  %-8s %d\n", log.DirectionIn, s.EventsByDirection[log.DirectionIn])
	fmt.Fprintf(w, "  %-8s %d\n", log.DirectionOut, s.EventsByDirection[log.DirectionOut])

	if len(s.Messages) > 0 {
		fmt.Fprintln(w, "\nMessages:")
		for _, name := range sortedKeys(s.Messages) {
			fmt.Fprintf(w, "  %-14s %d\n", name, s.Messages[name])
		}
	}

	if len(s.Bearers) > 0 {
		fmt.Fprintln(w, "\nBearers:")
		ids := make([]string, 0, len(s.Bearers))
		for id := range s.Bearers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			b := s.Bearers[id]
			fmt.Fprintf(w, "  %-10s events=%d bytes=%d", shortenID(id), b.Events, b.Bytes)
			if b.Remote != "" {
				fmt.Fprintf(w, " remote=%s", b.Remote)
			}
			fmt.Fprintln(w)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
