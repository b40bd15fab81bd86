package logtool

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/tether-io/tether-go/pkg/connection"
	"github.com/tether-io/tether-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EventsByRole      map[log.Role]int
	Connections       map[string]*ConnectionStats
	ErrorsByCode      map[int]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single transport connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Role       log.Role
	RemoteAddr string
	PeerID     string
	FramesIn   int
	FramesOut  int
	BytesIn    int
	BytesOut   int
	LastState  string
}

// CollectStats reads the whole file and aggregates its events.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByRole:      make(map[log.Role]int),
		Connections:       make(map[string]*ConnectionStats),
		ErrorsByCode:      make(map[int]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	s.EventsByRole[event.LocalRole]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Error != nil {
		s.Errors++
		if event.Error.Code != nil {
			s.ErrorsByCode[*event.Error.Code]++
		}
	}

	// Manager events carry no connection ID.
	if event.ConnectionID == "" {
		return
	}
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Role:      event.LocalRole,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}
	if conn.PeerID == "" {
		conn.PeerID = event.PeerID
	}
	if event.Frame != nil {
		if event.Direction == log.DirectionIn {
			conn.FramesIn++
			conn.BytesIn += event.Frame.Size
		} else {
			conn.FramesOut++
			conn.BytesOut += event.Frame.Size
		}
	}
	if event.StateChange != nil {
		conn.LastState = event.StateChange.NewState
	}
}

// RunStats analyzes the trace file and prints statistics to w.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Tether Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerManager} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryData, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Role:")
	for _, role := range []log.Role{log.RoleClient, log.RoleServer} {
		if count := stats.EventsByRole[role]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", role.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			if conns[i].stats.FirstSeen.Equal(conns[j].stats.FirstSeen) {
				return conns[i].id < conns[j].id
			}
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			cs := c.stats
			duration := cs.LastSeen.Sub(cs.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s, %d events, duration %s\n", shortenConnID(c.id), cs.Role, cs.Events, duration)
			if cs.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", cs.RemoteAddr)
			}
			if cs.PeerID != "" {
				fmt.Fprintf(w, "           Peer: %s\n", cs.PeerID)
			}
			if cs.FramesIn+cs.FramesOut > 0 {
				fmt.Fprintf(w, "           Frames: %d in (%d bytes), %d out (%d bytes)\n",
					cs.FramesIn, cs.BytesIn, cs.FramesOut, cs.BytesOut)
			}
			if cs.LastState != "" {
				fmt.Fprintf(w, "           Last state: %s\n", cs.LastState)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		codes := make([]int, 0, len(stats.ErrorsByCode))
		for code := range stats.ErrorsByCode {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d %-24s %d\n", code, connection.ErrorCode(code).String()+":", stats.ErrorsByCode[code])
		}
	}
}
