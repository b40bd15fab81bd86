package logtool

import (
	"fmt"
	"strings"
	"time"

	"github.com/tether-io/tether-go/pkg/log"
)

// Selector holds the textual filter criteria accepted on the command
// line. Empty fields match everything.
type Selector struct {
	ConnID    string
	PeerID    string
	Endpoint  string
	Layer     string
	Direction string
	Category  string
	Role      string
	TimeStart string // RFC3339, inclusive
	TimeEnd   string // RFC3339, exclusive
}

// Filter parses s into a log.Filter.
func (s Selector) Filter() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: s.ConnID,
		PeerID:       s.PeerID,
		Endpoint:     s.Endpoint,
	}

	if s.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, s.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if s.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, s.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if s.Layer != "" {
		l, err := ParseLayer(s.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if s.Direction != "" {
		d, err := ParseDirection(s.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if s.Category != "" {
		c, err := ParseCategory(s.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if s.Role != "" {
		r, err := ParseRole(s.Role)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Role = &r
	}
	return filter, nil
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "manager":
		return log.LayerManager, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport or manager)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "data":
		return log.CategoryData, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be data, control, state or error)", s)
	}
}

// ParseRole parses a role name (case-insensitive).
func ParseRole(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return log.RoleClient, nil
	case "server":
		return log.RoleServer, nil
	default:
		return 0, fmt.Errorf("invalid role: %s (must be client or server)", s)
	}
}

// eventType labels the payload of an event.
func eventType(e log.Event) string {
	switch {
	case e.Frame != nil:
		return "frame"
	case e.StateChange != nil:
		return "state"
	case e.ControlMsg != nil:
		return strings.ToLower(e.ControlMsg.Type.String())
	case e.Error != nil:
		return "error"
	default:
		return "unknown"
	}
}

// shortenConnID returns the first 8 characters of a connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

const timestampLayout = "2006-01-02T15:04:05.000000Z"
