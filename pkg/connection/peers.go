package connection

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tether-io/tether-go/pkg/transport"
)

// PeerID identifies one accepted connection. It is the connection's UUID.
type PeerID string

// PeerInfo describes an accepted peer.
type PeerInfo struct {
	ID          PeerID
	RemoteAddr  string
	Path        string
	ConnectedAt time.Time
}

type peerEntry struct {
	info PeerInfo
	conn transport.Conn
}

// closeParallelism bounds concurrent closes in CloseAll.
const closeParallelism = 32

// PeerSet is the set of live peers of a server. It has its own lock so
// that accept and disconnect callbacks never contend with lifecycle
// transitions.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[PeerID]peerEntry
}

// NewPeerSet creates an empty PeerSet.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[PeerID]peerEntry)}
}

// Add registers c and returns its PeerInfo. Adding the same connection
// twice keeps the first entry.
func (s *PeerSet) Add(c transport.Conn) PeerInfo {
	id := PeerID(c.ID())

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.peers[id]; ok {
		return e.info
	}
	info := PeerInfo{
		ID:          id,
		RemoteAddr:  addrString(c),
		Path:        c.Path(),
		ConnectedAt: time.Now(),
	}
	s.peers[id] = peerEntry{info: info, conn: c}
	return info
}

// Remove deletes id and reports whether it was present.
func (s *PeerSet) Remove(id PeerID) (PeerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
	}
	return e.info, ok
}

// Get returns the info for id.
func (s *PeerSet) Get(id PeerID) (PeerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.peers[id]
	return e.info, ok
}

func (s *PeerSet) conn(id PeerID) (transport.Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.peers[id]
	return e.conn, ok
}

// Len returns the number of peers.
func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Snapshot returns the peers ordered by connection time.
func (s *PeerSet) Snapshot() []PeerInfo {
	s.mu.RLock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, e := range s.peers {
		out = append(out, e.info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (s *PeerSet) entries() []peerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]peerEntry, 0, len(s.peers))
	for _, e := range s.peers {
		out = append(out, e)
	}
	return out
}

// CloseAll closes every peer connection in parallel and returns the
// combined close errors. Entries are removed by the disconnect callbacks,
// not by CloseAll.
func (s *PeerSet) CloseAll() error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(closeParallelism)

	for _, e := range s.entries() {
		g.Go(func() error {
			if err := e.conn.Close(); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("close peer %s: %w", e.info.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func addrString(c transport.Conn) string {
	if a := c.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
