package registry

import (
	"crypto/subtle"
	"sync"
	"time"
)

// Record is the broker's view of one live room. A record exists iff
// the matching VideoRoom is believed to exist on the media server.
type Record struct {
	// RoomID is the shareable identifier, distinct from the remote one.
	RoomID string
	// RemoteID is the numeric room id the media server understands.
	RemoteID int64
	// HostToken authorizes heartbeat and delete.
	HostToken string
	// Secret gates destruction of the room on the media server.
	Secret        string
	Title         string
	LastHeartbeat time.Time
}

// Store is the authoritative in-memory registry of live rooms. All
// operations are plain map work under one mutex; nothing network-bound
// runs while it is held.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Record
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Record),
	}
}

func (s *Store) Insert(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exist := s.rooms[record.RoomID]; exist {
		return ErrConflict
	}
	s.rooms[record.RoomID] = &record
	return nil
}

func (s *Store) Get(roomID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exist := s.rooms[roomID]
	if !exist {
		return Record{}, ErrNotFound
	}
	return *record, nil
}

// TouchHeartbeat refreshes LastHeartbeat. The timestamp never moves
// backwards, so racing heartbeats keep the latest accepted value.
func (s *Store) TouchHeartbeat(roomID, presentedToken string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exist := s.rooms[roomID]
	if !exist {
		return ErrNotFound
	}
	if !tokenMatches(record.HostToken, presentedToken) {
		return ErrUnauthorized
	}
	if now.After(record.LastHeartbeat) {
		record.LastHeartbeat = now
	}
	return nil
}

// Remove deletes the record and returns a copy, so the caller still
// has the remote id and secret for the teardown it owns.
func (s *Store) Remove(roomID, presentedToken string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exist := s.rooms[roomID]
	if !exist {
		return Record{}, ErrNotFound
	}
	if !tokenMatches(record.HostToken, presentedToken) {
		return Record{}, ErrUnauthorized
	}
	delete(s.rooms, roomID)
	return *record, nil
}

// Purge removes a record without a token check. Reserved for the
// reaper, which obtained the record from a stale snapshot.
func (s *Store) Purge(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// ListStale returns copies of every record whose heartbeat is older
// than threshold. A snapshot, not a view: the caller may remove
// records while iterating it.
func (s *Store) ListStale(threshold time.Duration, now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []Record
	for _, record := range s.rooms {
		if now.Sub(record.LastHeartbeat) > threshold {
			stale = append(stale, *record)
		}
	}
	return stale
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func tokenMatches(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
