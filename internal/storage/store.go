package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Errors returned by ApplyVote and RollbackVote. These are payload-level
// failures: the replica reports them in a structured response to the
// caller, never as a transport fault, and they are not retried.
var (
	ErrNotRegistered = errors.New("voter is not registered")
	ErrAlreadyVoted  = errors.New("voter has already cast a vote")
	ErrNotVoted      = errors.New("no committed vote to roll back")
)

// Store holds one replica's tally, voted set and credential table.
type Store struct {
	mu        sync.Mutex
	replicaID string
	dataDir   string

	votes       map[string]int
	votedUsers  map[string]struct{}
	credentials map[string]string
}

// Open loads the replica's persisted state from dataDir. Missing files
// mean a fresh replica (empty tally, empty voted set). The credential
// table is read once here and immutable afterwards.
func Open(replicaID, dataDir string) (*Store, error) {
	if replicaID == "" {
		return nil, errors.New("replica id must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{
		replicaID:   replicaID,
		dataDir:     dataDir,
		votes:       make(map[string]int),
		votedUsers:  make(map[string]struct{}),
		credentials: make(map[string]string),
	}

	if err := loadJSON(s.votesPath(), &s.votes); err != nil {
		return nil, fmt.Errorf("loading tally: %w", err)
	}
	var voted []string
	if err := loadJSON(s.votedPath(), &voted); err != nil {
		return nil, fmt.Errorf("loading voted set: %w", err)
	}
	for _, u := range voted {
		s.votedUsers[u] = struct{}{}
	}
	if err := loadJSON(s.credentialsPath(), &s.credentials); err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	return s, nil
}

// ReplicaID returns the owning replica's id.
func (s *Store) ReplicaID() string {
	return s.replicaID
}

// Authenticate reports whether username exists and secret matches exactly.
func (s *Store) Authenticate(username, secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.credentials[username]
	return ok && stored == secret
}

// HasVoted reports membership in this replica's voted set.
func (s *Store) HasVoted(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.votedUsers[username]
	return ok
}

// Results returns a copy of the tally; callers can never mutate the live map.
func (s *Store) Results() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyVotes(s.votes)
}

// FullState returns copies of the tally and the voted set, used by the
// internal state endpoint when a recovering peer pulls a snapshot. The
// voted set is sorted for a stable wire form.
func (s *Store) FullState() (map[string]int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voted := make([]string, 0, len(s.votedUsers))
	for u := range s.votedUsers {
		voted = append(voted, u)
	}
	sort.Strings(voted)
	return copyVotes(s.votes), voted
}

// ApplyVote checks the preconditions (registered, not yet voted) and, if
// they hold, increments the candidate's count, records the voter and
// persists, all in one critical section.
func (s *Store) ApplyVote(username, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[username]; !ok {
		return ErrNotRegistered
	}
	if _, ok := s.votedUsers[username]; ok {
		return ErrAlreadyVoted
	}

	s.votes[candidate]++
	s.votedUsers[username] = struct{}{}
	return s.persistLocked()
}

// RollbackVote reverts a vote that failed replication. It must be called
// with the same pair ApplyVote committed; anything else is a programming
// error and is rejected without touching the counts.
func (s *Store) RollbackVote(username, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.votedUsers[username]; !ok {
		return ErrNotVoted
	}
	if s.votes[candidate] <= 0 {
		return ErrNotVoted
	}

	s.votes[candidate]--
	if s.votes[candidate] == 0 {
		delete(s.votes, candidate)
	}
	delete(s.votedUsers, username)
	return s.persistLocked()
}

// ReplaceAll installs a peer's snapshot wholesale, discarding local state,
// and persists it. Used only by the startup sync.
func (s *Store) ReplaceAll(votes map[string]int, votedUsers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votes = copyVotes(votes)
	s.votedUsers = make(map[string]struct{}, len(votedUsers))
	for _, u := range votedUsers {
		s.votedUsers[u] = struct{}{}
	}
	return s.persistLocked()
}

// persistLocked writes the tally and voted-set files. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if err := writeJSON(s.votesPath(), s.votes); err != nil {
		return fmt.Errorf("persisting tally: %w", err)
	}
	voted := make([]string, 0, len(s.votedUsers))
	for u := range s.votedUsers {
		voted = append(voted, u)
	}
	sort.Strings(voted)
	if err := writeJSON(s.votedPath(), voted); err != nil {
		return fmt.Errorf("persisting voted set: %w", err)
	}
	return nil
}

func (s *Store) votesPath() string {
	return filepath.Join(s.dataDir, fmt.Sprintf("votes_%s.json", s.replicaID))
}

func (s *Store) votedPath() string {
	return filepath.Join(s.dataDir, fmt.Sprintf("voted_users_%s.json", s.replicaID))
}

func (s *Store) credentialsPath() string {
	return filepath.Join(s.dataDir, "voters.json")
}

func copyVotes(votes map[string]int) map[string]int {
	out := make(map[string]int, len(votes))
	for c, n := range votes {
		out[c] = n
	}
	return out
}

// loadJSON reads path into v; a missing file leaves v untouched.
func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes v to path via a temp file and rename, so a crash
// mid-write never leaves a truncated file behind.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
