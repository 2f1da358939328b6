package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, credentials map[string]string) *Store {
	t.Helper()

	dir := t.TempDir()
	writeCredentials(t, dir, credentials)

	s, err := Open("r1", dir)
	require.NoError(t, err)
	return s
}

func writeCredentials(t *testing.T, dir string, credentials map[string]string) {
	t.Helper()

	if credentials == nil {
		return
	}
	data, err := json.Marshal(credentials)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "voters.json"), data, 0o644))
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "s3cret"})

	assert.True(t, s.Authenticate("alice", "s3cret"))
	assert.False(t, s.Authenticate("alice", "wrong"))
	assert.False(t, s.Authenticate("bob", "s3cret"))
}

func TestOpenWithoutCredentialFile(t *testing.T) {
	s, err := Open("r1", t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.Authenticate("alice", "s3cret"))
	assert.ErrorIs(t, s.ApplyVote("alice", "Candidato A"), ErrNotRegistered)
}

func TestApplyVote(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a", "bob": "b"})

	require.NoError(t, s.ApplyVote("alice", "Candidato A"))
	assert.True(t, s.HasVoted("alice"))
	assert.Equal(t, map[string]int{"Candidato A": 1}, s.Results())

	require.NoError(t, s.ApplyVote("bob", "Candidato A"))
	assert.Equal(t, map[string]int{"Candidato A": 2}, s.Results())
}

func TestApplyVoteExactlyOnce(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})

	require.NoError(t, s.ApplyVote("alice", "Candidato A"))

	err := s.ApplyVote("alice", "Candidato B")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Equal(t, map[string]int{"Candidato A": 1}, s.Results())
}

func TestApplyVoteUnregistered(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})

	err := s.ApplyVote("mallory", "Candidato A")
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Empty(t, s.Results())
	assert.False(t, s.HasVoted("mallory"))
}

func TestTallyMatchesVotedSet(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a", "bob": "b", "carol": "c"})

	require.NoError(t, s.ApplyVote("alice", "Candidato A"))
	require.NoError(t, s.ApplyVote("bob", "Candidato B"))
	require.NoError(t, s.ApplyVote("carol", "Candidato A"))

	votes, voted := s.FullState()
	sum := 0
	for _, n := range votes {
		sum += n
	}
	assert.Equal(t, len(voted), sum)
}

func TestRollbackVote(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a", "bob": "b"})

	require.NoError(t, s.ApplyVote("bob", "Candidato A"))
	before := s.Results()

	require.NoError(t, s.ApplyVote("alice", "Candidato A"))
	require.NoError(t, s.RollbackVote("alice", "Candidato A"))

	assert.Equal(t, before, s.Results())
	assert.False(t, s.HasVoted("alice"))
	assert.True(t, s.HasVoted("bob"))
}

func TestRollbackRemovesZeroedCandidate(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})

	require.NoError(t, s.ApplyVote("alice", "Candidato A"))
	require.NoError(t, s.RollbackVote("alice", "Candidato A"))

	_, present := s.Results()["Candidato A"]
	assert.False(t, present, "zeroed candidate should disappear from the tally")
}

func TestRollbackWithoutCommit(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})

	assert.ErrorIs(t, s.RollbackVote("alice", "Candidato A"), ErrNotVoted)
}

func TestResultsIsACopy(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})
	require.NoError(t, s.ApplyVote("alice", "Candidato A"))

	snapshot := s.Results()
	snapshot["Candidato A"] = 999

	assert.Equal(t, map[string]int{"Candidato A": 1}, s.Results())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, map[string]string{"alice": "a", "bob": "b"})

	s, err := Open("r1", dir)
	require.NoError(t, err)
	require.NoError(t, s.ApplyVote("alice", "Candidato A"))
	require.NoError(t, s.ApplyVote("bob", "Candidato B"))

	reloaded, err := Open("r1", dir)
	require.NoError(t, err)

	votes, voted := s.FullState()
	gotVotes, gotVoted := reloaded.FullState()
	assert.Equal(t, votes, gotVotes)
	assert.Equal(t, voted, gotVoted)
	assert.True(t, reloaded.HasVoted("alice"))
}

func TestReplaceAll(t *testing.T) {
	s := newTestStore(t, map[string]string{"alice": "a"})
	require.NoError(t, s.ApplyVote("alice", "Candidato A"))

	require.NoError(t, s.ReplaceAll(
		map[string]int{"Candidato B": 2},
		[]string{"carol", "dave"},
	))

	assert.Equal(t, map[string]int{"Candidato B": 2}, s.Results())
	assert.False(t, s.HasVoted("alice"))
	assert.True(t, s.HasVoted("carol"))

	// The installed snapshot must survive a reload.
	reloaded, err := Open("r1", s.dataDir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Candidato B": 2}, reloaded.Results())
	assert.True(t, reloaded.HasVoted("dave"))
}

func TestStateFilesAreWritten(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir, map[string]string{"alice": "a"})

	s, err := Open("r7", dir)
	require.NoError(t, err)
	require.NoError(t, s.ApplyVote("alice", "Candidato A"))

	for _, name := range []string{"votes_r7.json", "voted_users_r7.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
