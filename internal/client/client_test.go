package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distvote/internal/api"
	"distvote/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Client {
	t.Helper()

	srv := httptest.NewServer(registry.NewServer().Router())
	t.Cleanup(srv.Close)
	return registry.NewClient(strings.TrimPrefix(srv.URL, "http://"), 2*time.Second)
}

func newController(t *testing.T, reg *registry.Client) *Controller {
	t.Helper()
	return New(reg, 3, 10*time.Millisecond, time.Second)
}

// fakeReplica serves the public surface with canned behavior.
type fakeReplica struct {
	results    map[string]int
	voteResult api.VoteResult
	votePosts  int32
}

func (f *fakeReplica) start(t *testing.T, reg *registry.Client, id string) *httptest.Server {
	t.Helper()

	r := mux.NewRouter()
	r.HandleFunc(api.PathResults, func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, api.ResultsResponse{Results: f.results})
	}).Methods(http.MethodGet)
	r.HandleFunc(api.PathVotes, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&f.votePosts, 1)
		api.WriteJSON(w, http.StatusOK, f.voteResult)
	}).Methods(http.MethodPost)
	r.HandleFunc(api.PathVoted, func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, api.VotedResponse{Voted: false})
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	require.NoError(t, reg.Register(context.Background(),
		registry.ReplicaName(id), strings.TrimPrefix(srv.URL, "http://")))
	return srv
}

// startBrokenReplica registers a server that drops every connection,
// counting how often it was contacted.
func startBrokenReplica(t *testing.T, reg *registry.Client, id string) *int32 {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)
	require.NoError(t, reg.Register(context.Background(),
		registry.ReplicaName(id), strings.TrimPrefix(srv.URL, "http://")))
	return &hits
}

func TestFailoverToHealthyReplica(t *testing.T) {
	reg := newTestRegistry(t)
	// "a" sorts first, so it is probed first and fails.
	brokenHits := startBrokenReplica(t, reg, "a")
	healthy := &fakeReplica{results: map[string]int{"Candidato A": 2}}
	healthy.start(t, reg, "b")

	c := newController(t, reg)

	results, err := c.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Candidato A": 2}, results)
	assert.Equal(t, "b", c.Replica())
	probes := atomic.LoadInt32(brokenHits)
	assert.Equal(t, int32(1), probes)

	// Subsequent calls reuse the bound replica without re-probing "a".
	_, err = c.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probes, atomic.LoadInt32(brokenHits))
}

func TestBoundReplicaFailureTriggersRotation(t *testing.T) {
	reg := newTestRegistry(t)
	a := &fakeReplica{results: map[string]int{}}
	srvA := a.start(t, reg, "a")
	b := &fakeReplica{results: map[string]int{}}
	b.start(t, reg, "b")

	c := newController(t, reg)
	_, err := c.Results(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", c.Replica())

	srvA.Close()

	_, err = c.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", c.Replica())
}

func TestPayloadFailureIsNotRetried(t *testing.T) {
	reg := newTestRegistry(t)
	replica := &fakeReplica{
		results: map[string]int{},
		voteResult: api.VoteResult{
			Code:    api.CodeAlreadyVoted,
			Message: "voter has already cast a vote",
		},
	}
	replica.start(t, reg, "a")

	c := newController(t, reg)
	result := c.CastVote(context.Background(), "alice", "Candidato A")

	assert.False(t, result.OK)
	assert.Equal(t, api.CodeAlreadyVoted, result.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&replica.votePosts))
}

func TestCastVoteSuccessPayloadPassedThrough(t *testing.T) {
	reg := newTestRegistry(t)
	replica := &fakeReplica{
		results:    map[string]int{},
		voteResult: api.VoteResult{OK: true, Message: "vote recorded successfully"},
	}
	replica.start(t, reg, "a")

	c := newController(t, reg)
	result := c.CastVote(context.Background(), "alice", "Candidato A")

	assert.True(t, result.OK)
	assert.Equal(t, "vote recorded successfully", result.Message)
}

func TestNoServersAvailable(t *testing.T) {
	reg := newTestRegistry(t)
	c := newController(t, reg)

	_, err := c.Results(context.Background())
	assert.ErrorIs(t, err, ErrNoServers)

	result := c.CastVote(context.Background(), "alice", "Candidato A")
	assert.False(t, result.OK)
	assert.Equal(t, api.CodeUnavailable, result.Code)
}

func TestRetryBudgetExhaustedAgainstBrokenCluster(t *testing.T) {
	reg := newTestRegistry(t)
	hits := startBrokenReplica(t, reg, "a")

	c := newController(t, reg)
	_, err := c.Results(context.Background())

	assert.Error(t, err)
	// One probe per attempt, three attempts.
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestContextCancellationStopsRetrying(t *testing.T) {
	reg := newTestRegistry(t)
	c := New(reg, 3, time.Hour, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Results(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
