package quorum

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMajorityArithmetic(t *testing.T) {
	cases := []struct {
		peers  int
		acks   int
		commit bool
	}{
		{peers: 0, acks: 0, commit: true},  // lone replica commits on its own
		{peers: 1, acks: 0, commit: true},  // ceil(2/2)=1, local commit suffices
		{peers: 1, acks: 1, commit: true},
		{peers: 2, acks: 0, commit: false}, // ceil(3/2)=2
		{peers: 2, acks: 1, commit: true},
		{peers: 3, acks: 0, commit: false}, // ceil(4/2)=2
		{peers: 3, acks: 1, commit: true},
		{peers: 3, acks: 3, commit: true},
		{peers: 4, acks: 1, commit: false}, // ceil(5/2)=3
		{peers: 4, acks: 2, commit: true},
	}

	for _, c := range cases {
		if got := Met(c.acks, c.peers); got != c.commit {
			t.Errorf("Met(acks=%d, peers=%d) = %v, want %v (required=%d)",
				c.acks, c.peers, got, c.commit, Required(c.peers))
		}
	}
}

func TestFanoutAllSucceed(t *testing.T) {
	peers := []string{"r2", "r3", "r4"}

	result := Fanout(context.Background(), peers, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			return true, nil
		})

	if result.Acks != 3 {
		t.Errorf("expected 3 acks, got %d", result.Acks)
	}
	if !result.Met() {
		t.Error("expected quorum to be met")
	}
}

func TestFanoutNoPeers(t *testing.T) {
	result := Fanout(context.Background(), nil, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			t.Fatal("peer function must not be called with no peers")
			return false, nil
		})

	if !result.Met() {
		t.Error("local commit alone should satisfy quorum with no peers")
	}
}

func TestFanoutFailureIsolated(t *testing.T) {
	peers := []string{"r2", "r3", "r4"}
	var contacted int32

	result := Fanout(context.Background(), peers, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			atomic.AddInt32(&contacted, 1)
			if peerID == "r3" {
				return false, errors.New("connection refused")
			}
			return true, nil
		})

	if got := atomic.LoadInt32(&contacted); got != 3 {
		t.Errorf("one failing peer must not stop the others: contacted %d of 3", got)
	}
	if result.Acks != 2 {
		t.Errorf("expected 2 acks, got %d", result.Acks)
	}
	if !result.Met() {
		t.Error("2 acks + local commit out of 4 nodes should commit")
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d", len(result.Errors))
	}
}

func TestFanoutRejectionCountsAsNonSuccess(t *testing.T) {
	peers := []string{"r2", "r3"}

	result := Fanout(context.Background(), peers, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			return false, nil // payload rejection, e.g. state conflict
		})

	if result.Acks != 0 {
		t.Errorf("expected 0 acks, got %d", result.Acks)
	}
	if result.Met() {
		t.Error("0 acks + local commit out of 3 nodes must not commit")
	}
	if len(result.Errors) != 2 {
		t.Errorf("rejections should be recorded, got %d errors", len(result.Errors))
	}
}

func TestFanoutQuorumNotMet(t *testing.T) {
	peers := []string{"r2", "r3", "r4"}

	result := Fanout(context.Background(), peers, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			return false, errors.New("unreachable")
		})

	if result.Met() {
		t.Error("expected quorum failure with all peers unreachable")
	}
}

func TestFanoutParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Fanout(ctx, []string{"r2"}, time.Second,
		func(ctx context.Context, peerID string) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})

	if result.Met() {
		t.Error("cancelled fanout must not report quorum")
	}
	if len(result.Errors) == 0 {
		t.Error("cancellation should be recorded")
	}
}
