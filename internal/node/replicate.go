package node

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"distvote/internal/api"
	"distvote/internal/quorum"
	"distvote/internal/registry"
	"distvote/internal/storage"
)

// CastVote runs the replication protocol for one vote: optimistic local
// commit, fan-out to every peer currently in the registry, majority
// quorum counting the local commit, compensating rollback on a miss.
// The store's lock is never held across a network call, so a stalled
// peer cannot block local reads; the cost is a window in which Results
// can observe a vote that is later rolled back.
func (s *Server) CastVote(ctx context.Context, username, candidate, requestID string) api.VoteResult {
	log := s.log.WithFields(logrus.Fields{
		"username":   username,
		"candidate":  candidate,
		"request_id": requestID,
	})
	log.Info("vote received")

	if err := s.store.ApplyVote(username, candidate); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyVoted):
			log.Info("vote rejected: already voted")
			return api.VoteResult{
				Code:    api.CodeAlreadyVoted,
				Message: "voter has already cast a vote",
			}
		case errors.Is(err, storage.ErrNotRegistered):
			log.Info("vote rejected: not registered")
			return api.VoteResult{
				Code:    api.CodeNotRegistered,
				Message: "voter is not registered",
			}
		default:
			log.WithError(err).Error("local apply failed")
			return api.VoteResult{
				Code:    api.CodeUnavailable,
				Message: "vote could not be recorded: " + err.Error(),
			}
		}
	}

	peerIDs, peerAddrs := s.peerTable(ctx)
	update := api.UpdateRequest{
		Username:      username,
		Candidate:     candidate,
		CoordinatorID: s.replicaID,
		RequestID:     requestID,
	}

	result := quorum.Fanout(ctx, peerIDs, s.rpcTimeout,
		func(ctx context.Context, peerID string) (bool, error) {
			peer := s.clients.Get(peerAddrs[peerID])
			res, err := peer.Update(ctx, update)
			if err != nil {
				return false, err
			}
			return res.OK, nil
		})

	for _, err := range result.Errors {
		log.WithError(err).Warn("replication to peer failed")
	}

	if result.Met() {
		log.WithField("quorum", result.Summary()).Info("vote committed")
		return api.VoteResult{
			OK:      true,
			Message: "vote recorded successfully",
		}
	}

	log.WithField("quorum", result.Summary()).Error("quorum not met, rolling back")
	if err := s.store.RollbackVote(username, candidate); err != nil {
		// Should be impossible: the pair was committed above.
		log.WithError(err).Error("rollback failed")
	}
	return api.VoteResult{
		Code:    api.CodeQuorumFailed,
		Message: "replication failed to reach a majority of replicas",
	}
}

// peerTable re-lists the registry and returns the current peers,
// excluding this replica. The table is rebuilt before every replication
// attempt, never cached, so joins and departures are picked up. A
// registry failure is transient: the attempt proceeds with an empty
// table and the local commit alone decides the quorum.
func (s *Server) peerTable(ctx context.Context) ([]string, map[string]string) {
	listing, err := s.reg.List(ctx, registry.ReplicaPrefix)
	if err != nil {
		s.log.WithError(err).Warn("registry listing failed, replicating to no peers")
		return nil, nil
	}

	addrs := make(map[string]string, len(listing))
	ids := make([]string, 0, len(listing))
	for name, addr := range listing {
		id := strings.TrimPrefix(name, registry.ReplicaPrefix)
		if id == s.replicaID {
			continue
		}
		addrs[id] = addr
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, addrs
}
