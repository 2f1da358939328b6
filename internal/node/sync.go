package node

import (
	"context"

	"github.com/sirupsen/logrus"
)

// syncFromPeers runs once at startup, after the persisted state is
// loaded and before the replica serves traffic. It walks the registry
// listing in order and installs the first live peer's snapshot
// wholesale; no merge, no second opinion. With no reachable peer the
// locally loaded state stands.
func (n *Node) syncFromPeers(ctx context.Context) {
	peerIDs, peerAddrs := n.server.peerTable(ctx)
	if len(peerIDs) == 0 {
		n.log.Info("no live peers to sync from, keeping local state")
		return
	}

	for _, peerID := range peerIDs {
		log := n.log.WithField("peer", peerID)
		log.Info("requesting full state")

		callCtx, cancel := context.WithTimeout(ctx, n.rpcTimeout)
		state, err := n.clients.Get(peerAddrs[peerID]).FullState(callCtx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("sync failed, trying next peer")
			continue
		}

		if err := n.store.ReplaceAll(state.Votes, state.VotedUsers); err != nil {
			log.WithError(err).Error("installing peer snapshot failed")
			continue
		}
		log.WithFields(logrus.Fields{
			"candidates": len(state.Votes),
			"voters":     len(state.VotedUsers),
		}).Info("state synchronized")
		return
	}

	n.log.Warn("could not sync with any peer, starting from local state")
}
