package node

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distvote/internal/api"
	"distvote/internal/storage"
)

// InternalServer implements the peer-only surface: replicated updates
// and full-state snapshots.
type InternalServer struct {
	replicaID string
	store     *storage.Store
	log       *logrus.Entry
}

// NewInternalServer creates the internal service for one replica.
func NewInternalServer(store *storage.Store) *InternalServer {
	id := store.ReplicaID()
	return &InternalServer{
		replicaID: id,
		store:     store,
		log:       logrus.WithField("replica", id),
	}
}

// RegisterRoutes mounts the internal operations on r.
func (s *InternalServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(api.PathInternalUpdate, s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc(api.PathInternalState, s.handleFullState).Methods(http.MethodGet)
}

// handleUpdate applies a vote already validated by the coordinator,
// under the same lock discipline as a local vote. It never re-broadcasts:
// fan-out happens once, from the node that took the client request.
func (s *InternalServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRequest
	if err := api.ReadJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"username":    req.Username,
		"candidate":   req.Candidate,
		"coordinator": req.CoordinatorID,
		"request_id":  req.RequestID,
	})
	log.Info("replicated update received")

	err := s.store.ApplyVote(req.Username, req.Candidate)
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, api.VoteResult{
			OK:      true,
			Message: "state updated",
		})
	case errors.Is(err, storage.ErrAlreadyVoted):
		// The voter is already in this replica's voted set: a state
		// conflict. Reported without mutation; no reconciliation is
		// attempted beyond rejecting the duplicate.
		log.Warn("replicated update conflicts with local voted set")
		api.WriteJSON(w, http.StatusOK, api.VoteResult{
			Code:    api.CodeStateConflict,
			Message: "voter has already voted on this replica",
		})
	case errors.Is(err, storage.ErrNotRegistered):
		log.Warn("replicated update for unregistered voter")
		api.WriteJSON(w, http.StatusOK, api.VoteResult{
			Code:    api.CodeNotRegistered,
			Message: "voter is not registered on this replica",
		})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *InternalServer) handleFullState(w http.ResponseWriter, r *http.Request) {
	votes, votedUsers := s.store.FullState()
	s.log.Info("full state requested")
	api.WriteJSON(w, http.StatusOK, api.FullState{Votes: votes, VotedUsers: votedUsers})
}
