package node

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distvote/internal/api"
	"distvote/internal/registry"
	"distvote/internal/storage"
)

// Server implements the public voting surface and the coordinator side
// of the replication protocol.
type Server struct {
	replicaID  string
	store      *storage.Store
	reg        *registry.Client
	clients    *ClientManager
	rpcTimeout time.Duration
	log        *logrus.Entry
}

// NewServer creates the public service for one replica.
func NewServer(store *storage.Store, reg *registry.Client, clients *ClientManager, rpcTimeout time.Duration) *Server {
	id := store.ReplicaID()
	return &Server{
		replicaID:  id,
		store:      store,
		reg:        reg,
		clients:    clients,
		rpcTimeout: rpcTimeout,
		log:        logrus.WithField("replica", id),
	}
}

// RegisterRoutes mounts the public operations on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(api.PathAuthenticate, s.handleAuthenticate).Methods(http.MethodPost)
	r.HandleFunc(api.PathVoted, s.handleHasVoted).Methods(http.MethodGet)
	r.HandleFunc(api.PathVotes, s.handleCastVote).Methods(http.MethodPost)
	r.HandleFunc(api.PathResults, s.handleResults).Methods(http.MethodGet)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req api.AuthenticateRequest
	if err := api.ReadJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok := s.store.Authenticate(req.Username, req.Secret)
	s.log.WithFields(logrus.Fields{"username": req.Username, "ok": ok}).Debug("authenticate")
	api.WriteJSON(w, http.StatusOK, api.AuthenticateResponse{OK: ok})
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	api.WriteJSON(w, http.StatusOK, api.VotedResponse{Voted: s.store.HasVoted(username)})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req api.VoteRequest
	if err := api.ReadJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Candidate == "" {
		http.Error(w, "username and candidate must not be empty", http.StatusBadRequest)
		return
	}

	result := s.CastVote(r.Context(), req.Username, req.Candidate, req.RequestID)
	api.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.ResultsResponse{Results: s.store.Results()})
}
