package registry

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distvote/internal/api"
)

type registration struct {
	Addr string `json:"addr"`
}

type listResponse struct {
	Names map[string]string `json:"names"`
}

// Server is the in-memory name table behind the registry HTTP surface.
type Server struct {
	mu    sync.RWMutex
	names map[string]string
	log   *logrus.Entry
}

// NewServer creates an empty name server.
func NewServer() *Server {
	return &Server{
		names: make(map[string]string),
		log:   logrus.WithField("component", "registry"),
	}
}

// Router returns the HTTP routes of the name service.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/names/{name}", s.handleRegister).Methods(http.MethodPut)
	r.HandleFunc("/v1/names/{name}", s.handleUnregister).Methods(http.MethodDelete)
	r.HandleFunc("/v1/names/{name}", s.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/v1/names", s.handleList).Methods(http.MethodGet)
	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var reg registration
	if err := api.ReadJSON(r, &reg); err != nil || reg.Addr == "" {
		http.Error(w, "body must be {\"addr\": \"host:port\"}", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.names[name] = reg.Addr
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"name": name, "addr": reg.Addr}).Info("registered")
	api.WriteJSON(w, http.StatusOK, reg)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.Lock()
	delete(s.names, name)
	s.mu.Unlock()

	s.log.WithField("name", name).Info("unregistered")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.RLock()
	addr, ok := s.names[name]
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "name not registered", http.StatusNotFound)
		return
	}
	api.WriteJSON(w, http.StatusOK, registration{Addr: addr})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	s.mu.RLock()
	names := make(map[string]string)
	for name, addr := range s.names {
		if strings.HasPrefix(name, prefix) {
			names[name] = addr
		}
	}
	s.mu.RUnlock()

	api.WriteJSON(w, http.StatusOK, listResponse{Names: names})
}
