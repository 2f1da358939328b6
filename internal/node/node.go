package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distvote/internal/registry"
	"distvote/internal/storage"
)

// Node ties one replica together: the store, the registry registration,
// the startup sync and the HTTP services.
type Node struct {
	replicaID  string
	listenAddr string
	rpcTimeout time.Duration

	store   *storage.Store
	reg     *registry.Client
	clients *ClientManager
	server  *Server
	inner   *InternalServer

	lis        net.Listener
	httpServer *http.Server
	log        *logrus.Entry
}

// New creates a replica node. The store must already be opened; the
// registry client points at the name server the cluster shares.
func New(store *storage.Store, reg *registry.Client, listenAddr string, rpcTimeout time.Duration) *Node {
	clients := NewClientManager(rpcTimeout)
	return &Node{
		replicaID:  store.ReplicaID(),
		listenAddr: listenAddr,
		rpcTimeout: rpcTimeout,
		store:      store,
		reg:        reg,
		clients:    clients,
		server:     NewServer(store, reg, clients, rpcTimeout),
		inner:      NewInternalServer(store),
		log:        logrus.WithField("replica", store.ReplicaID()),
	}
}

// Start binds the listener, registers with the name server, syncs state
// from the first live peer and then begins serving. It returns once the
// replica is accepting traffic; Stop shuts it down.
func (n *Node) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", n.listenAddr, err)
	}
	n.lis = lis

	regCtx, cancel := context.WithTimeout(ctx, n.rpcTimeout)
	err = n.reg.Register(regCtx, registry.ReplicaName(n.replicaID), n.Addr())
	cancel()
	if err != nil {
		lis.Close()
		return fmt.Errorf("registering with name server: %w", err)
	}
	n.log.WithField("addr", n.Addr()).Info("registered with name server")

	// Recovery runs before any client traffic is accepted.
	n.syncFromPeers(ctx)

	router := mux.NewRouter()
	n.server.RegisterRoutes(router)
	n.inner.RegisterRoutes(router)

	n.httpServer = &http.Server{Handler: router}
	go func() {
		if err := n.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.WithError(err).Error("serve failed")
		}
	}()

	n.log.WithField("addr", n.Addr()).Info("replica serving")
	return nil
}

// Addr returns the bound listen address.
func (n *Node) Addr() string {
	if n.lis == nil {
		return n.listenAddr
	}
	return n.lis.Addr().String()
}

// Store exposes the replica's store, used by the test harness for
// direct state assertions.
func (n *Node) Store() *storage.Store {
	return n.store
}

// Kill closes the listener without unregistering, the crash-stop this
// design tolerates: the stale registry entry stays behind and callers
// skip it when their probe fails.
func (n *Node) Kill() {
	if n.httpServer != nil {
		n.httpServer.Close()
	} else if n.lis != nil {
		n.lis.Close()
	}
}

// Stop drains the HTTP server and removes the registry entry. A crashed
// replica never gets here; its stale registration is skipped by probers.
func (n *Node) Stop(ctx context.Context) error {
	var firstErr error
	if n.httpServer != nil {
		if err := n.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	unregCtx, cancel := context.WithTimeout(ctx, n.rpcTimeout)
	defer cancel()
	if err := n.reg.Unregister(unregCtx, registry.ReplicaName(n.replicaID)); err != nil && firstErr == nil {
		firstErr = err
	}

	n.log.Info("replica stopped")
	return firstErr
}
