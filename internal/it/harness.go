// Package it provides an in-process cluster harness and the end-to-end
// scenarios run against it: a registry, a set of replicas on loopback
// listeners, and a failover client.
package it

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"distvote/internal/client"
	"distvote/internal/node"
	"distvote/internal/registry"
	"distvote/internal/storage"
)

const rpcTimeout = 2 * time.Second

// Cluster is an in-process test cluster: one registry and any number of
// replicas, each with its own data directory.
type Cluster struct {
	t           *testing.T
	registrySrv *httptest.Server
	registry    *registry.Client
	credentials map[string]string

	mu    sync.Mutex
	nodes map[string]*node.Node
	dirs  map[string]string
}

// NewCluster starts a registry and prepares the shared credential table.
func NewCluster(t *testing.T, credentials map[string]string) *Cluster {
	t.Helper()

	srv := httptest.NewServer(registry.NewServer().Router())
	t.Cleanup(srv.Close)

	return &Cluster{
		t:           t,
		registrySrv: srv,
		registry:    registry.NewClient(strings.TrimPrefix(srv.URL, "http://"), rpcTimeout),
		credentials: credentials,
		nodes:       make(map[string]*node.Node),
		dirs:        make(map[string]string),
	}
}

// Registry returns a client for the cluster's name server.
func (c *Cluster) Registry() *registry.Client {
	return c.registry
}

// StartReplica boots a replica with a fresh data directory (or the one
// it used before, when restarting after Kill).
func (c *Cluster) StartReplica(id string) *node.Node {
	c.t.Helper()

	c.mu.Lock()
	dir, ok := c.dirs[id]
	if !ok {
		dir = c.t.TempDir()
		c.dirs[id] = dir
		c.writeCredentials(dir)
	}
	c.mu.Unlock()

	store, err := storage.Open(id, dir)
	require.NoError(c.t, err)

	n := node.New(store, c.registry, "127.0.0.1:0", rpcTimeout)
	require.NoError(c.t, n.Start(context.Background()))
	c.t.Cleanup(n.Kill)

	c.mu.Lock()
	c.nodes[id] = n
	c.mu.Unlock()
	return n
}

// Node returns a running replica by id.
func (c *Cluster) Node(id string) *node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id]
}

// Kill crash-stops a replica: the listener closes but the registry
// entry stays behind, as after a real crash.
func (c *Cluster) Kill(id string) {
	c.t.Helper()

	c.mu.Lock()
	n := c.nodes[id]
	delete(c.nodes, id)
	c.mu.Unlock()

	require.NotNil(c.t, n, "replica %s is not running", id)
	n.Kill()
}

// Client returns a failover controller for this cluster with a short
// retry delay suitable for tests.
func (c *Cluster) Client() *client.Controller {
	return client.New(c.registry, 3, 50*time.Millisecond, rpcTimeout)
}

func (c *Cluster) writeCredentials(dir string) {
	c.t.Helper()

	data, err := json.Marshal(c.credentials)
	require.NoError(c.t, err)
	require.NoError(c.t, os.WriteFile(filepath.Join(dir, "voters.json"), data, 0o644))
}

// ReplicaIDs lists the running replicas in sorted order.
func (c *Cluster) ReplicaIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartThree boots the canonical three-replica cluster r1, r2, r3.
func (c *Cluster) StartThree() {
	c.t.Helper()
	for i := 1; i <= 3; i++ {
		c.StartReplica(fmt.Sprintf("r%d", i))
	}
}
