package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"distvote/internal/api"
)

// PeerClient is the slice of the replica surface the engine and the
// sync manager need from a peer.
type PeerClient interface {
	Update(ctx context.Context, req api.UpdateRequest) (api.VoteResult, error)
	FullState(ctx context.Context) (api.FullState, error)
}

// ClientManager caches one HTTP client per peer address. Addresses come
// and go with the registry listing; entries are created on demand.
type ClientManager struct {
	mu      sync.RWMutex
	timeout time.Duration
	clients map[string]PeerClient
}

// NewClientManager creates a client manager with the given per-call timeout.
func NewClientManager(timeout time.Duration) *ClientManager {
	return &ClientManager{
		timeout: timeout,
		clients: make(map[string]PeerClient),
	}
}

// Get returns the cached client for addr, creating it if needed.
func (cm *ClientManager) Get(addr string) PeerClient {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()
	if exists {
		return client
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if client, exists := cm.clients[addr]; exists {
		return client
	}

	client = &peerClient{
		baseURL: "http://" + addr,
		httpc:   &http.Client{Timeout: cm.timeout},
	}
	cm.clients[addr] = client
	return client
}

// peerClient speaks the internal replica surface over HTTP.
type peerClient struct {
	baseURL string
	httpc   *http.Client
}

func (p *peerClient) Update(ctx context.Context, update api.UpdateRequest) (api.VoteResult, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return api.VoteResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/internal/v1/update", bytes.NewReader(body))
	if err != nil {
		return api.VoteResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return api.VoteResult{}, fmt.Errorf("replicating to %s: %w", p.baseURL, err)
	}
	var result api.VoteResult
	if err := api.DecodeResponse(resp, &result); err != nil {
		return api.VoteResult{}, err
	}
	return result, nil
}

func (p *peerClient) FullState(ctx context.Context) (api.FullState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/internal/v1/state", nil)
	if err != nil {
		return api.FullState{}, err
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return api.FullState{}, fmt.Errorf("pulling state from %s: %w", p.baseURL, err)
	}
	var state api.FullState
	if err := api.DecodeResponse(resp, &state); err != nil {
		return api.FullState{}, err
	}
	return state, nil
}
