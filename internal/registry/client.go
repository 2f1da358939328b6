package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"distvote/internal/api"
)

// ReplicaPrefix is the name prefix replicas register under; the part
// after the prefix is the replica id.
const ReplicaPrefix = "voting.replica."

// ErrNotFound is returned by Lookup when the name has no registration.
var ErrNotFound = errors.New("name not registered")

// ReplicaName builds the registry name for a replica id.
func ReplicaName(id string) string {
	return ReplicaPrefix + id
}

// Client talks to the name server. Any transport failure it returns is a
// communication-class fault; callers treat it as transient.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a registry client for the server at addr (host:port).
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{
		baseURL: "http://" + addr,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Register binds name to addr, overwriting any previous registration.
func (c *Client) Register(ctx context.Context, name, addr string) error {
	body, err := json.Marshal(registration{Addr: addr})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.nameURL(name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("registering %q: %w", name, err)
	}
	return api.DecodeResponse(resp, nil)
}

// Unregister removes a registration; removing an unknown name is not an error.
func (c *Client) Unregister(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.nameURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("unregistering %q: %w", name, err)
	}
	return api.DecodeResponse(resp, nil)
}

// Lookup resolves a single name.
func (c *Client) Lookup(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nameURL(name), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("looking up %q: %w", name, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return "", ErrNotFound
	}
	var reg registration
	if err := api.DecodeResponse(resp, &reg); err != nil {
		return "", err
	}
	return reg.Addr, nil
}

// List returns every registration whose name starts with prefix.
func (c *Client) List(ctx context.Context, prefix string) (map[string]string, error) {
	u := c.baseURL + "/v1/names?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing prefix %q: %w", prefix, err)
	}
	var listing listResponse
	if err := api.DecodeResponse(resp, &listing); err != nil {
		return nil, err
	}
	if listing.Names == nil {
		listing.Names = map[string]string{}
	}
	return listing.Names, nil
}

func (c *Client) nameURL(name string) string {
	return c.baseURL + "/v1/names/" + url.PathEscape(name)
}
