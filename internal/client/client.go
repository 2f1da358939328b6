package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"distvote/internal/api"
	"distvote/internal/registry"
)

// ErrNoServers is returned when the registry lists no replicas or none
// answers the liveness probe within the retry budget.
var ErrNoServers = errors.New("no voting servers available")

// Controller is the client failover controller. It is reusable for the
// lifetime of a session; a failed connection resets it to the unbound
// state and the next call probes the registry listing again.
type Controller struct {
	reg      *registry.Client
	attempts int
	delay    time.Duration
	timeout  time.Duration

	mu   sync.Mutex
	conn *replicaConn
	log  *logrus.Entry
}

// replicaConn is a bound connection to one replica.
type replicaConn struct {
	id      string
	baseURL string
	httpc   *http.Client
}

// New creates a controller. attempts is the bounded retry budget per
// operation; delay the fixed sleep between attempts; timeout the
// per-call communication timeout.
func New(reg *registry.Client, attempts int, delay, timeout time.Duration) *Controller {
	return &Controller{
		reg:      reg,
		attempts: attempts,
		delay:    delay,
		timeout:  timeout,
		log:      logrus.WithField("component", "failover"),
	}
}

// Replica returns the id of the currently bound replica, or "" when unbound.
func (c *Controller) Replica() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.id
}

// Authenticate verifies a voter's credentials on whichever replica the
// controller is bound to.
func (c *Controller) Authenticate(ctx context.Context, username, secret string) (bool, error) {
	var out api.AuthenticateResponse
	err := c.call(ctx, func(conn *replicaConn) error {
		return conn.postJSON(ctx, api.PathAuthenticate,
			api.AuthenticateRequest{Username: username, Secret: secret}, &out)
	})
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

// HasVoted reports whether the voter already voted on the bound replica.
func (c *Controller) HasVoted(ctx context.Context, username string) (bool, error) {
	var out api.VotedResponse
	err := c.call(ctx, func(conn *replicaConn) error {
		return conn.getJSON(ctx, "/v1/voted/"+url.PathEscape(username), &out)
	})
	if err != nil {
		return false, err
	}
	return out.Voted, nil
}

// CastVote submits a vote. The result is always structured: either the
// replica's own payload (success or application failure) or, once the
// retry budget is exhausted, an unavailability result.
func (c *Controller) CastVote(ctx context.Context, username, candidate string) api.VoteResult {
	var out api.VoteResult
	err := c.call(ctx, func(conn *replicaConn) error {
		return conn.postJSON(ctx, api.PathVotes, api.VoteRequest{
			Username:  username,
			Candidate: candidate,
			RequestID: uuid.NewString(),
		}, &out)
	})
	if err != nil {
		return api.VoteResult{
			Code:    api.CodeUnavailable,
			Message: "the operation could not be completed: the voting system may be unavailable",
		}
	}
	return out
}

// Results fetches the current tally from the bound replica.
func (c *Controller) Results(ctx context.Context) (map[string]int, error) {
	var out api.ResultsResponse
	err := c.call(ctx, func(conn *replicaConn) error {
		return conn.getJSON(ctx, api.PathResults, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// call runs fn against a bound connection with the bounded retry loop.
// Any error from fn is a communication-class fault: the cached
// connection is dropped and the attempt is consumed. Application
// failures ride inside fn's decoded payload and return a nil error.
func (c *Controller) call(ctx context.Context, fn func(conn *replicaConn) error) error {
	var lastErr error = ErrNoServers

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		conn := c.acquireConn(ctx)
		if conn == nil {
			c.log.WithField("attempt", attempt+1).Warn("no servers available")
			lastErr = ErrNoServers
			continue
		}

		err := fn(conn)
		if err == nil {
			return nil
		}

		c.log.WithError(err).WithField("replica", conn.id).Warn("call failed, dropping connection")
		c.dropConn(conn)
		lastErr = err
	}

	return fmt.Errorf("operation failed after %d attempts: %w", c.attempts, lastErr)
}

// acquireConn returns the cached connection when it still answers the
// liveness probe, otherwise rotates through the registry listing and
// binds the first candidate that does. Returns nil when no server is
// available in this pass.
func (c *Controller) acquireConn(ctx context.Context) *replicaConn {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := conn.probe(ctx); err == nil {
			return conn
		}
		c.log.WithField("replica", conn.id).Warn("cached connection failed probe, reconnecting")
		c.dropConn(conn)
	}

	listing, err := c.reg.List(ctx, registry.ReplicaPrefix)
	if err != nil {
		c.log.WithError(err).Warn("registry unreachable")
		return nil
	}
	if len(listing) == 0 {
		return nil
	}

	names := make([]string, 0, len(listing))
	for name := range listing {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		candidate := &replicaConn{
			id:      strings.TrimPrefix(name, registry.ReplicaPrefix),
			baseURL: "http://" + listing[name],
			httpc:   &http.Client{Timeout: c.timeout},
		}
		if err := candidate.probe(ctx); err != nil {
			c.log.WithError(err).WithField("replica", candidate.id).Debug("probe failed, skipping")
			continue
		}

		c.mu.Lock()
		c.conn = candidate
		c.mu.Unlock()
		c.log.WithField("replica", candidate.id).Info("connected to replica")
		return candidate
	}

	return nil
}

// dropConn forgets conn if it is still the cached one.
func (c *Controller) dropConn(conn *replicaConn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// probe is the cheap liveness check: a results fetch.
func (r *replicaConn) probe(ctx context.Context) error {
	var out api.ResultsResponse
	return r.getJSON(ctx, api.PathResults, &out)
}

func (r *replicaConn) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	return api.DecodeResponse(resp, out)
}

func (r *replicaConn) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	return api.DecodeResponse(resp, out)
}
