package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultPerPeerTimeout bounds each replication RPC. There is no
// cancellation beyond this; a stalled peer is classified as a
// communication failure once it fires.
const DefaultPerPeerTimeout = 5 * time.Second

// Required returns the majority threshold for a write fanned out to
// `peers` other replicas: ceil((peers+1)/2), the coordinator included.
// With zero reachable peers the local commit alone suffices.
func Required(peers int) int {
	return (peers + 2) / 2
}

// Met reports whether `acks` explicit peer successes plus the local
// commit reach the majority threshold.
func Met(acks, peers int) bool {
	return acks+1 >= Required(peers)
}

// PeerFunc applies an update on a single peer. ok=false with a nil error
// is a peer-side payload rejection (e.g. a state conflict); both shapes
// count as a non-success in the quorum arithmetic.
type PeerFunc func(ctx context.Context, peerID string) (bool, error)

// Result is the outcome of one fan-out round.
type Result struct {
	Acks     int
	Peers    int
	Required int
	Errors   []error
}

// Met reports whether the round reached quorum, local commit included.
func (r Result) Met() bool {
	return Met(r.Acks, r.Peers)
}

// Summary renders the round for log lines and failure messages.
func (r Result) Summary() string {
	return fmt.Sprintf("acks=%d/%d required=%d", r.Acks+1, r.Peers+1, r.Required)
}

// Fanout invokes fn for every peer in parallel and waits for all of
// them. A failure on one peer never aborts contact with the rest; only
// explicit successes are counted. The per-peer timeout applies to the
// whole round, mirroring the fixed communication timeout of each RPC.
func Fanout(ctx context.Context, peers []string, timeout time.Duration, fn PeerFunc) Result {
	result := Result{
		Peers:    len(peers),
		Required: Required(len(peers)),
	}
	if len(peers) == 0 {
		return result
	}
	if timeout <= 0 {
		timeout = DefaultPerPeerTimeout
	}

	peerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, peerID := range peers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			ok, err := fn(peerCtx, id)
			mu.Lock()
			defer mu.Unlock()

			switch {
			case ok:
				result.Acks++
			case err != nil:
				result.Errors = append(result.Errors, fmt.Errorf("peer %s: %w", id, err))
			default:
				result.Errors = append(result.Errors, fmt.Errorf("peer %s: update rejected", id))
			}
		}(peerID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		result.Errors = append(result.Errors, fmt.Errorf("fanout cancelled: %w", ctx.Err()))
		return result
	}

	return result
}
