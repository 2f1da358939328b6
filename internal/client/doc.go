// Package client implements the voter-side failover controller: it
// keeps a cached connection to one replica, health-checks it, rotates
// through the registry's listing when it fails, and wraps every remote
// operation in a bounded retry loop with a fixed delay. Payload-level
// failures (already voted, not registered, quorum missed) come back as
// structured results and are never retried; only communication faults
// consume the retry budget.
package client
