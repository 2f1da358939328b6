// Package api defines the wire surface shared by replicas, peers and
// clients: JSON bodies for the six voting operations, the route paths
// they are served on, and the failure classes carried in payloads.
package api
