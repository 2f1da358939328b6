// Package registry implements the name service replicas and clients use
// for discovery: a small HTTP name server mapping names to addresses,
// and the client the rest of the system consumes it through. Replicas
// register under the "voting.replica." prefix; prefix listing enumerates
// the cluster.
package registry
