// Package node implements a voting replica: the public and internal
// HTTP services, the replication engine that commits a vote locally,
// fans it out to the peers listed in the registry and rolls back when
// the majority is missed, and the startup sync that pulls a full
// snapshot from the first live peer.
//
// Known limitation, kept for protocol compatibility: two replicas can
// each accept the same voter concurrently before either finishes its
// fan-out. The peers reject the second replicated update as a state
// conflict, but nothing reconciles the two local commits afterwards;
// there is no cluster-wide lock on "has this voter voted anywhere".
package node
