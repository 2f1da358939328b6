// Package quorum provides majority arithmetic and the parallel peer
// fan-out used when replicating a vote. The coordinator's local commit
// always counts as one automatic success.
package quorum
