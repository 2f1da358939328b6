// Package storage provides one replica's local voting state: the tally,
// the voted set and the read-only credential table. Every mutation runs
// under a single mutex and persists to the backing JSON files before the
// lock is released, so disk and memory never diverge outside a critical
// section.
package storage
