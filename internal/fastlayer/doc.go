// Package fastlayer holds the low-latency custody copies of delegated
// session records. Implementations store opaque fixed-width record bytes
// keyed by session ID and never interpret them.
//
// Subpackages:
//   - memory: process-local map, for tests and single-node deployments
//   - redis: Redis keyspace that survives gateway restarts
package fastlayer
