// Package cache provides the TTL cache between the task façade and the
// TickTick API: namespaced keys, single-flight computation per key, and
// explicit namespace invalidation on mutating operations.
package cache
