// Package cache implements the shared cache on Redis and the request-local
// tier placed in front of it.
//
// One Client is created per process and shared by every request. Values are
// plain strings or JSON documents; TTLs are expressed in whole seconds and
// default to Hour. Connection level failures are retried with exponential
// backoff, cache misses never are.
//
// A Local belongs to a single request scope. It holds decoded values, never
// expires them and evicts the least recently used entry when full.
package cache
