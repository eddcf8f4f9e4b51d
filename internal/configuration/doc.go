// Package configuration resolves named configuration documents through a
// three tier lookup: a request-local map, the shared Redis cache and the
// document store.
//
// A Provider is built per inbound request. Its local map never expires and
// is discarded with the request.
package configuration
