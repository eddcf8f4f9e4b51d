// Package health provides the liveness and readiness endpoints.
//
// Readiness runs every registered check with a timeout. A failing critical
// check makes the instance unready; a failing non-critical check only
// degrades it. While draining, readiness always fails so that load
// balancers stop routing new requests during shutdown.
package health
