// Package server exposes the integration clients over HTTP with gin.
//
// Every request under the base path gets its own integration.Scope, built
// after the request id and trace context were attached to the request
// context, so the clients' log lines and audit records carry both. Errors
// returned by the clients are mapped to status codes by statusFor and
// rendered as {statusCode, message, timestamp, path}.
package server
