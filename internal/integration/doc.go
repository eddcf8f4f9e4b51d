// Package integration implements the outbound integration clients.
//
// Client performs JSON calls against services registered in the
// IntegrationServices configuration document, with optional response
// caching in a request-local map and in the shared Redis cache. Every call
// attempt is logged once with its timing and audited once.
//
// GatewayClient adds bearer token handling for services behind the API
// gateway, refreshing the token once when the upstream answers 401.
//
// AsyncClient tracks long running operations that finish through a
// callback. The state of an operation lives in the shared cache under its
// correlation id:
//
//	READY_TO_START  no record
//	PROCESSING      record present, deadline not reached (or no result yet)
//	SUCCESS         callback result present, deadline reached
//	TIMEOUT         no callback result, deadline reached
//
// Clients are built per inbound request through Deps.NewScope and must not
// be shared between requests.
package integration
