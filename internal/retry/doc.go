// Package retry provides exponential backoff retry for calls to the shared
// cache and the document store.
//
// Outbound integration calls are never retried here: a 401 from the API
// gateway is handled by the gateway client, everything else is reported to
// the caller as is.
//
// # Usage
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return client.Ping(ctx).Err()
//	}, &retry.Options{ShouldRetry: retry.Unless(redis.Nil)})
//
// Wrap an error with Permanent to stop retrying from inside fn.
package retry
