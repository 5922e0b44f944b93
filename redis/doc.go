// Package redis is a typed thin wrapper around the Redis commands the
// scheduler needs: hash, list, and set primitives, plus a compare-and-set
// primitive used as the sole dedup mechanism for enqueue (spec §4.4).
//
// Gateway hides connection and retry details from the storage layer. Every
// method retries transient failures with an exponential backoff and
// surfaces anything that survives retries as ErrUnavailable, so callers can
// log and move on rather than treat it as fatal.
package redis
