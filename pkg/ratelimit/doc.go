// Package ratelimit provides per-client token-bucket rate limiting middleware
// for the log intake endpoint, with automatic stale-entry cleanup.
package ratelimit
